// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"regexp"
	"strings"
)

// fencePattern matches a fenced code block, optionally tagged (```json ... ```).
var fencePattern = regexp.MustCompile("(?is)```(?:json|\\w+)?\\s*([\\s\\S]*?)\\s*```")

// ExtractJSON strips markdown fences and surrounding prose from raw model
// output, returning the best candidate JSON text. Models frequently wrap
// JSON in ```json fences or add a leading sentence; this recovers the
// payload without attempting to repair invalid JSON.
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if m := fencePattern.FindStringSubmatch(raw); m != nil {
		raw = strings.TrimSpace(m[1])
	}

	// Trim prose around the outermost JSON object or array.
	if start := strings.IndexAny(raw, "{["); start >= 0 {
		closer := byte('}')
		if raw[start] == '[' {
			closer = ']'
		}
		if end := strings.LastIndexByte(raw, closer); end > start {
			raw = raw[start : end+1]
		}
	}

	return strings.TrimSpace(raw)
}
