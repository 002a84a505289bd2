// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package gate classifies papers as AI-related or not from a prefix of the
// extracted text, before any summarization spend.
package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/txltxl22/ai-paper-digest/internal/llm"
	"github.com/txltxl22/ai-paper-digest/pkg/types"
)

const (
	defaultPrefixChars = 1000
	defaultThreshold   = 0.5
)

// classifyPromptTmpl is the fixed classification prompt. The model sees only
// the opening of the paper and must answer with a single JSON object.
var classifyPromptTmpl = template.Must(template.New("classify").Parse(`You are a research paper classifier. Read the opening of an academic paper below and decide whether the paper belongs to the field of artificial intelligence (machine learning, deep learning, NLP, computer vision, reinforcement learning, AI systems, or closely related areas).

Respond with a JSON object only, no other text:
{"is_ai": true or false, "confidence": a float between 0.0 and 1.0, "tags": ["up to five lowercase topic labels"]}

Paper opening:
{{.Prefix}}
`))

// Gate runs the relevance classification.
type Gate struct {
	provider llm.Provider
	cfg      types.GateConfig
}

// New creates a gate using the given provider. Zero-valued tunables fall
// back to defaults (1000-char prefix, 0.5 confidence threshold).
func New(provider llm.Provider, cfg types.GateConfig) *Gate {
	if cfg.PrefixChars <= 0 {
		cfg.PrefixChars = defaultPrefixChars
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = defaultThreshold
	}
	return &Gate{provider: provider, cfg: cfg}
}

// Check classifies the paper from a prefix of its extracted text. The raw
// model output is fence-stripped before parsing; an unparseable verdict is
// an error, not a rejection.
func (g *Gate) Check(ctx context.Context, text string, maxRetries int) (types.GateJudgment, error) {
	// The prefix is cut at a rune boundary so multi-byte titles and
	// abstracts never reach the model with a mangled trailing character.
	prefix := text
	if runes := []rune(prefix); len(runes) > g.cfg.PrefixChars {
		prefix = string(runes[:g.cfg.PrefixChars])
	}

	var buf bytes.Buffer
	if err := classifyPromptTmpl.Execute(&buf, struct{ Prefix string }{Prefix: prefix}); err != nil {
		return types.GateJudgment{}, fmt.Errorf("rendering classification prompt: %w", err)
	}

	out, err := llm.CompleteWithRetry(ctx, g.provider, buf.String(), maxRetries)
	if err != nil {
		return types.GateJudgment{}, fmt.Errorf("classification call: %w", err)
	}

	var verdict struct {
		IsAI       bool     `json:"is_ai"`
		Confidence float64  `json:"confidence"`
		Tags       []string `json:"tags"`
	}
	if err := json.Unmarshal([]byte(llm.ExtractJSON(out)), &verdict); err != nil {
		return types.GateJudgment{}, fmt.Errorf("parsing classification verdict: %w", err)
	}
	if verdict.Confidence < 0 || verdict.Confidence > 1 {
		return types.GateJudgment{}, fmt.Errorf("classification confidence %f out of range [0,1]", verdict.Confidence)
	}

	return types.GateJudgment{
		IsAI:       verdict.IsAI,
		Confidence: verdict.Confidence,
		Tags:       verdict.Tags,
	}, nil
}

// Accept reports whether the judgment clears the configured threshold:
// a positive verdict with sufficient confidence.
func (g *Gate) Accept(j types.GateJudgment) bool {
	return j.IsAI && j.Confidence >= g.cfg.ConfidenceThreshold
}
