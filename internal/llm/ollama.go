// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
)

// defaultOllamaBase is the local Ollama endpoint.
const defaultOllamaBase = "http://localhost:11434"

// thinkPattern matches reasoning blocks some local models emit inline with
// their output.
var thinkPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)

// Ollama calls a local Ollama instance through its generate API.
type Ollama struct {
	Client  *http.Client
	BaseURL string
	Model   string
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

// Name implements Provider.
func (o *Ollama) Name() string { return "ollama" }

// Complete implements Provider over the generate API, stripping any inline
// <think> blocks from the response.
func (o *Ollama) Complete(ctx context.Context, prompt string) (string, error) {
	base := strings.TrimSuffix(o.BaseURL, "/")
	if base == "" {
		base = defaultOllamaBase
	}

	body, err := json.Marshal(ollamaRequest{Model: o.Model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := o.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling ollama: %v: %w", err, ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ollama returned %d: %s: %w", resp.StatusCode, string(msg), ErrUnavailable)
	}

	var or ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
		return "", fmt.Errorf("decoding ollama response: %w", err)
	}

	return strings.TrimSpace(thinkPattern.ReplaceAllString(or.Response, "")), nil
}
