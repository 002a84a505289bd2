// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// defaultOpenAIBase is the OpenAI chat completions base URL. Any
// OpenAI-compatible endpoint (DeepSeek, vLLM, LiteLLM, ...) substitutes its
// own base URL via configuration.
const defaultOpenAIBase = "https://api.openai.com/v1"

// OpenAICompatible calls an OpenAI-compatible chat completions endpoint.
type OpenAICompatible struct {
	Client  *http.Client
	BaseURL string
	APIKey  string
	Model   string
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Name implements Provider.
func (o *OpenAICompatible) Name() string { return "openai" }

// Complete implements Provider over the chat completions API.
func (o *OpenAICompatible) Complete(ctx context.Context, prompt string) (string, error) {
	base := strings.TrimSuffix(o.BaseURL, "/")
	if base == "" {
		base = defaultOpenAIBase
	}

	body, err := json.Marshal(chatRequest{
		Model:    o.Model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.APIKey)

	client := o.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling chat completions: %v: %w", err, ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("chat completions returned %d: %s: %w", resp.StatusCode, string(msg), ErrUnavailable)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("decoding chat response: %w", err)
	}
	if cr.Error != nil {
		return "", fmt.Errorf("chat completions error: %s: %w", cr.Error.Message, ErrUnavailable)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("chat completions returned no choices")
	}
	return cr.Choices[0].Message.Content, nil
}
