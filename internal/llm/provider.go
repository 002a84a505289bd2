// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm provides interchangeable LLM provider clients behind a single
// interface, plus the response-cleaning helpers shared by every stage that
// parses model output.
package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/txltxl22/ai-paper-digest/pkg/types"
)

// ErrUnavailable indicates a network or authentication failure talking to
// the provider, as opposed to the provider returning unparseable content.
var ErrUnavailable = errors.New("provider unavailable")

const (
	defaultTimeout    = 120 * time.Second
	defaultMaxRetries = 2
)

// backoffBase controls the base duration for exponential backoff between
// provider call retries. Tests override this to avoid real sleeps.
var backoffBase = time.Second

// Provider is one configured LLM backend. Implementations are stateless and
// safe for concurrent use.
type Provider interface {
	// Name identifies the backend ("openai", "anthropic", "ollama") for
	// provenance records.
	Name() string

	// Complete sends one prompt and returns the model's text output.
	// Transport and auth failures wrap ErrUnavailable.
	Complete(ctx context.Context, prompt string) (string, error)
}

// New constructs the provider selected by cfg. Provider choice happens here,
// at construction time; callers stay provider-agnostic.
func New(cfg types.LLMConfig) (Provider, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := &http.Client{Timeout: timeout}

	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return &OpenAICompatible{Client: client, BaseURL: cfg.BaseURL, APIKey: cfg.APIKey, Model: cfg.Model}, nil
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires an API key")
		}
		return &Anthropic{Client: client, APIKey: cfg.APIKey, Model: cfg.Model}, nil
	case "ollama":
		return &Ollama{Client: client, BaseURL: cfg.BaseURL, Model: cfg.Model}, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

// CompleteWithRetry calls p.Complete with exponential backoff on failure.
// A stalled or failed call is retried up to maxRetries additional times;
// the last error is returned once the budget is exhausted.
func CompleteWithRetry(ctx context.Context, p Provider, prompt string, maxRetries int) (string, error) {
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		out, err := p.Complete(ctx, prompt)
		if err == nil {
			return out, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("after %d retries: %w", maxRetries, lastErr)
}
