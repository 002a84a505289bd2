// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "paper-digest/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// LLMConfig selects and configures one LLM provider. The orchestrator is
// provider-agnostic; only construction reads these fields.
type LLMConfig struct {
	// Provider is "openai", "anthropic", or "ollama". "openai" covers any
	// OpenAI-compatible endpoint (DeepSeek, vLLM, ...) via BaseURL.
	Provider string `json:"provider" yaml:"provider"`

	// Model is the model identifier (e.g. "deepseek-chat").
	Model string `json:"model" yaml:"model"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// APIKey authenticates against the provider.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Timeout is the per-call request timeout (default 120s).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// MaxRetries is the retry budget for failed calls (default 2).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// DownloadConfig holds settings for the download manager.
type DownloadConfig struct {
	HTTPConfig `yaml:",inline"`

	// MaxRetries is the retry budget for transient download failures (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// MinBytes is the smallest file size accepted as a plausible PDF (default 1024).
	MinBytes int64 `json:"min_bytes" yaml:"min_bytes"`

	// ProgressInterval throttles progress callbacks (default 500ms).
	ProgressInterval time.Duration `json:"progress_interval" yaml:"progress_interval"`
}

// ExtractionConfig holds settings for text extraction and chunking.
type ExtractionConfig struct {
	// MinChars is the minimum extracted-text length considered usable (default 200).
	MinChars int `json:"min_chars" yaml:"min_chars"`

	// ChunkChars is the maximum chunk length in characters (default 5000).
	ChunkChars int `json:"chunk_chars" yaml:"chunk_chars"`

	// ChunkOverlap is the character overlap between consecutive chunks (default 250).
	ChunkOverlap int `json:"chunk_overlap" yaml:"chunk_overlap"`
}

// GateConfig holds settings for the relevance gate.
type GateConfig struct {
	// PrefixChars is how much extracted text the classifier sees (default 1000).
	PrefixChars int `json:"prefix_chars" yaml:"prefix_chars"`

	// ConfidenceThreshold is the minimum confidence to accept a positive
	// verdict (default 0.5). Below it the paper is treated as not AI-related.
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidence_threshold"`
}

// StoreConfig holds settings for the cache and record store.
type StoreConfig struct {
	// DataDir is the base directory for artifacts
	// (contains pdfs/, text/, summaries/, index/).
	DataDir string `json:"data_dir" yaml:"data_dir"`
}

// TrackerConfig holds settings for the task registry.
type TrackerConfig struct {
	// Retention is how long completed tasks stay pollable (default 1h).
	Retention time.Duration `json:"retention" yaml:"retention"`
}

// PipelineConfig groups all stage configurations.
type PipelineConfig struct {
	// Workers bounds the number of papers processed in parallel (default 2).
	Workers int `json:"workers" yaml:"workers"`

	Download   DownloadConfig   `json:"download" yaml:"download"`
	Extraction ExtractionConfig `json:"extraction" yaml:"extraction"`
	Gate       GateConfig       `json:"gate" yaml:"gate"`
	LLM        LLMConfig        `json:"llm" yaml:"llm"`
	Store      StoreConfig      `json:"store" yaml:"store"`
	Tracker    TrackerConfig    `json:"tracker" yaml:"tracker"`
}

// ServerConfig holds settings for the HTTP transport.
type ServerConfig struct {
	// Addr is the listen address (default ":8080").
	Addr string `json:"addr" yaml:"addr"`
}

// FeedConfig holds settings for feed batch runs.
type FeedConfig struct {
	HTTPConfig `yaml:",inline"`

	// MaxPapers caps how many feed links one run submits (0 = no cap).
	MaxPapers int `json:"max_papers" yaml:"max_papers"`
}
