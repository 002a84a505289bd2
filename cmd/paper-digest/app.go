// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/txltxl22/ai-paper-digest/internal/download"
	"github.com/txltxl22/ai-paper-digest/internal/extract"
	"github.com/txltxl22/ai-paper-digest/internal/gate"
	"github.com/txltxl22/ai-paper-digest/internal/llm"
	"github.com/txltxl22/ai-paper-digest/internal/pipeline"
	"github.com/txltxl22/ai-paper-digest/internal/resolve"
	"github.com/txltxl22/ai-paper-digest/internal/secrets"
	"github.com/txltxl22/ai-paper-digest/internal/store"
	"github.com/txltxl22/ai-paper-digest/internal/summarize"
	"github.com/txltxl22/ai-paper-digest/internal/task"
	"github.com/txltxl22/ai-paper-digest/pkg/types"
)

const (
	defaultDataDir   = "data"
	defaultTimeout   = 60 * time.Second
	defaultUserAgent = "paper-digest/0.1"
)

func init() {
	viper.SetDefault("data_dir", defaultDataDir)
	viper.SetDefault("workers", 2)
	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.max_retries", 2)
	viper.SetDefault("server.addr", ":8080")
}

// app bundles everything a subcommand needs to run the pipeline.
type app struct {
	service *pipeline.Service
	tasks   *task.Registry
	store   *store.Store
	log     *slog.Logger
	feedCfg types.FeedConfig
}

// buildApp assembles the pipeline from viper configuration and loaded
// secrets. The caller owns the returned app and must call close.
func buildApp() (*app, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	llmCfg := types.LLMConfig{
		Provider:   viper.GetString("llm.provider"),
		Model:      viper.GetString("llm.model"),
		BaseURL:    viper.GetString("llm.base_url"),
		APIKey:     secrets.APIKey(loadedSecrets, viper.GetString("llm.provider"), viper.GetString("llm.api_key")),
		Timeout:    viper.GetDuration("llm.timeout"),
		MaxRetries: viper.GetInt("llm.max_retries"),
	}
	provider, err := llm.New(llmCfg)
	if err != nil {
		return nil, fmt.Errorf("configuring LLM provider: %w", err)
	}

	st, err := store.NewStore(types.StoreConfig{DataDir: viper.GetString("data_dir")})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	httpTimeout := viper.GetDuration("http.timeout")
	if httpTimeout == 0 {
		httpTimeout = defaultTimeout
	}
	userAgent := viper.GetString("http.user_agent")
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	client := &http.Client{Timeout: httpTimeout}
	httpCfg := types.HTTPConfig{Timeout: httpTimeout, UserAgent: userAgent}

	registry := task.NewRegistry(types.TrackerConfig{
		Retention: viper.GetDuration("tracker.retention"),
	})

	svc := pipeline.NewService(pipeline.Deps{
		Resolver: &resolve.Resolver{Client: client, UserAgent: userAgent},
		Download: download.NewManager(client, types.DownloadConfig{
			HTTPConfig:       httpCfg,
			MaxRetries:       viper.GetInt("download.max_retries"),
			MinBytes:         viper.GetInt64("download.min_bytes"),
			ProgressInterval: viper.GetDuration("download.progress_interval"),
		}),
		Extractor: extract.NewExtractor(types.ExtractionConfig{
			MinChars:     viper.GetInt("extraction.min_chars"),
			ChunkChars:   viper.GetInt("extraction.chunk_chars"),
			ChunkOverlap: viper.GetInt("extraction.chunk_overlap"),
		}),
		Gate: gate.New(provider, types.GateConfig{
			PrefixChars:         viper.GetInt("gate.prefix_chars"),
			ConfidenceThreshold: viper.GetFloat64("gate.confidence_threshold"),
		}),
		Summarize:   summarize.New(provider, llmCfg.MaxRetries),
		Store:       st,
		Tasks:       registry,
		Logger:      logger,
		Workers:     viper.GetInt("workers"),
		GateRetries: llmCfg.MaxRetries,
		Provider:    provider.Name(),
		Model:       llmCfg.Model,
	})

	return &app{
		service: svc,
		tasks:   registry,
		store:   st,
		log:     logger,
		feedCfg: types.FeedConfig{
			HTTPConfig: httpCfg,
			MaxPapers:  viper.GetInt("feed.max_papers"),
		},
	}, nil
}

func (a *app) close() {
	a.service.Close()
	a.store.Close()
}
