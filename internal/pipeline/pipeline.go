// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs the end-to-end processing of one paper: resolve,
// download, extract, gate, summarize, persist. Submission is non-blocking;
// progress is observable through the task registry.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/semaphore"

	"github.com/txltxl22/ai-paper-digest/internal/download"
	"github.com/txltxl22/ai-paper-digest/internal/extract"
	"github.com/txltxl22/ai-paper-digest/internal/llm"
	"github.com/txltxl22/ai-paper-digest/internal/resolve"
	"github.com/txltxl22/ai-paper-digest/internal/store"
	"github.com/txltxl22/ai-paper-digest/internal/summarize"
	"github.com/txltxl22/ai-paper-digest/internal/task"
	"github.com/txltxl22/ai-paper-digest/pkg/types"
)

const defaultWorkers = 2

// URLResolver maps submitted input to a paper identity.
type URLResolver interface {
	Resolve(ctx context.Context, input string) (types.PaperIdentity, error)
}

// Downloader fetches a PDF to a destination path with progress reporting.
type Downloader interface {
	Download(ctx context.Context, pdfURL, destPath string, progress download.ProgressFunc) (download.Result, error)
}

// TextExtractor turns a cached PDF into text and chunks.
type TextExtractor interface {
	Text(path string) (string, error)
	Chunk(text string) []string
}

// Classifier decides whether a paper is worth summarizing.
type Classifier interface {
	Check(ctx context.Context, text string, maxRetries int) (types.GateJudgment, error)
	Accept(j types.GateJudgment) bool
}

// Summarizer produces the structured summary and its tags.
type Summarizer interface {
	Summarize(ctx context.Context, chunks []string) (*types.StructuredSummary, error)
	GenerateTags(ctx context.Context, summary *types.StructuredSummary) (types.Tags, error)
}

// Deps are the collaborators a Service runs on. All fields are required
// except Logger and Workers.
type Deps struct {
	Resolver  URLResolver
	Download  Downloader
	Extractor TextExtractor
	Gate      Classifier
	Summarize Summarizer
	Store     *store.Store
	Tasks     *task.Registry
	Logger    *slog.Logger

	// Workers bounds concurrent paper processing (default 2).
	Workers int

	// GateRetries is the transport retry budget for the classification call.
	GateRetries int

	// Provider and Model are recorded in the provenance envelope.
	Provider string
	Model    string
}

// SubmitOptions control one submission.
type SubmitOptions struct {
	// SourceType marks the record "system" (feed) or "user" (submission).
	SourceType types.SourceType

	// UserID identifies the submitting user, if any.
	UserID string

	// Force reprocesses even when a cached summary exists.
	Force bool

	// AbstractOnly summarizes only the opening of the paper, producing a
	// record eligible for a later deep read.
	AbstractOnly bool
}

// Service accepts submissions and runs them through the pipeline on a
// bounded worker pool.
type Service struct {
	deps Deps
	sem  *semaphore.Weighted
	log  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewService creates a pipeline service. Call Close to stop background work.
func NewService(deps Deps) *Service {
	workers := deps.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		deps:   deps,
		sem:    semaphore.NewWeighted(int64(workers)),
		log:    logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Close cancels all in-flight work.
func (s *Service) Close() {
	s.cancel()
}

// Submit registers a processing task for the input URL or identifier and
// returns its task ID without blocking. A cached summary short-circuits to an
// already-completed task unless opts.Force is set; a live task for the same
// paper is returned instead of starting a duplicate.
func (s *Service) Submit(input string, opts SubmitOptions) string {
	if opts.SourceType == "" {
		opts.SourceType = types.SourceUser
	}

	// Pattern-only resolution is free; it gives us the paper identity up
	// front for coalescing and cache short-circuit. Inputs that need page
	// content resolve inside the worker.
	var ident *types.PaperIdentity
	if resolved, err := resolve.Resolve(input); err == nil {
		ident = &resolved
	}

	paperID := ""
	if ident != nil {
		paperID = ident.ID
	}

	taskID, existing := s.deps.Tasks.Begin(paperID, types.KindSummarize)
	if existing {
		s.log.Info("submission coalesced onto live task", "paper_id", paperID, "task_id", taskID)
		return taskID
	}

	if ident != nil && !opts.Force && s.deps.Store.HasSummary(ident.ID) {
		s.deps.Tasks.Complete(taskID, ident.ID, "summary already cached")
		s.log.Info("cache hit", "paper_id", ident.ID, "task_id", taskID)
		return taskID
	}

	s.log.Info("submission accepted", "input", input, "task_id", taskID, "source_type", opts.SourceType)
	go s.process(taskID, input, ident, opts, types.KindSummarize)
	return taskID
}

// DeepRead schedules full re-summarization of a paper that already has a
// record, typically one created abstract-only.
func (s *Service) DeepRead(paperID string, opts SubmitOptions) (string, error) {
	rec, err := s.deps.Store.LoadSummary(paperID)
	if err != nil {
		return "", fmt.Errorf("deep read of %s: %w", paperID, err)
	}
	if opts.SourceType == "" {
		opts.SourceType = types.SourceUser
	}
	opts.Force = true
	opts.AbstractOnly = false

	taskID, existing := s.deps.Tasks.Begin(paperID, types.KindDeepRead)
	if existing {
		return taskID, nil
	}

	input := rec.Service.OriginalURL
	if input == "" {
		input = paperID
	}
	ident, resolveErr := resolve.Resolve(input)
	var identPtr *types.PaperIdentity
	if resolveErr == nil {
		identPtr = &ident
	}

	s.log.Info("deep read scheduled", "paper_id", paperID, "task_id", taskID)
	go s.process(taskID, input, identPtr, opts, types.KindDeepRead)
	return taskID, nil
}

// process runs all stages for one task. It owns the task's terminal state:
// every return path marks the task completed or failed.
func (s *Service) process(taskID, input string, ident *types.PaperIdentity, opts SubmitOptions, kind types.TaskKind) {
	if err := s.sem.Acquire(s.ctx, 1); err != nil {
		s.deps.Tasks.Fail(taskID, types.StepStarting, "service shutting down")
		return
	}
	defer s.sem.Release(1)
	ctx := s.ctx

	// Resolve.
	s.deps.Tasks.Advance(taskID, types.StepResolving, "resolving source")
	if ident == nil {
		resolved, err := s.deps.Resolver.Resolve(ctx, input)
		if err != nil {
			s.fail(taskID, types.StepResolving, err)
			return
		}
		ident = &resolved
	}
	winner, coalesced, err := s.deps.Tasks.BindPaper(taskID, ident.ID)
	if err != nil {
		s.log.Error("binding paper to task", "task_id", taskID, "error", err)
		return
	}
	if coalesced {
		s.log.Info("task coalesced after resolution", "paper_id", ident.ID, "task_id", taskID, "winner", winner)
		return
	}
	if !opts.Force && s.deps.Store.HasSummary(ident.ID) {
		s.deps.Tasks.Complete(taskID, ident.ID, "summary already cached")
		return
	}

	// Download, unless the document is already cached.
	s.deps.Tasks.Advance(taskID, types.StepDownloading, "downloading document")
	pdfPath := s.deps.Store.PDFPath(ident.ID)
	if !s.deps.Store.HasPDF(ident.ID) {
		_, err := s.deps.Download.Download(ctx, ident.PDFURL, pdfPath, func(p types.DownloadProgress) {
			s.deps.Tasks.Downloading(taskID, p)
		})
		if err != nil {
			s.fail(taskID, types.StepDownloading, err)
			return
		}
	}

	// Extract, reusing cached text when present.
	s.deps.Tasks.Advance(taskID, types.StepExtracting, "extracting text")
	text, err := s.deps.Store.LoadText(ident.ID)
	if err != nil {
		text, err = s.deps.Extractor.Text(pdfPath)
		if err != nil {
			s.fail(taskID, types.StepExtracting, err)
			return
		}
		if saveErr := s.deps.Store.SaveText(ident.ID, text); saveErr != nil {
			s.log.Warn("caching extracted text", "paper_id", ident.ID, "error", saveErr)
		}
	}

	// Gate.
	s.deps.Tasks.Advance(taskID, types.StepChecking, "checking relevance")
	judgment, err := s.deps.Gate.Check(ctx, text, s.deps.GateRetries)
	if err != nil {
		s.fail(taskID, types.StepChecking, err)
		return
	}
	if !s.deps.Gate.Accept(judgment) {
		s.log.Info("paper rejected by relevance gate", "paper_id", ident.ID,
			"is_ai", judgment.IsAI, "confidence", judgment.Confidence)
		// Forced and abstract-only submissions proceed despite the verdict;
		// the judgment still lands in the record.
		if !opts.Force && !opts.AbstractOnly {
			// The rejection is recorded without a summary payload. HasSummary
			// stays false, so a resubmission runs the gate again.
			rec := &types.SummaryRecord{
				Service: types.ServiceRecord{
					PaperID:     ident.ID,
					SourceType:  opts.SourceType,
					OriginalURL: ident.URL,
					Provider:    s.deps.Provider,
					Model:       s.deps.Model,
					UserID:      opts.UserID,
					Judgment:    &judgment,
				},
			}
			if err := s.deps.Store.SaveSummary(ctx, rec); err != nil {
				s.fail(taskID, types.StepChecking, err)
				return
			}
			s.deps.Tasks.CompleteNotAI(taskID, "paper is not AI-related")
			return
		}
	}

	// Summarize.
	s.deps.Tasks.Advance(taskID, types.StepSummarizing, "generating summary")
	chunks := s.deps.Extractor.Chunk(text)
	if opts.AbstractOnly && len(chunks) > 1 {
		chunks = chunks[:1]
	}
	summary, err := s.deps.Summarize.Summarize(ctx, chunks)
	if err != nil {
		s.fail(taskID, types.StepSummarizing, err)
		return
	}
	tags, err := s.deps.Summarize.GenerateTags(ctx, summary)
	if err != nil {
		s.fail(taskID, types.StepSummarizing, err)
		return
	}

	rec := &types.SummaryRecord{
		Service: types.ServiceRecord{
			PaperID:      ident.ID,
			SourceType:   opts.SourceType,
			OriginalURL:  ident.URL,
			Provider:     s.deps.Provider,
			Model:        s.deps.Model,
			UserID:       opts.UserID,
			Judgment:     &judgment,
			AbstractOnly: opts.AbstractOnly,
		},
		Summary: summary,
		Tags:    tags,
	}
	if err := s.deps.Store.SaveSummary(ctx, rec); err != nil {
		s.fail(taskID, types.StepSummarizing, err)
		return
	}

	s.deps.Tasks.Complete(taskID, ident.ID, "summary ready")
	s.log.Info("paper processed", "paper_id", ident.ID, "task_id", taskID, "kind", kind)
}

// fail marks the task failed with a display-safe message; the raw error goes
// to the log only.
func (s *Service) fail(taskID string, step types.Step, err error) {
	s.log.Error("stage failed", "task_id", taskID, "step", step, "error", err)
	s.deps.Tasks.Fail(taskID, step, displayMessage(step, err))
}

// displayMessage maps internal errors to poller-facing text. Raw error
// strings can carry URLs and paths and never cross this boundary.
func displayMessage(step types.Step, err error) string {
	switch {
	case errors.Is(err, resolve.ErrUnresolvedSource):
		return "could not resolve the submitted URL to a paper"
	case errors.Is(err, download.ErrIntegrity):
		return "document download failed integrity checks"
	case errors.Is(err, extract.ErrEmptyText):
		return "no usable text could be extracted from the document"
	case errors.Is(err, summarize.ErrSummaryParse):
		return "the language model did not produce a usable summary"
	case errors.Is(err, llm.ErrUnavailable):
		return "the language model service is unavailable"
	default:
		return fmt.Sprintf("processing failed at the %s stage", step)
	}
}
