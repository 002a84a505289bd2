// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/txltxl22/ai-paper-digest/internal/download"
	"github.com/txltxl22/ai-paper-digest/internal/store"
	"github.com/txltxl22/ai-paper-digest/internal/task"
	"github.com/txltxl22/ai-paper-digest/pkg/types"
)

type stubDownloader struct {
	err   error
	calls int32
}

func (d *stubDownloader) Download(_ context.Context, pdfURL, destPath string, progress download.ProgressFunc) (download.Result, error) {
	atomic.AddInt32(&d.calls, 1)
	if d.err != nil {
		return download.Result{}, d.err
	}
	if err := os.WriteFile(destPath, []byte("%PDF-1.5 fake document body"), 0o644); err != nil {
		return download.Result{}, err
	}
	if progress != nil {
		progress(types.DownloadProgress{BytesDone: 512, BytesTotal: 1024})
		progress(types.DownloadProgress{BytesDone: 1024, BytesTotal: 1024})
	}
	return download.Result{Path: destPath, Bytes: 1024, URL: pdfURL}, nil
}

type stubExtractor struct {
	text   string
	chunks []string
}

func (e *stubExtractor) Text(string) (string, error) { return e.text, nil }

func (e *stubExtractor) Chunk(string) []string { return e.chunks }

type stubGate struct {
	judgment types.GateJudgment
	err      error
}

func (g *stubGate) Check(context.Context, string, int) (types.GateJudgment, error) {
	return g.judgment, g.err
}

func (g *stubGate) Accept(j types.GateJudgment) bool {
	return j.IsAI && j.Confidence >= 0.5
}

type stubSummarizer struct {
	summary *types.StructuredSummary
	tags    types.Tags
	err     error

	calls      int32
	chunkCount int32

	// block, when non-nil, stalls Summarize until closed.
	block chan struct{}
}

func (s *stubSummarizer) Summarize(ctx context.Context, chunks []string) (*types.StructuredSummary, error) {
	atomic.AddInt32(&s.calls, 1)
	atomic.StoreInt32(&s.chunkCount, int32(len(chunks)))
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.summary, nil
}

func (s *stubSummarizer) GenerateTags(context.Context, *types.StructuredSummary) (types.Tags, error) {
	return s.tags, nil
}

func validSummary() *types.StructuredSummary {
	return &types.StructuredSummary{
		PaperInfo:          types.PaperInfo{TitleZH: "标题", TitleEN: "Title"},
		OneSentenceSummary: "One sentence.",
		Innovations:        []types.Innovation{{Title: "t", Description: "d"}},
	}
}

type fixture struct {
	svc  *Service
	deps Deps
	dl   *stubDownloader
	sum  *stubSummarizer
	gate *stubGate
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := store.NewStore(types.StoreConfig{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	f := &fixture{
		dl:   &stubDownloader{},
		gate: &stubGate{judgment: types.GateJudgment{IsAI: true, Confidence: 0.9, Tags: []string{"llm"}}},
		sum: &stubSummarizer{
			summary: validSummary(),
			tags:    types.Tags{Top: []string{"llm"}, Tags: []string{"transformers"}},
		},
	}
	f.deps = Deps{
		Resolver:  nil, // pattern-only inputs in these tests never reach the fetching resolver
		Download:  f.dl,
		Extractor: &stubExtractor{text: "extracted paper text", chunks: []string{"c1", "c2", "c3"}},
		Gate:      f.gate,
		Summarize: f.sum,
		Store:     st,
		Tasks:     task.NewRegistry(types.TrackerConfig{}),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Provider:  "openai",
		Model:     "deepseek-chat",
	}
	f.svc = NewService(f.deps)
	t.Cleanup(f.svc.Close)
	return f
}

func waitTerminal(t *testing.T, reg *task.Registry, taskID string) types.TaskStatus {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st, err := reg.Status(taskID)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if st.Step.Terminal() {
			return st
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("task did not reach a terminal state")
	return types.TaskStatus{}
}

func TestSubmitCompletesAndPersists(t *testing.T) {
	f := newFixture(t)

	id := f.svc.Submit("2401.12345", SubmitOptions{UserID: "u1"})
	st := waitTerminal(t, f.deps.Tasks, id)

	if st.Step != types.StepCompleted || st.NotAIRelated {
		t.Fatalf("status = %+v", st)
	}
	if st.ResultRef != "2401.12345" {
		t.Errorf("ResultRef = %q", st.ResultRef)
	}

	rec, err := f.deps.Store.LoadSummary("2401.12345")
	if err != nil {
		t.Fatalf("LoadSummary: %v", err)
	}
	if rec.Service.SourceType != types.SourceUser || rec.Service.UserID != "u1" {
		t.Errorf("service record = %+v", rec.Service)
	}
	if rec.Service.Provider != "openai" || rec.Service.Model != "deepseek-chat" {
		t.Errorf("provenance = %s/%s", rec.Service.Provider, rec.Service.Model)
	}
	if rec.Service.Judgment == nil || !rec.Service.Judgment.IsAI {
		t.Errorf("judgment = %+v", rec.Service.Judgment)
	}
	if rec.Summary.PaperInfo.TitleEN != "Title" {
		t.Errorf("summary = %+v", rec.Summary)
	}
	if atomic.LoadInt32(&f.sum.chunkCount) != 3 {
		t.Errorf("summarized %d chunks, want 3", f.sum.chunkCount)
	}
}

func TestSubmitCacheHitSkipsProcessing(t *testing.T) {
	f := newFixture(t)

	first := f.svc.Submit("2401.11111", SubmitOptions{})
	waitTerminal(t, f.deps.Tasks, first)

	second := f.svc.Submit("2401.11111", SubmitOptions{})
	st := waitTerminal(t, f.deps.Tasks, second)

	if second == first {
		t.Error("cache hit reused the old task id")
	}
	if st.Step != types.StepCompleted || st.ResultRef != "2401.11111" {
		t.Errorf("status = %+v", st)
	}
	if n := atomic.LoadInt32(&f.sum.calls); n != 1 {
		t.Errorf("summarizer calls = %d, want 1", n)
	}
	if n := atomic.LoadInt32(&f.dl.calls); n != 1 {
		t.Errorf("download calls = %d, want 1", n)
	}
}

func TestSubmitForceReprocesses(t *testing.T) {
	f := newFixture(t)

	first := f.svc.Submit("2401.22222", SubmitOptions{})
	waitTerminal(t, f.deps.Tasks, first)

	second := f.svc.Submit("2401.22222", SubmitOptions{Force: true})
	waitTerminal(t, f.deps.Tasks, second)

	if n := atomic.LoadInt32(&f.sum.calls); n != 2 {
		t.Errorf("summarizer calls = %d, want 2", n)
	}
	// The cached document and text are reused even on force.
	if n := atomic.LoadInt32(&f.dl.calls); n != 1 {
		t.Errorf("download calls = %d, want 1", n)
	}
}

func TestSubmitCoalescesLiveDuplicate(t *testing.T) {
	f := newFixture(t)
	f.sum.block = make(chan struct{})

	first := f.svc.Submit("2401.33333", SubmitOptions{})
	// Wait until the first task is actually in flight.
	deadline := time.Now().Add(5 * time.Second)
	for {
		st, _ := f.deps.Tasks.Status(first)
		if st.Step == types.StepSummarizing {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first task never reached summarizing")
		}
		time.Sleep(2 * time.Millisecond)
	}

	second := f.svc.Submit("2401.33333", SubmitOptions{})
	if second != first {
		t.Errorf("duplicate submission got task %s, want %s", second, first)
	}

	close(f.sum.block)
	waitTerminal(t, f.deps.Tasks, first)
	if n := atomic.LoadInt32(&f.sum.calls); n != 1 {
		t.Errorf("summarizer calls = %d, want 1", n)
	}
}

func TestSubmitGateRejection(t *testing.T) {
	f := newFixture(t)
	f.gate.judgment = types.GateJudgment{IsAI: false, Confidence: 0.95}

	id := f.svc.Submit("2401.44444", SubmitOptions{})
	st := waitTerminal(t, f.deps.Tasks, id)

	if st.Step != types.StepCompleted || !st.NotAIRelated {
		t.Fatalf("status = %+v, want completed not-AI", st)
	}
	if st.ResultRef != "" {
		t.Errorf("ResultRef = %q for rejected paper", st.ResultRef)
	}
	if n := atomic.LoadInt32(&f.sum.calls); n != 0 {
		t.Errorf("summarizer called %d times for rejected paper", n)
	}

	// The verdict is recorded without a summary payload.
	rec, err := f.deps.Store.LoadSummary("2401.44444")
	if err != nil {
		t.Fatalf("LoadSummary: %v", err)
	}
	if rec.Service.Judgment == nil || rec.Service.Judgment.IsAI {
		t.Errorf("judgment = %+v", rec.Service.Judgment)
	}
	if rec.Summary != nil {
		t.Errorf("rejected paper carries a summary: %+v", rec.Summary)
	}
	if f.deps.Store.HasSummary("2401.44444") {
		t.Error("verdict-only record counted as a cached summary")
	}
}

// A recorded rejection must not block a later resubmission: the verdict-only
// record is not a cache hit, so the gate runs again.
func TestGateRejectionStaysResubmittable(t *testing.T) {
	f := newFixture(t)
	f.gate.judgment = types.GateJudgment{IsAI: false, Confidence: 0.95}

	first := f.svc.Submit("2401.45454", SubmitOptions{})
	st := waitTerminal(t, f.deps.Tasks, first)
	if !st.NotAIRelated {
		t.Fatalf("status = %+v, want not-AI", st)
	}

	f.gate.judgment = types.GateJudgment{IsAI: true, Confidence: 0.9}
	second := f.svc.Submit("2401.45454", SubmitOptions{})
	st = waitTerminal(t, f.deps.Tasks, second)

	if st.Step != types.StepCompleted || st.NotAIRelated {
		t.Fatalf("status = %+v, want completed with summary", st)
	}
	rec, err := f.deps.Store.LoadSummary("2401.45454")
	if err != nil {
		t.Fatalf("LoadSummary: %v", err)
	}
	if rec.Summary == nil {
		t.Fatal("resubmission did not produce a summary")
	}
	if rec.Service.Judgment == nil || !rec.Service.Judgment.IsAI {
		t.Errorf("judgment = %+v, want the fresh verdict", rec.Service.Judgment)
	}
	if n := atomic.LoadInt32(&f.sum.calls); n != 1 {
		t.Errorf("summarizer calls = %d, want 1", n)
	}
}

func TestGateRejectionBypassedWhenForced(t *testing.T) {
	f := newFixture(t)
	f.gate.judgment = types.GateJudgment{IsAI: false, Confidence: 0.95}

	id := f.svc.Submit("2401.99999", SubmitOptions{AbstractOnly: true})
	st := waitTerminal(t, f.deps.Tasks, id)

	if st.Step != types.StepCompleted || st.NotAIRelated {
		t.Fatalf("status = %+v, want completed with summary", st)
	}
	rec, err := f.deps.Store.LoadSummary("2401.99999")
	if err != nil {
		t.Fatalf("LoadSummary: %v", err)
	}
	// The negative verdict is still recorded.
	if rec.Service.Judgment == nil || rec.Service.Judgment.IsAI {
		t.Errorf("judgment = %+v", rec.Service.Judgment)
	}
}

func TestSubmitDownloadFailure(t *testing.T) {
	f := newFixture(t)
	f.dl.err = fmt.Errorf("after 3 attempts: HTTP 503: %w", download.ErrIntegrity)

	id := f.svc.Submit("2401.55555", SubmitOptions{})
	st := waitTerminal(t, f.deps.Tasks, id)

	if st.Step != types.StepError || st.FailedStep != types.StepDownloading {
		t.Fatalf("status = %+v", st)
	}
	// Poller-facing details never leak raw errors.
	if strings.Contains(st.Details, "503") || strings.Contains(st.Details, "attempts") {
		t.Errorf("details leak internals: %q", st.Details)
	}
	if st.Details == "" {
		t.Error("empty failure details")
	}
}

func TestSubmitUnresolvableInput(t *testing.T) {
	f := newFixture(t)
	f.deps.Resolver = &failingResolver{}
	f.svc = NewService(f.deps)
	t.Cleanup(f.svc.Close)

	id := f.svc.Submit("https://example.com/not-a-paper", SubmitOptions{})
	st := waitTerminal(t, f.deps.Tasks, id)

	if st.Step != types.StepError || st.FailedStep != types.StepResolving {
		t.Fatalf("status = %+v", st)
	}
}

type failingResolver struct{}

func (failingResolver) Resolve(context.Context, string) (types.PaperIdentity, error) {
	return types.PaperIdentity{}, errors.New("no pattern matched")
}

func TestSubmitAbstractOnly(t *testing.T) {
	f := newFixture(t)

	id := f.svc.Submit("2401.66666", SubmitOptions{AbstractOnly: true})
	waitTerminal(t, f.deps.Tasks, id)

	if atomic.LoadInt32(&f.sum.chunkCount) != 1 {
		t.Errorf("abstract-only summarized %d chunks, want 1", f.sum.chunkCount)
	}
	rec, err := f.deps.Store.LoadSummary("2401.66666")
	if err != nil {
		t.Fatalf("LoadSummary: %v", err)
	}
	if !rec.Service.AbstractOnly {
		t.Error("record not marked abstract-only")
	}
}

func TestDeepRead(t *testing.T) {
	f := newFixture(t)

	// No record yet: deep read refuses.
	if _, err := f.svc.DeepRead("2401.77777", SubmitOptions{}); err == nil {
		t.Fatal("DeepRead accepted an unknown paper")
	}

	first := f.svc.Submit("2401.77777", SubmitOptions{AbstractOnly: true})
	waitTerminal(t, f.deps.Tasks, first)

	id, err := f.svc.DeepRead("2401.77777", SubmitOptions{})
	if err != nil {
		t.Fatalf("DeepRead: %v", err)
	}
	st := waitTerminal(t, f.deps.Tasks, id)
	if st.Step != types.StepCompleted || st.Kind != types.KindDeepRead {
		t.Fatalf("status = %+v", st)
	}

	rec, err := f.deps.Store.LoadSummary("2401.77777")
	if err != nil {
		t.Fatalf("LoadSummary: %v", err)
	}
	if rec.Service.AbstractOnly {
		t.Error("deep read left the record abstract-only")
	}
	if atomic.LoadInt32(&f.sum.chunkCount) != 3 {
		t.Errorf("deep read summarized %d chunks, want 3", f.sum.chunkCount)
	}
}

func TestDownloadProgressReachesRegistry(t *testing.T) {
	f := newFixture(t)
	f.sum.block = make(chan struct{})
	defer close(f.sum.block)

	id := f.svc.Submit("2401.88888", SubmitOptions{})

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st, err := f.deps.Tasks.Status(id)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if st.Step == types.StepSummarizing {
			// Download finished; progress payload was cleared on advance,
			// which means it was accepted while downloading.
			return
		}
		if st.Step == types.StepDownloading && st.Download != nil {
			if st.Download.BytesTotal != 1024 {
				t.Errorf("progress = %+v", st.Download)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("never observed download progress or completion")
}
