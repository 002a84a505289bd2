// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/txltxl22/ai-paper-digest/pkg/types"
)

func TestBeginAndStatus(t *testing.T) {
	r := NewRegistry(types.TrackerConfig{})

	id, existing := r.Begin("2401.00001", types.KindSummarize)
	if existing {
		t.Fatal("first Begin reported existing")
	}
	if id == "" {
		t.Fatal("empty task id")
	}

	st, err := r.Status(id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Step != types.StepStarting || st.PaperID != "2401.00001" {
		t.Errorf("status = %+v", st)
	}
	if st.StartedAt.IsZero() {
		t.Error("StartedAt not set")
	}
}

func TestBeginCoalescesLivePaper(t *testing.T) {
	r := NewRegistry(types.TrackerConfig{})

	id1, _ := r.Begin("2401.00002", types.KindSummarize)
	id2, existing := r.Begin("2401.00002", types.KindSummarize)
	if !existing {
		t.Fatal("duplicate submission not coalesced")
	}
	if id1 != id2 {
		t.Errorf("ids differ: %s vs %s", id1, id2)
	}

	// After the task finishes, a new submission gets a fresh task.
	if err := r.Complete(id1, "2401.00002", "done"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	id3, existing := r.Begin("2401.00002", types.KindSummarize)
	if existing || id3 == id1 {
		t.Error("terminal task still coalescing new submissions")
	}
}

func TestBindPaperCoalesces(t *testing.T) {
	r := NewRegistry(types.TrackerConfig{})

	// Task with the paper already owned by another live task.
	winner, _ := r.Begin("2401.00003", types.KindSummarize)
	loser, _ := r.Begin("", types.KindSummarize)

	got, coalesced, err := r.BindPaper(loser, "2401.00003")
	if err != nil {
		t.Fatalf("BindPaper: %v", err)
	}
	if !coalesced || got != winner {
		t.Errorf("BindPaper = (%s, %v), want (%s, true)", got, coalesced, winner)
	}

	st, err := r.Status(loser)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Step != types.StepCompleted || st.ResultRef != winner {
		t.Errorf("abandoned task status = %+v", st)
	}
}

func TestBindPaperClaims(t *testing.T) {
	r := NewRegistry(types.TrackerConfig{})

	id, _ := r.Begin("", types.KindSummarize)
	got, coalesced, err := r.BindPaper(id, "2401.00004")
	if err != nil || coalesced || got != id {
		t.Fatalf("BindPaper = (%s, %v, %v), want (%s, false, nil)", got, coalesced, err, id)
	}

	// The bound paper now coalesces new submissions.
	dup, existing := r.Begin("2401.00004", types.KindSummarize)
	if !existing || dup != id {
		t.Errorf("Begin after bind = (%s, %v)", dup, existing)
	}
}

func TestAdvanceForwardOnly(t *testing.T) {
	r := NewRegistry(types.TrackerConfig{})
	id, _ := r.Begin("p", types.KindSummarize)

	steps := []types.Step{
		types.StepResolving, types.StepDownloading,
		types.StepExtracting, types.StepChecking, types.StepSummarizing,
	}
	for _, s := range steps {
		if err := r.Advance(id, s, string(s)); err != nil {
			t.Fatalf("Advance(%s): %v", s, err)
		}
	}

	if err := r.Advance(id, types.StepDownloading, "again"); err == nil {
		t.Error("backward transition accepted")
	}
	if err := r.Advance(id, types.StepSummarizing, "again"); err == nil {
		t.Error("repeated non-downloading step accepted")
	}

	st, _ := r.Status(id)
	if st.Step != types.StepSummarizing {
		t.Errorf("step = %s after rejected transitions", st.Step)
	}
}

func TestDownloadingReemitsProgress(t *testing.T) {
	r := NewRegistry(types.TrackerConfig{})
	id, _ := r.Begin("p", types.KindSummarize)

	if err := r.Advance(id, types.StepResolving, "resolving"); err != nil {
		t.Fatal(err)
	}
	if err := r.Advance(id, types.StepDownloading, "downloading"); err != nil {
		t.Fatal(err)
	}

	if err := r.Downloading(id, types.DownloadProgress{BytesDone: 50, BytesTotal: 100}); err != nil {
		t.Fatalf("Downloading: %v", err)
	}
	st, _ := r.Status(id)
	if st.Download == nil || st.Download.BytesDone != 50 {
		t.Fatalf("download progress = %+v", st.Download)
	}
	if st.Progress <= stepProgress[types.StepDownloading] || st.Progress >= stepProgress[types.StepExtracting] {
		t.Errorf("progress = %d, want between downloading and extracting", st.Progress)
	}

	// Re-emitting downloading is allowed; the byte counter moves forward.
	if err := r.Downloading(id, types.DownloadProgress{BytesDone: 100, BytesTotal: 100}); err != nil {
		t.Fatalf("second Downloading: %v", err)
	}

	// Moving past downloading clears the byte payload.
	if err := r.Advance(id, types.StepExtracting, "extracting"); err != nil {
		t.Fatal(err)
	}
	st, _ = r.Status(id)
	if st.Download != nil {
		t.Error("download payload survived past downloading")
	}
}

func TestTerminalOutcomes(t *testing.T) {
	r := NewRegistry(types.TrackerConfig{})

	t.Run("completed", func(t *testing.T) {
		id, _ := r.Begin("a", types.KindSummarize)
		if err := r.Complete(id, "a", "summary ready"); err != nil {
			t.Fatal(err)
		}
		st, _ := r.Status(id)
		if st.Step != types.StepCompleted || st.ResultRef != "a" || st.Progress != 100 {
			t.Errorf("status = %+v", st)
		}
		if st.CompletedAt == nil {
			t.Error("CompletedAt not set")
		}
	})

	t.Run("not ai related", func(t *testing.T) {
		id, _ := r.Begin("b", types.KindSummarize)
		if err := r.CompleteNotAI(id, "paper is not AI-related"); err != nil {
			t.Fatal(err)
		}
		st, _ := r.Status(id)
		if st.Step != types.StepCompleted || !st.NotAIRelated || st.ResultRef != "" {
			t.Errorf("status = %+v", st)
		}
	})

	t.Run("failed", func(t *testing.T) {
		id, _ := r.Begin("c", types.KindSummarize)
		if err := r.Fail(id, types.StepDownloading, "download failed after 3 attempts"); err != nil {
			t.Fatal(err)
		}
		st, _ := r.Status(id)
		if st.Step != types.StepError || st.FailedStep != types.StepDownloading {
			t.Errorf("status = %+v", st)
		}
	})

	t.Run("no updates after terminal", func(t *testing.T) {
		id, _ := r.Begin("d", types.KindSummarize)
		if err := r.Complete(id, "d", "done"); err != nil {
			t.Fatal(err)
		}
		if err := r.Advance(id, types.StepSummarizing, "x"); err == nil {
			t.Error("Advance accepted on terminal task")
		}
		if err := r.Fail(id, types.StepSummarizing, "x"); err == nil {
			t.Error("Fail accepted on terminal task")
		}
	})
}

func TestDismiss(t *testing.T) {
	r := NewRegistry(types.TrackerConfig{})

	id, _ := r.Begin("p", types.KindSummarize)
	if err := r.Dismiss(id); err == nil {
		t.Error("dismissed a live task")
	}

	if err := r.Complete(id, "p", "done"); err != nil {
		t.Fatal(err)
	}
	if err := r.Dismiss(id); err != nil {
		t.Fatalf("Dismiss: %v", err)
	}
	if _, err := r.Status(id); !errors.Is(err, ErrUnknownTask) {
		t.Errorf("Status after dismiss = %v, want ErrUnknownTask", err)
	}
}

func TestSweepExpiresTerminalTasks(t *testing.T) {
	r := NewRegistry(types.TrackerConfig{Retention: time.Hour})

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	done, _ := r.Begin("done-paper", types.KindSummarize)
	if err := r.Complete(done, "done-paper", "done"); err != nil {
		t.Fatal(err)
	}
	running, _ := r.Begin("running-paper", types.KindSummarize)

	// Within retention: nothing swept.
	now = now.Add(30 * time.Minute)
	if n := r.Sweep(); n != 0 {
		t.Fatalf("swept %d tasks within retention", n)
	}

	// Past retention: only the terminal task goes.
	now = now.Add(time.Hour)
	if n := r.Sweep(); n != 1 {
		t.Fatalf("swept %d tasks, want 1", n)
	}
	if _, err := r.Status(done); !errors.Is(err, ErrUnknownTask) {
		t.Error("expired task still pollable")
	}
	if _, err := r.Status(running); err != nil {
		t.Errorf("live task swept: %v", err)
	}
}

// The background loop must release expired tasks without any new Begin call
// triggering the lazy sweep.
func TestSweepLoopReleasesExpiredTasks(t *testing.T) {
	r := NewRegistry(types.TrackerConfig{Retention: time.Hour})

	id, _ := r.Begin("idle-paper", types.KindSummarize)
	if err := r.Complete(id, "idle-paper", "done"); err != nil {
		t.Fatal(err)
	}

	// Move the clock past the retention window before the loop starts.
	r.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.SweepLoop(ctx, time.Millisecond)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := r.Status(id); errors.Is(err, ErrUnknownTask) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("expired task was never swept")
}

func TestStatusUnknownTask(t *testing.T) {
	r := NewRegistry(types.TrackerConfig{})
	if _, err := r.Status("nope"); !errors.Is(err, ErrUnknownTask) {
		t.Errorf("err = %v, want ErrUnknownTask", err)
	}
}
