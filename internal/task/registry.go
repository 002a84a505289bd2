// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package task tracks asynchronous pipeline runs. Submission returns a task
// ID immediately; pollers read snapshots until the task reaches a terminal
// step. Completed tasks stay pollable for a retention window, then get swept.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/txltxl22/ai-paper-digest/pkg/types"
)

const defaultRetention = time.Hour

// ErrUnknownTask means the task ID was never issued or has been swept.
var ErrUnknownTask = errors.New("unknown task")

// stepProgress maps each step to the coarse percentage shown to pollers.
// Within downloading, byte progress refines the range up to extracting.
var stepProgress = map[types.Step]int{
	types.StepStarting:    0,
	types.StepResolving:   10,
	types.StepDownloading: 20,
	types.StepExtracting:  50,
	types.StepChecking:    60,
	types.StepSummarizing: 70,
	types.StepCompleted:   100,
	types.StepError:       100,
}

type entry struct {
	mu     sync.Mutex
	status types.TaskStatus
}

// Registry is the in-memory task tracker.
type Registry struct {
	mu        sync.Mutex
	tasks     map[string]*entry
	live      map[string]string // paper ID -> task ID of the non-terminal task
	retention time.Duration

	now func() time.Time
}

// NewRegistry creates a registry. Zero retention falls back to one hour.
func NewRegistry(cfg types.TrackerConfig) *Registry {
	retention := cfg.Retention
	if retention <= 0 {
		retention = defaultRetention
	}
	return &Registry{
		tasks:     make(map[string]*entry),
		live:      make(map[string]string),
		retention: retention,
		now:       time.Now,
	}
}

// Begin registers a new task and returns its ID. If paperID is known and a
// live task already exists for it, Begin returns that task's ID with
// existing=true instead of creating a duplicate.
func (r *Registry) Begin(paperID string, kind types.TaskKind) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()

	if paperID != "" {
		if id, ok := r.live[paperID]; ok {
			return id, true
		}
	}

	id := uuid.NewString()
	r.tasks[id] = &entry{status: types.TaskStatus{
		TaskID:    id,
		PaperID:   paperID,
		Kind:      kind,
		Step:      types.StepStarting,
		Progress:  stepProgress[types.StepStarting],
		Details:   "queued",
		StartedAt: r.now(),
	}}
	if paperID != "" {
		r.live[paperID] = id
	}
	return id, false
}

// BindPaper records the paper identity once resolution has produced it. If
// another live task already owns the paper, the current task is abandoned in
// favor of it: BindPaper marks this task completed with a reference to the
// winner and returns the winner's ID with coalesced=true.
func (r *Registry) BindPaper(taskID, paperID string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tasks[taskID]
	if !ok {
		return "", false, ErrUnknownTask
	}

	if winner, ok := r.live[paperID]; ok && winner != taskID {
		e.mu.Lock()
		e.status.PaperID = paperID
		e.status.Step = types.StepCompleted
		e.status.Progress = stepProgress[types.StepCompleted]
		e.status.Details = "already being processed"
		e.status.ResultRef = winner
		now := r.now()
		e.status.CompletedAt = &now
		e.mu.Unlock()
		return winner, true, nil
	}

	e.mu.Lock()
	e.status.PaperID = paperID
	e.mu.Unlock()
	r.live[paperID] = taskID
	return taskID, false, nil
}

// Advance moves a task to the given step. Backward transitions and updates
// to a terminal task are rejected; repeating the current step is allowed
// only for downloading, which re-emits progress.
func (r *Registry) Advance(taskID string, step types.Step, details string) error {
	e, err := r.entry(taskID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.status.Step
	if cur.Terminal() {
		return fmt.Errorf("task %s already %s", taskID, cur)
	}
	if step == cur && step != types.StepDownloading {
		return fmt.Errorf("task %s already at %s", taskID, step)
	}
	if step.Before(cur) {
		return fmt.Errorf("task %s cannot move back from %s to %s", taskID, cur, step)
	}

	e.status.Step = step
	e.status.Progress = stepProgress[step]
	e.status.Details = details
	if step != types.StepDownloading {
		e.status.Download = nil
	}
	return nil
}

// Downloading updates byte progress while the task is at the downloading
// step. The step percentage is interpolated between downloading and
// extracting when the total size is known.
func (r *Registry) Downloading(taskID string, p types.DownloadProgress) error {
	e, err := r.entry(taskID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status.Step != types.StepDownloading {
		return fmt.Errorf("task %s is at %s, not downloading", taskID, e.status.Step)
	}

	prog := p
	e.status.Download = &prog
	if p.BytesTotal > 0 {
		lo := stepProgress[types.StepDownloading]
		hi := stepProgress[types.StepExtracting]
		e.status.Progress = lo + int(int64(hi-lo)*p.BytesDone/p.BytesTotal)
	}
	return nil
}

// Complete marks the task finished with a summary available at resultRef.
func (r *Registry) Complete(taskID, resultRef, details string) error {
	return r.finish(taskID, func(st *types.TaskStatus) {
		st.Step = types.StepCompleted
		st.ResultRef = resultRef
		st.Details = details
	})
}

// CompleteNotAI marks the non-error terminal outcome where the relevance
// gate rejected the paper. The verdict is durable in the record store; only
// the summary payload is absent.
func (r *Registry) CompleteNotAI(taskID, details string) error {
	return r.finish(taskID, func(st *types.TaskStatus) {
		st.Step = types.StepCompleted
		st.NotAIRelated = true
		st.Details = details
	})
}

// Fail marks the task failed at the given step. details must already be
// display-safe; raw errors never reach pollers.
func (r *Registry) Fail(taskID string, failedStep types.Step, details string) error {
	return r.finish(taskID, func(st *types.TaskStatus) {
		st.Step = types.StepError
		st.FailedStep = failedStep
		st.Details = details
	})
}

func (r *Registry) finish(taskID string, apply func(*types.TaskStatus)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, ErrUnknownTask)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status.Step.Terminal() {
		return fmt.Errorf("task %s already %s", taskID, e.status.Step)
	}

	apply(&e.status)
	e.status.Progress = stepProgress[e.status.Step]
	e.status.Download = nil
	now := r.now()
	e.status.CompletedAt = &now

	if e.status.PaperID != "" && r.live[e.status.PaperID] == taskID {
		delete(r.live, e.status.PaperID)
	}
	return nil
}

// Status returns a snapshot of the task.
func (r *Registry) Status(taskID string) (types.TaskStatus, error) {
	e, err := r.entry(taskID)
	if err != nil {
		return types.TaskStatus{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.status
	if e.status.Download != nil {
		d := *e.status.Download
		st.Download = &d
	}
	return st, nil
}

// Dismiss removes a terminal task before its retention expires. Live tasks
// cannot be dismissed; cancellation of running work is not supported.
func (r *Registry) Dismiss(taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, ErrUnknownTask)
	}

	e.mu.Lock()
	terminal := e.status.Step.Terminal()
	e.mu.Unlock()

	if !terminal {
		return fmt.Errorf("task %s is still running", taskID)
	}
	delete(r.tasks, taskID)
	return nil
}

// Sweep drops terminal tasks older than the retention window and returns
// how many were removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweepLocked()
}

// SweepLoop runs Sweep every interval until ctx is cancelled. Begin already
// sweeps lazily; the loop covers idle periods with no new submissions.
func (r *Registry) SweepLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = r.retention
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Sweep()
		}
	}
}

func (r *Registry) sweepLocked() int {
	cutoff := r.now().Add(-r.retention)
	removed := 0
	for id, e := range r.tasks {
		e.mu.Lock()
		expired := e.status.CompletedAt != nil && e.status.CompletedAt.Before(cutoff)
		e.mu.Unlock()
		if expired {
			delete(r.tasks, id)
			removed++
		}
	}
	return removed
}

func (r *Registry) entry(taskID string) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrUnknownTask)
	}
	return e, nil
}
