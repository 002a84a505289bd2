// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Step is a stage of the processing state machine. Transitions are strictly
// forward; only StepDownloading re-emits progress without changing step.
type Step string

const (
	StepStarting    Step = "starting"
	StepResolving   Step = "resolving"
	StepDownloading Step = "downloading"
	StepExtracting  Step = "extracting"
	StepChecking    Step = "checking"
	StepSummarizing Step = "summarizing"
	StepCompleted   Step = "completed"
	StepError       Step = "error"
)

// Terminal reports whether the step ends the state machine.
func (s Step) Terminal() bool {
	return s == StepCompleted || s == StepError
}

// order maps each step to its position so the registry can reject
// backward transitions.
var stepOrder = map[Step]int{
	StepStarting:    0,
	StepResolving:   1,
	StepDownloading: 2,
	StepExtracting:  3,
	StepChecking:    4,
	StepSummarizing: 5,
	StepCompleted:   6,
	StepError:       6,
}

// Before reports whether s precedes other in the state machine.
func (s Step) Before(other Step) bool {
	return stepOrder[s] < stepOrder[other]
}

// TaskKind distinguishes first-time summarization from regeneration.
type TaskKind string

const (
	KindSummarize TaskKind = "summarize"
	KindDeepRead  TaskKind = "deep-read"
)

// DownloadProgress is the structured byte-level progress payload emitted by
// the download manager. Human-readable strings are produced at the
// presentation boundary, never here.
type DownloadProgress struct {
	BytesDone  int64 `json:"bytes_done"`
	BytesTotal int64 `json:"bytes_total"`
}

// TaskStatus is the read-only snapshot a poller sees.
type TaskStatus struct {
	TaskID   string   `json:"task_id"`
	PaperID  string   `json:"paper_id"`
	Kind     TaskKind `json:"kind"`
	Step     Step     `json:"step"`
	Progress int      `json:"progress"`
	Details  string   `json:"details"`

	// Download carries byte progress while Step is "downloading".
	Download *DownloadProgress `json:"download,omitempty"`

	// ResultRef locates the structured summary once Step is "completed"
	// with a summarized result.
	ResultRef string `json:"result_ref,omitempty"`

	// NotAIRelated marks the non-error terminal outcome where the
	// relevance gate rejected the paper.
	NotAIRelated bool `json:"not_ai_related,omitempty"`

	// FailedStep names the stage that failed when Step is "error".
	FailedStep Step `json:"failed_step,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
