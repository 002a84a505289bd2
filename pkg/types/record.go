// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// SourceType distinguishes how a summary record came to exist.
type SourceType string

const (
	// SourceSystem marks records created by feed batch runs.
	SourceSystem SourceType = "system"

	// SourceUser marks records created by direct user submission.
	SourceUser SourceType = "user"
)

// GateJudgment records the relevance gate's verdict for a paper.
type GateJudgment struct {
	// IsAI reports whether the classifier judged the paper AI-related.
	IsAI bool `json:"is_ai" yaml:"is_ai"`

	// Confidence is the classifier's certainty in [0, 1].
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// Tags are coarse topic labels from the classification call.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// ServiceRecord is the provenance envelope stored alongside every summary.
// Reprocessing a paper overwrites the record but preserves FirstCreatedAt;
// the store exposes only the latest version.
type ServiceRecord struct {
	// PaperID is the canonical identifier of the paper.
	PaperID string `json:"paper_id" yaml:"paper_id"`

	// SourceType is "system" for feed runs or "user" for submissions.
	SourceType SourceType `json:"source_type" yaml:"source_type"`

	// CreatedAt is the time of the most recent processing attempt.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`

	// FirstCreatedAt is the original creation time, kept across reprocessing.
	FirstCreatedAt time.Time `json:"first_created_at" yaml:"first_created_at"`

	// OriginalURL is the URL the paper was submitted with.
	OriginalURL string `json:"original_url,omitempty" yaml:"original_url,omitempty"`

	// Provider and Model identify the LLM that produced the summary.
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model    string `json:"model,omitempty" yaml:"model,omitempty"`

	// UserID identifies the submitting user when SourceType is "user".
	UserID string `json:"user_id,omitempty" yaml:"user_id,omitempty"`

	// Judgment is the relevance gate verdict, if the gate ran.
	Judgment *GateJudgment `json:"judgment,omitempty" yaml:"judgment,omitempty"`

	// AbstractOnly marks records produced without full summarization,
	// eligible for a later deep read.
	AbstractOnly bool `json:"abstract_only,omitempty" yaml:"abstract_only,omitempty"`
}

// SummaryRecord is the persisted unit for one paper: the structured summary,
// its tags, and the service record envelope.
type SummaryRecord struct {
	Service ServiceRecord      `json:"service_data" yaml:"service_data"`
	Summary *StructuredSummary `json:"summary_data,omitempty" yaml:"summary_data,omitempty"`
	Tags    Tags               `json:"tags" yaml:"tags"`

	// UpdatedAt is when the summary payload was last written.
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}
