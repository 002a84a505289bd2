// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the paper-digest pipeline:
// paper identities, structured summaries, service records, task snapshots,
// and per-stage configuration.
package types

// Source identifies where a paper URL was submitted from.
type Source string

const (
	SourceArxiv       Source = "arxiv"
	SourceHuggingFace Source = "huggingface"
	SourceOther       Source = "other"
)

// PaperIdentity is the canonical identity of a paper, derived once from a
// submitted URL and immutable afterwards. ID is the bare arXiv-style
// identifier (e.g. "2508.18966"); for non-arXiv PDFs it is a slug derived
// from the URL.
type PaperIdentity struct {
	// ID is the canonical identifier string used as the cache key.
	ID string `json:"id" yaml:"id"`

	// URL is the original submission URL.
	URL string `json:"url" yaml:"url"`

	// PDFURL is the resolved direct PDF download URL.
	PDFURL string `json:"pdf_url" yaml:"pdf_url"`

	// Source tags which recognizer produced the identity.
	Source Source `json:"source" yaml:"source"`
}
