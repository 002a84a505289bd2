// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Innovation describes one novel contribution identified in a paper.
type Innovation struct {
	// Title is a short name for the contribution.
	Title string `json:"title" yaml:"title"`

	// Description explains what the contribution is.
	Description string `json:"description" yaml:"description"`

	// Improvement states what the contribution improves over prior work.
	Improvement string `json:"improvement" yaml:"improvement"`

	// Significance states why the contribution matters.
	Significance string `json:"significance" yaml:"significance"`
}

// TermDefinition is one glossary entry.
type TermDefinition struct {
	Term       string `json:"term" yaml:"term"`
	Definition string `json:"definition" yaml:"definition"`
}

// PaperInfo holds the bilingual title block of a structured summary.
type PaperInfo struct {
	// TitleZH is the Chinese title.
	TitleZH string `json:"title_zh" yaml:"title_zh"`

	// TitleEN is the English title.
	TitleEN string `json:"title_en" yaml:"title_en"`
}

// Results groups the experimental findings of a structured summary.
type Results struct {
	// ExperimentalHighlights lists the headline experimental outcomes.
	ExperimentalHighlights []string `json:"experimental_highlights" yaml:"experimental_highlights"`

	// PracticalValue lists real-world applications of the results.
	PracticalValue []string `json:"practical_value" yaml:"practical_value"`
}

// StructuredSummary is the durable output of summarization. Every field must
// validate against the summary schema before it is persisted; a partially
// parsed summary is never stored.
type StructuredSummary struct {
	PaperInfo          PaperInfo        `json:"paper_info" yaml:"paper_info"`
	OneSentenceSummary string           `json:"one_sentence_summary" yaml:"one_sentence_summary"`
	Innovations        []Innovation     `json:"innovations" yaml:"innovations"`
	Results            Results          `json:"results" yaml:"results"`
	Terminology        []TermDefinition `json:"terminology" yaml:"terminology"`
}

// ChunkSummary is the condensed summary of one text chunk. It is consumed by
// the merge step and not retained after the final summary exists.
type ChunkSummary struct {
	MainContent string           `json:"main_content" yaml:"main_content"`
	Innovations []Innovation     `json:"innovations" yaml:"innovations"`
	KeyTerms    []TermDefinition `json:"key_terms" yaml:"key_terms"`
}

// Tags holds topic tags derived from a structured summary: 1-3 broad top
// categories plus 1-5 specific lowercase tags, deduplicated.
type Tags struct {
	// Top lists broad categories drawn from a fixed vocabulary
	// (llm, nlp, cv, ml, rl, agents, systems, theory, robotics, audio, multimodal).
	Top []string `json:"top" yaml:"top"`

	// Tags lists specific lowercase topic labels.
	Tags []string `json:"tags" yaml:"tags"`
}
