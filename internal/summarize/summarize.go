// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package summarize orchestrates the multi-call summarization of a paper:
// one condensing call per text chunk, one merge call producing the final
// structured summary, and one tagging call. Chunk calls run strictly
// sequentially because each prompt builds on the chunks before it.
package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/txltxl22/ai-paper-digest/internal/llm"
	"github.com/txltxl22/ai-paper-digest/pkg/types"
)

// ErrSummaryParse means the model's final summary could not be parsed or
// validated even after a retry. Nothing is persisted on this path.
var ErrSummaryParse = errors.New("summary output unparseable")

// topVocabulary is the closed set of broad categories a tags verdict may use.
var topVocabulary = map[string]bool{
	"llm": true, "nlp": true, "cv": true, "ml": true, "rl": true,
	"agents": true, "systems": true, "theory": true, "robotics": true,
	"audio": true, "multimodal": true,
}

const (
	maxTopTags      = 3
	maxSpecificTags = 5
)

// Orchestrator drives the chunk/merge/tags call sequence against one provider.
type Orchestrator struct {
	provider   llm.Provider
	maxRetries int
}

// New creates an orchestrator. maxRetries is the per-call transport retry
// budget; parse failures get their own single retry independent of it.
func New(provider llm.Provider, maxRetries int) *Orchestrator {
	return &Orchestrator{provider: provider, maxRetries: maxRetries}
}

// Summarize condenses each chunk in order, merges the chunk summaries into a
// StructuredSummary, and validates it. A merge output that fails to parse is
// retried once with a stricter JSON-only instruction; a second failure
// returns ErrSummaryParse.
func (o *Orchestrator) Summarize(ctx context.Context, chunks []string) (*types.StructuredSummary, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks to summarize")
	}

	chunkSummaries := make([]types.ChunkSummary, 0, len(chunks))
	for i, chunk := range chunks {
		cs, err := o.summarizeChunk(ctx, chunk, i+1, len(chunks))
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		chunkSummaries = append(chunkSummaries, cs)
	}

	return o.merge(ctx, chunkSummaries)
}

func (o *Orchestrator) summarizeChunk(ctx context.Context, chunk string, index, total int) (types.ChunkSummary, error) {
	prompt, err := render(chunkPromptTmpl, struct {
		Continuation bool
		Index        int
		Total        int
		Chunk        string
	}{
		Continuation: index > 1,
		Index:        index,
		Total:        total,
		Chunk:        chunk,
	})
	if err != nil {
		return types.ChunkSummary{}, err
	}

	out, err := llm.CompleteWithRetry(ctx, o.provider, prompt, o.maxRetries)
	if err != nil {
		return types.ChunkSummary{}, err
	}

	// Chunk summaries are intermediate; if the model ignored the JSON shape
	// the raw text still carries the condensed content forward.
	var cs types.ChunkSummary
	if err := json.Unmarshal([]byte(llm.ExtractJSON(out)), &cs); err != nil || cs.MainContent == "" {
		return types.ChunkSummary{MainContent: out}, nil
	}
	return cs, nil
}

func (o *Orchestrator) merge(ctx context.Context, chunkSummaries []types.ChunkSummary) (*types.StructuredSummary, error) {
	encoded, err := json.MarshalIndent(chunkSummaries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding chunk summaries: %w", err)
	}
	prompt, err := render(mergePromptTmpl, struct{ ChunkSummaries string }{ChunkSummaries: string(encoded)})
	if err != nil {
		return nil, err
	}

	summary, parseErr := o.mergeCall(ctx, prompt)
	if parseErr != nil {
		if errors.Is(parseErr, llm.ErrUnavailable) || ctx.Err() != nil {
			return nil, parseErr
		}
		// One retry with the strict instruction appended.
		summary, parseErr = o.mergeCall(ctx, prompt+strictJSONReminder)
		if parseErr != nil {
			if errors.Is(parseErr, llm.ErrUnavailable) || ctx.Err() != nil {
				return nil, parseErr
			}
			return nil, fmt.Errorf("%w: %v", ErrSummaryParse, parseErr)
		}
	}
	return summary, nil
}

func (o *Orchestrator) mergeCall(ctx context.Context, prompt string) (*types.StructuredSummary, error) {
	out, err := llm.CompleteWithRetry(ctx, o.provider, prompt, o.maxRetries)
	if err != nil {
		return nil, err
	}

	var s types.StructuredSummary
	if err := json.Unmarshal([]byte(llm.ExtractJSON(out)), &s); err != nil {
		return nil, fmt.Errorf("parsing merged summary: %v", err)
	}
	if err := validateSummary(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// validateSummary enforces the summary schema field by field. A summary that
// fails here is treated the same as unparseable output.
func validateSummary(s *types.StructuredSummary) error {
	if s.PaperInfo.TitleEN == "" {
		return fmt.Errorf("summary missing paper_info.title_en")
	}
	if s.PaperInfo.TitleZH == "" {
		return fmt.Errorf("summary missing paper_info.title_zh")
	}
	if s.OneSentenceSummary == "" {
		return fmt.Errorf("summary missing one_sentence_summary")
	}
	if len(s.Innovations) == 0 {
		return fmt.Errorf("summary has no innovations")
	}
	for i, inn := range s.Innovations {
		if inn.Title == "" || inn.Description == "" {
			return fmt.Errorf("innovation %d missing title or description", i)
		}
	}
	for i, td := range s.Terminology {
		if td.Term == "" || td.Definition == "" {
			return fmt.Errorf("terminology entry %d missing term or definition", i)
		}
	}
	return nil
}

// GenerateTags derives topic tags from a finished summary. The verdict is
// normalized: top categories outside the fixed vocabulary are dropped, all
// tags are lowercased and deduplicated, and both lists are capped. A verdict
// must carry at least one top category and one specific tag after
// normalization.
func (o *Orchestrator) GenerateTags(ctx context.Context, summary *types.StructuredSummary) (types.Tags, error) {
	encoded, err := json.Marshal(summary)
	if err != nil {
		return types.Tags{}, fmt.Errorf("encoding summary: %w", err)
	}
	prompt, err := render(tagsPromptTmpl, struct{ Summary string }{Summary: string(encoded)})
	if err != nil {
		return types.Tags{}, err
	}

	tags, parseErr := o.tagsCall(ctx, prompt)
	if parseErr != nil {
		if errors.Is(parseErr, llm.ErrUnavailable) || ctx.Err() != nil {
			return types.Tags{}, parseErr
		}
		tags, parseErr = o.tagsCall(ctx, prompt+strictJSONReminder)
		if parseErr != nil {
			if errors.Is(parseErr, llm.ErrUnavailable) || ctx.Err() != nil {
				return types.Tags{}, parseErr
			}
			return types.Tags{}, fmt.Errorf("%w: %v", ErrSummaryParse, parseErr)
		}
	}
	return tags, nil
}

func (o *Orchestrator) tagsCall(ctx context.Context, prompt string) (types.Tags, error) {
	out, err := llm.CompleteWithRetry(ctx, o.provider, prompt, o.maxRetries)
	if err != nil {
		return types.Tags{}, err
	}

	var raw types.Tags
	if err := json.Unmarshal([]byte(llm.ExtractJSON(out)), &raw); err != nil {
		return types.Tags{}, fmt.Errorf("parsing tags: %v", err)
	}
	normalized := NormalizeTags(raw)
	if len(normalized.Top) == 0 {
		return types.Tags{}, fmt.Errorf("tags verdict has no valid top category")
	}
	if len(normalized.Tags) == 0 {
		return types.Tags{}, fmt.Errorf("tags verdict has no specific tags")
	}
	return normalized, nil
}

// NormalizeTags lowercases and deduplicates a raw tags verdict, drops top
// categories outside the fixed vocabulary, and caps the lists at 3 top
// categories and 5 specific tags.
func NormalizeTags(raw types.Tags) types.Tags {
	var out types.Tags
	seen := make(map[string]bool)
	for _, t := range raw.Top {
		t = strings.ToLower(strings.TrimSpace(t))
		if !topVocabulary[t] || seen[t] {
			continue
		}
		seen[t] = true
		out.Top = append(out.Top, t)
		if len(out.Top) == maxTopTags {
			break
		}
	}
	seen = make(map[string]bool)
	for _, t := range raw.Tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out.Tags = append(out.Tags, t)
		if len(out.Tags) == maxSpecificTags {
			break
		}
	}
	return out
}
