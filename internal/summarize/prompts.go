// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package summarize

import (
	"bytes"
	"fmt"
	"text/template"
)

// chunkPromptTmpl condenses one chunk of paper text. Chunks after the first
// carry a continuation note so the model keeps terminology consistent.
var chunkPromptTmpl = template.Must(template.New("chunk").Parse(`You are summarizing an academic paper one section at a time.{{if .Continuation}} This is a continuation: the text below follows directly from earlier sections you have already summarized; keep terminology consistent and do not re-introduce the paper.{{end}}

Condense the section below, keeping every technical contribution, experimental result, and defined term.

Respond with a JSON object only:
{
  "main_content": "condensed summary of this section",
  "innovations": [{"title": "...", "description": "...", "improvement": "...", "significance": "..."}],
  "key_terms": [{"term": "...", "definition": "..."}]
}

Section {{.Index}} of {{.Total}}:
{{.Chunk}}
`))

// mergePromptTmpl merges all chunk summaries into the final structured summary.
var mergePromptTmpl = template.Must(template.New("merge").Parse(`You are producing the final structured summary of an academic paper from per-section summaries.

Merge the section summaries below into one coherent summary. Deduplicate innovations that appear in multiple sections. The Chinese title must be a faithful translation of the English title.

Respond with a JSON object only, matching this schema exactly:
{
  "paper_info": {"title_zh": "Chinese title", "title_en": "English title"},
  "one_sentence_summary": "one sentence capturing the paper's core contribution",
  "innovations": [{"title": "...", "description": "...", "improvement": "...", "significance": "..."}],
  "results": {"experimental_highlights": ["..."], "practical_value": ["..."]},
  "terminology": [{"term": "...", "definition": "..."}]
}

Section summaries (JSON array, in order):
{{.ChunkSummaries}}
`))

// tagsPromptTmpl derives topic tags from a finished summary.
var tagsPromptTmpl = template.Must(template.New("tags").Parse(`Derive topic tags for an AI paper from its summary below.

Respond with a JSON object only:
{"top": ["1-3 broad categories, chosen only from: llm, nlp, cv, ml, rl, agents, systems, theory, robotics, audio, multimodal"], "tags": ["1-5 specific lowercase topic labels"]}

Summary:
{{.Summary}}
`))

// strictJSONReminder is appended to a prompt on the retry after a parse
// failure.
const strictJSONReminder = "\n\nIMPORTANT: Output only the JSON object. No markdown fences, no explanation, no text before or after the JSON."

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
