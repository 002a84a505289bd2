// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract converts cached PDFs into plain text and splits the text
// into overlapping chunks for the summarization orchestrator.
package extract

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/txltxl22/ai-paper-digest/pkg/types"
)

// ErrEmptyText indicates extraction produced less usable text than the
// configured minimum, so summarization would only process garbage.
var ErrEmptyText = errors.New("extraction yielded no usable text")

const (
	defaultMinChars     = 200
	defaultChunkChars   = 5000
	defaultChunkOverlap = 250
)

// pdfText reads all page text from a PDF in page order. Declared as a var so
// pipeline tests can substitute extraction without crafting real PDF files.
var pdfText = func(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat PDF: %w", err)
	}

	reader, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return "", fmt.Errorf("reading PDF: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single damaged page does not abort extraction; the
			// minimum-length check below catches fully broken files.
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// Extractor converts PDFs into ordered text chunks.
type Extractor struct {
	cfg types.ExtractionConfig
}

// NewExtractor creates an extractor. Zero-valued tunables fall back to
// defaults (200 minimum chars, 5000-char chunks, 250-char overlap).
func NewExtractor(cfg types.ExtractionConfig) *Extractor {
	if cfg.MinChars <= 0 {
		cfg.MinChars = defaultMinChars
	}
	if cfg.ChunkChars <= 0 {
		cfg.ChunkChars = defaultChunkChars
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkChars {
		cfg.ChunkOverlap = defaultChunkOverlap
	}
	return &Extractor{cfg: cfg}
}

// Text extracts all page text from the PDF at path. It fails with
// ErrEmptyText when the result is below the configured minimum length.
func (e *Extractor) Text(path string) (string, error) {
	text, err := pdfText(path)
	if err != nil {
		return "", err
	}
	if len(strings.TrimSpace(text)) < e.cfg.MinChars {
		return "", fmt.Errorf("%d usable characters (minimum %d): %w",
			len(strings.TrimSpace(text)), e.cfg.MinChars, ErrEmptyText)
	}
	return text, nil
}

// Chunk splits text into chunks of at most ChunkChars characters with
// ChunkOverlap characters repeated between consecutive chunks. Order is
// positional; the last chunk may be shorter.
func (e *Extractor) Chunk(text string) []string {
	return ChunkText(text, e.cfg.ChunkChars, e.cfg.ChunkOverlap)
}

// ChunkText is the standalone chunker: maxChars per chunk, overlap characters
// shared between consecutive chunks. Concatenating each chunk minus its
// leading overlap region reproduces the input exactly. Boundaries are rune
// positions, so multi-byte text is never split mid-character.
func ChunkText(text string, maxChars, overlap int) []string {
	if maxChars <= 0 || overlap < 0 || overlap >= maxChars {
		return nil
	}

	runes := []rune(text)
	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + maxChars
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
		start = end - overlap
	}
	return chunks
}
