// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/txltxl22/ai-paper-digest/pkg/types"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantID     string
		wantPDF    string
		wantSource types.Source
		wantErr    bool
	}{
		{"bare id", "2508.18966", "2508.18966", arxivPDFBase + "2508.18966", types.SourceArxiv, false},
		{"bare id versioned", "2508.18966v2", "2508.18966", arxivPDFBase + "2508.18966", types.SourceArxiv, false},
		{"arxiv abs", "https://arxiv.org/abs/2508.18966", "2508.18966", arxivPDFBase + "2508.18966", types.SourceArxiv, false},
		{"arxiv pdf", "https://arxiv.org/pdf/2508.18966", "2508.18966", arxivPDFBase + "2508.18966", types.SourceArxiv, false},
		{"huggingface", "https://huggingface.co/papers/2508.18966", "2508.18966", arxivPDFBase + "2508.18966", types.SourceHuggingFace, false},
		{"mirror", "https://tldr.takara.ai/p/2508.18966", "2508.18966", arxivPDFBase + "2508.18966", types.SourceOther, false},
		{"direct pdf", "https://example.com/papers/attention.pdf", "attention", "https://example.com/papers/attention.pdf", types.SourceOther, false},
		{"whitespace trimmed", "  2508.18966  ", "2508.18966", arxivPDFBase + "2508.18966", types.SourceArxiv, false},
		{"unknown page", "https://example.com/blog/post", "", "", "", true},
		{"empty", "", "", "", "", true},
		{"not a url", "hello world", "", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrUnresolvedSource) {
					t.Fatalf("Resolve(%q) err = %v, want ErrUnresolvedSource", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q) unexpected error: %v", tt.input, err)
			}
			if got.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", got.ID, tt.wantID)
			}
			if got.PDFURL != tt.wantPDF {
				t.Errorf("PDFURL = %q, want %q", got.PDFURL, tt.wantPDF)
			}
			if got.Source != tt.wantSource {
				t.Errorf("Source = %q, want %q", got.Source, tt.wantSource)
			}
		})
	}
}

func TestResolveIdempotent(t *testing.T) {
	inputs := []string{
		"2508.18966",
		"https://arxiv.org/abs/2508.18966",
		"https://huggingface.co/papers/2508.18966",
		"https://example.com/papers/attention.pdf",
	}
	for _, in := range inputs {
		first, err := Resolve(in)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", in, err)
		}
		second, err := Resolve(in)
		if err != nil {
			t.Fatalf("Resolve(%q) second call: %v", in, err)
		}
		if first != second {
			t.Errorf("Resolve(%q) not idempotent: %+v vs %+v", in, first, second)
		}
	}
}

func TestResolverFetchesPageForID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><head><title>Some Paper</title>
			<meta name="citation_arxiv_id" content="arXiv:2508.18966"/></head></html>`)
	}))
	defer ts.Close()

	r := &Resolver{Client: ts.Client(), UserAgent: "paper-digest-test"}
	got, err := r.Resolve(context.Background(), ts.URL+"/some/page")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != "2508.18966" {
		t.Errorf("ID = %q, want 2508.18966", got.ID)
	}
	if got.PDFURL != arxivPDFBase+"2508.18966" {
		t.Errorf("PDFURL = %q", got.PDFURL)
	}
}

func TestResolverScansPageForPDFLink(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body>
			<a href="/about">About</a>
			<a href="/files/paper-final.pdf">Download PDF</a>
		</body></html>`)
	}))
	defer ts.Close()

	r := &Resolver{Client: ts.Client()}
	got, err := r.Resolve(context.Background(), ts.URL+"/landing")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != "paper-final" {
		t.Errorf("ID = %q, want paper-final", got.ID)
	}
	if got.PDFURL != ts.URL+"/files/paper-final.pdf" {
		t.Errorf("PDFURL = %q", got.PDFURL)
	}
	if got.Source != types.SourceOther {
		t.Errorf("Source = %q, want other", got.Source)
	}
}

func TestResolverNoPDFOnPage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><a href="/about">About</a></body></html>`)
	}))
	defer ts.Close()

	r := &Resolver{Client: ts.Client()}
	_, err := r.Resolve(context.Background(), ts.URL+"/landing")
	if !errors.Is(err, ErrUnresolvedSource) {
		t.Fatalf("err = %v, want ErrUnresolvedSource", err)
	}
}
