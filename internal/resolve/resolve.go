// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package resolve turns arbitrary submitted URLs into canonical paper
// identities with direct PDF URLs.
package resolve

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/txltxl22/ai-paper-digest/pkg/types"
)

// ErrUnresolvedSource indicates no known URL pattern matched and no PDF link
// could be located in fetched page content.
var ErrUnresolvedSource = errors.New("unresolved source")

// arxivPDFBase is the arXiv PDF endpoint. Declared as a var so tests can
// substitute an httptest server.
var arxivPDFBase = "https://arxiv.org/pdf/"

// arxivIDPattern matches bare arXiv identifiers: "2508.18966", "2508.18966v2".
var arxivIDPattern = regexp.MustCompile(`^(\d{4}\.\d{4,5})(?:v\d+)?$`)

// urlIDPatterns extract an arXiv id from known URL shapes. The first match wins.
var urlIDPatterns = []struct {
	re     *regexp.Regexp
	source types.Source
}{
	{regexp.MustCompile(`arxiv\.org/(?:abs|pdf)/(\d{4}\.\d{4,5})(?:v\d+)?`), types.SourceArxiv},
	{regexp.MustCompile(`huggingface\.co/papers/(\d{4}\.\d{4,5})`), types.SourceHuggingFace},
	// Third-party digest mirror whose paths encode the arXiv id.
	{regexp.MustCompile(`tldr\.takara\.ai/p/(\d{4}\.\d{4,5})`), types.SourceOther},
}

// pageIDPatterns locate an arXiv id inside fetched page content
// (citation metadata, inline links, or bracketed titles).
var pageIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`arxiv\.org/(?:abs|pdf)/(\d{4}\.\d{4,5})`),
	regexp.MustCompile(`content="arXiv:(\d{4}\.\d{4,5})`),
	regexp.MustCompile(`\[(\d{4}\.\d{4,5})\]`),
}

// hrefPattern finds anchor targets when scanning a page for a PDF link.
var hrefPattern = regexp.MustCompile(`(?i)href="([^"]+)"`)

// Resolve maps a URL or bare identifier to a PaperIdentity using pattern
// matching only. It is a pure function: resolving the same input twice yields
// the same identity, with no network access. Inputs that need page content
// return ErrUnresolvedSource here; use Resolver.Resolve for the fetching
// fallback.
func Resolve(input string) (types.PaperIdentity, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return types.PaperIdentity{}, fmt.Errorf("empty input: %w", ErrUnresolvedSource)
	}

	if m := arxivIDPattern.FindStringSubmatch(input); m != nil {
		id := m[1]
		return types.PaperIdentity{
			ID:     id,
			URL:    "https://arxiv.org/abs/" + id,
			PDFURL: arxivPDFBase + id,
			Source: types.SourceArxiv,
		}, nil
	}

	for _, p := range urlIDPatterns {
		if m := p.re.FindStringSubmatch(input); m != nil {
			return types.PaperIdentity{
				ID:     m[1],
				URL:    input,
				PDFURL: arxivPDFBase + m[1],
				Source: p.source,
			}, nil
		}
	}

	// Direct PDF link: canonical id is a slug of the URL.
	if u, err := url.Parse(input); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		if strings.HasSuffix(strings.ToLower(u.Path), ".pdf") {
			return types.PaperIdentity{
				ID:     pdfSlug(u),
				URL:    input,
				PDFURL: input,
				Source: types.SourceOther,
			}, nil
		}
	}

	return types.PaperIdentity{}, fmt.Errorf("no pattern matched %q: %w", input, ErrUnresolvedSource)
}

// pdfSlug returns a filesystem-safe identifier for a direct PDF URL: the
// basename without extension, or a URL hash when the path has no usable name.
func pdfSlug(u *url.URL) string {
	base := strings.TrimSuffix(path.Base(u.Path), path.Ext(u.Path))
	if base == "" || base == "." || base == "/" {
		h := sha256.Sum256([]byte(u.String()))
		return fmt.Sprintf("url-%x", h[:8])
	}
	return base
}

// Resolver resolves URLs that need page content: Hugging Face pages without
// an embedded id and unknown landing pages that link to a PDF.
type Resolver struct {
	Client    *http.Client
	UserAgent string
}

// Resolve maps input to a PaperIdentity, falling back to fetching the page
// and extracting an arXiv id or PDF link from its content when no URL
// pattern matches.
func (r *Resolver) Resolve(ctx context.Context, input string) (types.PaperIdentity, error) {
	ident, err := Resolve(input)
	if err == nil {
		return ident, nil
	}

	u, parseErr := url.Parse(strings.TrimSpace(input))
	if parseErr != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return types.PaperIdentity{}, err
	}

	body, fetchErr := r.fetch(ctx, input)
	if fetchErr != nil {
		return types.PaperIdentity{}, fmt.Errorf("fetching %s: %w", input, ErrUnresolvedSource)
	}

	// Prefer an arXiv id embedded in the page content.
	for _, re := range pageIDPatterns {
		if m := re.FindStringSubmatch(body); m != nil {
			return types.PaperIdentity{
				ID:     m[1],
				URL:    input,
				PDFURL: arxivPDFBase + m[1],
				Source: sourceForHost(u.Host),
			}, nil
		}
	}

	// Otherwise scan anchors for a PDF link.
	for _, m := range hrefPattern.FindAllStringSubmatch(body, -1) {
		href := m[1]
		if !strings.HasSuffix(strings.ToLower(href), ".pdf") {
			continue
		}
		ref, refErr := url.Parse(href)
		if refErr != nil {
			continue
		}
		pdfURL := u.ResolveReference(ref)
		return types.PaperIdentity{
			ID:     pdfSlug(pdfURL),
			URL:    input,
			PDFURL: pdfURL.String(),
			Source: types.SourceOther,
		}, nil
	}

	return types.PaperIdentity{}, fmt.Errorf("no arXiv id or PDF link in page content of %s: %w", input, ErrUnresolvedSource)
}

func sourceForHost(host string) types.Source {
	if strings.Contains(host, "huggingface.co") {
		return types.SourceHuggingFace
	}
	return types.SourceOther
}

func (r *Resolver) fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	if r.UserAgent != "" {
		req.Header.Set("User-Agent", r.UserAgent)
	}

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, pageURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}
