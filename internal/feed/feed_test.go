// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/txltxl22/ai-paper-digest/internal/pipeline"
	"github.com/txltxl22/ai-paper-digest/pkg/types"
)

const rssFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>AI Papers Daily</title>
    <item><title>Paper A</title><link>https://arxiv.org/abs/2401.00001</link></item>
    <item><title>Paper B</title><link>https://huggingface.co/papers/2401.00002</link></item>
    <item><title>Duplicate of A</title><link>https://arxiv.org/abs/2401.00001</link></item>
    <item><title>GUID only</title><guid>https://arxiv.org/abs/2401.00003</guid></item>
  </channel>
</rss>`

const atomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Paper Feed</title>
  <entry>
    <id>urn:paper:1</id>
    <link rel="alternate" href="https://arxiv.org/abs/2402.00001"/>
  </entry>
  <entry>
    <id>https://arxiv.org/abs/2402.00002</id>
  </entry>
</feed>`

type recordingSubmitter struct {
	inputs []string
	opts   []pipeline.SubmitOptions
}

func (r *recordingSubmitter) Submit(input string, opts pipeline.SubmitOptions) string {
	r.inputs = append(r.inputs, input)
	r.opts = append(r.opts, opts)
	return fmt.Sprintf("task-%d", len(r.inputs))
}

func feedServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestFetchRSS(t *testing.T) {
	ts := feedServer(t, rssFeed)
	h := NewHarvester(ts.Client(), types.FeedConfig{})

	links, err := h.Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	want := []string{
		"https://arxiv.org/abs/2401.00001",
		"https://huggingface.co/papers/2401.00002",
		"https://arxiv.org/abs/2401.00003",
	}
	if len(links) != len(want) {
		t.Fatalf("links = %v, want %v", links, want)
	}
	for i := range want {
		if links[i] != want[i] {
			t.Errorf("links[%d] = %q, want %q", i, links[i], want[i])
		}
	}
}

func TestFetchAtom(t *testing.T) {
	ts := feedServer(t, atomFeed)
	h := NewHarvester(ts.Client(), types.FeedConfig{})

	links, err := h.Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("links = %v, want 2", links)
	}
	if links[0] != "https://arxiv.org/abs/2402.00001" {
		t.Errorf("links[0] = %q", links[0])
	}
	// Entry without an alternate link falls back to its id.
	if links[1] != "https://arxiv.org/abs/2402.00002" {
		t.Errorf("links[1] = %q", links[1])
	}
}

func TestFetchErrors(t *testing.T) {
	t.Run("http error", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer ts.Close()
		h := NewHarvester(ts.Client(), types.FeedConfig{})
		if _, err := h.Fetch(context.Background(), ts.URL); err == nil {
			t.Error("expected error for HTTP 503")
		}
	})

	t.Run("not xml", func(t *testing.T) {
		ts := feedServer(t, "this is not a feed")
		h := NewHarvester(ts.Client(), types.FeedConfig{})
		if _, err := h.Fetch(context.Background(), ts.URL); err == nil {
			t.Error("expected error for non-XML body")
		}
	})

	t.Run("empty feed", func(t *testing.T) {
		ts := feedServer(t, `<?xml version="1.0"?><rss version="2.0"><channel></channel></rss>`)
		h := NewHarvester(ts.Client(), types.FeedConfig{})
		if _, err := h.Fetch(context.Background(), ts.URL); err == nil {
			t.Error("expected error for feed without items")
		}
	})
}

func TestRunSubmitsAsSystemBatch(t *testing.T) {
	ts := feedServer(t, rssFeed)
	h := NewHarvester(ts.Client(), types.FeedConfig{})
	sub := &recordingSubmitter{}

	res, err := h.Run(context.Background(), ts.URL, sub)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Found != 3 || res.Submitted != 3 {
		t.Errorf("result = %+v", res)
	}
	if len(res.TaskIDs) != 3 {
		t.Errorf("task ids = %v", res.TaskIDs)
	}
	for i, o := range sub.opts {
		if o.SourceType != types.SourceSystem {
			t.Errorf("submission %d source type = %q, want system", i, o.SourceType)
		}
		// Feed papers go through full processing: the relevance gate must
		// stay active and nothing may truncate summarization.
		if o.AbstractOnly || o.Force {
			t.Errorf("submission %d opts = %+v, want defaults", i, o)
		}
	}
}

func TestRunRespectsMaxPapers(t *testing.T) {
	ts := feedServer(t, rssFeed)
	h := NewHarvester(ts.Client(), types.FeedConfig{MaxPapers: 2})
	sub := &recordingSubmitter{}

	res, err := h.Run(context.Background(), ts.URL, sub)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Found != 3 || res.Submitted != 2 {
		t.Errorf("result = %+v", res)
	}
	if len(sub.inputs) != 2 {
		t.Errorf("submissions = %v", sub.inputs)
	}
}
