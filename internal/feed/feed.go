// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package feed harvests paper links from RSS and Atom feeds and submits them
// to the pipeline as system-sourced batch work.
package feed

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/txltxl22/ai-paper-digest/internal/pipeline"
	"github.com/txltxl22/ai-paper-digest/pkg/types"
)

// Submitter is the pipeline surface a batch run needs.
type Submitter interface {
	Submit(input string, opts pipeline.SubmitOptions) string
}

// Harvester fetches feeds and submits the papers they link to.
type Harvester struct {
	client    *http.Client
	userAgent string
	maxPapers int
}

// NewHarvester creates a harvester. maxPapers of zero means no cap.
func NewHarvester(client *http.Client, cfg types.FeedConfig) *Harvester {
	if client == nil {
		client = http.DefaultClient
	}
	return &Harvester{
		client:    client,
		userAgent: cfg.UserAgent,
		maxPapers: cfg.MaxPapers,
	}
}

// BatchResult counts the outcomes of one feed run.
type BatchResult struct {
	// Found is how many candidate links the feed yielded.
	Found int

	// Submitted is how many were handed to the pipeline.
	Submitted int

	// TaskIDs are the task IDs of the submitted papers, in feed order.
	TaskIDs []string
}

// Run fetches the feed at feedURL, extracts candidate paper links, and
// submits each as a system-sourced task with default processing: the
// relevance gate stays active and the full text is summarized. Duplicate
// links within the feed are submitted once.
func (h *Harvester) Run(ctx context.Context, feedURL string, submitter Submitter) (BatchResult, error) {
	links, err := h.Fetch(ctx, feedURL)
	if err != nil {
		return BatchResult{}, err
	}

	res := BatchResult{Found: len(links)}
	for _, link := range links {
		if h.maxPapers > 0 && res.Submitted >= h.maxPapers {
			break
		}
		taskID := submitter.Submit(link, pipeline.SubmitOptions{
			SourceType: types.SourceSystem,
		})
		res.Submitted++
		res.TaskIDs = append(res.TaskIDs, taskID)
	}
	return res, nil
}

// Fetch retrieves the feed and returns its deduplicated item links in order.
// Both RSS 2.0 and Atom documents are understood.
func (h *Harvester) Fetch(ctx context.Context, feedURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("reading feed: %w", err)
	}

	links, err := parseFeed(body)
	if err != nil {
		return nil, fmt.Errorf("parsing feed %s: %w", feedURL, err)
	}
	return links, nil
}

// RSS and Atom feed XML structures. One document type covers both: RSS puts
// items under channel, Atom puts entries at the top level.
type feedDocument struct {
	XMLName xml.Name
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
	Entries []atomEntry `xml:"entry"`
}

type rssItem struct {
	Link string `xml:"link"`
	GUID string `xml:"guid"`
}

type atomEntry struct {
	ID    string     `xml:"id"`
	Links []atomLink `xml:"link"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

func parseFeed(body []byte) ([]string, error) {
	var doc feedDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, err
	}

	var links []string
	seen := make(map[string]bool)
	add := func(link string) {
		link = strings.TrimSpace(link)
		if link == "" || seen[link] {
			return
		}
		seen[link] = true
		links = append(links, link)
	}

	for _, item := range doc.Channel.Items {
		if item.Link != "" {
			add(item.Link)
		} else {
			add(item.GUID)
		}
	}
	for _, entry := range doc.Entries {
		href := ""
		for _, l := range entry.Links {
			if l.Rel == "" || l.Rel == "alternate" {
				href = l.Href
				break
			}
		}
		if href != "" {
			add(href)
		} else {
			add(entry.ID)
		}
	}

	if len(links) == 0 {
		return nil, fmt.Errorf("no item links found")
	}
	return links, nil
}
