// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/txltxl22/ai-paper-digest/internal/feed"
	"github.com/txltxl22/ai-paper-digest/pkg/types"
)

var feedCmd = &cobra.Command{
	Use:   "feed [feed-urls...]",
	Short: "Harvest papers from RSS/Atom feeds and summarize them",
	Long: `Feed fetches each feed, submits every linked paper as a system-sourced
task, and waits for the batch to finish. Papers that fail the relevance
gate are skipped; papers already summarized complete immediately from cache.`,
	RunE: runFeed,
}

func init() {
	feedCmd.Flags().Int("max-papers", 0, "cap submissions per feed (0 = no cap)")

	rootCmd.AddCommand(feedCmd)
}

func runFeed(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("provide one or more feed URLs")
	}

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	cfg := a.feedCfg
	if maxPapers, _ := cmd.Flags().GetInt("max-papers"); maxPapers > 0 {
		cfg.MaxPapers = maxPapers
	}
	harvester := feed.NewHarvester(&http.Client{Timeout: cfg.Timeout}, cfg)

	var taskIDs []string
	for _, feedURL := range args {
		res, err := harvester.Run(cmd.Context(), feedURL, a.service)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed  %s: %v\n", feedURL, err)
			continue
		}
		fmt.Printf("feed %s: %d found, %d submitted\n", feedURL, res.Found, res.Submitted)
		taskIDs = append(taskIDs, res.TaskIDs...)
	}

	var done, skipped, failed int
	for _, id := range taskIDs {
		st := waitForTask(a.tasks, id)
		switch {
		case st.Step == types.StepError:
			failed++
		case st.NotAIRelated:
			skipped++
		default:
			done++
		}
	}

	fmt.Printf("\nsummarized: %d, not AI-related: %d, failed: %d\n", done, skipped, failed)

	if done > 0 {
		if err := a.store.ExportYAML(cmd.Context()); err != nil {
			fmt.Fprintf(os.Stderr, "warning: export.yaml write failed: %v\n", err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d paper(s) failed", failed)
	}
	return nil
}
