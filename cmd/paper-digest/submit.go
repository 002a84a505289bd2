// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/txltxl22/ai-paper-digest/internal/pipeline"
	"github.com/txltxl22/ai-paper-digest/internal/task"
	"github.com/txltxl22/ai-paper-digest/pkg/types"
)

var submitCmd = &cobra.Command{
	Use:   "submit [urls...]",
	Short: "Summarize one or more papers and wait for the results",
	Long: `Submit accepts paper URLs or bare arXiv identifiers, runs each through
the pipeline, and polls until every task finishes. Cached summaries complete
immediately.`,
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().Bool("force", false, "reprocess even when a cached summary exists")
	submitCmd.Flags().Bool("abstract-only", false, "summarize only the opening of each paper")
	submitCmd.Flags().String("user", "", "user id recorded in the provenance envelope")

	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("provide one or more paper URLs or arXiv identifiers")
	}

	force, _ := cmd.Flags().GetBool("force")
	abstractOnly, _ := cmd.Flags().GetBool("abstract-only")
	userID, _ := cmd.Flags().GetString("user")

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	opts := pipeline.SubmitOptions{
		SourceType:   types.SourceUser,
		UserID:       userID,
		Force:        force,
		AbstractOnly: abstractOnly,
	}

	taskIDs := make(map[string]string, len(args))
	for _, input := range args {
		taskIDs[input] = a.service.Submit(input, opts)
	}

	failures := 0
	for _, input := range args {
		st := waitForTask(a.tasks, taskIDs[input])
		switch {
		case st.Step == types.StepError:
			failures++
			fmt.Fprintf(os.Stderr, "failed  %s: %s (at %s)\n", input, st.Details, st.FailedStep)
		case st.NotAIRelated:
			fmt.Printf("skipped %s: not AI-related\n", input)
		default:
			fmt.Printf("done    %s -> %s\n", input, st.ResultRef)
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d paper(s) failed", failures)
	}
	return nil
}

// waitForTask polls until the task reaches a terminal step, echoing step
// changes to stderr.
func waitForTask(reg *task.Registry, taskID string) types.TaskStatus {
	var lastStep types.Step
	for {
		st, err := reg.Status(taskID)
		if err != nil {
			return types.TaskStatus{Step: types.StepError, Details: "task disappeared"}
		}
		if st.Step != lastStep {
			fmt.Fprintf(os.Stderr, "  [%3d%%] %s: %s\n", st.Progress, st.Step, st.Details)
			lastStep = st.Step
		}
		if st.Step.Terminal() {
			return st
		}
		time.Sleep(200 * time.Millisecond)
	}
}
