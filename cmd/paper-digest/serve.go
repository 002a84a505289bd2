// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/txltxl22/ai-paper-digest/internal/feed"
	"github.com/txltxl22/ai-paper-digest/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service",
	Long: `Serve starts the HTTP API: paper submission, task polling, summary
retrieval, record listing, and feed batch runs.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default :8080)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = viper.GetString("server.addr")
	}

	// Lazy sweeping only runs on new submissions; the loop keeps an idle
	// server from retaining terminal tasks past their window.
	sweepCtx, cancelSweep := context.WithCancel(cmd.Context())
	defer cancelSweep()
	sweepEvery := viper.GetDuration("tracker.sweep_interval")
	if sweepEvery <= 0 {
		sweepEvery = 10 * time.Minute
	}
	go a.tasks.SweepLoop(sweepCtx, sweepEvery)

	harvester := feed.NewHarvester(&http.Client{Timeout: a.feedCfg.Timeout}, a.feedCfg)
	srv := server.New(a.service, a.tasks, a.store, harvester, a.log)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		a.log.Info("shutting down")
		srv.Shutdown()
	}()

	a.log.Info("listening", "addr", addr)
	if err := srv.Listen(addr); err != nil {
		return fmt.Errorf("HTTP server: %w", err)
	}
	return nil
}
