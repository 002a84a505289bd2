// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes the pipeline over HTTP. Handlers translate between
// wire payloads and internal types; all human-readable presentation (byte
// counts, progress strings) happens here and nowhere deeper.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/txltxl22/ai-paper-digest/internal/feed"
	"github.com/txltxl22/ai-paper-digest/internal/pipeline"
	"github.com/txltxl22/ai-paper-digest/internal/store"
	"github.com/txltxl22/ai-paper-digest/internal/task"
	"github.com/txltxl22/ai-paper-digest/pkg/types"
)

// Pipeline is the submission surface the handlers call.
type Pipeline interface {
	Submit(input string, opts pipeline.SubmitOptions) string
	DeepRead(paperID string, opts pipeline.SubmitOptions) (string, error)
}

// FeedRunner runs one feed batch.
type FeedRunner interface {
	Run(ctx context.Context, feedURL string, submitter feed.Submitter) (feed.BatchResult, error)
}

// Server holds the HTTP app and its collaborators.
type Server struct {
	app      *fiber.App
	pipeline Pipeline
	tasks    *task.Registry
	store    *store.Store
	feeds    FeedRunner
	log      *slog.Logger
}

// New builds the fiber app and registers all routes. feeds may be nil when
// feed batch runs are not exposed.
func New(p Pipeline, tasks *task.Registry, st *store.Store, feeds FeedRunner, log *slog.Logger) *Server {
	s := &Server{
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
			ErrorHandler:          errorHandler,
		}),
		pipeline: p,
		tasks:    tasks,
		store:    st,
		feeds:    feeds,
		log:      log,
	}

	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
	}))

	api := s.app.Group("/api")
	api.Post("/papers", s.submitPaper)
	api.Post("/papers/:id/deep-read", s.deepRead)
	api.Get("/tasks/:id", s.taskStatus)
	api.Delete("/tasks/:id", s.dismissTask)
	api.Get("/summaries/:id", s.summary)
	api.Get("/records", s.records)
	api.Post("/feeds", s.runFeed)
	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	return s
}

// Listen serves until the listener fails or the app is shut down.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the HTTP listener.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

type submitRequest struct {
	URL          string `json:"url"`
	UserID       string `json:"user_id"`
	Force        bool   `json:"force"`
	AbstractOnly bool   `json:"abstract_only"`
}

func (s *Server) submitPaper(c *fiber.Ctx) error {
	var req submitRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.URL == "" {
		return fiber.NewError(fiber.StatusBadRequest, "url is required")
	}

	taskID := s.pipeline.Submit(req.URL, pipeline.SubmitOptions{
		SourceType:   types.SourceUser,
		UserID:       req.UserID,
		Force:        req.Force,
		AbstractOnly: req.AbstractOnly,
	})
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"task_id": taskID})
}

func (s *Server) deepRead(c *fiber.Ctx) error {
	paperID := c.Params("id")
	taskID, err := s.pipeline.DeepRead(paperID, pipeline.SubmitOptions{
		SourceType: types.SourceUser,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "no record for paper "+paperID)
		}
		return fiber.NewError(fiber.StatusInternalServerError, "could not schedule deep read")
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"task_id": taskID})
}

// taskView is the wire form of a task snapshot: the structured status plus a
// human-readable download string generated at this boundary.
type taskView struct {
	types.TaskStatus
	DownloadText string `json:"download_text,omitempty"`
}

func (s *Server) taskStatus(c *fiber.Ctx) error {
	st, err := s.tasks.Status(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, "unknown task")
	}

	view := taskView{TaskStatus: st}
	if st.Download != nil {
		view.DownloadText = downloadText(*st.Download)
	}
	return c.JSON(view)
}

func (s *Server) dismissTask(c *fiber.Ctx) error {
	if err := s.tasks.Dismiss(c.Params("id")); err != nil {
		if errors.Is(err, task.ErrUnknownTask) {
			return fiber.NewError(fiber.StatusNotFound, "unknown task")
		}
		return fiber.NewError(fiber.StatusConflict, "task is still running")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) summary(c *fiber.Ctx) error {
	rec, err := s.store.LoadSummary(c.Params("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "no summary for this paper")
		}
		return fiber.NewError(fiber.StatusInternalServerError, "could not load summary")
	}
	return c.JSON(rec)
}

func (s *Server) records(c *fiber.Ctx) error {
	filter := store.RecordFilter{
		SourceType: types.SourceType(c.Query("source_type")),
		Tag:        c.Query("tag"),
		Limit:      c.QueryInt("limit"),
	}
	recs, err := s.store.ListRecords(c.Context(), filter)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "could not list records")
	}
	if recs == nil {
		recs = []store.RecordSummary{}
	}
	return c.JSON(fiber.Map{"records": recs, "count": len(recs)})
}

type feedRequest struct {
	URL string `json:"url"`
}

func (s *Server) runFeed(c *fiber.Ctx) error {
	if s.feeds == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "feed runs are not enabled")
	}
	var req feedRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.URL == "" {
		return fiber.NewError(fiber.StatusBadRequest, "url is required")
	}

	ctx, cancel := context.WithTimeout(c.Context(), 30*time.Second)
	defer cancel()

	res, err := s.feeds.Run(ctx, req.URL, s.pipeline)
	if err != nil {
		s.log.Error("feed run failed", "url", req.URL, "error", err)
		return fiber.NewError(fiber.StatusBadGateway, "feed could not be fetched")
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"found":     res.Found,
		"submitted": res.Submitted,
		"task_ids":  res.TaskIDs,
	})
}

// downloadText renders byte progress for humans ("1.5 MB / 3.0 MB (50%)").
func downloadText(p types.DownloadProgress) string {
	if p.BytesTotal <= 0 {
		return humanBytes(p.BytesDone)
	}
	pct := p.BytesDone * 100 / p.BytesTotal
	return fmt.Sprintf("%s / %s (%d%%)", humanBytes(p.BytesDone), humanBytes(p.BytesTotal), pct)
}

func humanBytes(n int64) string {
	const (
		kb = 1 << 10
		mb = 1 << 20
	)
	switch {
	case n >= mb:
		return fmt.Sprintf("%.1f MB", float64(n)/mb)
	case n >= kb:
		return fmt.Sprintf("%.1f KB", float64(n)/kb)
	default:
		return fmt.Sprintf("%d B", n)
	}
}
