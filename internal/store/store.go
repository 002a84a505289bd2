// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists pipeline artifacts under one data directory and
// keeps a SQLite index of service records for listing and tag queries.
//
// Layout under DataDir:
//
//	pdfs/<paper-id>.pdf        downloaded documents
//	text/<paper-id>.md         extracted text
//	summaries/<paper-id>.json  summary records
//	index/records.db           SQLite record index
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.yaml.in/yaml/v3"

	"github.com/txltxl22/ai-paper-digest/pkg/types"
)

const (
	pdfsDir      = "pdfs"
	textDir      = "text"
	summariesDir = "summaries"
	indexDir     = "index"
	dbFile       = "records.db"
)

// ErrNotFound means no summary record exists for the requested paper.
var ErrNotFound = errors.New("record not found")

// Store is the cache and record store.
type Store struct {
	db      *sql.DB
	dataDir string
}

// NewStore creates the artifact directories under cfg.DataDir and opens (or
// creates) the record index at index/records.db.
func NewStore(cfg types.StoreConfig) (*Store, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("store data directory not configured")
	}
	for _, d := range []string{pdfsDir, textDir, summariesDir, indexDir} {
		if err := os.MkdirAll(filepath.Join(cfg.DataDir, d), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s directory: %w", d, err)
		}
	}

	dbPath := filepath.Join(cfg.DataDir, indexDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening record index: %w", err)
	}

	s := &Store{db: db, dataDir: cfg.DataDir}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS records (
			paper_id TEXT PRIMARY KEY,
			source_type TEXT NOT NULL,
			created_at TEXT NOT NULL,
			first_created_at TEXT NOT NULL,
			original_url TEXT,
			provider TEXT,
			model TEXT,
			user_id TEXT,
			abstract_only INTEGER NOT NULL DEFAULT 0,
			is_ai INTEGER,
			confidence REAL,
			top_tags TEXT,
			tags TEXT,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_source_type ON records(source_type)`,
		`CREATE INDEX IF NOT EXISTS idx_records_created_at ON records(created_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// PDFPath returns the destination path for a paper's downloaded document.
// The file may not exist yet.
func (s *Store) PDFPath(paperID string) string {
	return filepath.Join(s.dataDir, pdfsDir, paperID+".pdf")
}

func (s *Store) textPath(paperID string) string {
	return filepath.Join(s.dataDir, textDir, paperID+".md")
}

func (s *Store) summaryPath(paperID string) string {
	return filepath.Join(s.dataDir, summariesDir, paperID+".json")
}

// HasPDF reports whether a downloaded document is cached for the paper.
func (s *Store) HasPDF(paperID string) bool {
	info, err := os.Stat(s.PDFPath(paperID))
	return err == nil && info.Size() > 0
}

// SaveText caches the extracted text of a paper.
func (s *Store) SaveText(paperID, text string) error {
	return writeFileAtomic(s.textPath(paperID), []byte(text))
}

// LoadText returns the cached extracted text, or ErrNotFound.
func (s *Store) LoadText(paperID string) (string, error) {
	data, err := os.ReadFile(s.textPath(paperID))
	if os.IsNotExist(err) {
		return "", fmt.Errorf("text for %s: %w", paperID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("reading text for %s: %w", paperID, err)
	}
	return string(data), nil
}

// HasSummary reports whether a record with a summary payload exists for the
// paper. A record carrying only a gate verdict does not count: such a paper
// can be resubmitted without forcing.
func (s *Store) HasSummary(paperID string) bool {
	rec, err := s.LoadSummary(paperID)
	return err == nil && rec.Summary != nil
}

// SaveSummary persists a summary record and updates the index. If a record
// for the paper already exists, its FirstCreatedAt is preserved; everything
// else is overwritten. The JSON file on disk is the source of truth.
func (s *Store) SaveSummary(ctx context.Context, rec *types.SummaryRecord) error {
	if rec.Service.PaperID == "" {
		return fmt.Errorf("summary record missing paper id")
	}

	now := time.Now().UTC()
	if rec.Service.CreatedAt.IsZero() {
		rec.Service.CreatedAt = now
	}
	rec.UpdatedAt = now

	if prev, err := s.LoadSummary(rec.Service.PaperID); err == nil {
		rec.Service.FirstCreatedAt = prev.Service.FirstCreatedAt
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	if rec.Service.FirstCreatedAt.IsZero() {
		rec.Service.FirstCreatedAt = rec.Service.CreatedAt
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding summary record: %w", err)
	}
	if err := writeFileAtomic(s.summaryPath(rec.Service.PaperID), data); err != nil {
		return err
	}
	return s.indexRecord(ctx, rec)
}

func (s *Store) indexRecord(ctx context.Context, rec *types.SummaryRecord) error {
	topJSON, _ := json.Marshal(rec.Tags.Top)
	tagsJSON, _ := json.Marshal(rec.Tags.Tags)

	var isAI any
	var confidence any
	if rec.Service.Judgment != nil {
		isAI = rec.Service.Judgment.IsAI
		confidence = rec.Service.Judgment.Confidence
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (paper_id, source_type, created_at, first_created_at,
			original_url, provider, model, user_id, abstract_only,
			is_ai, confidence, top_tags, tags, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(paper_id) DO UPDATE SET
			source_type=excluded.source_type, created_at=excluded.created_at,
			original_url=excluded.original_url, provider=excluded.provider,
			model=excluded.model, user_id=excluded.user_id,
			abstract_only=excluded.abstract_only, is_ai=excluded.is_ai,
			confidence=excluded.confidence, top_tags=excluded.top_tags,
			tags=excluded.tags, updated_at=excluded.updated_at`,
		rec.Service.PaperID, string(rec.Service.SourceType),
		rec.Service.CreatedAt.Format(time.RFC3339Nano),
		rec.Service.FirstCreatedAt.Format(time.RFC3339Nano),
		rec.Service.OriginalURL, rec.Service.Provider, rec.Service.Model,
		rec.Service.UserID, rec.Service.AbstractOnly,
		isAI, confidence, string(topJSON), string(tagsJSON),
		rec.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("indexing record %s: %w", rec.Service.PaperID, err)
	}
	return nil
}

// LoadSummary reads the summary record for a paper, or ErrNotFound.
func (s *Store) LoadSummary(paperID string) (*types.SummaryRecord, error) {
	data, err := os.ReadFile(s.summaryPath(paperID))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("summary for %s: %w", paperID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading summary for %s: %w", paperID, err)
	}
	var rec types.SummaryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing summary for %s: %w", paperID, err)
	}
	return &rec, nil
}

// RecordFilter narrows ListRecords results. Zero values mean no filtering.
type RecordFilter struct {
	// SourceType keeps only "system" or "user" records.
	SourceType types.SourceType

	// Tag keeps records carrying the tag in either tag list.
	Tag string

	// Limit caps the result count (0 = no cap).
	Limit int
}

// RecordSummary is one row of a record listing, read from the index without
// touching the summary files.
type RecordSummary struct {
	PaperID        string           `json:"paper_id" yaml:"paper_id"`
	SourceType     types.SourceType `json:"source_type" yaml:"source_type"`
	CreatedAt      time.Time        `json:"created_at" yaml:"created_at"`
	FirstCreatedAt time.Time        `json:"first_created_at" yaml:"first_created_at"`
	OriginalURL    string           `json:"original_url,omitempty" yaml:"original_url,omitempty"`
	Provider       string           `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model          string           `json:"model,omitempty" yaml:"model,omitempty"`
	AbstractOnly   bool             `json:"abstract_only,omitempty" yaml:"abstract_only,omitempty"`
	Tags           types.Tags       `json:"tags" yaml:"tags"`
}

// ListRecords returns indexed records, newest first.
func (s *Store) ListRecords(ctx context.Context, filter RecordFilter) ([]RecordSummary, error) {
	query := `SELECT paper_id, source_type, created_at, first_created_at,
		original_url, provider, model, abstract_only, top_tags, tags
		FROM records`
	var args []any
	if filter.SourceType != "" {
		query += ` WHERE source_type = ?`
		args = append(args, string(filter.SourceType))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var out []RecordSummary
	for rows.Next() {
		var r RecordSummary
		var createdAt, firstCreatedAt, topJSON, tagsJSON string
		var sourceType string
		if err := rows.Scan(&r.PaperID, &sourceType, &createdAt, &firstCreatedAt,
			&r.OriginalURL, &r.Provider, &r.Model, &r.AbstractOnly,
			&topJSON, &tagsJSON); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		r.SourceType = types.SourceType(sourceType)
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		r.FirstCreatedAt, _ = time.Parse(time.RFC3339Nano, firstCreatedAt)
		json.Unmarshal([]byte(topJSON), &r.Tags.Top)
		json.Unmarshal([]byte(tagsJSON), &r.Tags.Tags)

		if filter.Tag != "" && !hasTag(r.Tags, filter.Tag) {
			continue
		}
		out = append(out, r)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, rows.Err()
}

func hasTag(tags types.Tags, tag string) bool {
	for _, t := range tags.Top {
		if t == tag {
			return true
		}
	}
	for _, t := range tags.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ExportYAML writes a YAML digest of all indexed records to
// DataDir/export.yaml, for inspection and external tooling. Typically run
// after a batch.
func (s *Store) ExportYAML(ctx context.Context) error {
	recs, err := s.ListRecords(ctx, RecordFilter{})
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(struct {
		Records []RecordSummary `yaml:"records"`
	}{Records: recs})
	if err != nil {
		return fmt.Errorf("encoding export: %w", err)
	}
	return writeFileAtomic(filepath.Join(s.dataDir, "export.yaml"), data)
}

// Reindex rebuilds the SQLite index from the summary files on disk. Used
// when the index is lost or the schema changes; the JSON files win.
func (s *Store) Reindex(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(filepath.Join(s.dataDir, summariesDir))
	if err != nil {
		return 0, fmt.Errorf("reading summaries directory: %w", err)
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		select {
		case <-ctx.Done():
			return count, ctx.Err()
		default:
		}
		paperID := entry.Name()[:len(entry.Name())-len(".json")]
		rec, err := s.LoadSummary(paperID)
		if err != nil {
			continue
		}
		if err := s.indexRecord(ctx, rec); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// writeFileAtomic writes data to a temp file in the destination directory
// and renames it into place, so readers never observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}
