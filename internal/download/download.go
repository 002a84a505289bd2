// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package download fetches PDFs with integrity validation, retry, and
// structured byte-level progress reporting.
package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/txltxl22/ai-paper-digest/pkg/types"
)

// ErrIntegrity indicates the download retry budget is exhausted or the
// fetched file is not a valid PDF. Nothing is left at the destination path.
var ErrIntegrity = errors.New("download integrity failure")

// pdfMagic is the signature every valid PDF starts with.
var pdfMagic = []byte("%PDF-")

// backoffBase controls the base duration for exponential backoff between
// retry attempts. Tests override this to avoid real sleeps.
var backoffBase = 2 * time.Second

const (
	defaultMaxRetries       = 3
	defaultMinBytes         = 1024
	defaultProgressInterval = 500 * time.Millisecond
)

// ProgressFunc receives throttled byte-level progress during a download.
// BytesTotal is zero when the server sends no Content-Length.
type ProgressFunc func(types.DownloadProgress)

// Result describes a completed, validated download.
type Result struct {
	// Path is the final destination path the file was renamed to.
	Path string

	// Bytes is the downloaded file size.
	Bytes int64

	// URL is the originating PDF URL.
	URL string
}

// Manager streams PDFs to disk. The final destination path is only ever
// written by an atomic rename of a fully validated temp file, so a partial
// download can never be mistaken for a cache hit.
type Manager struct {
	client *http.Client
	cfg    types.DownloadConfig
}

// NewManager creates a download manager with the given HTTP client and
// configuration. Zero-valued tunables fall back to defaults.
func NewManager(client *http.Client, cfg types.DownloadConfig) *Manager {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = defaultMinBytes
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = defaultProgressInterval
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Manager{client: client, cfg: cfg}
}

// Download fetches pdfURL into destPath, retrying transient failures with
// exponential backoff. On success the temp file is atomically renamed to
// destPath. After exhausting retries the last error is wrapped in
// ErrIntegrity and no file exists at destPath.
func (m *Manager) Download(ctx context.Context, pdfURL, destPath string, progress ProgressFunc) (Result, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return Result{}, fmt.Errorf("creating cache directory: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < m.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			select {
			case <-ctx.Done():
				return Result{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		res, err := m.attempt(ctx, pdfURL, destPath, progress)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		lastErr = err
	}

	return Result{}, fmt.Errorf("after %d attempts: %v: %w", m.cfg.MaxRetries, lastErr, ErrIntegrity)
}

// attempt performs one download try: stream to temp file, validate, rename.
// The temp file is removed on any failure.
func (m *Manager) attempt(ctx context.Context, pdfURL, destPath string, progress ProgressFunc) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("creating request: %w", err)
	}
	if m.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", m.cfg.UserAgent)
	}
	req.Header.Set("Accept", "application/pdf")

	resp, err := m.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return Result{}, fmt.Errorf("HTTP %d from %s", resp.StatusCode, pdfURL)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".download-*.tmp")
	if err != nil {
		return Result{}, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	written, copyErr := m.copyWithProgress(tmpFile, resp.Body, resp.ContentLength, progress)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return Result{}, fmt.Errorf("writing download: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return Result{}, fmt.Errorf("closing temp file: %w", closeErr)
	}

	if resp.ContentLength > 0 && written != resp.ContentLength {
		os.Remove(tmpPath)
		return Result{}, fmt.Errorf("incomplete download: got %d of %d bytes", written, resp.ContentLength)
	}

	if err := m.validate(tmpPath, written); err != nil {
		os.Remove(tmpPath)
		return Result{}, err
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return Result{}, fmt.Errorf("renaming temp file: %w", err)
	}

	// Final progress emission so pollers see 100%.
	if progress != nil {
		progress(types.DownloadProgress{BytesDone: written, BytesTotal: written})
	}

	return Result{Path: destPath, Bytes: written, URL: pdfURL}, nil
}

// copyWithProgress copies body to w, emitting throttled progress callbacks
// (at most one per ProgressInterval, never per chunk).
func (m *Manager) copyWithProgress(w io.Writer, body io.Reader, total int64, progress ProgressFunc) (int64, error) {
	var written int64
	lastEmit := time.Now()
	buf := make([]byte, 32*1024)

	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return written, writeErr
			}
			written += int64(n)

			if progress != nil && time.Since(lastEmit) >= m.cfg.ProgressInterval {
				progress(types.DownloadProgress{BytesDone: written, BytesTotal: total})
				lastEmit = time.Now()
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

// validate checks size and PDF signature bytes of the downloaded temp file.
func (m *Manager) validate(path string, size int64) error {
	if size < m.cfg.MinBytes {
		return fmt.Errorf("file too small to be a PDF (%d bytes)", size)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening downloaded file: %w", err)
	}
	defer f.Close()

	header := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(f, header); err != nil {
		return fmt.Errorf("reading file header: %w", err)
	}
	if !bytes.Equal(header, pdfMagic) {
		return fmt.Errorf("missing PDF signature bytes")
	}
	return nil
}
