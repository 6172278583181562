// Package store persists the profile document as a whole: load the entire
// document, save the entire document. Three interchangeable backends exist
// (local file, GitHub Gist, GitHub repository file); a Ranked store tries
// them in order and degrades to a local backup file rather than losing
// in-memory edits.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nroy/coachd/internal/profile"
)

// Backend is one storage mechanism for the profile document.
type Backend interface {
	Name() string
	Load(ctx context.Context) (profile.Document, error)
	Save(ctx context.Context, doc profile.Document) error
}

// Ranked tries backends in priority order. Load failures degrade to the next
// backend, then to the backup file, then to an empty document, never an
// error, because the caller can always start fresh. Save failures degrade to
// the backup file and surface as profile.DegradedSaveError.
//
// Concurrent sessions still race on last-write-wins: the document is written
// wholesale, so two writers can silently drop each other's edits. Accepted
// for a single-operator tool.
type Ranked struct {
	backends   []Backend
	backupPath string
	logger     *slog.Logger
}

// NewRanked creates a ranked store. backupPath is the local file used when
// every backend rejects a save.
func NewRanked(backupPath string, backends ...Backend) *Ranked {
	return &Ranked{
		backends:   backends,
		backupPath: backupPath,
		logger:     slog.Default(),
	}
}

// Load returns the first document any backend can produce. When every
// backend fails, the backup file is consulted; when that also fails, an
// empty document is returned so the session can proceed.
func (r *Ranked) Load(ctx context.Context) (profile.Document, error) {
	for _, b := range r.backends {
		doc, err := b.Load(ctx)
		if err != nil {
			r.logger.Warn("profile load failed, trying next backend", "backend", b.Name(), "error", err)
			continue
		}
		return doc, nil
	}

	if doc, err := readDocument(r.backupPath); err == nil {
		r.logger.Warn("all backends unavailable, loaded local backup", "path", r.backupPath)
		return doc, nil
	}

	r.logger.Warn("no backend available, starting with an empty profile document")
	return profile.Document{}, nil
}

// Save writes the document to the first backend that accepts it. When all
// backends fail, the document is preserved in the backup file and the
// failure is reported as a DegradedSaveError.
func (r *Ranked) Save(ctx context.Context, doc profile.Document) error {
	var errs []error
	for i, b := range r.backends {
		err := b.Save(ctx, doc)
		if err == nil {
			if i > 0 {
				r.logger.Warn("primary backend rejected save, wrote to fallback", "backend", b.Name())
			}
			return nil
		}
		r.logger.Warn("profile save failed, trying next backend", "backend", b.Name(), "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
	}

	cause := errors.Join(errs...)
	if err := writeDocument(r.backupPath, doc); err != nil {
		return fmt.Errorf("all backends failed (%v) and backup write failed: %w", cause, err)
	}
	return &profile.DegradedSaveError{Cause: cause, BackupPath: r.backupPath}
}

func readDocument(path string) (profile.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc profile.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if doc == nil {
		doc = profile.Document{}
	}
	return doc, nil
}

func writeDocument(path string, doc profile.Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling document: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
