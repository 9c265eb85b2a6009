// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ledger

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// Ledger Watcher
// =============================================================================

// AlertKind classifies a watcher alert.
type AlertKind string

const (
	AlertTampered  AlertKind = "tampered"
	AlertTruncated AlertKind = "truncated"
	AlertRemoved   AlertKind = "removed"
)

// Alert is raised when the ledger on disk fails re-verification.
type Alert struct {
	Kind     AlertKind
	Path     string
	Size     int64
	LastSize int64
	Report   Report
}

// Watcher re-verifies the ledger whenever the file changes.
//
// # Description
//
// The parent directory is watched so the watcher survives the ledger being
// created after startup and notices removal or replacement. On every write
// the full ledger is re-verified; a shrinking file is reported as
// truncation even when the remaining rows still verify.
//
// # Thread Safety
//
// Run must be called once. Close may be called from any goroutine.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	onAlert func(Alert)

	mu       sync.Mutex
	lastSize int64
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithAlertHandler registers a callback invoked for every alert.
func WithAlertHandler(fn func(Alert)) WatcherOption {
	return func(w *Watcher) { w.onAlert = fn }
}

// WithWatcherLogger sets the watcher's logger.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = logger }
}

// NewWatcher creates a watcher for the ledger at path.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{path: abs, watcher: fw, logger: slog.Default()}
	for _, opt := range opts {
		opt(w)
	}
	if info, err := os.Stat(abs); err == nil {
		w.lastSize = info.Size()
	}
	return w, nil
}

// Run processes file events until ctx is cancelled or the watcher closes.
func (w *Watcher) Run(ctx context.Context) {
	w.logger.Debug("ledger.watch.started", "ledger.path", w.path)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("ledger.watch.error", "error", err)

		case <-ctx.Done():
			w.logger.Debug("ledger.watch.stopped", "ledger.path", w.path)
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.mu.Lock()
		last := w.lastSize
		w.lastSize = 0
		w.mu.Unlock()
		w.raise(Alert{Kind: AlertRemoved, Path: w.path, LastSize: last})
	case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
		w.Check()
	}
}

// Check verifies the ledger now and raises an alert when it fails. It
// returns the alert raised, if any.
func (w *Watcher) Check() *Alert {
	info, err := os.Stat(w.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		w.logger.Warn("ledger.watch.stat_failed", "ledger.path", w.path, "error", err)
		return nil
	}

	w.mu.Lock()
	last := w.lastSize
	w.lastSize = info.Size()
	w.mu.Unlock()

	if info.Size() < last {
		alert := Alert{Kind: AlertTruncated, Path: w.path, Size: info.Size(), LastSize: last}
		w.raise(alert)
		return &alert
	}

	report, err := VerifyLedger(w.path)
	if err != nil {
		w.logger.Warn("ledger.watch.verify_failed", "ledger.path", w.path, "error", err)
		return nil
	}
	if !report.Valid() {
		alert := Alert{Kind: AlertTampered, Path: w.path, Size: info.Size(), LastSize: last, Report: report}
		w.raise(alert)
		return &alert
	}
	return nil
}

func (w *Watcher) raise(a Alert) {
	w.logger.Error("ledger.watch.tamper_detected",
		"ledger.path", a.Path,
		"ledger.alert", string(a.Kind),
		"ledger.size", a.Size,
		"ledger.last_size", a.LastSize,
		"ledger.tampered_rows", len(a.Report.Tampered),
		"ledger.malformed_rows", len(a.Report.Malformed),
	)
	if w.onAlert != nil {
		w.onAlert(a)
	}
}

// Close stops the underlying file watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
