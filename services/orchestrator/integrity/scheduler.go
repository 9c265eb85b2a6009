// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package integrity runs periodic full-ledger integrity sweeps.
//
// The fsnotify watcher in the ledger package reacts to file events. A sweep
// is the scheduled complement: it re-verifies every ledger row and every
// logic archive on a fixed interval, so tampering that happened while the
// service was down is reported after restart.
package integrity

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianCSV/services/compliance/ledger"
)

// Alert kinds reported by a sweep.
const (
	AlertLedgerInvalid  = "sweep_ledger_invalid"
	AlertArchiveInvalid = "sweep_archive_invalid"
)

// =============================================================================
// Interfaces
// =============================================================================

// Location identifies the ledger file and its archive directory.
type Location interface {
	Path() string
	ArchiveDir() string
}

// AlertObserver receives one call per alert raised by a sweep.
type AlertObserver interface {
	ObserveAlert(kind string)
}

// =============================================================================
// Sweep Result
// =============================================================================

// SweepResult summarises one sweep.
//
// # Fields
//
//   - Ledger: Row-level verification report.
//   - ArchivesChecked: Logic archives read.
//   - ArchivesInvalid: File names of archives whose hash did not verify or
//     that could not be parsed.
type SweepResult struct {
	StartTime       time.Time
	EndTime         time.Time
	Ledger          ledger.Report
	ArchivesChecked int
	ArchivesInvalid []string
}

// Clean reports whether the ledger and every archive verified.
func (r SweepResult) Clean() bool {
	return r.Ledger.Valid() && len(r.ArchivesInvalid) == 0
}

// DurationMs returns the sweep duration in milliseconds.
func (r SweepResult) DurationMs() int64 {
	return r.EndTime.Sub(r.StartTime).Milliseconds()
}

// =============================================================================
// Scheduler
// =============================================================================

// SchedulerConfig controls the sweep interval.
type SchedulerConfig struct {
	Interval time.Duration
}

// DefaultSchedulerConfig sweeps every 15 minutes.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{Interval: 15 * time.Minute}
}

// Scheduler runs Sweep on a ticker.
//
// # Description
//
// Start launches one goroutine that sweeps immediately and then once per
// Interval until Stop is called or the context passed to Start is
// cancelled. A failed sweep is logged and the loop continues.
//
// # Thread Safety
//
// All methods are safe for concurrent use. RunNow may run concurrently with
// a scheduled sweep; both only read the ledger.
type Scheduler struct {
	loc      Location
	observer AlertObserver
	logger   *slog.Logger
	config   SchedulerConfig

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a stopped scheduler.
//
// # Inputs
//
//   - loc: Ledger location. Required.
//   - observer: Alert sink, typically metrics. May be nil.
//   - logger: May be nil.
//   - config: Interval <= 0 uses the default.
func NewScheduler(loc Location, observer AlertObserver, logger *slog.Logger, config SchedulerConfig) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Interval <= 0 {
		config = DefaultSchedulerConfig()
	}
	return &Scheduler{
		loc:      loc,
		observer: observer,
		logger:   logger,
		config:   config,
	}
}

// Start begins sweeping in the background.
//
// # Outputs
//
//   - error: Non-nil when the scheduler is already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("integrity scheduler is already running")
	}
	s.running = true
	s.done = make(chan struct{})

	s.logger.Info("integrity.scheduler.started",
		"interval", s.config.Interval.String(), "ledger.path", s.loc.Path())

	s.wg.Add(1)
	go s.runLoop(ctx, s.done)
	return nil
}

// Stop signals the loop to exit and waits for an in-progress sweep.
// Safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.done)
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("integrity.scheduler.stopped")
}

// RunNow performs one sweep synchronously and reports its alerts.
func (s *Scheduler) RunNow(ctx context.Context) (SweepResult, error) {
	result, err := Sweep(ctx, s.loc)
	if err != nil {
		return result, err
	}
	s.report(result)
	return result, nil
}

func (s *Scheduler) runLoop(ctx context.Context, done <-chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.execute(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			s.execute(ctx)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context) {
	if _, err := s.RunNow(ctx); err != nil {
		s.logger.Error("integrity.sweep.failed", "ledger.path", s.loc.Path(), "error", err)
	}
}

func (s *Scheduler) report(r SweepResult) {
	if r.Clean() {
		s.logger.Debug("integrity.sweep.completed",
			"records", r.Ledger.Records,
			"archives", r.ArchivesChecked,
			"duration_ms", r.DurationMs(),
		)
		return
	}

	s.logger.Error("integrity.sweep.tamper_detected",
		"ledger.path", r.Ledger.Path,
		"header_valid", r.Ledger.HeaderValid,
		"tampered", len(r.Ledger.Tampered),
		"malformed", len(r.Ledger.Malformed),
		"archives_invalid", len(r.ArchivesInvalid),
	)
	if s.observer == nil {
		return
	}
	if !r.Ledger.Valid() {
		s.observer.ObserveAlert(AlertLedgerInvalid)
	}
	for range r.ArchivesInvalid {
		s.observer.ObserveAlert(AlertArchiveInvalid)
	}
}

// =============================================================================
// Sweep
// =============================================================================

// Sweep verifies the ledger at loc and every logic archive beside it.
//
// # Description
//
// A missing archive directory counts as zero archives. An archive that
// cannot be parsed is reported invalid rather than failing the sweep.
//
// # Outputs
//
//   - SweepResult: Findings.
//   - error: Non-nil when the ledger or the archive directory cannot be
//     read, or ctx is cancelled.
func Sweep(ctx context.Context, loc Location) (SweepResult, error) {
	result := SweepResult{StartTime: time.Now()}

	report, err := ledger.VerifyLedger(loc.Path())
	if err != nil {
		return result, fmt.Errorf("verify ledger: %w", err)
	}
	result.Ledger = report

	entries, err := os.ReadDir(loc.ArchiveDir())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return result, fmt.Errorf("read archive dir: %w", err)
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		result.ArchivesChecked++
		ar, err := ledger.VerifyArchive(filepath.Join(loc.ArchiveDir(), name))
		if err != nil || !ar.Valid {
			result.ArchivesInvalid = append(result.ArchivesInvalid, name)
		}
	}

	result.EndTime = time.Now()
	return result, nil
}
