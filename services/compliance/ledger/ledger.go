// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ledger implements the append-only, tamper-evident audit ledger.
//
// # Description
//
// Every compliance decision is recorded as one CSV row whose reasoning hash
// is the SHA-256 of its other fields. When a reasoning chain accompanies the
// event, a hidden JSON logic archive is written next to the ledger and
// cross-referenced by that hash.
//
// The ledger file is only ever opened with O_APPEND. No code path in this
// package seeks, truncates or deletes ledger bytes.
//
// # Thread Safety
//
// Appends are serialized by an in-process mutex and, on unix, an exclusive
// flock held for the whole append so separate processes sharing one file
// do not interleave rows.
package ledger

import (
	"bytes"
	"encoding/csv"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/AleutianCSV/services/compliance/faults"
)

// Observer receives the outcome of every append. Implementations must be
// safe for concurrent use and must not block.
type Observer interface {
	ObserveAppend(action, impact string, elapsed time.Duration, err error)
}

// AuditLedger appends records to a single CSV ledger file.
//
// # Fields
//
//   - path: ledger file path.
//   - archiveDir: directory for logic archives.
//   - mu: serializes appends within this process.
//   - size: ledger size after the last append by this instance.
type AuditLedger struct {
	path       string
	archiveDir string
	clock      Clock
	logger     *slog.Logger
	observer   Observer

	mu   sync.Mutex
	size atomic.Int64
}

// Option configures an AuditLedger.
type Option func(*AuditLedger)

// WithArchiveDir sets the logic archive directory. The default is
// "logic_archives" next to the ledger file.
func WithArchiveDir(dir string) Option {
	return func(l *AuditLedger) { l.archiveDir = dir }
}

// WithClock replaces the sanity-checked system clock.
func WithClock(c Clock) Option {
	return func(l *AuditLedger) { l.clock = c }
}

// WithLogger sets the structured logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *AuditLedger) { l.logger = logger }
}

// WithObserver registers an append observer, typically metrics.
func WithObserver(o Observer) Option {
	return func(l *AuditLedger) { l.observer = o }
}

// New creates a ledger writing to path.
//
// # Description
//
// The parent directory is created when missing. The file itself is created
// lazily by the first append, which also writes the header.
//
// # Inputs
//
//   - path: ledger file path, e.g. "output/audit_trail.csv".
//   - opts: optional overrides.
//
// # Outputs
//
//   - *AuditLedger: ready for Append.
//   - error: *faults.LedgerWriteFault when the directory cannot be created.
//
// # Examples
//
//	l, err := ledger.New("output/audit_trail.csv")
//	if err != nil {
//	    return err
//	}
//	hash, err := l.Append(ledger.Event{AgentName: "RiskStrategist", Action: ledger.ActionRiskAssessmentCompleted})
func New(path string, opts ...Option) (*AuditLedger, error) {
	l := &AuditLedger{
		path:       path,
		archiveDir: filepath.Join(filepath.Dir(path), "logic_archives"),
		clock:      NewSystemClock(DefaultClockConfig()),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}

	if err := os.MkdirAll(filepath.Dir(path), ledgerDirMode); err != nil {
		return nil, &faults.LedgerWriteFault{Path: path, Op: "mkdir", Cause: err}
	}
	if info, err := os.Stat(path); err == nil {
		l.size.Store(info.Size())
	}
	return l, nil
}

// Path returns the ledger file path.
func (l *AuditLedger) Path() string { return l.path }

// ArchiveDir returns the logic archive directory.
func (l *AuditLedger) ArchiveDir() string { return l.archiveDir }

// Size returns the ledger size in bytes after this instance's last append.
func (l *AuditLedger) Size() int64 { return l.size.Load() }

// Append records one event and returns its reasoning hash.
//
// # Description
//
// Steps, all under the append lock:
//
//  1. Validate the event and its reasoning chain, if any. An invalid
//     event or malformed chain is rejected before any bytes are written.
//  2. Read the clock and resolve actor and compliance impact.
//  3. Compute the reasoning hash.
//  4. Open the ledger for appending, writing the header first when empty.
//  5. Append the row in a single write and sync.
//  6. Write the logic archive when a chain was supplied.
//
// # Outputs
//
//   - string: the reasoning hash of the appended row. Also returned with
//     the error when step 6 fails, since the row is already written.
//   - error: *faults.InvalidEventFault, *faults.MalformedReasoningFault or
//     *faults.LedgerWriteFault. On error the triggering operation must be
//     treated as failed.
//
// # Limitations
//
//   - A failure in step 6 leaves the row appended without its archive.
//     A COMPLIANCE_EXCEPTION row naming the missing archive follows it, and
//     the returned fault carries the orphaned row's hash.
func (l *AuditLedger) Append(ev Event) (hash string, err error) {
	start := time.Now()
	impact := ev.ComplianceImpact
	if impact == "" {
		impact = ImpactFor(ev.Action)
	}
	defer func() {
		if l.observer != nil {
			l.observer.ObserveAppend(ev.Action, impact, time.Since(start), err)
		}
	}()

	if err := ev.Validate(); err != nil {
		return "", err
	}
	if ev.Reasoning != nil {
		if err := ev.Reasoning.Validate(); err != nil {
			return "", err
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now, err := l.clock.Now()
	if err != nil {
		return "", &faults.LedgerWriteFault{Path: l.path, Op: "clock", Cause: err}
	}

	actor := ev.ActorID
	if actor == "" {
		actor = SystemActor
	}
	rec := Record{
		Timestamp:        now.UTC().Format(TimestampLayout),
		ActorID:          actor,
		AgentName:        ev.AgentName,
		Action:           ev.Action,
		DecisionLogic:    ev.DecisionLogic,
		ComplianceImpact: impact,
	}
	rec.ReasoningHash = rec.ComputeHash()

	if err := l.appendRow(rec); err != nil {
		l.logger.Error("ledger.append.failed",
			"ledger.path", l.path,
			"ledger.action", rec.Action,
			"error", err,
		)
		return "", err
	}

	archivePath := ""
	if ev.Reasoning != nil {
		archivePath, err = writeArchive(l.archiveDir, rec, ev.Reasoning)
		if err != nil {
			l.logger.Error("ledger.archive.failed",
				"ledger.archive_dir", l.archiveDir,
				"ledger.reasoning_hash", rec.ReasoningHash,
				"error", err,
			)
			l.recordMissingArchive(rec, err)
			return rec.ReasoningHash, &faults.LedgerWriteFault{
				Path:          l.archiveDir,
				Op:            "archive",
				Cause:         err,
				ReasoningHash: rec.ReasoningHash,
			}
		}
	}

	l.logger.Info("ledger.record.appended",
		"ledger.action", rec.Action,
		"ledger.agent", rec.AgentName,
		"ledger.actor", rec.ActorID,
		"ledger.impact", rec.ComplianceImpact,
		"ledger.reasoning_hash", rec.ReasoningHash[:16]+"...",
		"ledger.archive", archivePath,
	)
	return rec.ReasoningHash, nil
}

// recordMissingArchive appends a COMPLIANCE_EXCEPTION row for a row whose
// logic archive could not be written. Failures are logged only; the caller
// already reports the archive fault. Caller holds l.mu.
func (l *AuditLedger) recordMissingArchive(orphan Record, cause error) {
	now, err := l.clock.Now()
	if err != nil {
		l.logger.Error("ledger.archive.exception_failed", "ledger.reasoning_hash", orphan.ReasoningHash, "error", err)
		return
	}
	rec := Record{
		Timestamp:        now.UTC().Format(TimestampLayout),
		ActorID:          SystemActor,
		AgentName:        LedgerAgent,
		Action:           ActionComplianceException,
		DecisionLogic:    missingArchiveLogic(orphan, cause),
		ComplianceImpact: ImpactFor(ActionComplianceException),
	}
	rec.ReasoningHash = rec.ComputeHash()
	if err := l.appendRow(rec); err != nil {
		l.logger.Error("ledger.archive.exception_failed", "ledger.reasoning_hash", orphan.ReasoningHash, "error", err)
	}
}

// appendRow writes rec, preceded by the header when the file is empty.
// Caller holds l.mu.
func (l *AuditLedger) appendRow(rec Record) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, ledgerFileMode)
	if err != nil {
		return &faults.LedgerWriteFault{Path: l.path, Op: "open", Cause: err}
	}
	defer f.Close()

	unlock, err := lockFile(f)
	if err != nil {
		return &faults.LedgerWriteFault{Path: l.path, Op: "lock", Cause: err}
	}
	defer unlock()

	// Stat under the file lock so only one process writes the header.
	info, err := f.Stat()
	if err != nil {
		return &faults.LedgerWriteFault{Path: l.path, Op: "stat", Cause: err}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if info.Size() == 0 {
		if err := w.Write(Columns); err != nil {
			return &faults.LedgerWriteFault{Path: l.path, Op: "encode", Cause: err}
		}
	}
	if err := w.Write(rec.row()); err != nil {
		return &faults.LedgerWriteFault{Path: l.path, Op: "encode", Cause: err}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return &faults.LedgerWriteFault{Path: l.path, Op: "encode", Cause: err}
	}

	n, err := f.Write(buf.Bytes())
	if err != nil {
		return &faults.LedgerWriteFault{Path: l.path, Op: "append", Cause: err}
	}
	if err := f.Sync(); err != nil {
		return &faults.LedgerWriteFault{Path: l.path, Op: "sync", Cause: err}
	}

	l.size.Store(info.Size() + int64(n))
	return nil
}
