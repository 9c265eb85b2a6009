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
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
)

// =============================================================================
// Ledger Verification
// =============================================================================

// Tamper describes one row whose stored hash no longer matches its fields.
type Tamper struct {
	Line         int    `json:"line"`
	Timestamp    string `json:"timestamp"`
	Action       string `json:"action"`
	StoredHash   string `json:"stored_hash"`
	ComputedHash string `json:"computed_hash"`
}

// Report is the result of VerifyLedger.
type Report struct {
	Path        string   `json:"path"`
	Records     int      `json:"records"`
	HeaderValid bool     `json:"header_valid"`
	Tampered    []Tamper `json:"tampered,omitempty"`
	Malformed   []int    `json:"malformed_lines,omitempty"`
}

// Valid reports whether the header matched and every row verified.
func (r Report) Valid() bool {
	return r.HeaderValid && len(r.Tampered) == 0 && len(r.Malformed) == 0
}

// VerifyLedger re-reads the ledger at path and recomputes every reasoning
// hash.
//
// # Description
//
// Line numbers are 1-based and count the header as line 1. Rows with the
// wrong number of columns are reported as malformed. An empty or missing
// file is reported valid with zero records.
//
// # Outputs
//
//   - Report: per-row findings.
//   - error: non-nil only when the file cannot be read.
//
// # Limitations
//
//   - Detects edits to individual rows. Removal of whole trailing rows is
//     only detected by the ledger watcher, which tracks file size.
func VerifyLedger(path string) (Report, error) {
	report := Report{Path: path, HeaderValid: true}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return report, nil
	}
	if err != nil {
		return report, fmt.Errorf("open ledger %s: %w", path, err)
	}
	defer f.Close()

	err = scanRows(f, func(line int, row []string) {
		if line == 1 {
			report.HeaderValid = slices.Equal(row, Columns)
			return
		}
		if len(row) != len(Columns) {
			report.Malformed = append(report.Malformed, line)
			return
		}
		report.Records++
		rec := recordFromRow(row)
		if computed := rec.ComputeHash(); computed != rec.ReasoningHash {
			report.Tampered = append(report.Tampered, Tamper{
				Line:         line,
				Timestamp:    rec.Timestamp,
				Action:       rec.Action,
				StoredHash:   rec.ReasoningHash,
				ComputedHash: computed,
			})
		}
	})
	if err != nil {
		return report, fmt.Errorf("read ledger %s: %w", path, err)
	}
	return report, nil
}

// Filter selects ledger records. Empty fields match everything.
type Filter struct {
	Action string
	Actor  string
	Agent  string
	Impact string
	// Limit keeps only the most recent N matches when positive.
	Limit int
}

func (f Filter) match(r Record) bool {
	return (f.Action == "" || f.Action == r.Action) &&
		(f.Actor == "" || f.Actor == r.ActorID) &&
		(f.Agent == "" || f.Agent == r.AgentName) &&
		(f.Impact == "" || f.Impact == r.ComplianceImpact)
}

// Records returns the ledger rows matching filter in file order. Malformed
// rows are skipped; use VerifyLedger to find them.
func Records(path string, filter Filter) ([]Record, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	defer f.Close()

	var out []Record
	err = scanRows(f, func(line int, row []string) {
		if line == 1 || len(row) != len(Columns) {
			return
		}
		if rec := recordFromRow(row); filter.match(rec) {
			out = append(out, rec)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", path, err)
	}

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out, nil
}

// scanRows calls fn for every CSV row with its starting line number. A
// row that fails to parse is passed as nil so callers can report it.
func scanRows(r io.Reader, fn func(line int, row []string)) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			fn(parseErr.StartLine, nil)
			continue
		}
		if err != nil {
			return err
		}
		line, _ := cr.FieldPos(0)
		fn(line, row)
	}
}
