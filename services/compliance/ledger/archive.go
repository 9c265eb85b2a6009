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
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/AleutianCSV/services/compliance/faults"
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Logic Archives
// =============================================================================

const (
	// ArchiveSchemaVersion is written as "$schema_version".
	ArchiveSchemaVersion = "1.0.0"

	// ArchiveType is written as "archive_type".
	ArchiveType = "logic_archive"

	// ArchiveHashAlgorithm names the integrity digest.
	ArchiveHashAlgorithm = "sha256"

	archiveHashPrefixLen = 8
	integrityKey         = "integrity"
)

var chainValidator = validator.New()

// Validate checks that inputs, steps and outputs are all present.
//
// # Outputs
//
//   - error: *faults.MalformedReasoningFault naming the missing parts.
func (c *ReasoningChain) Validate() error {
	if c == nil {
		return &faults.MalformedReasoningFault{MissingFields: []string{"inputs", "steps", "outputs"}}
	}
	err := chainValidator.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &faults.MalformedReasoningFault{MissingFields: []string{err.Error()}}
	}
	missing := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		missing = append(missing, strings.ToLower(fe.Field()))
	}
	return &faults.MalformedReasoningFault{MissingFields: missing}
}

// ArchiveFileName returns ".{ACTION}_{compact timestamp}_{hash[:8]}.json".
func ArchiveFileName(action, timestamp, reasoningHash string) string {
	compact := strings.NewReplacer(":", "", "-", "").Replace(timestamp)
	prefix := reasoningHash
	if len(prefix) > archiveHashPrefixLen {
		prefix = prefix[:archiveHashPrefixLen]
	}
	return fmt.Sprintf(".%s_%s_%s.json", action, compact, prefix)
}

// missingArchiveLogic is the decision logic of the exception row written
// when the archive for orphan could not be stored.
func missingArchiveLogic(orphan Record, cause error) string {
	return fmt.Sprintf("MISSING ARCHIVE %s: %s row at %s has no logic archive: %v",
		ArchiveFileName(orphan.Action, orphan.Timestamp, orphan.ReasoningHash),
		orphan.Action, orphan.Timestamp, cause)
}

// archiveBody builds the archive content without its integrity block.
func archiveBody(rec Record, chain *ReasoningChain) map[string]any {
	return map[string]any{
		"$schema_version":        ArchiveSchemaVersion,
		"archive_type":           ArchiveType,
		"audit_trail_hash":       rec.ReasoningHash,
		"timestamp":              rec.Timestamp,
		"agent_name":             rec.AgentName,
		"action":                 rec.Action,
		"user_id":                rec.ActorID,
		"compliance_impact":      rec.ComplianceImpact,
		"decision_logic_summary": rec.DecisionLogic,
		"inputs":                 chain.Inputs,
		"steps":                  chain.Steps,
		"outputs":                chain.Outputs,
	}
}

// canonicalHash hashes the compact JSON encoding of body. encoding/json
// sorts map keys, so the digest is independent of construction order.
func canonicalHash(body map[string]any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(body); err != nil {
		return "", err
	}
	sum := sha256.Sum256(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
	return hex.EncodeToString(sum[:]), nil
}

// writeArchive writes the logic archive for rec into dir and returns its
// path. Existing files are never overwritten.
func writeArchive(dir string, rec Record, chain *ReasoningChain) (string, error) {
	if err := os.MkdirAll(dir, ledgerDirMode); err != nil {
		return "", err
	}

	body := archiveBody(rec, chain)
	hash, err := canonicalHash(body)
	if err != nil {
		return "", fmt.Errorf("hash archive: %w", err)
	}
	body[integrityKey] = map[string]any{
		"archive_hash": hash,
		"algorithm":    ArchiveHashAlgorithm,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(body); err != nil {
		return "", fmt.Errorf("encode archive: %w", err)
	}

	path := filepath.Join(dir, ArchiveFileName(rec.Action, rec.Timestamp, rec.ReasoningHash))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, ledgerFileMode)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

// ArchiveReport is the result of VerifyArchive.
type ArchiveReport struct {
	Path           string `json:"path"`
	AuditTrailHash string `json:"audit_trail_hash"`
	StoredHash     string `json:"stored_hash"`
	ComputedHash   string `json:"computed_hash"`
	Valid          bool   `json:"valid"`
}

// VerifyArchive recomputes the archive hash of the file at path and
// compares it with the stored integrity block.
//
// # Outputs
//
//   - ArchiveReport: Valid is false when the content was altered.
//   - error: non-nil when the file cannot be read or is not an archive.
func VerifyArchive(path string) (ArchiveReport, error) {
	report := ArchiveReport{Path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		return report, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return report, fmt.Errorf("decode archive %s: %w", path, err)
	}

	integrity, ok := body[integrityKey].(map[string]any)
	if !ok {
		return report, fmt.Errorf("archive %s has no integrity block", path)
	}
	delete(body, integrityKey)

	report.StoredHash, _ = integrity["archive_hash"].(string)
	report.AuditTrailHash, _ = body["audit_trail_hash"].(string)

	report.ComputedHash, err = canonicalHash(body)
	if err != nil {
		return report, fmt.Errorf("hash archive %s: %w", path, err)
	}
	report.Valid = report.StoredHash != "" && report.StoredHash == report.ComputedHash
	return report, nil
}

// FindArchive locates the archive for a reasoning hash in dir by the
// hash prefix embedded in its file name.
//
// # Outputs
//
//   - string: the archive path.
//   - error: os.ErrNotExist when no archive matches.
func FindArchive(dir, reasoningHash string) (string, error) {
	if len(reasoningHash) < archiveHashPrefixLen {
		return "", fmt.Errorf("reasoning hash %q is shorter than %d characters", reasoningHash, archiveHashPrefixLen)
	}
	suffix := "_" + reasoningHash[:archiveHashPrefixLen] + ".json"

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, ".") || !strings.HasSuffix(name, suffix) {
			continue
		}
		path := filepath.Join(dir, name)
		if len(reasoningHash) == sha256.Size*2 {
			// Prefixes can collide; confirm against the full hash.
			report, err := VerifyArchive(path)
			if err != nil || report.AuditTrailHash != reasoningHash {
				continue
			}
		}
		return path, nil
	}
	return "", fmt.Errorf("archive for %s in %s: %w", reasoningHash[:archiveHashPrefixLen], dir, os.ErrNotExist)
}
