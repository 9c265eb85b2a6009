// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package faults defines the error taxonomy shared by the compliance core.
//
// # Description
//
// Every fault carries a stable error code so operators can correlate an
// HTTP response, a CLI exit and a log line. Faults wrap their cause and
// match both the package sentinels (errors.Is) and their concrete type
// (errors.As).
//
//	ConfigurationFault       CSV-001  matrix cell or enum mapping missing
//	InvalidSubjectFault      CSV-011  verification subject missing fields
//	MalformedReasoningFault  CSV-012  reasoning chain missing sub-fields
//	LedgerWriteFault         CSV-013  audit ledger I/O failure
//	InvalidEventFault        CSV-014  audit event fields unusable
//
// A rejected verification verdict is a normal result and never a fault.
package faults

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes.
const (
	CodeConfiguration      = "CSV-001"
	CodeInvalidSubject     = "CSV-011"
	CodeMalformedReasoning = "CSV-012"
	CodeLedgerWrite        = "CSV-013"
	CodeInvalidEvent       = "CSV-014"
)

// Sentinels for errors.Is matching.
var (
	ErrConfiguration      = errors.New("configuration fault")
	ErrInvalidSubject     = errors.New("invalid verification subject")
	ErrMalformedReasoning = errors.New("malformed reasoning chain")
	ErrLedgerWrite        = errors.New("ledger write failed")
	ErrInvalidEvent       = errors.New("invalid audit event")
)

// Coded is implemented by every fault in this package.
type Coded interface {
	error
	Code() string
}

// =============================================================================
// ConfigurationFault
// =============================================================================

// ConfigurationFault reports a code/table mismatch: a lookup was made with a
// combination the policy table does not define. It is fatal and never retried.
type ConfigurationFault struct {
	Table string
	Key   string
	Cause error
}

func (e *ConfigurationFault) Error() string {
	msg := fmt.Sprintf("[%s] configuration fault: table %q has no entry for %s", CodeConfiguration, e.Table, e.Key)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ConfigurationFault) Code() string { return CodeConfiguration }

func (e *ConfigurationFault) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrConfiguration, e.Cause}
	}
	return []error{ErrConfiguration}
}

// NewConfigurationFault builds a ConfigurationFault for table and key.
func NewConfigurationFault(table, key string) *ConfigurationFault {
	return &ConfigurationFault{Table: table, Key: key}
}

// =============================================================================
// InvalidSubjectFault
// =============================================================================

// InvalidSubjectFault lists the required fields a verification subject lacks.
type InvalidSubjectFault struct {
	SubjectID     string
	MissingFields []string
}

func (e *InvalidSubjectFault) Error() string {
	return fmt.Sprintf("[%s] subject %q is missing required fields: %s",
		CodeInvalidSubject, e.SubjectID, strings.Join(e.MissingFields, ", "))
}

func (e *InvalidSubjectFault) Code() string { return CodeInvalidSubject }

func (e *InvalidSubjectFault) Unwrap() error { return ErrInvalidSubject }

// =============================================================================
// MalformedReasoningFault
// =============================================================================

// MalformedReasoningFault is returned before any ledger bytes are written
// when a supplied reasoning chain lacks inputs, steps or outputs.
type MalformedReasoningFault struct {
	MissingFields []string
}

func (e *MalformedReasoningFault) Error() string {
	return fmt.Sprintf("[%s] reasoning chain missing required keys: %s",
		CodeMalformedReasoning, strings.Join(e.MissingFields, ", "))
}

func (e *MalformedReasoningFault) Code() string { return CodeMalformedReasoning }

func (e *MalformedReasoningFault) Unwrap() error { return ErrMalformedReasoning }

// =============================================================================
// LedgerWriteFault
// =============================================================================

// LedgerWriteFault wraps an I/O failure during an append. The triggering
// business operation must be treated as failed.
//
// ReasoningHash is set when the row was already written before the failure
// (a logic archive that could not be stored), so the caller can find it.
type LedgerWriteFault struct {
	Path          string
	Op            string
	Cause         error
	ReasoningHash string
}

func (e *LedgerWriteFault) Error() string {
	return fmt.Sprintf("[%s] ledger %s failed for %s: %v", CodeLedgerWrite, e.Op, e.Path, e.Cause)
}

func (e *LedgerWriteFault) Code() string { return CodeLedgerWrite }

func (e *LedgerWriteFault) Unwrap() []error {
	return []error{ErrLedgerWrite, e.Cause}
}

// =============================================================================
// InvalidEventFault
// =============================================================================

// InvalidEventFault is returned before any ledger bytes are written when an
// event lacks an agent name or its action is not an upper-case code such
// as URS_VERIFIED.
type InvalidEventFault struct {
	Action string
	Fields []string
}

func (e *InvalidEventFault) Error() string {
	return fmt.Sprintf("[%s] audit event %q has invalid fields: %s",
		CodeInvalidEvent, e.Action, strings.Join(e.Fields, ", "))
}

func (e *InvalidEventFault) Code() string { return CodeInvalidEvent }

func (e *InvalidEventFault) Unwrap() error { return ErrInvalidEvent }

// CodeOf returns the fault code carried by err, or "" when err is not a fault.
func CodeOf(err error) string {
	var coded Coded
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return ""
}

var (
	_ Coded = (*ConfigurationFault)(nil)
	_ Coded = (*InvalidSubjectFault)(nil)
	_ Coded = (*MalformedReasoningFault)(nil)
	_ Coded = (*LedgerWriteFault)(nil)
	_ Coded = (*InvalidEventFault)(nil)
)
