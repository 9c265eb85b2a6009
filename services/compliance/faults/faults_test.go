// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package faults

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFaults_MatchSentinelAndCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		code     string
		contains string
	}{
		{
			name:     "configuration",
			err:      NewConfigurationFault("risk_levels", "(GxP Direct, Custom)"),
			sentinel: ErrConfiguration,
			code:     CodeConfiguration,
			contains: `table "risk_levels" has no entry for (GxP Direct, Custom)`,
		},
		{
			name:     "invalid subject",
			err:      &InvalidSubjectFault{SubjectID: "URS-1", MissingFields: []string{"Criticality", "URS_ID"}},
			sentinel: ErrInvalidSubject,
			code:     CodeInvalidSubject,
			contains: "missing required fields: Criticality, URS_ID",
		},
		{
			name:     "malformed reasoning",
			err:      &MalformedReasoningFault{MissingFields: []string{"steps"}},
			sentinel: ErrMalformedReasoning,
			code:     CodeMalformedReasoning,
			contains: "missing required keys: steps",
		},
		{
			name:     "ledger write",
			err:      &LedgerWriteFault{Path: "/tmp/l.csv", Op: "append", Cause: fs.ErrPermission},
			sentinel: ErrLedgerWrite,
			code:     CodeLedgerWrite,
			contains: "ledger append failed for /tmp/l.csv",
		},
		{
			name:     "invalid event",
			err:      &InvalidEventFault{Action: "../x", Fields: []string{"action"}},
			sentinel: ErrInvalidEvent,
			code:     CodeInvalidEvent,
			contains: `audit event "../x" has invalid fields: action`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.sentinel)
			assert.Equal(t, tt.code, CodeOf(tt.err))
			assert.Contains(t, tt.err.Error(), "["+tt.code+"]")
			assert.Contains(t, tt.err.Error(), tt.contains)

			wrapped := fmt.Errorf("handler: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
			assert.Equal(t, tt.code, CodeOf(wrapped))
		})
	}
}

func TestLedgerWriteFault_UnwrapsCause(t *testing.T) {
	err := &LedgerWriteFault{Path: "p", Op: "open", Cause: fs.ErrPermission}
	assert.ErrorIs(t, err, fs.ErrPermission)

	var lw *LedgerWriteFault
	assert.True(t, errors.As(fmt.Errorf("x: %w", err), &lw))
	assert.Equal(t, "open", lw.Op)
}

func TestConfigurationFault_WithCause(t *testing.T) {
	cause := errors.New("yaml: line 3")
	err := &ConfigurationFault{Table: "test_strategies", Key: "document", Cause: cause}
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "yaml: line 3")
}

func TestCodeOf_PlainError(t *testing.T) {
	assert.Equal(t, "", CodeOf(errors.New("boom")))
	assert.Equal(t, "", CodeOf(nil))
}
