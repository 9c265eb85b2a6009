// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package verification

import (
	"errors"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianCSV/services/compliance/faults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// neutralPassage is relevant but contains no indicator or obligation keyword.
var neutralPassage = Passage{
	Text:    "Warehouse temperature records are reviewed each month by operations staff.",
	Source:  "Operations Guide",
	Locator: "12",
	Score:   0.81,
}

func findingByName(t *testing.T, r Result, name string) Finding {
	t.Helper()
	for _, f := range r.Findings {
		if f.CheckName == name {
			return f
		}
	}
	t.Fatalf("finding %q not present", name)
	return Finding{}
}

func TestVerify_AllChecksPass(t *testing.T) {
	e := NewEngine()
	r := e.Verify("URS-7.1", "The system shall track warehouse temperature.", "Medium", []Passage{neutralPassage})

	assert.Equal(t, VerdictApproved, r.Verdict)
	assert.False(t, r.Rejected())
	require.Len(t, r.Findings, 3)
	assert.Equal(t, CheckCriticalityAlignment, r.Findings[0].CheckName)
	assert.Equal(t, CheckRationaleRelevance, r.Findings[1].CheckName)
	assert.Equal(t, CheckContradictionScan, r.Findings[2].CheckName)
	for _, f := range r.Findings {
		assert.Equal(t, StatusPass, f.Status, f.CheckName)
	}
	assert.Empty(t, r.FailedFindings())
}

func TestVerify_LowCriticalityWithPatientSafetyContextIsRejected(t *testing.T) {
	e := NewEngine()
	passages := []Passage{{
		Text:   "Functions with an impact on patient safety require documented risk controls.",
		Source: "GAMP 5",
		Score:  0.9,
	}}

	r := e.Verify("URS-2.4", "The system shall print shipping labels.", "Low", passages)

	assert.Equal(t, VerdictRejected, r.Verdict)
	crit := findingByName(t, r, CheckCriticalityAlignment)
	assert.Equal(t, StatusFail, crit.Status)
	assert.Contains(t, crit.Detail, "patient")
	assert.Contains(t, crit.Detail, "safety")
	assert.Equal(t, StatusPass, findingByName(t, r, CheckRationaleRelevance).Status)
	assert.Equal(t, StatusPass, findingByName(t, r, CheckContradictionScan).Status)
	require.Len(t, r.FailedFindings(), 1)
}

func TestVerify_HighCriticalityPassesAlignmentUnconditionally(t *testing.T) {
	e := NewEngine()
	passages := []Passage{{Text: "Sterile batch release affects patient safety.", Score: 0.9}}

	r := e.Verify("URS-1", "The system shall manage batch release.", "high", passages)

	crit := findingByName(t, r, CheckCriticalityAlignment)
	assert.Equal(t, StatusPass, crit.Status)
	assert.Equal(t, "Criticality is high; no under-classification possible.", crit.Detail)
}

func TestVerify_IndicatorInStatementOnly(t *testing.T) {
	e := NewEngine()
	r := e.Verify("URS-3", "The system shall flag ADVERSE EVENT reports.", "Medium", []Passage{neutralPassage})

	crit := findingByName(t, r, CheckCriticalityAlignment)
	assert.Equal(t, StatusFail, crit.Status)
	assert.Contains(t, crit.Detail, "adverse event")
}

func TestVerify_RationaleRelevance(t *testing.T) {
	e := NewEngine()

	tests := []struct {
		name       string
		passages   []Passage
		wantStatus Status
		wantDetail string
	}{
		{
			name:       "no passages",
			passages:   nil,
			wantStatus: StatusFail,
			wantDetail: "No regulatory passages were retrieved",
		},
		{
			name:       "best score below threshold",
			passages:   []Passage{{Text: "a", Score: 0.40}, {Text: "b", Score: 0.44}},
			wantStatus: StatusFail,
			wantDetail: "Best regulatory match score is 0.44, below the 0.45 threshold",
		},
		{
			name:       "best score exactly at threshold",
			passages:   []Passage{{Text: "a", Score: 0.45}},
			wantStatus: StatusPass,
			wantDetail: "0.45",
		},
		{
			name:       "best of several passes",
			passages:   []Passage{{Text: "a", Score: 0.2}, {Text: "b", Score: 0.7}},
			wantStatus: StatusPass,
			wantDetail: "Best regulatory match score is 0.70",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := e.Verify("URS-4", "The system shall archive files.", "Low", tt.passages)
			f := findingByName(t, r, CheckRationaleRelevance)
			assert.Equal(t, tt.wantStatus, f.Status)
			assert.Contains(t, f.Detail, tt.wantDetail)
		})
	}
}

func TestVerify_ContradictionScan(t *testing.T) {
	e := NewEngine()

	t.Run("skip validation against validation is required", func(t *testing.T) {
		passages := []Passage{{Text: "Computerised systems: validation is required before use.", Score: 0.8}}
		r := e.Verify("URS-5", "Users may skip validation for minor releases.", "High", passages)

		f := findingByName(t, r, CheckContradictionScan)
		assert.Equal(t, StatusFail, f.Status)
		assert.Equal(t,
			"Direct contradiction(s) detected: Requirement contains 'skip validation' but regulatory text states 'validation is required'.",
			f.Detail)
		assert.Equal(t, VerdictRejected, r.Verdict)
	})

	t.Run("multiple contradictions are all reported", func(t *testing.T) {
		passages := []Passage{{
			Text:  "Each change follows change control. The audit trail must be retained.",
			Score: 0.8,
		}}
		r := e.Verify("URS-6", "Hotfixes bypass change control and run with no audit trail.", "High", passages)

		f := findingByName(t, r, CheckContradictionScan)
		assert.Equal(t, StatusFail, f.Status)
		assert.Contains(t, f.Detail, "'no audit trail' but regulatory text states 'audit trail'")
		assert.Contains(t, f.Detail, "'bypass change control' but regulatory text states 'change control'")
		assert.Equal(t, 1, strings.Count(f.Detail, "; "))
	})

	t.Run("phrase without opposing keyword passes", func(t *testing.T) {
		r := e.Verify("URS-7", "Operators skip testing of cosmetic screens.", "High", []Passage{neutralPassage})
		assert.Equal(t, StatusPass, findingByName(t, r, CheckContradictionScan).Status)
	})
}

func TestVerify_AllChecksRunWhenEverythingFails(t *testing.T) {
	e := NewEngine()
	passages := []Passage{{Text: "Patient data shall be validated; validation is required.", Score: 0.1}}

	r := e.Verify("URS-8", "We skip validation.", "Low", passages)

	require.Len(t, r.Findings, 3)
	assert.Len(t, r.FailedFindings(), 3)
	assert.Equal(t, VerdictRejected, r.Verdict)
}

func TestVerify_VerdictMatchesFindings(t *testing.T) {
	e := NewEngine()
	statements := []string{"plain", "skip testing", "patient labels"}
	criticalities := []string{"Low", "Medium", "High"}
	passageSets := [][]Passage{nil, {neutralPassage}, {{Text: "A test plan is required", Score: 0.3}}}

	for _, s := range statements {
		for _, c := range criticalities {
			for _, p := range passageSets {
				r := e.Verify("X", s, c, p)
				assert.Equal(t, len(r.FailedFindings()) > 0, r.Rejected(), "%s/%s/%v", s, c, p)
			}
		}
	}
}

func TestReference(t *testing.T) {
	assert.Equal(t, NoReference, Reference(nil))

	long := strings.Repeat("é", 200)
	passages := []Passage{
		{Text: "lower", Source: "Annex 11", Locator: "3", Score: 0.5},
		{Text: long, Source: "", Locator: "", Version: "2nd Ed.", Score: 0.9},
	}
	ref := Reference(passages)
	assert.True(t, strings.HasPrefix(ref, "Per GAMP 5 [2nd Ed.] (p.0): "))
	assert.True(t, strings.HasSuffix(ref, "..."))
	assert.Equal(t, ExcerptLength, strings.Count(ref, "é"))

	ref = Reference(passages[:1])
	assert.Equal(t, "Per Annex 11 (p.3): lower...", ref)
}

func TestVerify_FindingsCarryReference(t *testing.T) {
	r := NewEngine().Verify("URS-9", "x", "High", []Passage{neutralPassage})
	for _, f := range r.Findings {
		assert.Equal(t, "Per Operations Guide (p.12): "+neutralPassage.Text+"...", f.RegulatoryReference)
	}
}

func TestWithRelevanceThreshold(t *testing.T) {
	e := NewEngine(WithRelevanceThreshold(0.9))
	r := e.Verify("URS-10", "x", "High", []Passage{neutralPassage})
	assert.Equal(t, StatusFail, findingByName(t, r, CheckRationaleRelevance).Status)
	assert.InDelta(t, 0.9, e.Threshold(), 1e-9)
}

func TestSubject_Validate(t *testing.T) {
	valid := Subject{ID: "URS-1", Statement: "s", Criticality: "Low", RegulatoryRationale: "r"}
	assert.NoError(t, valid.Validate())

	err := Subject{ID: "URS-2", Statement: "s"}.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, faults.ErrInvalidSubject))

	var fault *faults.InvalidSubjectFault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, []string{"Criticality", "Regulatory_Rationale"}, fault.MissingFields)
	assert.Equal(t, faults.CodeInvalidSubject, fault.Code())
}
