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

// Passage is one retrieved regulatory text snippet.
//
// Passages come from the vector search collaborator. Score is the
// similarity reported by that service; Version labels the regulatory
// document revision when the index records one.
type Passage struct {
	Text    string  `json:"text"`
	Source  string  `json:"source,omitempty"`
	Locator string  `json:"locator,omitempty"`
	Version string  `json:"version,omitempty"`
	Score   float64 `json:"score"`
}

// Status is the outcome of a single check.
type Status string

const (
	StatusPass Status = "Pass"
	StatusFail Status = "Fail"
)

// Verdict is the overall outcome of a verification.
type Verdict string

const (
	VerdictApproved Verdict = "Approved"
	VerdictRejected Verdict = "Rejected"
)

// Check names, in evaluation order.
const (
	CheckCriticalityAlignment = "Criticality Alignment"
	CheckRationaleRelevance   = "Rationale Relevance"
	CheckContradictionScan    = "Contradiction Scan"
)

// Finding is the result of one check.
type Finding struct {
	CheckName           string `json:"check_name"`
	Status              Status `json:"status"`
	Detail              string `json:"detail"`
	RegulatoryReference string `json:"regulatory_reference"`
}

// Failed reports whether the check failed.
func (f Finding) Failed() bool { return f.Status == StatusFail }

// Result is the complete, immutable outcome of one verification.
// Verdict is Rejected exactly when at least one finding failed.
type Result struct {
	SubjectID string    `json:"subject_id"`
	Verdict   Verdict   `json:"verdict"`
	Findings  []Finding `json:"findings"`
}

// Rejected reports whether the verdict is Rejected.
func (r Result) Rejected() bool { return r.Verdict == VerdictRejected }

// FailedFindings returns the failed findings in check order.
func (r Result) FailedFindings() []Finding {
	var failed []Finding
	for _, f := range r.Findings {
		if f.Failed() {
			failed = append(failed, f)
		}
	}
	return failed
}
