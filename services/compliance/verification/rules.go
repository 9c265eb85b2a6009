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

// Retrieval and scoring constants.
const (
	// RelevanceThreshold is the minimum best passage score for a rationale
	// to count as supported.
	RelevanceThreshold = 0.45

	// DefaultTopK and DefaultMinScore are the retrieval parameters callers
	// should use when fetching passages for Verify.
	DefaultTopK     = 5
	DefaultMinScore = 0.35

	// ExcerptLength bounds the passage excerpt quoted in a reference.
	ExcerptLength = 150

	// DefaultSourceLabel is used when a passage has no source label.
	DefaultSourceLabel = "GAMP 5"

	// NoReference is the reference text when nothing was retrieved.
	NoReference = "No regulatory reference available"
)

// HighRiskIndicators signal patient-safety relevance. Any of them in the
// statement or the retrieved text fails a requirement classified below High.
var HighRiskIndicators = []string{
	"patient",
	"safety",
	"critical",
	"gxp",
	"sterile",
	"batch release",
	"adverse event",
	"pharmacovigilance",
	"clinical",
	"life-sustaining",
	"life-supporting",
	"validated",
	"21 cfr part 11",
}

// ContradictionRule pairs statement phrases with the regulatory keywords
// they contradict. Keywords are listed most specific first so the reported
// keyword is the most informative match.
type ContradictionRule struct {
	StatementPhrases []string
	OpposingKeywords []string
}

// ContradictionRules is the fixed contradiction table.
var ContradictionRules = []ContradictionRule{
	{
		StatementPhrases: []string{
			"skip validation",
			"no validation required",
			"validation is unnecessary",
			"does not require validation",
		},
		OpposingKeywords: []string{
			"validation is required",
			"shall be validated",
			"validation",
		},
	},
	{
		StatementPhrases: []string{
			"skip testing",
			"no testing required",
			"testing is unnecessary",
			"does not require testing",
		},
		OpposingKeywords: []string{
			"shall be tested",
			"test plan",
			"verification",
			"testing",
		},
	},
	{
		StatementPhrases: []string{
			"no audit trail",
			"disable audit",
			"audit trail is not needed",
			"without audit trail",
		},
		OpposingKeywords: []string{
			"21 cfr part 11",
			"electronic record",
			"audit trail",
			"traceability",
		},
	},
	{
		StatementPhrases: []string{
			"no change control",
			"bypass change control",
			"without change control",
		},
		OpposingKeywords: []string{
			"change control",
			"change management",
		},
	},
}
