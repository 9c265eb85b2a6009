// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package verification approves or rejects a drafted requirement by
// cross-checking it against retrieved regulatory passages.
//
// # Description
//
// Three independent checks always run, in order:
//
//  1. Criticality Alignment: a requirement below High criticality fails
//     when the statement or passages mention a high-risk indicator.
//  2. Rationale Relevance: fails with no passages, or when the best
//     passage score is below RelevanceThreshold.
//  3. Contradiction Scan: fails when the statement contains a phrase that
//     opposes an obligation keyword present in the passages.
//
// The verdict is Rejected exactly when any check fails. A rejection is a
// normal result, not an error. The engine never retrieves passages itself.
//
// # Thread Safety
//
// Engine is immutable after construction and safe for concurrent use.
package verification

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianCSV/services/compliance/risk"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Engine runs the verification checks.
type Engine struct {
	threshold     float64
	indicators    []string
	contradiction []ContradictionRule
}

// Option configures an Engine.
type Option func(*Engine)

// WithRelevanceThreshold overrides RelevanceThreshold.
func WithRelevanceThreshold(threshold float64) Option {
	return func(e *Engine) { e.threshold = threshold }
}

// NewEngine creates an engine using the fixed indicator and contradiction
// tables.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		threshold:     RelevanceThreshold,
		indicators:    foldAll(HighRiskIndicators),
		contradiction: make([]ContradictionRule, len(ContradictionRules)),
	}
	for i, rule := range ContradictionRules {
		e.contradiction[i] = ContradictionRule{
			StatementPhrases: foldAll(rule.StatementPhrases),
			OpposingKeywords: foldAll(rule.OpposingKeywords),
		}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Threshold returns the relevance threshold in use.
func (e *Engine) Threshold() float64 { return e.threshold }

// Verify runs all three checks against the supplied passages.
//
// # Inputs
//
//   - subjectID: identifier echoed into the result.
//   - statement: the drafted requirement statement.
//   - criticality: the assigned criticality (High, Medium, Low).
//   - passages: pre-retrieved regulatory passages. May be empty.
//
// # Outputs
//
//   - Result: verdict plus exactly three findings in check order.
func (e *Engine) Verify(subjectID, statement, criticality string, passages []Passage) Result {
	ref := Reference(passages)
	statementFolded := fold(statement)
	contextFolded := foldedContext(passages)

	findings := []Finding{
		e.checkCriticalityAlignment(criticality, statementFolded, contextFolded, ref),
		e.checkRationaleRelevance(passages, ref),
		e.checkContradictions(statementFolded, contextFolded, ref),
	}

	verdict := VerdictApproved
	for _, f := range findings {
		if f.Failed() {
			verdict = VerdictRejected
			break
		}
	}
	return Result{SubjectID: subjectID, Verdict: verdict, Findings: findings}
}

// =============================================================================
// Checks
// =============================================================================

func (e *Engine) checkCriticalityAlignment(criticality, statement, context, ref string) Finding {
	f := Finding{CheckName: CheckCriticalityAlignment, RegulatoryReference: ref}

	if lvl, err := risk.ParseLevel(criticality); err == nil && lvl == risk.LevelHigh {
		f.Status = StatusPass
		f.Detail = fmt.Sprintf("Criticality is %s; no under-classification possible.", criticality)
		return f
	}

	var triggered []string
	for _, indicator := range e.indicators {
		if strings.Contains(statement, indicator) || strings.Contains(context, indicator) {
			triggered = append(triggered, indicator)
		}
	}

	if len(triggered) > 0 {
		f.Status = StatusFail
		f.Detail = fmt.Sprintf(
			"Criticality is %s but regulatory context contains high-risk indicators: %s. Requirement may be under-classified.",
			criticality, strings.Join(triggered, ", "))
		return f
	}

	f.Status = StatusPass
	f.Detail = fmt.Sprintf("Criticality %s is consistent with the retrieved regulatory guidance.", criticality)
	return f
}

func (e *Engine) checkRationaleRelevance(passages []Passage, ref string) Finding {
	f := Finding{CheckName: CheckRationaleRelevance, RegulatoryReference: ref}

	if len(passages) == 0 {
		f.Status = StatusFail
		f.Detail = "No regulatory passages were retrieved for this requirement; the rationale cannot be substantiated."
		return f
	}

	best := passages[bestIndex(passages)].Score
	if best < e.threshold {
		f.Status = StatusFail
		f.Detail = fmt.Sprintf(
			"Best regulatory match score is %.2f, below the %.2f threshold. The cited rationale may not adequately support this requirement.",
			best, e.threshold)
		return f
	}

	f.Status = StatusPass
	f.Detail = fmt.Sprintf("Best regulatory match score is %.2f, at or above the %.2f threshold. Rationale is relevant.",
		best, e.threshold)
	return f
}

func (e *Engine) checkContradictions(statement, context, ref string) Finding {
	f := Finding{CheckName: CheckContradictionScan, RegulatoryReference: ref}

	var contradictions []string
	for _, rule := range e.contradiction {
		hit := firstContained(statement, rule.StatementPhrases)
		if hit == "" {
			continue
		}
		if kw := firstContained(context, rule.OpposingKeywords); kw != "" {
			contradictions = append(contradictions,
				fmt.Sprintf("Requirement contains '%s' but regulatory text states '%s'", hit, kw))
		}
	}

	if len(contradictions) > 0 {
		f.Status = StatusFail
		f.Detail = "Direct contradiction(s) detected: " + strings.Join(contradictions, "; ") + "."
		return f
	}

	f.Status = StatusPass
	f.Detail = "No contradictions detected between the requirement and regulatory guidance."
	return f
}

// =============================================================================
// References
// =============================================================================

// Reference formats a citation for the highest-scoring passage:
//
//	Per {source} [{version}] (p.{locator}): {excerpt}...
//
// The version bracket is omitted when the passage has none.
func Reference(passages []Passage) string {
	if len(passages) == 0 {
		return NoReference
	}
	p := passages[bestIndex(passages)]

	src := p.Source
	if src == "" {
		src = DefaultSourceLabel
	}
	loc := p.Locator
	if loc == "" {
		loc = "0"
	}
	excerpt := truncateRunes(p.Text, ExcerptLength)

	if p.Version != "" {
		return fmt.Sprintf("Per %s [%s] (p.%s): %s...", src, p.Version, loc, excerpt)
	}
	return fmt.Sprintf("Per %s (p.%s): %s...", src, loc, excerpt)
}

// bestIndex returns the index of the highest score; ties keep the first.
func bestIndex(passages []Passage) int {
	best := 0
	for i := 1; i < len(passages); i++ {
		if passages[i].Score > passages[best].Score {
			best = i
		}
	}
	return best
}

// =============================================================================
// Text helpers
// =============================================================================

// fold normalises compatibility characters (e.g. non-breaking spaces) and
// case-folds s for keyword matching.
func fold(s string) string {
	return cases.Fold().String(norm.NFKC.String(s))
}

func foldAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = fold(s)
	}
	return out
}

func foldedContext(passages []Passage) string {
	parts := make([]string, len(passages))
	for i, p := range passages {
		parts[i] = fold(p.Text)
	}
	return strings.Join(parts, " ")
}

func firstContained(haystack string, needles []string) string {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return n
		}
	}
	return ""
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
