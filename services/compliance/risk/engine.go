// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package risk implements GAMP 5 style risk priority scoring.
//
// # Description
//
// Score multiplies severity, occurrence and detectability ranks into a
// risk priority number (1-27) and classifies it. High severity forces a
// High level before any threshold is consulted (patient safety first).
// StrategyFor maps the level to a CSA testing strategy.
//
// The free-text helpers translate change-request vocabulary into ranks.
// Unknown words fall back to a middle rank and are reported as warnings
// rather than errors so a request is never blocked on vocabulary alone.
//
// # Thread Safety
//
// Every function in this package is pure and safe for concurrent use.
package risk

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// =============================================================================
// Scoring
// =============================================================================

// Score computes the risk assessment for three ranks.
//
// # Description
//
// The patient-safety rule is evaluated first so the recorded Rule names
// the override rather than the band the raw score falls into.
//
// # Outputs
//
//   - Assessment: score, level, strategy and the rule that fired.
//   - error: Non-nil only when a rank is outside its defined range.
//
// # Examples
//
//	a, _ := risk.Score(risk.SeverityHigh, risk.OccurrenceOccasional, risk.DetectabilityMedium)
//	// a.Score == 12, a.Level == risk.LevelHigh, a.PatientSafetyOverride == true
func Score(sev Severity, occ Occurrence, det Detectability) (Assessment, error) {
	if !sev.Valid() {
		return Assessment{}, fmt.Errorf("risk: %v out of range", sev)
	}
	if !occ.Valid() {
		return Assessment{}, fmt.Errorf("risk: %v out of range", occ)
	}
	if !det.Valid() {
		return Assessment{}, fmt.Errorf("risk: %v out of range", det)
	}

	a := Assessment{
		Severity:      sev,
		Occurrence:    occ,
		Detectability: det,
		Score:         sev.Rank() * occ.Rank() * det.Rank(),
	}

	if sev == SeverityHigh {
		a.Level = LevelHigh
		a.Rule = RulePatientSafety
		a.PatientSafetyOverride = true
	} else {
		a.Level, a.Rule = levelForScore(a.Score)
	}
	a.Strategy = StrategyFor(a.Level)
	return a, nil
}

// levelForScore applies the RPN bands.
func levelForScore(score int) (Level, Rule) {
	switch {
	case score <= ThresholdLow:
		return LevelLow, RuleLowBand
	case score <= ThresholdMedium:
		return LevelMedium, RuleMediumBand
	default:
		return LevelHigh, RuleHighBand
	}
}

// StrategyFor returns the testing strategy for a level. Anything that is
// not Low or Medium is treated as High.
func StrategyFor(level Level) Strategy {
	switch level {
	case LevelLow:
		return StrategyUnscripted
	case LevelMedium:
		return StrategyHybrid
	default:
		return StrategyRigorousScripted
	}
}

// =============================================================================
// Free-text mapping
// =============================================================================

var criticalityToSeverity = map[string]Severity{
	"high":     SeverityHigh,
	"critical": SeverityHigh,
	"medium":   SeverityMedium,
	"moderate": SeverityMedium,
	"low":      SeverityLow,
	"minor":    SeverityLow,
}

var changeTypeToOccurrence = map[string]Occurrence{
	"emergency": OccurrenceFrequent,
	"expedited": OccurrenceFrequent,
	"normal":    OccurrenceOccasional,
	"standard":  OccurrenceRare,
	"routine":   OccurrenceRare,
}

var detectabilityWords = map[string]Detectability{
	"high":     DetectabilityHigh,
	"easy":     DetectabilityHigh,
	"medium":   DetectabilityMedium,
	"moderate": DetectabilityMedium,
	"low":      DetectabilityLow,
	"hard":     DetectabilityLow,
}

// Defaults applied to unmapped vocabulary.
const (
	DefaultSeverity      = SeverityMedium
	DefaultOccurrence    = OccurrenceOccasional
	DefaultDetectability = DetectabilityMedium
)

// normalize case-folds s. A Caser is stateful, so one is built per call.
func normalize(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// MapCriticality maps a system criticality word to a severity. The bool is
// false when the word is unknown and the default was applied.
func MapCriticality(criticality string) (Severity, bool) {
	if sev, ok := criticalityToSeverity[normalize(criticality)]; ok {
		return sev, true
	}
	return DefaultSeverity, false
}

// MapChangeType maps a change type to an occurrence. The bool is false when
// the word is unknown and the default was applied.
func MapChangeType(changeType string) (Occurrence, bool) {
	if occ, ok := changeTypeToOccurrence[normalize(changeType)]; ok {
		return occ, true
	}
	return DefaultOccurrence, false
}

// MapDetectability maps a detectability word. Empty input selects the
// default without a warning.
func MapDetectability(detectability string) (Detectability, bool) {
	key := normalize(detectability)
	if key == "" {
		return DefaultDetectability, true
	}
	if det, ok := detectabilityWords[key]; ok {
		return det, true
	}
	return DefaultDetectability, false
}

// AssessFreeText maps change-request vocabulary to ranks and scores them.
//
// # Description
//
// Unknown words never fail the call. Each fallback is recorded in
// Assessment.Warnings so the caller can log it.
//
// # Inputs
//
//   - criticality: system criticality (high, critical, medium, moderate, low, minor).
//   - changeType: change type (emergency, expedited, normal, standard, routine).
//   - detectability: optional (high, medium, low); empty means Medium.
func AssessFreeText(criticality, changeType, detectability string) Assessment {
	sev, okSev := MapCriticality(criticality)
	occ, okOcc := MapChangeType(changeType)
	det, okDet := MapDetectability(detectability)

	// Mapped ranks are always valid.
	a, _ := Score(sev, occ, det)

	if !okSev {
		a.Warnings = append(a.Warnings,
			fmt.Sprintf("unmapped criticality %q defaulted to %s severity", criticality, sev))
	}
	if !okOcc {
		a.Warnings = append(a.Warnings,
			fmt.Sprintf("unmapped change type %q defaulted to %s occurrence", changeType, occ))
	}
	if !okDet {
		a.Warnings = append(a.Warnings,
			fmt.Sprintf("unmapped detectability %q defaulted to %s", detectability, det))
	}
	return a
}
