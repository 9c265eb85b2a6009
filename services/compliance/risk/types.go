// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package risk

import (
	"fmt"
	"strings"
)

// AlgorithmVersion is the version of the RPN scoring rules.
// Increment when making changes that affect risk calculations.
const AlgorithmVersion = "1.0"

// RPN band upper bounds (inclusive).
const (
	ThresholdLow    = 4
	ThresholdMedium = 12
)

// Score range.
const (
	MinScore = 1
	MaxScore = 27
)

// =============================================================================
// Ranks
// =============================================================================

// Severity ranks the patient or product impact of a failure.
type Severity int

const (
	SeverityLow    Severity = 1
	SeverityMedium Severity = 2
	SeverityHigh   Severity = 3
)

// Rank returns the ordinal used in the RPN product.
func (s Severity) Rank() int { return int(s) }

// Valid reports whether s is one of the defined ranks.
func (s Severity) Valid() bool { return s >= SeverityLow && s <= SeverityHigh }

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// MarshalText renders the rank name.
func (s Severity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid severity rank %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText accepts the rank name in any case.
func (s *Severity) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "LOW":
		*s = SeverityLow
	case "MEDIUM":
		*s = SeverityMedium
	case "HIGH":
		*s = SeverityHigh
	default:
		return fmt.Errorf("invalid severity %q", string(b))
	}
	return nil
}

// Occurrence ranks how likely a failure is.
type Occurrence int

const (
	OccurrenceRare       Occurrence = 1
	OccurrenceOccasional Occurrence = 2
	OccurrenceFrequent   Occurrence = 3
)

// Rank returns the ordinal used in the RPN product.
func (o Occurrence) Rank() int { return int(o) }

// Valid reports whether o is one of the defined ranks.
func (o Occurrence) Valid() bool { return o >= OccurrenceRare && o <= OccurrenceFrequent }

func (o Occurrence) String() string {
	switch o {
	case OccurrenceRare:
		return "RARE"
	case OccurrenceOccasional:
		return "OCCASIONAL"
	case OccurrenceFrequent:
		return "FREQUENT"
	default:
		return fmt.Sprintf("Occurrence(%d)", int(o))
	}
}

// MarshalText renders the rank name.
func (o Occurrence) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("invalid occurrence rank %d", int(o))
	}
	return []byte(o.String()), nil
}

// UnmarshalText accepts the rank name in any case.
func (o *Occurrence) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "RARE":
		*o = OccurrenceRare
	case "OCCASIONAL":
		*o = OccurrenceOccasional
	case "FREQUENT":
		*o = OccurrenceFrequent
	default:
		return fmt.Errorf("invalid occurrence %q", string(b))
	}
	return nil
}

// Detectability ranks how hard a failure is to detect before it has impact.
// High detectability (easy to detect) has the lowest rank.
type Detectability int

const (
	DetectabilityHigh   Detectability = 1
	DetectabilityMedium Detectability = 2
	DetectabilityLow    Detectability = 3
)

// Rank returns the ordinal used in the RPN product.
func (d Detectability) Rank() int { return int(d) }

// Valid reports whether d is one of the defined ranks.
func (d Detectability) Valid() bool { return d >= DetectabilityHigh && d <= DetectabilityLow }

func (d Detectability) String() string {
	switch d {
	case DetectabilityHigh:
		return "HIGH"
	case DetectabilityMedium:
		return "MEDIUM"
	case DetectabilityLow:
		return "LOW"
	default:
		return fmt.Sprintf("Detectability(%d)", int(d))
	}
}

// MarshalText renders the rank name.
func (d Detectability) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid detectability rank %d", int(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText accepts the rank name in any case.
func (d *Detectability) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "HIGH":
		*d = DetectabilityHigh
	case "MEDIUM":
		*d = DetectabilityMedium
	case "LOW":
		*d = DetectabilityLow
	default:
		return fmt.Errorf("invalid detectability %q", string(b))
	}
	return nil
}

// =============================================================================
// Levels and strategies
// =============================================================================

// Level is the overall risk classification.
type Level string

const (
	LevelLow    Level = "Low"
	LevelMedium Level = "Medium"
	LevelHigh   Level = "High"
)

// Levels lists every level in ascending order.
var Levels = []Level{LevelLow, LevelMedium, LevelHigh}

// ParseLevel parses a level name case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return LevelLow, nil
	case "medium":
		return LevelMedium, nil
	case "high":
		return LevelHigh, nil
	default:
		return "", fmt.Errorf("invalid risk level %q", s)
	}
}

// Order returns the numeric order of this level (Low=0).
func (l Level) Order() int {
	switch l {
	case LevelLow:
		return 0
	case LevelMedium:
		return 1
	default:
		return 2
	}
}

// Exceeds reports whether l is strictly above threshold.
func (l Level) Exceeds(threshold Level) bool {
	return l.Order() > threshold.Order()
}

// Strategy is the CSA testing approach recommended for a risk level.
type Strategy string

const (
	StrategyUnscripted       Strategy = "Unscripted"
	StrategyHybrid           Strategy = "Hybrid"
	StrategyRigorousScripted Strategy = "RigorousScripted"
)

// DisplayName returns the human-readable label used in reports and the ledger.
func (s Strategy) DisplayName() string {
	switch s {
	case StrategyUnscripted:
		return "Unscripted Testing"
	case StrategyHybrid:
		return "Hybrid Testing (Scripted + Unscripted)"
	case StrategyRigorousScripted:
		return "Rigorous Scripted Testing"
	default:
		return string(s)
	}
}

// Rule names the branch of reasoning that produced a level.
type Rule string

const (
	RulePatientSafety Rule = "patient-safety-first"
	RuleLowBand       Rule = "rpn<=4"
	RuleMediumBand    Rule = "rpn<=12"
	RuleHighBand      Rule = "rpn>12"
)

// Assessment is the immutable result of scoring one change.
type Assessment struct {
	Severity              Severity      `json:"severity"`
	Occurrence            Occurrence    `json:"occurrence"`
	Detectability         Detectability `json:"detectability"`
	Score                 int           `json:"rpn"`
	Level                 Level         `json:"risk_level"`
	Strategy              Strategy      `json:"testing_strategy"`
	PatientSafetyOverride bool          `json:"patient_safety_override"`
	Rule                  Rule          `json:"rule"`

	// Warnings lists free-text inputs that fell back to a default rank.
	Warnings []string `json:"warnings,omitempty"`
}
