// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package traceability builds requirements traceability matrices (RTMs)
// linking functional requirements to the test steps that exercise them.
package traceability

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Coverage statuses.
const (
	StatusCovered = "Covered"
	StatusGap     = "Gap"
)

const (
	unknownID   = "unknown"
	unknownUR   = "UR-?"
	placeholder = "-"
)

// FunctionalRequirement is one FR of a UR/FR document.
type FunctionalRequirement struct {
	ID        string `json:"fr_id"`
	Statement string `json:"statement"`
}

// UserRequirement is the UR heading a UR/FR document.
type UserRequirement struct {
	ID           string `json:"ur_id"`
	RiskLevel    string `json:"risk_level"`
	TestStrategy string `json:"test_strategy"`
}

// Document is a UR/FR requirements document.
type Document struct {
	URSID                  string                  `json:"urs_id"`
	UserRequirement        UserRequirement         `json:"user_requirement"`
	FunctionalRequirements []FunctionalRequirement `json:"functional_requirements"`
}

// TestStep is one executable step of a test script.
type TestStep struct {
	StepNumber           int    `json:"step_number"`
	RequirementReference string `json:"requirement_reference"`
	TestCaseType         string `json:"test_case_type"`
}

// TestScript is a generated test script.
type TestScript struct {
	ScriptID string     `json:"script_id"`
	Steps    []TestStep `json:"steps"`
}

// Row links one FR to its covering steps.
type Row struct {
	URSID                string   `json:"urs_id"`
	URID                 string   `json:"ur_id"`
	FRID                 string   `json:"fr_id"`
	RequirementStatement string   `json:"requirement_statement"`
	TestScriptID         string   `json:"test_script_id"`
	TestSteps            string   `json:"test_steps"`
	TestCaseTypes        []string `json:"test_case_types"`
	CoverageStatus       string   `json:"coverage_status"`
}

// Matrix is a generated RTM.
type Matrix struct {
	RTMID              string    `json:"rtm_id"`
	GeneratedAt        time.Time `json:"generated_at"`
	URSID              string    `json:"urs_id"`
	URID               string    `json:"ur_id"`
	TestScriptID       string    `json:"test_script_id"`
	RiskLevel          string    `json:"risk_level"`
	TestStrategy       string    `json:"test_strategy"`
	Total              int       `json:"total_requirements"`
	Covered            int       `json:"covered_requirements"`
	Gaps               int       `json:"gap_requirements"`
	CoveragePercentage float64   `json:"coverage_percentage"`
	Rows               []Row     `json:"rows"`
}

// Generate maps every FR of doc to the steps of script whose requirement
// reference contains the FR id.
//
// # Description
//
// A step may cover several FRs ("FR-1, FR-2") and an FR may be covered by
// several steps. FRs without an id never match. Coverage percentage is
// rounded to one decimal; an empty document has 0% coverage.
//
// # Inputs
//
//   - doc: the UR/FR document.
//   - script: the test script.
//   - now: generation timestamp.
func Generate(doc Document, script TestScript, now time.Time) Matrix {
	ursID := orDefault(doc.URSID, unknownID)
	urID := orDefault(doc.UserRequirement.ID, unknownUR)
	scriptID := orDefault(script.ScriptID, unknownID)

	m := Matrix{
		RTMID:        "RTM-" + ursID,
		GeneratedAt:  now.UTC(),
		URSID:        ursID,
		URID:         urID,
		TestScriptID: scriptID,
		RiskLevel:    orDefault(doc.UserRequirement.RiskLevel, placeholder),
		TestStrategy: orDefault(doc.UserRequirement.TestStrategy, placeholder),
		Total:        len(doc.FunctionalRequirements),
		Rows:         make([]Row, 0, len(doc.FunctionalRequirements)),
	}

	for _, fr := range doc.FunctionalRequirements {
		row := Row{
			URSID:                ursID,
			URID:                 urID,
			FRID:                 fr.ID,
			RequirementStatement: fr.Statement,
			TestScriptID:         scriptID,
			TestSteps:            placeholder,
			TestCaseTypes:        []string{},
			CoverageStatus:       StatusGap,
		}

		matching := stepsFor(fr.ID, script.Steps)
		if len(matching) > 0 {
			m.Covered++
			row.CoverageStatus = StatusCovered
			row.TestSteps = stepRefs(matching)
			row.TestCaseTypes = caseTypes(matching)
		}
		m.Rows = append(m.Rows, row)
	}

	m.Gaps = m.Total - m.Covered
	if m.Total > 0 {
		m.CoveragePercentage = math.Round(float64(m.Covered)/float64(m.Total)*1000) / 10
	}
	return m
}

// Summary is the one-line ledger description of m.
func (m Matrix) Summary() string {
	pct := 0.0
	if m.Total > 0 {
		pct = float64(m.Covered) / float64(m.Total) * 100
	}
	return fmt.Sprintf("Generated %s: %d/%d FRs covered (%.0f%%)", m.RTMID, m.Covered, m.Total, pct)
}

func stepsFor(frID string, steps []TestStep) []TestStep {
	if frID == "" {
		return nil
	}
	var out []TestStep
	for _, s := range steps {
		if s.RequirementReference != "" && strings.Contains(s.RequirementReference, frID) {
			out = append(out, s)
		}
	}
	return out
}

func stepRefs(steps []TestStep) string {
	refs := make([]string, len(steps))
	for i, s := range steps {
		refs[i] = fmt.Sprintf("%d (%s)", s.StepNumber, orDefault(s.TestCaseType, placeholder))
	}
	return strings.Join(refs, ", ")
}

func caseTypes(steps []TestStep) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, s := range steps {
		if s.TestCaseType == "" || seen[s.TestCaseType] {
			continue
		}
		seen[s.TestCaseType] = true
		out = append(out, s.TestCaseType)
	}
	sort.Strings(out)
	return out
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
