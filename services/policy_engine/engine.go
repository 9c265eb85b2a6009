// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package policy_engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianCSV/services/compliance/faults"
	"github.com/AleutianAI/AleutianCSV/services/compliance/risk"
	"github.com/AleutianAI/AleutianCSV/services/policy_engine/enforcement"
	"gopkg.in/yaml.v3"
)

// Table names used in ConfigurationFault reports.
const (
	RiskLevelTable    = "risk_levels"
	TestStrategyTable = "test_strategies"
)

// DecisionMatrix holds the two fixed lookup tables of the decision policy.
// It is immutable after construction and safe for concurrent use.
type DecisionMatrix struct {
	version    string
	policyHash string
	levels     map[levelKey]risk.Level
	strategies map[strategyKey]string
}

// defaultMatrix is loaded from the embedded policy when the package is
// initialised. An incomplete table stops the process at startup instead of
// surfacing later as a ConfigurationFault.
var defaultMatrix = mustLoadEmbedded()

func mustLoadEmbedded() *DecisionMatrix {
	m, err := NewDecisionMatrix()
	if err != nil {
		panic(fmt.Sprintf("policy_engine: embedded decision matrix is invalid: %v", err))
	}
	return m
}

// Default returns the matrix built from the embedded policy.
func Default() *DecisionMatrix {
	return defaultMatrix
}

// NewDecisionMatrix initializes a matrix from the policy embedded in the binary.
//
// It performs the following operations:
// 1. Unmarshals the embedded YAML data.
// 2. Rejects duplicate cells.
// 3. Checks that every cell of both cross-products is populated.
func NewDecisionMatrix() (*DecisionMatrix, error) {
	return LoadDecisionMatrix(enforcement.DecisionMatrixPolicy)
}

// LoadDecisionMatrix builds a matrix from raw policy YAML. Missing cells are
// reported as a ConfigurationFault naming the first gap found.
func LoadDecisionMatrix(data []byte) (*DecisionMatrix, error) {
	var file DecisionMatrixFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the decision matrix policy: %w", err)
	}

	sum := sha256.Sum256(data)
	m := &DecisionMatrix{
		version:    file.Version,
		policyHash: hex.EncodeToString(sum[:]),
		levels:     make(map[levelKey]risk.Level, len(file.RiskLevels)),
		strategies: make(map[strategyKey]string, len(file.TestStrategies)),
	}

	for _, rule := range file.RiskLevels {
		key := levelKey{category: rule.Category, method: rule.Method}
		if _, dup := m.levels[key]; dup {
			return nil, fmt.Errorf("duplicate %s cell (%s, %s)", RiskLevelTable, rule.Category, rule.Method)
		}
		m.levels[key] = risk.Level(rule.Level)
	}
	for _, rule := range file.TestStrategies {
		key := strategyKey{level: risk.Level(rule.Level), method: rule.Method}
		if _, dup := m.strategies[key]; dup {
			return nil, fmt.Errorf("duplicate %s cell (%s, %s)", TestStrategyTable, rule.Level, rule.Method)
		}
		if strings.TrimSpace(rule.Strategy) == "" {
			return nil, fmt.Errorf("empty strategy for %s cell (%s, %s)", TestStrategyTable, rule.Level, rule.Method)
		}
		m.strategies[key] = rule.Strategy
	}

	if err := m.checkExhaustive(); err != nil {
		return nil, err
	}
	return m, nil
}

// checkExhaustive verifies every (category, method) and (level, method)
// combination has a cell.
func (m *DecisionMatrix) checkExhaustive() error {
	for _, c := range Categories {
		for _, meth := range Methods {
			if _, ok := m.levels[levelKey{c, meth}]; !ok {
				return faults.NewConfigurationFault(RiskLevelTable, fmt.Sprintf("(%s, %s)", c, meth))
			}
		}
	}
	for _, lvl := range risk.Levels {
		for _, meth := range Methods {
			if _, ok := m.strategies[strategyKey{lvl, meth}]; !ok {
				return faults.NewConfigurationFault(TestStrategyTable, fmt.Sprintf("(%s, %s)", lvl, meth))
			}
		}
	}
	return nil
}

// RiskLevel returns the derived risk level for a category and method.
// A combination absent from the table is a ConfigurationFault.
func (m *DecisionMatrix) RiskLevel(category Category, method Method) (risk.Level, error) {
	lvl, ok := m.levels[levelKey{category, method}]
	if !ok {
		return "", faults.NewConfigurationFault(RiskLevelTable, fmt.Sprintf("(%s, %s)", category, method))
	}
	return lvl, nil
}

// TestStrategy returns the test strategy for a derived level and method.
func (m *DecisionMatrix) TestStrategy(level risk.Level, method Method) (string, error) {
	s, ok := m.strategies[strategyKey{level, method}]
	if !ok {
		return "", faults.NewConfigurationFault(TestStrategyTable, fmt.Sprintf("(%s, %s)", level, method))
	}
	return s, nil
}

// Derive runs both lookups in sequence.
func (m *DecisionMatrix) Derive(category Category, method Method) (Derivation, error) {
	lvl, err := m.RiskLevel(category, method)
	if err != nil {
		return Derivation{}, err
	}
	strategy, err := m.TestStrategy(lvl, method)
	if err != nil {
		return Derivation{}, err
	}
	return Derivation{
		Category:     category,
		Method:       method,
		RiskLevel:    lvl,
		TestStrategy: strategy,
		PolicyHash:   m.policyHash,
	}, nil
}

// Version returns the policy version string.
func (m *DecisionMatrix) Version() string { return m.version }

// PolicyHash returns the SHA-256 of the policy bytes the matrix was built from.
func (m *DecisionMatrix) PolicyHash() string { return m.policyHash }
