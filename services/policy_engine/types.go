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
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianCSV/services/compliance/risk"
	"gopkg.in/yaml.v3"
)

// Category is the GxP risk assessment category of a system or function.
type Category string

const (
	GxPDirect   Category = "GxP Direct"
	GxPIndirect Category = "GxP Indirect"
	GxPNone     Category = "GxP None"
)

// Categories lists every category in table order.
var Categories = []Category{GxPDirect, GxPIndirect, GxPNone}

// Method is how the function is implemented.
type Method string

const (
	OutOfTheBox Method = "Out of the Box"
	Configured  Method = "Configured"
	Custom      Method = "Custom"
)

// Methods lists every method in table order.
var Methods = []Method{OutOfTheBox, Configured, Custom}

// compact lowercases s and drops separators so "GxP-Direct", "gxp_direct"
// and "GxP Direct" compare equal.
func compact(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '_', '\t':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(s)))
}

// ParseCategory parses a category name. Separators and case are ignored and
// the "GxP" prefix is optional.
func ParseCategory(s string) (Category, error) {
	switch strings.TrimPrefix(compact(s), "gxp") {
	case "direct":
		return GxPDirect, nil
	case "indirect":
		return GxPIndirect, nil
	case "none", "non":
		return GxPNone, nil
	default:
		return "", fmt.Errorf("invalid risk assessment category %q", s)
	}
}

// ParseMethod parses an implementation method name.
func ParseMethod(s string) (Method, error) {
	switch compact(s) {
	case "outofthebox", "ootb":
		return OutOfTheBox, nil
	case "configured":
		return Configured, nil
	case "custom":
		return Custom, nil
	default:
		return "", fmt.Errorf("invalid implementation method %q", s)
	}
}

func (c *Category) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseCategory(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (m *Method) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseMethod(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// policyLevel wraps risk.Level for strict YAML decoding.
type policyLevel risk.Level

func (l *policyLevel) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := risk.ParseLevel(s)
	if err != nil {
		return err
	}
	*l = policyLevel(parsed)
	return nil
}

// DecisionMatrixFile is the on-disk shape of decision_matrix.yaml.
type DecisionMatrixFile struct {
	Version        string             `yaml:"version"`
	RiskLevels     []RiskLevelRule    `yaml:"risk_levels"`
	TestStrategies []TestStrategyRule `yaml:"test_strategies"`
}

type RiskLevelRule struct {
	Category Category    `yaml:"category"`
	Method   Method      `yaml:"method"`
	Level    policyLevel `yaml:"level"`
}

type TestStrategyRule struct {
	Level    policyLevel `yaml:"level"`
	Method   Method      `yaml:"method"`
	Strategy string      `yaml:"strategy"`
}

type levelKey struct {
	category Category
	method   Method
}

type strategyKey struct {
	level  risk.Level
	method Method
}

// Derivation is the combined result of both matrix lookups.
type Derivation struct {
	Category     Category   `json:"category"`
	Method       Method     `json:"method"`
	RiskLevel    risk.Level `json:"risk_level"`
	TestStrategy string     `json:"test_strategy"`
	PolicyHash   string     `json:"policy_hash"`
}
