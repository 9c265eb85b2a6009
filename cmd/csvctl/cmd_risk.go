// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"

	"github.com/AleutianAI/AleutianCSV/services/compliance/decisions"
	"github.com/AleutianAI/AleutianCSV/services/compliance/risk"
	"github.com/AleutianAI/AleutianCSV/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianCSV/services/policy_engine"
	"github.com/spf13/cobra"
)

// =============================================================================
// assess
// =============================================================================

func (c *cli) assessCmd() *cobra.Command {
	var (
		severity      string
		occurrence    string
		criticality   string
		changeType    string
		detectability string
		reference     string
	)
	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Score change risk and record the assessment",
		Long: `Scores risk from explicit ranks (--severity and --occurrence) or from
free-text vocabulary (--criticality and --change-type). Detectability defaults
to MEDIUM. The assessment is appended to the audit ledger.`,
		Example: `  csvctl assess --severity high --occurrence occasional
  csvctl assess --criticality critical --change-type emergency --reference CR-1042`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			explicit := severity != "" || occurrence != ""
			freeText := criticality != "" || changeType != ""
			if explicit == freeText {
				return fmt.Errorf("use either --severity/--occurrence or --criticality/--change-type")
			}

			orch, err := c.orchestrator()
			if err != nil {
				return err
			}

			var (
				a    risk.Assessment
				hash string
			)
			if explicit {
				req, perr := explicitScoreRequest(severity, occurrence, detectability)
				if perr != nil {
					return perr
				}
				req.Reference, req.ActorID = reference, c.actor
				a, hash, err = orch.ScoreRisk(cmd.Context(), req)
			} else {
				a, hash, err = orch.AssessRisk(cmd.Context(), decisions.AssessRequest{
					Criticality:   criticality,
					ChangeType:    changeType,
					Detectability: detectability,
					Reference:     reference,
					ActorID:       c.actor,
				})
			}
			if err != nil {
				return err
			}
			return c.renderAssessment(a, hash)
		},
	}
	f := cmd.Flags()
	f.StringVar(&severity, "severity", "", "severity rank: low, medium or high")
	f.StringVar(&occurrence, "occurrence", "", "occurrence rank: rare, occasional or frequent")
	f.StringVar(&criticality, "criticality", "", "free-text system criticality, e.g. critical")
	f.StringVar(&changeType, "change-type", "", "free-text change type, e.g. emergency")
	f.StringVar(&detectability, "detectability", "", "detectability: high, medium or low (default medium)")
	f.StringVar(&reference, "reference", "", "change or requirement reference recorded with the decision")
	return cmd
}

// explicitScoreRequest parses rank names. Both ranks are required.
func explicitScoreRequest(severity, occurrence, detectability string) (decisions.ScoreRequest, error) {
	var req decisions.ScoreRequest
	if err := req.Severity.UnmarshalText([]byte(severity)); err != nil {
		return req, err
	}
	if err := req.Occurrence.UnmarshalText([]byte(occurrence)); err != nil {
		return req, err
	}
	req.Detectability = risk.DetectabilityMedium
	if detectability != "" {
		if err := req.Detectability.UnmarshalText([]byte(detectability)); err != nil {
			return req, err
		}
	}
	return req, nil
}

// =============================================================================
// strategy
// =============================================================================

func (c *cli) strategyCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "strategy <risk-level>",
		Short:   "Determine the testing strategy for a risk level",
		Example: "  csvctl strategy medium",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := risk.ParseLevel(args[0])
			if err != nil {
				return err
			}
			orch, err := c.orchestrator()
			if err != nil {
				return err
			}
			strategy, hash, err := orch.DetermineTestingStrategy(cmd.Context(), level, c.actor)
			if err != nil {
				return err
			}

			if c.printer.Machine() {
				return c.printer.JSON(datatypes.StrategyResponse{
					RiskLevel:       string(level),
					Strategy:        string(strategy),
					TestingStrategy: strategy.DisplayName(),
					ReasoningHash:   hash,
				})
			}
			c.printer.Title("Testing Strategy")
			c.printer.Field("Risk level", level)
			c.printer.Field("Strategy", strategy.DisplayName())
			c.printer.Field("Reasoning hash", hash)
			return nil
		},
	}
}

// =============================================================================
// derive
// =============================================================================

func (c *cli) deriveCmd() *cobra.Command {
	var category, method string
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive risk level and test strategy from the decision matrix",
		Example: `  csvctl derive --category "GxP Direct" --method custom
  csvctl derive --category gxp-indirect --method configured`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := policy_engine.ParseCategory(category)
			if err != nil {
				return err
			}
			m, err := policy_engine.ParseMethod(method)
			if err != nil {
				return err
			}
			orch, err := c.orchestrator()
			if err != nil {
				return err
			}
			d, hash, err := orch.DeriveRiskAndStrategy(cmd.Context(), cat, m, c.actor)
			if err != nil {
				return err
			}

			if c.printer.Machine() {
				return c.printer.JSON(datatypes.DeriveResponse{Derivation: d, ReasoningHash: hash})
			}
			c.printer.Title("Decision Matrix")
			c.printer.Field("Category", d.Category)
			c.printer.Field("Method", d.Method)
			c.printer.Field("Risk level", d.RiskLevel)
			c.printer.Field("Test strategy", d.TestStrategy)
			c.printer.Field("Policy hash", d.PolicyHash)
			c.printer.Field("Reasoning hash", hash)
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "GxP category: GxP Direct, GxP Indirect or GxP None")
	cmd.Flags().StringVar(&method, "method", "", "implementation method: Out of the Box, Configured or Custom")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("method")
	return cmd
}

// renderAssessment prints an assessment and its ledger hash.
func (c *cli) renderAssessment(a risk.Assessment, hash string) error {
	if c.printer.Machine() {
		return c.printer.JSON(datatypes.RiskAssessResponse{
			RiskAssessment: datatypes.NewRiskAssessmentView(a),
			ReasoningHash:  hash,
		})
	}
	c.printer.Title("Risk Assessment")
	c.printer.Field("Severity", a.Severity)
	c.printer.Field("Occurrence", a.Occurrence)
	c.printer.Field("Detectability", a.Detectability)
	c.printer.Field("RPN", a.Score)
	c.printer.Field("Risk level", a.Level)
	c.printer.Field("Testing strategy", a.Strategy.DisplayName())
	if a.PatientSafetyOverride {
		c.printer.Warning("Patient safety override: high severity forces High risk")
	}
	for _, w := range a.Warnings {
		c.printer.Warning(w)
	}
	c.printer.Field("Reasoning hash", hash)
	return nil
}
