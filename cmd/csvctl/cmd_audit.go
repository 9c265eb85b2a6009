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
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/AleutianAI/AleutianCSV/services/compliance/ledger"
	"github.com/AleutianAI/AleutianCSV/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianCSV/services/orchestrator/integrity"
	"github.com/spf13/cobra"
)

// =============================================================================
// log
// =============================================================================

func (c *cli) logCmd() *cobra.Command {
	var (
		agent, action, logic, impact string
		reasoningPath                string
	)
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Record an agent event in the audit ledger",
		Long: `Appends one event. With --reasoning, the JSON file must hold a reasoning
chain with inputs, steps and outputs; it is written to a logic archive whose
hash is tied to the ledger row.`,
		Example: `  csvctl log --agent SignOff --action DOCUMENT_SIGN_OFF \
    --logic "Signed URS-042 as Approver" --reasoning signoff.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ev := ledger.Event{
				AgentName:        agent,
				Action:           action,
				ActorID:          c.actor,
				DecisionLogic:    logic,
				ComplianceImpact: impact,
			}
			if reasoningPath != "" {
				var chain ledger.ReasoningChain
				if err := readJSONFile(reasoningPath, &chain); err != nil {
					return err
				}
				ev.Reasoning = &chain
			}

			orch, err := c.orchestrator()
			if err != nil {
				return err
			}
			hash, err := orch.LogEvent(cmd.Context(), ev)
			if err != nil {
				return err
			}

			if c.printer.Machine() {
				return c.printer.JSON(datatypes.AuditEventResponse{ReasoningHash: hash})
			}
			c.printer.Success(fmt.Sprintf("Recorded %s", action))
			c.printer.Field("Reasoning hash", hash)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&agent, "agent", "", "agent name")
	f.StringVar(&action, "action", "", "action performed, e.g. DOCUMENT_SIGN_OFF")
	f.StringVar(&logic, "logic", "", "decision logic text")
	f.StringVar(&impact, "impact", "", "compliance impact (default derived from the action)")
	f.StringVar(&reasoningPath, "reasoning", "", "reasoning chain JSON file")
	_ = cmd.MarkFlagRequired("agent")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}

// =============================================================================
// audit
// =============================================================================

func (c *cli) auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect and verify the audit ledger",
	}
	cmd.AddCommand(c.auditVerifyCmd(), c.auditRecordsCmd(), c.auditSweepCmd())
	return cmd
}

func (c *cli) auditVerifyCmd() *cobra.Command {
	var archive string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Recompute every ledger hash, or one logic archive's hash",
		Example: `  csvctl audit verify
  csvctl audit verify --archive 3f2a9c1e`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if archive != "" {
				return c.verifyArchive(archive)
			}

			report, err := ledger.VerifyLedger(c.cfg.Ledger.Path)
			if err != nil {
				return err
			}
			if c.printer.Machine() {
				if err := c.printer.JSON(datatypes.AuditVerifyResponse{Report: report, Valid: report.Valid()}); err != nil {
					return err
				}
			} else {
				c.renderReport(report)
			}
			if !report.Valid() {
				return errReported
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&archive, "archive", "", "archive file path or reasoning hash (8+ characters)")
	return cmd
}

// verifyArchive accepts either an archive path or a reasoning hash.
func (c *cli) verifyArchive(ref string) error {
	path := ref
	if _, err := os.Stat(ref); err != nil {
		dir, derr := c.archiveDirPath()
		if derr != nil {
			return derr
		}
		if path, err = ledger.FindArchive(dir, ref); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("no archive for %s in %s", ref, dir)
			}
			return err
		}
	}

	report, err := ledger.VerifyArchive(path)
	if err != nil {
		return err
	}
	if c.printer.Machine() {
		if err := c.printer.JSON(report); err != nil {
			return err
		}
	} else {
		c.printer.Title("Logic Archive")
		c.printer.Field("Path", report.Path)
		c.printer.Field("Reasoning hash", report.AuditTrailHash)
		c.printer.Field("Stored hash", report.StoredHash)
		c.printer.Field("Computed hash", report.ComputedHash)
		if report.Valid {
			c.printer.Success("Archive hash verified")
		} else {
			c.printer.Error("Archive hash mismatch")
		}
	}
	if !report.Valid {
		return errReported
	}
	return nil
}

func (c *cli) auditRecordsCmd() *cobra.Command {
	var filter ledger.Filter
	cmd := &cobra.Command{
		Use:     "records",
		Short:   "List ledger records",
		Example: "  csvctl audit records --action URS_VERIFIED --limit 20",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if filter.Limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}
			records, err := ledger.Records(c.cfg.Ledger.Path, filter)
			if err != nil {
				return err
			}
			if records == nil {
				records = []ledger.Record{}
			}

			if c.printer.Machine() {
				return c.printer.JSON(datatypes.AuditRecordsResponse{Records: records, Count: len(records)})
			}
			c.printer.Title(fmt.Sprintf("%d records", len(records)))
			for _, r := range records {
				c.printer.Bullet(fmt.Sprintf("%s  %s  %s/%s  %s", r.Timestamp, r.Action, r.AgentName, r.ActorID, r.DecisionLogic))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&filter.Action, "action", "", "only this action")
	f.StringVar(&filter.Actor, "user", "", "only this actor")
	f.StringVar(&filter.Agent, "agent", "", "only this agent")
	f.StringVar(&filter.Impact, "impact", "", "only this compliance impact")
	f.IntVar(&filter.Limit, "limit", 0, "keep the most recent N matches (0 = all)")
	return cmd
}

func (c *cli) auditSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Verify the ledger and every logic archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := c.openLedger()
			if err != nil {
				return err
			}
			result, err := integrity.Sweep(cmd.Context(), l)
			if err != nil {
				return err
			}

			if c.printer.Machine() {
				if err := c.printer.JSON(sweepView{
					Ledger:          result.Ledger,
					ArchivesChecked: result.ArchivesChecked,
					ArchivesInvalid: nonNil(result.ArchivesInvalid),
					Clean:           result.Clean(),
					DurationMs:      result.DurationMs(),
				}); err != nil {
					return err
				}
			} else {
				c.renderReport(result.Ledger)
				c.printer.Field("Archives checked", result.ArchivesChecked)
				for _, name := range result.ArchivesInvalid {
					c.printer.Error(fmt.Sprintf("Archive %s failed verification", name))
				}
			}
			if !result.Clean() {
				return errReported
			}
			return nil
		},
	}
}

type sweepView struct {
	Ledger          ledger.Report `json:"ledger"`
	ArchivesChecked int           `json:"archives_checked"`
	ArchivesInvalid []string      `json:"archives_invalid"`
	Clean           bool          `json:"clean"`
	DurationMs      int64         `json:"duration_ms"`
}

func (c *cli) renderReport(r ledger.Report) {
	c.printer.Title("Audit Ledger")
	c.printer.Field("Path", r.Path)
	c.printer.Field("Records", r.Records)
	if !r.HeaderValid {
		c.printer.Error("Header does not match the ledger columns")
	}
	for _, t := range r.Tampered {
		c.printer.Error(fmt.Sprintf("Line %d (%s %s): stored %s, computed %s",
			t.Line, t.Timestamp, t.Action, t.StoredHash, t.ComputedHash))
	}
	for _, line := range r.Malformed {
		c.printer.Error(fmt.Sprintf("Line %d is malformed", line))
	}
	if r.Valid() {
		c.printer.Success("Ledger integrity verified")
	}
}
