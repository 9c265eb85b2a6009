// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/AleutianAI/AleutianCSV/services/compliance/traceability"
	"github.com/AleutianAI/AleutianCSV/services/orchestrator/datatypes"
	"github.com/spf13/cobra"
)

func (c *cli) rtmCmd() *cobra.Command {
	var documentPath, scriptPath string
	cmd := &cobra.Command{
		Use:     "rtm",
		Short:   "Generate a requirements traceability matrix",
		Example: "  csvctl rtm --document urs-042-frs.json --script ts-042.json",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				doc    traceability.Document
				script traceability.TestScript
			)
			if err := readJSONFile(documentPath, &doc); err != nil {
				return err
			}
			if err := readJSONFile(scriptPath, &script); err != nil {
				return err
			}

			orch, err := c.orchestrator()
			if err != nil {
				return err
			}
			m, hash, err := orch.GenerateRTM(cmd.Context(), doc, script, c.actor)
			if err != nil {
				return err
			}

			if c.printer.Machine() {
				return c.printer.JSON(datatypes.RTMResponse{Matrix: m, Summary: m.Summary(), ReasoningHash: hash})
			}
			c.printer.Title(m.RTMID)
			for _, row := range m.Rows {
				line := fmt.Sprintf("%s → %s", row.FRID, row.TestSteps)
				if row.CoverageStatus == traceability.StatusGap {
					c.printer.Warning(fmt.Sprintf("%s has no test steps", row.FRID))
					continue
				}
				c.printer.Bullet(line)
			}
			c.printer.Field("Coverage", c.printer.CoverageBar(m.CoveragePercentage, 20))
			c.printer.Field("Covered", fmt.Sprintf("%d/%d", m.Covered, m.Total))
			c.printer.Field("Reasoning hash", hash)
			return nil
		},
	}
	cmd.Flags().StringVar(&documentPath, "document", "", "UR/FR document JSON file")
	cmd.Flags().StringVar(&scriptPath, "script", "", "test script JSON file")
	_ = cmd.MarkFlagRequired("document")
	_ = cmd.MarkFlagRequired("script")
	return cmd
}
