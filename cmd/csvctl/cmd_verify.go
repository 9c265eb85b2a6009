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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianCSV/services/compliance/decisions"
	"github.com/AleutianAI/AleutianCSV/services/compliance/verification"
	"github.com/AleutianAI/AleutianCSV/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianCSV/services/orchestrator/retrieval"
	"github.com/spf13/cobra"
)

const retrievalTimeout = 30 * time.Second

func (c *cli) verifyCmd() *cobra.Command {
	var passagesPath string
	cmd := &cobra.Command{
		Use:   "verify <subject.json>",
		Short: "Verify requirement subjects against regulatory passages",
		Long: `Verifies one requirement subject, or a batch when the file holds a JSON array.

A single subject file is an object with URS_ID, Requirement_Statement,
Criticality and Regulatory_Rationale; --passages supplies its evidence.
A batch file is an array of {"subject": {...}, "passages": [...]}.

Subjects without passages are searched in Weaviate when retrieval.weaviate_url
is configured. A rejected verdict exits non-zero.`,
		Example: `  csvctl verify urs-042.json --passages gamp5-excerpts.json
  csvctl verify release-7-batch.json -o machine`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var passages []verification.Passage
			if passagesPath != "" {
				if err := readJSONFile(passagesPath, &passages); err != nil {
					return err
				}
			}

			orch, err := c.orchestrator()
			if err != nil {
				return err
			}
			known := verification.NewKnownVersions(c.cfg.Ledger.KnownVersions...)

			if isJSONArray(data) {
				var items []datatypes.BatchVerifyItem
				if err := json.Unmarshal(data, &items); err != nil {
					return fmt.Errorf("parse %s: %w", args[0], err)
				}
				return c.verifyBatch(cmd.Context(), orch, items, known)
			}

			var subject verification.Subject
			if err := json.Unmarshal(data, &subject); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			return c.verifyOne(cmd.Context(), orch, subject, passages, known)
		},
	}
	cmd.Flags().StringVar(&passagesPath, "passages", "", "JSON array of passages for a single subject")
	return cmd
}

func (c *cli) verifyOne(ctx context.Context, orch *decisions.Orchestrator, s verification.Subject, passages []verification.Passage, known verification.KnownVersions) error {
	if len(passages) == 0 && s.Validate() == nil {
		items := []decisions.BatchItem{{Subject: s}}
		if err := c.retrieve(ctx, items); err != nil {
			return err
		}
		passages = items[0].Passages
	}

	out, err := orch.VerifySubject(ctx, s, passages, known, c.actor)
	if err != nil {
		return err
	}

	if c.printer.Machine() {
		if err := c.printer.JSON(datatypes.VerifyResponse{
			Result:        out.Result,
			Passages:      nonNilPassages(passages),
			NewVersions:   nonNil(out.NewVersions),
			KnownVersions: out.Known.List(),
			ReasoningHash: out.Hash,
		}); err != nil {
			return err
		}
	} else {
		c.renderResult(out.Result)
		c.renderNewVersions(out.NewVersions)
		c.printer.Field("Reasoning hash", out.Hash)
	}
	if out.Result.Rejected() {
		return errReported
	}
	return nil
}

func (c *cli) verifyBatch(ctx context.Context, orch *decisions.Orchestrator, in []datatypes.BatchVerifyItem, known verification.KnownVersions) error {
	if len(in) == 0 {
		return fmt.Errorf("batch file holds no subjects")
	}
	items := make([]decisions.BatchItem, len(in))
	for i, it := range in {
		items[i] = decisions.BatchItem{Subject: it.Subject, Passages: it.Passages}
	}
	if err := c.retrieve(ctx, items); err != nil {
		return err
	}

	out, err := orch.VerifyBatch(ctx, items, known, c.actor)
	if err != nil {
		return err
	}

	if c.printer.Machine() {
		if err := c.printer.JSON(datatypes.BatchVerifyResponse{
			BatchID:       out.BatchID,
			Results:       out.Results,
			Approved:      out.Approved,
			Rejected:      out.Rejected,
			NewVersions:   nonNil(out.NewVersions),
			KnownVersions: out.Known.List(),
			ReasoningHash: out.Hash,
		}); err != nil {
			return err
		}
	} else {
		for _, r := range out.Results {
			c.renderResult(r)
		}
		c.renderNewVersions(out.NewVersions)
		c.printer.Summary(out.Approved, out.Rejected, len(out.Results))
		c.printer.Field("Batch", out.BatchID)
		c.printer.Field("Reasoning hash", out.Hash)
	}
	if out.Rejected > 0 {
		return errReported
	}
	return nil
}

// retrieve fills passages for valid items that carry none. It is a no-op
// when retrieval is not configured.
func (c *cli) retrieve(ctx context.Context, items []decisions.BatchItem) error {
	rc := c.cfg.Retrieval
	if rc.WeaviateURL == "" {
		return nil
	}
	var (
		idx     []int
		queries []string
	)
	for i, it := range items {
		if len(it.Passages) == 0 && it.Subject.Validate() == nil {
			idx = append(idx, i)
			queries = append(queries, strings.TrimSpace(it.Subject.Statement+" "+it.Subject.RegulatoryRationale))
		}
	}
	if len(queries) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, retrievalTimeout)
	defer cancel()
	r, err := retrieval.Dial(ctx, rc.WeaviateURL, rc.Class, c.logger.Slog())
	if err != nil {
		return fmt.Errorf("passage retrieval: %w", err)
	}
	results, err := retrieval.SearchAll(ctx, r, queries, rc.TopK, rc.MinScore)
	if err != nil {
		return fmt.Errorf("passage retrieval: %w", err)
	}
	for j, i := range idx {
		items[i].Passages = results[j]
	}
	return nil
}

func (c *cli) renderResult(r verification.Result) {
	title := fmt.Sprintf("%s %s", r.SubjectID, r.Verdict)
	if r.Rejected() {
		c.printer.Error(title)
	} else {
		c.printer.Success(title)
	}
	for _, f := range r.Findings {
		c.printer.Bullet(fmt.Sprintf("%s [%s] %s", f.CheckName, f.Status, f.Detail))
	}
	if len(r.Findings) > 0 {
		c.printer.Field("Reference", r.Findings[0].RegulatoryReference)
	}
}

func (c *cli) renderNewVersions(versions []string) {
	for _, v := range versions {
		c.printer.Warning(fmt.Sprintf("New regulatory version %s detected", v))
	}
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func isJSONArray(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(data), []byte("["))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilPassages(p []verification.Passage) []verification.Passage {
	if p == nil {
		return []verification.Passage{}
	}
	return p
}
