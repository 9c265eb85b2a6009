// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package decisions

import (
	"context"
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianCSV/services/compliance/ledger"
	"github.com/AleutianAI/AleutianCSV/services/compliance/verification"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// VerifyOutcome is the result of verifying one subject.
type VerifyOutcome struct {
	Result verification.Result
	// Known is the version set extended with NewVersions.
	Known       verification.KnownVersions
	NewVersions []string
	Hash        string
}

// VerifySubject validates s, runs the three checks over passages and
// records URS_VERIFIED or COMPLIANCE_EXCEPTION.
//
// # Description
//
// Regulatory versions carried by passages that are not in known are each
// recorded as REG_VERSION_CHANGE_DETECTED before the verdict. The returned
// outcome carries the extended version set; known itself is not modified.
//
// # Outputs
//
//   - VerifyOutcome: verdict, findings and updated versions.
//   - error: *faults.InvalidSubjectFault before anything is recorded, or
//     a ledger fault. A Rejected verdict is not an error.
func (o *Orchestrator) VerifySubject(ctx context.Context, s verification.Subject, passages []verification.Passage, known verification.KnownVersions, actor string) (VerifyOutcome, error) {
	_, span := tracer.Start(ctx, "Orchestrator.VerifySubject")
	defer span.End()
	span.SetAttributes(
		attribute.String("verify.subject_id", s.ID),
		attribute.Int("verify.passages", len(passages)),
	)

	if err := s.Validate(); err != nil {
		return VerifyOutcome{}, o.fail(span, OpVerify, "invalid subject", err)
	}

	out, err := o.verifyOne(span, s, passages, known, actor, "")
	if err != nil {
		return VerifyOutcome{}, o.fail(span, OpVerify, "ledger append failed", err)
	}
	o.succeed(span, OpVerify, string(out.Result.Verdict))
	return out, nil
}

// verifyOne runs the checks for a validated subject and records the result.
func (o *Orchestrator) verifyOne(span trace.Span, s verification.Subject, passages []verification.Passage, known verification.KnownVersions, actor, batchID string) (VerifyOutcome, error) {
	updated, fresh := verification.DetectNewVersions(known, passages)
	for _, v := range fresh {
		o.logger.Warn("decisions.verify.new_regulatory_version",
			"verify.subject_id", s.ID,
			"verify.version", v,
		)
		if _, err := o.ledger.Append(ledger.Event{
			AgentName:     AgentVerificationAgent,
			Action:        ledger.ActionRegVersionChangeDetected,
			ActorID:       actor,
			DecisionLogic: versionLogic(v),
		}); err != nil {
			return VerifyOutcome{}, err
		}
	}

	result := o.verifier.Verify(s.ID, s.Statement, s.Criticality, passages)

	action := ledger.ActionURSVerified
	if result.Rejected() {
		action = ledger.ActionComplianceException
	}

	steps := make([]string, len(result.Findings))
	for i, f := range result.Findings {
		steps[i] = fmt.Sprintf("%s: %s - %s", f.CheckName, f.Status, f.Detail)
	}
	inputs := map[string]any{
		"urs_id":        s.ID,
		"criticality":   s.Criticality,
		"passage_count": len(passages),
		"threshold":     o.verifier.Threshold(),
	}
	if batchID != "" {
		inputs["batch_id"] = batchID
	}

	hash, err := o.ledger.Append(ledger.Event{
		AgentName:     AgentVerificationAgent,
		Action:        action,
		ActorID:       actor,
		DecisionLogic: verificationLogic(s, result),
		Reasoning: &ledger.ReasoningChain{
			Inputs: inputs,
			Steps:  steps,
			Outputs: map[string]any{
				"verdict":              string(result.Verdict),
				"failed_checks":        len(result.FailedFindings()),
				"regulatory_reference": verification.Reference(passages),
			},
		},
	})
	if err != nil {
		return VerifyOutcome{}, err
	}

	if result.Rejected() {
		o.logger.Warn("decisions.verify.rejected",
			"verify.subject_id", s.ID,
			"verify.failed_checks", len(result.FailedFindings()),
		)
	}
	span.AddEvent("verified", trace.WithAttributes(
		attribute.String("verify.subject_id", s.ID),
		attribute.String("verify.verdict", string(result.Verdict)),
	))

	return VerifyOutcome{Result: result, Known: updated, NewVersions: fresh, Hash: hash}, nil
}

// BatchItem is one subject of a batch with its retrieved passages.
type BatchItem struct {
	Subject  verification.Subject
	Passages []verification.Passage
}

// BatchOutcome is the result of VerifyBatch.
type BatchOutcome struct {
	BatchID     string
	Results     []verification.Result
	Known       verification.KnownVersions
	NewVersions []string
	Approved    int
	Rejected    int
	Hash        string
}

// VerifyBatch verifies every item in order and records URS_BATCH_VERIFIED.
//
// # Description
//
// All subjects are validated first; if any is invalid nothing is verified
// or recorded and the faults are returned joined. Version detection
// threads through the batch so a version is reported once.
func (o *Orchestrator) VerifyBatch(ctx context.Context, items []BatchItem, known verification.KnownVersions, actor string) (BatchOutcome, error) {
	_, span := tracer.Start(ctx, "Orchestrator.VerifyBatch")
	defer span.End()

	batchID := newBatchID()
	span.SetAttributes(
		attribute.String("verify.batch_id", batchID),
		attribute.Int("verify.batch_size", len(items)),
	)

	var invalid []error
	for _, it := range items {
		if err := it.Subject.Validate(); err != nil {
			invalid = append(invalid, err)
		}
	}
	if len(invalid) > 0 {
		return BatchOutcome{}, o.fail(span, OpVerifyBatch, "invalid subjects", errors.Join(invalid...))
	}

	out := BatchOutcome{BatchID: batchID, Known: known, Results: make([]verification.Result, 0, len(items))}
	for _, it := range items {
		one, err := o.verifyOne(span, it.Subject, it.Passages, out.Known, actor, batchID)
		if err != nil {
			return BatchOutcome{}, o.fail(span, OpVerifyBatch, "ledger append failed", err)
		}
		if o.observer != nil {
			o.observer.ObserveDecision(OpVerify, string(one.Result.Verdict))
		}
		out.Known = one.Known
		out.NewVersions = append(out.NewVersions, one.NewVersions...)
		out.Results = append(out.Results, one.Result)
		if one.Result.Rejected() {
			out.Rejected++
		} else {
			out.Approved++
		}
	}

	hash, err := o.ledger.Append(ledger.Event{
		AgentName:     AgentVerificationAgent,
		Action:        ledger.ActionURSBatchVerified,
		ActorID:       actor,
		DecisionLogic: batchLogic(len(items), out.Approved, out.Rejected),
		Reasoning: &ledger.ReasoningChain{
			Inputs:  map[string]any{"batch_id": batchID, "size": len(items)},
			Steps:   subjectIDs(items),
			Outputs: map[string]any{"approved": out.Approved, "rejected": out.Rejected},
		},
	})
	if err != nil {
		return BatchOutcome{}, o.fail(span, OpVerifyBatch, "ledger append failed", err)
	}
	out.Hash = hash

	o.succeed(span, OpVerifyBatch, OutcomeCompleted,
		attribute.Int("verify.approved", out.Approved),
		attribute.Int("verify.rejected", out.Rejected),
	)
	return out, nil
}

func subjectIDs(items []BatchItem) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = "Verified " + it.Subject.ID
	}
	return ids
}
