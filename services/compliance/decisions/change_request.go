// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package decisions

import (
	"context"

	"github.com/AleutianAI/AleutianCSV/services/compliance/ledger"
	"github.com/AleutianAI/AleutianCSV/services/compliance/risk"
)

// ChangeRequest is an incoming IT change request to be risk-assessed.
type ChangeRequest struct {
	ID          string
	Description string
	Criticality string
	ChangeType  string
	ActorID     string
}

// ChangeAssessment is the outcome of AssessChangeRequest.
type ChangeAssessment struct {
	Assessment risk.Assessment
	Hash       string
}

// AssessChangeRequest records CHANGE_REQUEST_RECEIVED, assesses the
// request and records CHANGE_REQUEST_ASSESSED.
//
// # Description
//
// When any step fails, CHANGE_REQUEST_FAILED is recorded on a best-effort
// basis and the original error is returned.
func (o *Orchestrator) AssessChangeRequest(ctx context.Context, cr ChangeRequest) (ChangeAssessment, error) {
	ctx, span := tracer.Start(ctx, "Orchestrator.AssessChangeRequest")
	defer span.End()

	out, err := o.assessChangeRequest(ctx, cr)
	if err != nil {
		if _, logErr := o.ledger.Append(ledger.Event{
			AgentName:     AgentAPI,
			Action:        ledger.ActionChangeRequestFailed,
			ActorID:       cr.ActorID,
			DecisionLogic: changeFailedLogic(cr, err),
		}); logErr != nil {
			o.logger.Error("decisions.change_request.failure_not_recorded",
				"change.id", cr.ID,
				"error", logErr,
			)
		}
		return ChangeAssessment{}, o.fail(span, OpChangeRequest, "change request failed", err)
	}

	o.succeed(span, OpChangeRequest, string(out.Assessment.Level))
	return out, nil
}

func (o *Orchestrator) assessChangeRequest(ctx context.Context, cr ChangeRequest) (ChangeAssessment, error) {
	if _, err := o.ledger.Append(ledger.Event{
		AgentName:     AgentAPI,
		Action:        ledger.ActionChangeRequestReceived,
		ActorID:       cr.ActorID,
		DecisionLogic: changeRequestLogic(cr),
	}); err != nil {
		return ChangeAssessment{}, err
	}

	a, hash, err := o.AssessRisk(ctx, AssessRequest{
		Criticality: cr.Criticality,
		ChangeType:  cr.ChangeType,
		Reference:   cr.ID,
		ActorID:     cr.ActorID,
	})
	if err != nil {
		return ChangeAssessment{}, err
	}

	if _, err := o.ledger.Append(ledger.Event{
		AgentName:     AgentAPI,
		Action:        ledger.ActionChangeRequestAssessed,
		ActorID:       cr.ActorID,
		DecisionLogic: changeAssessedLogic(cr, a),
	}); err != nil {
		return ChangeAssessment{}, err
	}

	return ChangeAssessment{Assessment: a, Hash: hash}, nil
}
