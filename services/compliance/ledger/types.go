// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/AleutianAI/AleutianCSV/services/compliance/faults"
	"github.com/go-playground/validator/v10"
)

// Columns is the ledger header, in storage order.
var Columns = []string{
	"Timestamp",
	"User_ID",
	"Agent_Name",
	"Action_Performed",
	"Decision_Logic",
	"Reasoning_Hash",
	"Compliance_Impact",
}

const (
	// SystemActor is recorded when no actor is supplied.
	SystemActor = "SYSTEM"

	// LedgerAgent is the agent name of rows the ledger writes about itself.
	LedgerAgent = "AuditLedger"

	// TimestampLayout is ISO-8601 UTC with microsecond precision.
	TimestampLayout = "2006-01-02T15:04:05.000000Z"

	// ledgerFileMode restricts the ledger and archives to the owner.
	ledgerFileMode = 0600
	ledgerDirMode  = 0700
)

// Record is one persisted ledger row.
type Record struct {
	Timestamp        string `json:"timestamp"`
	ActorID          string `json:"user_id"`
	AgentName        string `json:"agent_name"`
	Action           string `json:"action"`
	DecisionLogic    string `json:"decision_logic"`
	ReasoningHash    string `json:"reasoning_hash"`
	ComplianceImpact string `json:"compliance_impact"`
}

func (r Record) row() []string {
	return []string{
		r.Timestamp,
		r.ActorID,
		r.AgentName,
		r.Action,
		r.DecisionLogic,
		r.ReasoningHash,
		r.ComplianceImpact,
	}
}

func recordFromRow(row []string) Record {
	return Record{
		Timestamp:        row[0],
		ActorID:          row[1],
		AgentName:        row[2],
		Action:           row[3],
		DecisionLogic:    row[4],
		ReasoningHash:    row[5],
		ComplianceImpact: row[6],
	}
}

// ComputeHash returns the record hash over the six stored fields other
// than the hash itself. The timestamp is part of the input, so identical
// events logged at different instants hash differently.
func (r Record) ComputeHash() string {
	return ReasoningHash(r.Timestamp, r.ActorID, r.AgentName, r.Action, r.DecisionLogic, r.ComplianceImpact)
}

// ReasoningHash is the hex SHA-256 of the fields joined by "|".
//
// Fields are neither escaped nor length-prefixed, so moving a "|" across
// a field boundary ("a|b","c" versus "a","b|c") yields the same hash. The
// format is kept for compatibility with existing ledgers; column-level
// checks must not rely on the hash alone.
func ReasoningHash(timestamp, actorID, agentName, action, decisionLogic, complianceImpact string) string {
	payload := strings.Join([]string{timestamp, actorID, agentName, action, decisionLogic, complianceImpact}, "|")
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// Event is the input to Append.
//
// # Fields
//
//   - AgentName: required.
//   - Action: required upper-case code such as URS_VERIFIED ([A-Z0-9_],
//     at most 64 characters). It names the logic archive file.
//   - ActorID: defaults to SystemActor.
//   - DecisionLogic: one-line templated summary.
//   - ComplianceImpact: overrides the action lookup when non-empty.
//   - Reasoning: optional; when set a logic archive is written.
type Event struct {
	AgentName        string          `json:"agent_name"`
	Action           string          `json:"action"`
	ActorID          string          `json:"user_id,omitempty"`
	DecisionLogic    string          `json:"decision_logic"`
	ComplianceImpact string          `json:"compliance_impact,omitempty"`
	Reasoning        *ReasoningChain `json:"reasoning,omitempty"`
}

// ActionRules is the validator rule set for an action code. It is exported
// so request types can apply the same rule at the edge.
const ActionRules = "required,max=64,action_code"

var actionCode = regexp.MustCompile(`^[A-Z0-9_]+$`)

// IsActionCode reports whether s is made only of upper-case letters,
// digits and underscores.
func IsActionCode(s string) bool { return actionCode.MatchString(s) }

// ValidateActionCode is the "action_code" validator function.
func ValidateActionCode(fl validator.FieldLevel) bool {
	return IsActionCode(fl.Field().String())
}

var eventValidator = newEventValidator()

func newEventValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("action_code", ValidateActionCode)
	return v
}

// Validate checks the agent name and action code.
//
// # Outputs
//
//   - error: *faults.InvalidEventFault naming the bad fields.
func (e Event) Validate() error {
	var bad []string
	if strings.TrimSpace(e.AgentName) == "" {
		bad = append(bad, "agent_name")
	}
	if err := eventValidator.Var(e.Action, ActionRules); err != nil {
		bad = append(bad, "action")
	}
	if len(bad) > 0 {
		return &faults.InvalidEventFault{Action: e.Action, Fields: bad}
	}
	return nil
}

// ReasoningChain is the full reasoning behind a decision. All three keys
// must be present. Present but empty values ({} or []) are accepted; a
// missing (nil) part is a MalformedReasoningFault.
type ReasoningChain struct {
	Inputs  map[string]any `json:"inputs" validate:"required"`
	Steps   []string       `json:"steps" validate:"required"`
	Outputs map[string]any `json:"outputs" validate:"required"`
}
