// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the HTTP request and response bodies of the
// decision service.
//
// Request structs carry Gin binding tags (validator/v10). Response structs
// flatten core types into the field names used by the surrounding tooling
// (cr_id, risk_level, testing_strategy, reasoning_hash).
package datatypes

import (
	"github.com/AleutianAI/AleutianCSV/services/compliance/ledger"
	"github.com/AleutianAI/AleutianCSV/services/compliance/risk"
	"github.com/AleutianAI/AleutianCSV/services/compliance/traceability"
	"github.com/AleutianAI/AleutianCSV/services/compliance/verification"
	"github.com/AleutianAI/AleutianCSV/services/policy_engine"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// action_code names the logic archive file, so it is checked at bind time
// as well as by the ledger.
func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("action_code", ledger.ValidateActionCode)
	}
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// =============================================================================
// Change Request Webhook
// =============================================================================

// ChangeRequestWebhook is the ServiceNow change-request notification.
type ChangeRequestWebhook struct {
	CRID              string `json:"cr_id" binding:"required,min=1,max=40"`
	Description       string `json:"description" binding:"required,min=1,max=2000"`
	SystemCriticality string `json:"system_criticality" binding:"required,oneof=high critical medium moderate low minor"`
	ChangeType        string `json:"change_type" binding:"required,oneof=emergency expedited normal standard routine"`
}

// ChangeRequestResponse reports the outcome of a webhook.
type ChangeRequestResponse struct {
	Status         string              `json:"status"`
	CRID           string              `json:"cr_id"`
	Message        string              `json:"message"`
	Timestamp      string              `json:"timestamp"`
	RiskAssessment *RiskAssessmentView `json:"risk_assessment,omitempty"`
	ReasoningHash  string              `json:"reasoning_hash,omitempty"`
	ErrorCode      string              `json:"error_code,omitempty"`
}

// Change request status values.
const (
	StatusAssessed = "assessed"
	StatusError    = "error"
)

// =============================================================================
// Risk
// =============================================================================

// RiskAssessRequest scores a change either from explicit rank names
// (severity, occurrence, detectability as LOW/MEDIUM/HIGH, RARE/OCCASIONAL/
// FREQUENT, HIGH/MEDIUM/LOW) or from free text (criticality, change_type and
// optionally detectability). Explicit mode is used when severity is set.
type RiskAssessRequest struct {
	Severity      string `json:"severity" binding:"omitempty,max=16"`
	Occurrence    string `json:"occurrence" binding:"omitempty,max=16"`
	Criticality   string `json:"criticality" binding:"omitempty,max=64"`
	ChangeType    string `json:"change_type" binding:"omitempty,max=64"`
	Detectability string `json:"detectability" binding:"omitempty,max=64"`
	Reference     string `json:"reference" binding:"omitempty,max=200"`
}

// RiskAssessmentView is the wire form of risk.Assessment with the testing
// strategy rendered as its display name.
type RiskAssessmentView struct {
	Severity              string   `json:"severity"`
	Occurrence            string   `json:"occurrence"`
	Detectability         string   `json:"detectability"`
	RPN                   int      `json:"rpn"`
	RiskLevel             string   `json:"risk_level"`
	TestingStrategy       string   `json:"testing_strategy"`
	PatientSafetyOverride bool     `json:"patient_safety_override"`
	Rule                  string   `json:"rule"`
	Warnings              []string `json:"warnings,omitempty"`
}

// NewRiskAssessmentView converts a core assessment.
func NewRiskAssessmentView(a risk.Assessment) RiskAssessmentView {
	return RiskAssessmentView{
		Severity:              a.Severity.String(),
		Occurrence:            a.Occurrence.String(),
		Detectability:         a.Detectability.String(),
		RPN:                   a.Score,
		RiskLevel:             string(a.Level),
		TestingStrategy:       a.Strategy.DisplayName(),
		PatientSafetyOverride: a.PatientSafetyOverride,
		Rule:                  string(a.Rule),
		Warnings:              a.Warnings,
	}
}

// RiskAssessResponse wraps an assessment with its ledger hash.
type RiskAssessResponse struct {
	RiskAssessment RiskAssessmentView `json:"risk_assessment"`
	ReasoningHash  string             `json:"reasoning_hash"`
}

// StrategyRequest asks for the testing strategy of a risk level.
type StrategyRequest struct {
	RiskLevel string `json:"risk_level" binding:"required,max=16"`
}

// StrategyResponse is the strategy determined for a level.
type StrategyResponse struct {
	RiskLevel       string `json:"risk_level"`
	Strategy        string `json:"strategy"`
	TestingStrategy string `json:"testing_strategy"`
	ReasoningHash   string `json:"reasoning_hash"`
}

// =============================================================================
// Decision Matrix
// =============================================================================

// DeriveRequest selects a decision-matrix cell.
type DeriveRequest struct {
	Category string `json:"category" binding:"required,max=32"`
	Method   string `json:"method" binding:"required,max=32"`
}

// DeriveResponse is the derived risk level and strategy.
type DeriveResponse struct {
	policy_engine.Derivation
	ReasoningHash string `json:"reasoning_hash"`
}

// =============================================================================
// Verification
// =============================================================================

// VerifyRequest verifies one subject. When Passages is empty and the server
// has a retriever, passages are retrieved using TopK and MinScore.
type VerifyRequest struct {
	Subject  verification.Subject   `json:"subject"`
	Passages []verification.Passage `json:"passages" binding:"omitempty,max=50,dive"`
	TopK     int                    `json:"top_k" binding:"omitempty,min=1,max=50"`
	MinScore *float64               `json:"min_score" binding:"omitempty,min=0,max=1"`
}

// VerifyResponse is the verdict for one subject.
type VerifyResponse struct {
	Result        verification.Result    `json:"result"`
	Passages      []verification.Passage `json:"passages"`
	NewVersions   []string               `json:"new_versions"`
	KnownVersions []string               `json:"known_versions"`
	ReasoningHash string                 `json:"reasoning_hash"`
}

// BatchVerifyItem is one subject of a batch.
type BatchVerifyItem struct {
	Subject  verification.Subject   `json:"subject"`
	Passages []verification.Passage `json:"passages" binding:"omitempty,max=50"`
}

// BatchVerifyRequest verifies several subjects in order.
type BatchVerifyRequest struct {
	Items    []BatchVerifyItem `json:"items" binding:"required,min=1,max=100,dive"`
	TopK     int               `json:"top_k" binding:"omitempty,min=1,max=50"`
	MinScore *float64          `json:"min_score" binding:"omitempty,min=0,max=1"`
}

// BatchVerifyResponse summarises a batch.
type BatchVerifyResponse struct {
	BatchID       string                `json:"batch_id"`
	Results       []verification.Result `json:"results"`
	Approved      int                   `json:"approved"`
	Rejected      int                   `json:"rejected"`
	NewVersions   []string              `json:"new_versions"`
	KnownVersions []string              `json:"known_versions"`
	ReasoningHash string                `json:"reasoning_hash"`
}

// =============================================================================
// Traceability
// =============================================================================

// RTMRequest generates a traceability matrix.
type RTMRequest struct {
	Document traceability.Document   `json:"document"`
	Script   traceability.TestScript `json:"test_script"`
}

// RTMResponse is the generated matrix.
type RTMResponse struct {
	Matrix        traceability.Matrix `json:"matrix"`
	Summary       string              `json:"summary"`
	ReasoningHash string              `json:"reasoning_hash"`
}

// =============================================================================
// Audit
// =============================================================================

// AuditEventRequest records an arbitrary agent event.
type AuditEventRequest struct {
	AgentName        string                 `json:"agent_name" binding:"required,max=64"`
	Action           string                 `json:"action" binding:"required,max=64,action_code"`
	DecisionLogic    string                 `json:"decision_logic" binding:"max=4000"`
	ComplianceImpact string                 `json:"compliance_impact" binding:"omitempty,max=64"`
	Reasoning        *ledger.ReasoningChain `json:"reasoning"`
}

// Event converts the request for the ledger, attributing it to actor.
func (r AuditEventRequest) Event(actor string) ledger.Event {
	return ledger.Event{
		AgentName:        r.AgentName,
		Action:           r.Action,
		ActorID:          actor,
		DecisionLogic:    r.DecisionLogic,
		ComplianceImpact: r.ComplianceImpact,
		Reasoning:        r.Reasoning,
	}
}

// AuditEventResponse returns the hash of the recorded event.
type AuditEventResponse struct {
	ReasoningHash string `json:"reasoning_hash"`
}

// AuditRecordsResponse lists ledger records.
type AuditRecordsResponse struct {
	Records []ledger.Record `json:"records"`
	Count   int             `json:"count"`
}

// AuditVerifyResponse reports ledger integrity.
type AuditVerifyResponse struct {
	ledger.Report
	Valid bool `json:"valid"`
}
