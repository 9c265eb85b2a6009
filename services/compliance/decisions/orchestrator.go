// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package decisions composes the compliance engines with the audit ledger.
//
// # Description
//
// Every operation runs one pure engine (risk scoring, the decision matrix,
// verification or RTM generation), builds a templated one-line decision
// summary and appends it to the ledger. A ledger failure fails the whole
// operation: callers never receive a decision that was not recorded.
//
// # Thread Safety
//
// Orchestrator is safe for concurrent use. It holds no mutable state;
// regulatory version tracking is passed in and returned by the caller.
package decisions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianCSV/services/compliance/ledger"
	"github.com/AleutianAI/AleutianCSV/services/compliance/risk"
	"github.com/AleutianAI/AleutianCSV/services/compliance/traceability"
	"github.com/AleutianAI/AleutianCSV/services/compliance/verification"
	"github.com/AleutianAI/AleutianCSV/services/policy_engine"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("aleutian.csv.decisions")

// Agent names recorded in the ledger.
const (
	AgentRiskStrategist    = "RiskStrategist"
	AgentDeltaAgent        = "DeltaAgent"
	AgentVerificationAgent = "VerificationAgent"
	AgentAuditorAgent      = "AuditorAgent"
	AgentAPI               = "API"
)

// Operation names reported to the Observer.
const (
	OpRiskScore      = "risk_score"
	OpRiskAssess     = "risk_assess"
	OpStrategy       = "testing_strategy"
	OpDerive         = "matrix_derive"
	OpVerify         = "verify"
	OpVerifyBatch    = "verify_batch"
	OpRTM            = "rtm"
	OpChangeRequest  = "change_request"
	OpLogEvent       = "log_event"
	OutcomeError     = "error"
	OutcomeCompleted = "completed"
)

// Ledger is the append side of the audit ledger.
type Ledger interface {
	Append(ev ledger.Event) (string, error)
}

// Observer receives one call per completed or failed operation.
type Observer interface {
	ObserveDecision(operation, outcome string)
}

// Orchestrator runs decisions and records them.
type Orchestrator struct {
	ledger   Ledger
	matrix   *policy_engine.DecisionMatrix
	verifier *verification.Engine
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMatrix replaces the embedded decision matrix.
func WithMatrix(m *policy_engine.DecisionMatrix) Option {
	return func(o *Orchestrator) { o.matrix = m }
}

// WithVerifier replaces the default verification engine.
func WithVerifier(e *verification.Engine) Option {
	return func(o *Orchestrator) { o.verifier = e }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithObserver registers a decision observer, typically metrics.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithNow overrides the time source used for generated documents.
func WithNow(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator recording to l.
func New(l Ledger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		ledger:   l,
		matrix:   policy_engine.Default(),
		verifier: verification.NewEngine(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Matrix returns the decision matrix in use.
func (o *Orchestrator) Matrix() *policy_engine.DecisionMatrix { return o.matrix }

// Verifier returns the verification engine in use.
func (o *Orchestrator) Verifier() *verification.Engine { return o.verifier }

// =============================================================================
// Risk
// =============================================================================

// ScoreRequest scores explicit ranks.
type ScoreRequest struct {
	Severity      risk.Severity
	Occurrence    risk.Occurrence
	Detectability risk.Detectability
	Reference     string
	ActorID       string
}

// ScoreRisk scores explicit ranks and records RISK_ASSESSMENT_COMPLETED.
//
// # Outputs
//
//   - risk.Assessment: the scored assessment.
//   - string: the ledger reasoning hash.
//   - error: an invalid rank, or a ledger fault.
func (o *Orchestrator) ScoreRisk(ctx context.Context, req ScoreRequest) (risk.Assessment, string, error) {
	_, span := tracer.Start(ctx, "Orchestrator.ScoreRisk")
	defer span.End()

	a, err := risk.Score(req.Severity, req.Occurrence, req.Detectability)
	if err != nil {
		return risk.Assessment{}, "", o.fail(span, OpRiskScore, "invalid ranks", err)
	}

	hash, err := o.recordAssessment(req.Reference, req.ActorID, a, map[string]any{
		"severity":      a.Severity.String(),
		"occurrence":    a.Occurrence.String(),
		"detectability": a.Detectability.String(),
	})
	if err != nil {
		return risk.Assessment{}, "", o.fail(span, OpRiskScore, "ledger append failed", err)
	}

	o.succeed(span, OpRiskScore, string(a.Level), attribute.Int("risk.rpn", a.Score))
	return a, hash, nil
}

// AssessRequest scores free-text change-request vocabulary.
type AssessRequest struct {
	Criticality   string
	ChangeType    string
	Detectability string
	Reference     string
	ActorID       string
}

// AssessRisk maps free text to ranks, scores them and records
// RISK_ASSESSMENT_COMPLETED. Unmapped words fall back to defaults and are
// logged as warnings; they never fail the call.
func (o *Orchestrator) AssessRisk(ctx context.Context, req AssessRequest) (risk.Assessment, string, error) {
	_, span := tracer.Start(ctx, "Orchestrator.AssessRisk")
	defer span.End()

	a := risk.AssessFreeText(req.Criticality, req.ChangeType, req.Detectability)
	for _, w := range a.Warnings {
		o.logger.Warn("decisions.risk.input_defaulted",
			"risk.reference", req.Reference,
			"risk.warning", w,
		)
	}

	hash, err := o.recordAssessment(req.Reference, req.ActorID, a, map[string]any{
		"system_criticality": req.Criticality,
		"change_type":        req.ChangeType,
		"detectability":      req.Detectability,
	})
	if err != nil {
		return risk.Assessment{}, "", o.fail(span, OpRiskAssess, "ledger append failed", err)
	}

	o.succeed(span, OpRiskAssess, string(a.Level),
		attribute.Int("risk.rpn", a.Score),
		attribute.Int("risk.warnings", len(a.Warnings)),
	)
	return a, hash, nil
}

func (o *Orchestrator) recordAssessment(ref, actor string, a risk.Assessment, inputs map[string]any) (string, error) {
	if ref != "" {
		inputs["reference"] = ref
	}
	steps := []string{
		fmt.Sprintf("Ranked S=%s (%d), O=%s (%d), D=%s (%d)",
			a.Severity, a.Severity.Rank(), a.Occurrence, a.Occurrence.Rank(), a.Detectability, a.Detectability.Rank()),
		fmt.Sprintf("Computed RPN=%d", a.Score),
		fmt.Sprintf("Applied rule %s -> %s", a.Rule, a.Level),
		fmt.Sprintf("Selected %s", a.Strategy.DisplayName()),
	}
	steps = append(steps, a.Warnings...)

	return o.ledger.Append(ledger.Event{
		AgentName:     AgentRiskStrategist,
		Action:        ledger.ActionRiskAssessmentCompleted,
		ActorID:       actor,
		DecisionLogic: riskLogic(ref, a),
		Reasoning: &ledger.ReasoningChain{
			Inputs: inputs,
			Steps:  steps,
			Outputs: map[string]any{
				"rpn":                     a.Score,
				"risk_level":              string(a.Level),
				"testing_strategy":        a.Strategy.DisplayName(),
				"patient_safety_override": a.PatientSafetyOverride,
			},
		},
	})
}

// DetermineTestingStrategy records the strategy for level.
func (o *Orchestrator) DetermineTestingStrategy(ctx context.Context, level risk.Level, actor string) (risk.Strategy, string, error) {
	_, span := tracer.Start(ctx, "Orchestrator.DetermineTestingStrategy")
	defer span.End()

	level, err := risk.ParseLevel(string(level))
	if err != nil {
		return "", "", o.fail(span, OpStrategy, "invalid level", err)
	}
	strategy := risk.StrategyFor(level)

	hash, err := o.ledger.Append(ledger.Event{
		AgentName:     AgentDeltaAgent,
		Action:        ledger.ActionTestingStrategy,
		ActorID:       actor,
		DecisionLogic: strategyLogic(level, strategy),
	})
	if err != nil {
		return "", "", o.fail(span, OpStrategy, "ledger append failed", err)
	}

	o.succeed(span, OpStrategy, string(strategy))
	return strategy, hash, nil
}

// =============================================================================
// Decision Matrix
// =============================================================================

// DeriveRiskAndStrategy looks up both matrix tables and records
// RISK_STRATEGY_DERIVED. A missing cell is returned as a ConfigurationFault
// and nothing is recorded.
func (o *Orchestrator) DeriveRiskAndStrategy(ctx context.Context, category policy_engine.Category, method policy_engine.Method, actor string) (policy_engine.Derivation, string, error) {
	_, span := tracer.Start(ctx, "Orchestrator.DeriveRiskAndStrategy")
	defer span.End()
	span.SetAttributes(
		attribute.String("matrix.category", string(category)),
		attribute.String("matrix.method", string(method)),
	)

	d, err := o.matrix.Derive(category, method)
	if err != nil {
		o.logger.Error("decisions.matrix.configuration_fault",
			"matrix.category", string(category),
			"matrix.method", string(method),
			"error", err,
		)
		return policy_engine.Derivation{}, "", o.fail(span, OpDerive, "configuration fault", err)
	}

	hash, err := o.ledger.Append(ledger.Event{
		AgentName:     AgentRiskStrategist,
		Action:        ledger.ActionRiskStrategyDerived,
		ActorID:       actor,
		DecisionLogic: derivationLogic(d, o.matrix.Version()),
		Reasoning: &ledger.ReasoningChain{
			Inputs: map[string]any{
				"category":       string(category),
				"method":         string(method),
				"policy_version": o.matrix.Version(),
				"policy_hash":    o.matrix.PolicyHash(),
			},
			Steps: []string{
				fmt.Sprintf("%s(%s, %s) = %s", policy_engine.RiskLevelTable, category, method, d.RiskLevel),
				fmt.Sprintf("%s(%s, %s) = %s", policy_engine.TestStrategyTable, d.RiskLevel, method, d.TestStrategy),
			},
			Outputs: map[string]any{
				"risk_level":    string(d.RiskLevel),
				"test_strategy": d.TestStrategy,
			},
		},
	})
	if err != nil {
		return policy_engine.Derivation{}, "", o.fail(span, OpDerive, "ledger append failed", err)
	}

	o.succeed(span, OpDerive, string(d.RiskLevel))
	return d, hash, nil
}

// =============================================================================
// Traceability
// =============================================================================

// GenerateRTM builds the traceability matrix and records RTM_GENERATED.
func (o *Orchestrator) GenerateRTM(ctx context.Context, doc traceability.Document, script traceability.TestScript, actor string) (traceability.Matrix, string, error) {
	_, span := tracer.Start(ctx, "Orchestrator.GenerateRTM")
	defer span.End()

	m := traceability.Generate(doc, script, o.now())

	hash, err := o.ledger.Append(ledger.Event{
		AgentName:     AgentAuditorAgent,
		Action:        ledger.ActionRTMGenerated,
		ActorID:       actor,
		DecisionLogic: m.Summary(),
		Reasoning: &ledger.ReasoningChain{
			Inputs: map[string]any{
				"urs_id":    m.URSID,
				"script_id": m.TestScriptID,
				"fr_count":  m.Total,
			},
			Steps: []string{
				"Extracted FRs from UR/FR document",
				"Matched test steps by requirement_reference",
				fmt.Sprintf("Found %d covered, %d gaps", m.Covered, m.Gaps),
			},
			Outputs: map[string]any{
				"rtm_id":       m.RTMID,
				"coverage_pct": m.CoveragePercentage,
			},
		},
	})
	if err != nil {
		return traceability.Matrix{}, "", o.fail(span, OpRTM, "ledger append failed", err)
	}

	o.succeed(span, OpRTM, OutcomeCompleted, attribute.Float64("rtm.coverage", m.CoveragePercentage))
	return m, hash, nil
}

// =============================================================================
// Free-form events
// =============================================================================

// LogEvent appends a caller-described event. Events with an action that is
// not an upper-case code are rejected by the ledger with an InvalidEventFault.
func (o *Orchestrator) LogEvent(ctx context.Context, ev ledger.Event) (string, error) {
	_, span := tracer.Start(ctx, "Orchestrator.LogEvent")
	defer span.End()
	span.SetAttributes(attribute.String("ledger.action", ev.Action))

	// A hash returned with an error means the row was written but its
	// logic archive was not.
	hash, err := o.ledger.Append(ev)
	if err != nil {
		return hash, o.fail(span, OpLogEvent, "ledger append failed", err)
	}
	o.succeed(span, OpLogEvent, OutcomeCompleted, attribute.String("ledger.reasoning_hash", hash))
	return hash, nil
}

// =============================================================================
// Helpers
// =============================================================================

func (o *Orchestrator) fail(span trace.Span, op, msg string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	if o.observer != nil {
		o.observer.ObserveDecision(op, OutcomeError)
	}
	return err
}

func (o *Orchestrator) succeed(span trace.Span, op, outcome string, attrs ...attribute.KeyValue) {
	span.SetAttributes(append(attrs, attribute.String("decision.outcome", outcome))...)
	if o.observer != nil {
		o.observer.ObserveDecision(op, outcome)
	}
}

// newBatchID returns an identifier correlating a batch's ledger entries.
func newBatchID() string {
	return uuid.NewString()
}
