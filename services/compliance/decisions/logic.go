// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package decisions

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianCSV/services/compliance/risk"
	"github.com/AleutianAI/AleutianCSV/services/compliance/verification"
	"github.com/AleutianAI/AleutianCSV/services/policy_engine"
)

// Decision-logic templates. Ledger entries must be reproducible from the
// same inputs, so every summary is built here from fixed formats.

func riskLogic(ref string, a risk.Assessment) string {
	var b strings.Builder
	if ref != "" {
		fmt.Fprintf(&b, "%s: ", ref)
	}
	fmt.Fprintf(&b, "RPN=%d (S=%s x O=%s x D=%s); ", a.Score, a.Severity, a.Occurrence, a.Detectability)
	if a.PatientSafetyOverride {
		b.WriteString("patient-safety-first override: severity HIGH forces High; ")
	} else {
		fmt.Fprintf(&b, "threshold %s fired; ", a.Rule)
	}
	fmt.Fprintf(&b, "Risk=%s -> Strategy=%s", a.Level, a.Strategy.DisplayName())
	return b.String()
}

func strategyLogic(level risk.Level, strategy risk.Strategy) string {
	return fmt.Sprintf("Risk=%s -> Strategy=%s", level, strategy.DisplayName())
}

func derivationLogic(d policy_engine.Derivation, version string) string {
	return fmt.Sprintf("Category=%s, Method=%s -> Risk=%s -> Strategy=%s (policy %s)",
		d.Category, d.Method, d.RiskLevel, d.TestStrategy, version)
}

func verificationLogic(s verification.Subject, r verification.Result) string {
	if r.Rejected() {
		failed := r.FailedFindings()
		names := make([]string, len(failed))
		details := make([]string, len(failed))
		for i, f := range failed {
			names[i] = f.CheckName
			details[i] = f.CheckName + ": " + f.Detail
		}
		return fmt.Sprintf("REJECTED %s: Failed checks: %s. %s",
			s.ID, strings.Join(names, ", "), strings.Join(details, " | "))
	}
	names := make([]string, len(r.Findings))
	for i, f := range r.Findings {
		names[i] = f.CheckName
	}
	return fmt.Sprintf("APPROVED %s: All checks passed (%s). Criticality %s confirmed against regulatory context.",
		s.ID, strings.Join(names, ", "), s.Criticality)
}

func batchLogic(total, approved, rejected int) string {
	return fmt.Sprintf("Batch-verified %d requirements; %d approved, %d rejected", total, approved, rejected)
}

func versionLogic(version string) string {
	return fmt.Sprintf("New regulatory version %s detected during verification", version)
}

func changeRequestLogic(cr ChangeRequest) string {
	return fmt.Sprintf("Received %s: criticality=%s, change_type=%s", cr.ID, cr.Criticality, cr.ChangeType)
}

func changeAssessedLogic(cr ChangeRequest, a risk.Assessment) string {
	return fmt.Sprintf("Assessed %s: %s risk, %s", cr.ID, a.Level, a.Strategy.DisplayName())
}

func changeFailedLogic(cr ChangeRequest, err error) string {
	return fmt.Sprintf("Failed %s: %v", cr.ID, err)
}
