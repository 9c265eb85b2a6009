// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ledger

// Actions recorded by the compliance core and its callers.
const (
	ActionSearchKnowledgeBase      = "SEARCH_KNOWLEDGE_BASE"
	ActionURSGenerated             = "URS_GENERATED"
	ActionURSGenerationFailed      = "URS_GENERATION_FAILED"
	ActionURSTransformed           = "URS_TRANSFORMED_TO_UR_FR"
	ActionDocumentIngested         = "DOCUMENT_INGESTED"
	ActionDocumentIngestionFailed  = "DOCUMENT_INGESTION_FAILED"
	ActionBatchIngestionCompleted  = "BATCH_INGESTION_COMPLETED"
	ActionGapAnalysisCompleted     = "GAP_ANALYSIS_COMPLETED"
	ActionGapAnalysisFailed        = "GAP_ANALYSIS_FAILED"
	ActionRiskAssessmentCompleted  = "RISK_ASSESSMENT_COMPLETED"
	ActionTestingStrategy          = "TESTING_STRATEGY_DETERMINED"
	ActionRiskStrategyDerived      = "RISK_STRATEGY_DERIVED"
	ActionTestScriptGenerated      = "TEST_SCRIPT_GENERATED"
	ActionTestScriptFailed         = "TEST_SCRIPT_GENERATION_FAILED"
	ActionTestBatchGenerated       = "TEST_BATCH_GENERATED"
	ActionChangeRequestReceived    = "CHANGE_REQUEST_RECEIVED"
	ActionChangeRequestAssessed    = "CHANGE_REQUEST_ASSESSED"
	ActionChangeRequestFailed      = "CHANGE_REQUEST_FAILED"
	ActionDocumentSignOff          = "DOCUMENT_SIGN_OFF"
	ActionURSVerified              = "URS_VERIFIED"
	ActionComplianceException      = "COMPLIANCE_EXCEPTION"
	ActionURSBatchVerified         = "URS_BATCH_VERIFIED"
	ActionRegVersionChangeDetected = "REG_VERSION_CHANGE_DETECTED"
	ActionRTMGenerated             = "RTM_GENERATED"
)

// DefaultImpact classifies actions missing from the impact table.
const DefaultImpact = "Operational"

var impactByAction = map[string]string{
	ActionSearchKnowledgeBase:     "Reference Query",
	ActionURSGenerated:            "GxP Documentation",
	ActionURSGenerationFailed:     "GxP Documentation",
	ActionURSTransformed:          "GxP Documentation",
	ActionDocumentIngested:        "Data Integrity",
	ActionDocumentIngestionFailed: "Data Integrity",
	ActionBatchIngestionCompleted: "Data Integrity",
	ActionGapAnalysisCompleted:    "Regulatory Compliance",
	ActionGapAnalysisFailed:       "Regulatory Compliance",
	ActionRiskAssessmentCompleted: "Patient Safety",
	ActionTestScriptGenerated:     "Validation Evidence",
	ActionTestScriptFailed:        "Validation Evidence",
	ActionTestBatchGenerated:      "Validation Evidence",
	ActionChangeRequestReceived:   "Change Control",
	ActionChangeRequestAssessed:   "Change Control",
	ActionChangeRequestFailed:     "Change Control",
	ActionDocumentSignOff:         "Electronic Signature",
	ActionURSVerified:             "Regulatory Compliance",
	ActionComplianceException:     "Compliance Exception",
	ActionURSBatchVerified:        "Regulatory Compliance",
}

// ImpactFor returns the compliance impact for action, or DefaultImpact.
func ImpactFor(action string) string {
	if impact, ok := impactByAction[action]; ok {
		return impact
	}
	return DefaultImpact
}
