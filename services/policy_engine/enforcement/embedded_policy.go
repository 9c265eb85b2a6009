// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package enforcement bakes the decision matrix policy into the compiled binary so
the classification tables cannot be edited on the host filesystem without a
rebuild.
*/
package enforcement

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
)

// DecisionMatrixPolicy holds the raw bytes of decision_matrix.yaml.
//
// Usage:
//
//	err := yaml.Unmarshal(enforcement.DecisionMatrixPolicy, &policyFile)
//
//go:embed decision_matrix.yaml
var DecisionMatrixPolicy []byte

// PolicyHash returns the hex SHA-256 of the embedded policy. It is recorded
// alongside matrix decisions so an audit can tie a decision to the exact table.
func PolicyHash() string {
	sum := sha256.Sum256(DecisionMatrixPolicy)
	return hex.EncodeToString(sum[:])
}
