// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package verification

import (
	"errors"
	"reflect"
	"strings"

	"github.com/AleutianAI/AleutianCSV/services/compliance/faults"
	"github.com/go-playground/validator/v10"
)

// Subject is a drafted user requirement awaiting verification.
type Subject struct {
	ID                  string `json:"URS_ID" validate:"required"`
	Statement           string `json:"Requirement_Statement" validate:"required"`
	Criticality         string `json:"Criticality" validate:"required"`
	RegulatoryRationale string `json:"Regulatory_Rationale" validate:"required"`
}

var validate = newValidator()

// newValidator reports field errors by their JSON name so fault messages
// use the document vocabulary (URS_ID, Criticality, ...).
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate returns an InvalidSubjectFault listing every missing field.
func (s Subject) Validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	missing := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		missing = append(missing, fe.Field())
	}
	return &faults.InvalidSubjectFault{SubjectID: s.ID, MissingFields: missing}
}
