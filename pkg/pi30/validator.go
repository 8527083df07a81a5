// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pi30

import "fmt"

// AnomalyType represents different kinds of layout and response problems
type AnomalyType int

const (
	ANOMALY_NO_PV_CHANNELS AnomalyType = iota
	ANOMALY_INVALID_MIN_FIELDS
	ANOMALY_NEGATIVE_INDEX
	ANOMALY_INDEX_COLLISION
	ANOMALY_SHORT_RESPONSE
	ANOMALY_INVALID_VALUE
)

// ValidationError represents a validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateFields checks a decoded QPGS response against a layout.
// Returns a slice of validation errors (empty if the fields are usable).
func ValidateFields(fields []string, layout FieldLayout) []ValidationError {
	errors := []ValidationError{}

	if !layout.Applies(fields) {
		return []ValidationError{{
			Type:    ANOMALY_SHORT_RESPONSE,
			Message: fmt.Sprintf("Response has %d fields (layout %s needs %d)", len(fields), layout.Name, layout.MinFields),
			Details: map[string]interface{}{"fields": len(fields), "minimum": layout.MinFields},
		}}
	}

	check := func(index int, role string) {
		if index >= len(fields) {
			return
		}
		if _, err := parseFloat(fields[index]); err != nil {
			errors = append(errors, ValidationError{
				Type:    ANOMALY_INVALID_VALUE,
				Message: fmt.Sprintf("Field %d (%s) is not numeric: %q", index, role, fields[index]),
				Details: map[string]interface{}{"index": index, "value": fields[index]},
			})
		}
	}

	check(layout.LoadPower, "load")
	for i, ch := range layout.PVChannels {
		check(ch.Voltage, fmt.Sprintf("pv%d_voltage", i+1))
		check(ch.Current, fmt.Sprintf("pv%d_current", i+1))
	}

	return errors
}
