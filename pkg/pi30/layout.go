// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pi30

import (
	"fmt"
	"math"
	"strconv"
)

// QPGS response field positions (0-based) as published for PI30 parallel units.
const (
	QPGSParallelNum            = 0
	QPGSSerialNumber           = 1
	QPGSWorkMode               = 2
	QPGSFaultCode              = 3
	QPGSGridVoltage            = 4
	QPGSGridFrequency          = 5
	QPGSOutputVoltage          = 6
	QPGSOutputFrequency        = 7
	QPGSOutputApparentPower    = 8
	QPGSOutputActivePower      = 9
	QPGSLoadPercent            = 10
	QPGSBatteryVoltage         = 11
	QPGSBatteryChargingCurrent = 12
	QPGSBatteryCapacity        = 13
	QPGSPVVoltage              = 14
	QPGSTotalChargingCurrent   = 15
	QPGSTotalApparentPower     = 16
	QPGSTotalActivePower       = 17
	QPGSTotalLoadPercent       = 18
	QPGSInverterStatus         = 19
	QPGSOutputMode             = 20
	QPGSChargerPriority        = 21
	QPGSMaxChargingCurrent     = 22
	QPGSMaxChargingRange       = 23
	QPGSMaxACChargingCurrent   = 24
	QPGSPVCurrent              = 25
	QPGSBatteryDischarge       = 26
	QPGSPV2Voltage             = 27
	QPGSPV2Current             = 28
)

// QPGSFieldNames maps QPGS field positions to the quantity they carry.
var QPGSFieldNames = map[int]string{
	QPGSParallelNum:            "parallel_num",
	QPGSSerialNumber:           "serial_number",
	QPGSWorkMode:               "work_mode",
	QPGSFaultCode:              "fault_code",
	QPGSGridVoltage:            "grid_voltage",
	QPGSGridFrequency:          "grid_frequency",
	QPGSOutputVoltage:          "ac_output_voltage",
	QPGSOutputFrequency:        "ac_output_frequency",
	QPGSOutputApparentPower:    "ac_output_apparent_power",
	QPGSOutputActivePower:      "ac_output_active_power",
	QPGSLoadPercent:            "load_percent",
	QPGSBatteryVoltage:         "battery_voltage",
	QPGSBatteryChargingCurrent: "battery_charging_current",
	QPGSBatteryCapacity:        "battery_capacity",
	QPGSPVVoltage:              "pv_input_voltage",
	QPGSTotalChargingCurrent:   "total_charging_current",
	QPGSTotalApparentPower:     "total_apparent_power",
	QPGSTotalActivePower:       "total_active_power",
	QPGSTotalLoadPercent:       "total_load_percent",
	QPGSInverterStatus:         "inverter_status",
	QPGSOutputMode:             "output_mode",
	QPGSChargerPriority:        "charger_source_priority",
	QPGSMaxChargingCurrent:     "max_charging_current",
	QPGSMaxChargingRange:       "max_charging_range",
	QPGSMaxACChargingCurrent:   "max_ac_charging_current",
	QPGSPVCurrent:              "pv_input_current",
	QPGSBatteryDischarge:       "battery_discharge_current",
	QPGSPV2Voltage:             "pv2_input_voltage",
	QPGSPV2Current:             "pv2_input_current",
}

// Layout names
const (
	LayoutLegacy = "legacy"
	LayoutQPGS   = "qpgs"
	LayoutCustom = "custom"
)

// PVChannel names the voltage and current fields of one PV input.
type PVChannel struct {
	Voltage int `mapstructure:"voltage" yaml:"voltage" json:"voltage"`
	Current int `mapstructure:"current" yaml:"current" json:"current"`
}

// FieldLayout maps QPGS field positions to the quantities used to derive
// PV and load power.
type FieldLayout struct {
	Name       string
	PVChannels []PVChannel
	LoadPower  int
	// MinFields is the shortest field sequence the layout applies to.
	MinFields int
}

// LegacyLayout is the index set used by the first gateway revision: two
// voltage/current pairs at (11,12) and (14,15), load at 9.
func LegacyLayout() FieldLayout {
	return FieldLayout{
		Name: LayoutLegacy,
		PVChannels: []PVChannel{
			{Voltage: 11, Current: 12},
			{Voltage: 14, Current: 15},
		},
		LoadPower: QPGSOutputActivePower,
		MinFields: 15,
	}
}

// QPGSLayout follows the published QPGS field list: PV1 and PV2
// voltage/current pairs, load from AC output active power.
func QPGSLayout() FieldLayout {
	return FieldLayout{
		Name: LayoutQPGS,
		PVChannels: []PVChannel{
			{Voltage: QPGSPVVoltage, Current: QPGSPVCurrent},
			{Voltage: QPGSPV2Voltage, Current: QPGSPV2Current},
		},
		LoadPower: QPGSOutputActivePower,
		MinFields: QPGSPVCurrent + 1,
	}
}

// LayoutByName returns a named preset.
func LayoutByName(name string) (FieldLayout, error) {
	switch name {
	case LayoutLegacy:
		return LegacyLayout(), nil
	case LayoutQPGS:
		return QPGSLayout(), nil
	default:
		return FieldLayout{}, fmt.Errorf("unknown field layout %q", name)
	}
}

// Applies reports whether fields is long enough for the layout.
func (l FieldLayout) Applies(fields []string) bool {
	return len(fields) >= l.MinFields
}

// PVPower sums voltage times current over every PV channel. Missing or
// unparseable fields count as zero.
func (l FieldLayout) PVPower(fields []string) float64 {
	total := 0.0
	for _, ch := range l.PVChannels {
		total += FieldFloat(fields, ch.Voltage) * FieldFloat(fields, ch.Current)
	}
	return total
}

// LoadPowerW returns the load power field. Missing or unparseable fields
// count as zero.
func (l FieldLayout) LoadPowerW(fields []string) float64 {
	return FieldFloat(fields, l.LoadPower)
}

// String formats the layout for logs.
func (l FieldLayout) String() string {
	pv := ""
	for i, ch := range l.PVChannels {
		if i > 0 {
			pv += " "
		}
		pv += fmt.Sprintf("(%d,%d)", ch.Voltage, ch.Current)
	}
	return fmt.Sprintf("%s pv=[%s] load=%d min_fields=%d", l.Name, pv, l.LoadPower, l.MinFields)
}

// Validate checks the layout for inconsistent indices.
// Returns a slice of validation errors (empty if the layout is valid).
func (l FieldLayout) Validate() []ValidationError {
	errors := []ValidationError{}

	if len(l.PVChannels) == 0 {
		errors = append(errors, ValidationError{
			Type:    ANOMALY_NO_PV_CHANNELS,
			Message: "Layout has no PV channels",
			Details: map[string]interface{}{"layout": l.Name},
		})
	}

	if l.MinFields < 1 {
		errors = append(errors, ValidationError{
			Type:    ANOMALY_INVALID_MIN_FIELDS,
			Message: fmt.Sprintf("Invalid min_fields=%d (minimum 1)", l.MinFields),
			Details: map[string]interface{}{"min_fields": l.MinFields},
		})
	}

	used := map[int]string{}
	check := func(index int, role string) {
		if index < 0 {
			errors = append(errors, ValidationError{
				Type:    ANOMALY_NEGATIVE_INDEX,
				Message: fmt.Sprintf("Negative field index %d for %s", index, role),
				Details: map[string]interface{}{"index": index, "role": role},
			})
			return
		}
		if other, ok := used[index]; ok {
			errors = append(errors, ValidationError{
				Type:    ANOMALY_INDEX_COLLISION,
				Message: fmt.Sprintf("Field %d used for both %s and %s", index, other, role),
				Details: map[string]interface{}{"index": index, "roles": []string{other, role}},
			})
			return
		}
		used[index] = role
	}

	check(l.LoadPower, "load")
	for i, ch := range l.PVChannels {
		check(ch.Voltage, fmt.Sprintf("pv%d_voltage", i+1))
		check(ch.Current, fmt.Sprintf("pv%d_current", i+1))
	}

	return errors
}

// FieldFloat parses fields[index] as a float, returning 0 when the field
// is missing or unparseable.
func FieldFloat(fields []string, index int) float64 {
	if index < 0 || index >= len(fields) {
		return 0
	}
	v, err := parseFloat(fields[index])
	if err != nil {
		return 0
	}
	return v
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}
