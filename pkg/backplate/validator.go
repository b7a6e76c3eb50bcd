// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package backplate

import "fmt"

// AnomalyType represents different kinds of telemetry anomalies
type AnomalyType int

const (
	AnomalyLengthMismatch AnomalyType = iota
	AnomalyInvalidTemp
	AnomalyInvalidHumidity
	AnomalyInvalidVoltage
)

// Plausibility limits for sensor readings
const (
	MinTemperatureC = -40.0
	MaxTemperatureC = 85.0
	MaxHumidity     = 100.0
	MaxInputVolts   = 50.0
)

// ValidationError represents a frame that decoded but carries implausible data
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateFrame checks typed payloads for anomalies.
// Returns a slice of validation errors (empty if the frame looks sane).
func ValidateFrame(f Frame) []ValidationError {
	switch f.ID {
	case MsgTempHumidityData, MsgBufferedSensorData:
		return validateTempHumidity(f)
	case MsgBackplateState:
		return validateBackplateState(f)
	case MsgAmbientLightSensor:
		return expectLength(f, 2)
	case MsgRawADCData:
		return expectLength(f, 14)
	case MsgPirMotionEvent, MsgPirDataRaw, MsgProximityEvent, MsgProximitySensorHighDetail:
		return expectLength(f, 4)
	case MsgProxSensor:
		return expectLength(f, 2)
	}
	return nil
}

func expectLength(f Frame, minimum int) []ValidationError {
	if len(f.Payload) >= minimum {
		return nil
	}
	return []ValidationError{{
		Type:    AnomalyLengthMismatch,
		Message: fmt.Sprintf("%s payload too short (expected at least %d bytes)", f.ID, minimum),
		Details: map[string]interface{}{"length": len(f.Payload), "minimum": minimum},
	}}
}

// validateTempHumidity validates TEMP_HUMIDITY_DATA frames
func validateTempHumidity(f Frame) []ValidationError {
	if errs := expectLength(f, 4); errs != nil {
		return errs
	}

	errors := []ValidationError{}
	th, _ := DecodeTempHumidity(f.Payload)

	if th.TemperatureC < MinTemperatureC || th.TemperatureC > MaxTemperatureC {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidTemp,
			Message: fmt.Sprintf("Temperature out of range (%.2f°C, valid: %.0f to %.0f°C)", th.TemperatureC, MinTemperatureC, MaxTemperatureC),
			Details: map[string]interface{}{"value": th.TemperatureC, "min": MinTemperatureC, "max": MaxTemperatureC},
		})
	}

	if th.HumidityPercent > MaxHumidity {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidHumidity,
			Message: fmt.Sprintf("Humidity out of range (%.1f%%, max %.0f%%)", th.HumidityPercent, MaxHumidity),
			Details: map[string]interface{}{"value": th.HumidityPercent, "max": MaxHumidity},
		})
	}

	return errors
}

// validateBackplateState validates BACKPLATE_STATE frames
func validateBackplateState(f Frame) []ValidationError {
	if errs := expectLength(f, 16); errs != nil {
		return errs
	}

	st, _ := DecodeBackplateState(f.Payload)
	if st.InputVolts > MaxInputVolts {
		return []ValidationError{{
			Type:    AnomalyInvalidVoltage,
			Message: fmt.Sprintf("Input voltage out of range (%.2fV, max %.0fV)", st.InputVolts, MaxInputVolts),
			Details: map[string]interface{}{"value": st.InputVolts, "max": MaxInputVolts},
		}}
	}
	return nil
}
