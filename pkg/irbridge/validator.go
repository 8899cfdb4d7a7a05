// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package irbridge

import (
	"fmt"

	"github.com/Thermoquad/acmitm/pkg/manchester"
)

// AnomalyType represents different types of packet anomalies
type AnomalyType int

const (
	AnomalyDecodeError AnomalyType = iota
	AnomalyCRCError
	AnomalyMissingField
	AnomalyTooManyPulses
	AnomalyInvalidLevel
	AnomalyInvalidDuration
	AnomalyInvalidValue
)

// ValidationError represents a packet validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidatePacket validates payload contents and detects anomalies.
// Returns a slice of validation errors (empty if packet is valid)
func ValidatePacket(p *Packet) []ValidationError {
	if err := p.ParseError(); err != nil {
		return []ValidationError{{
			Type:    AnomalyDecodeError,
			Message: fmt.Sprintf("CBOR decode error: %v", err),
		}}
	}

	switch p.Type() {
	case MsgIRReceived, MsgIRTransmit:
		return validatePulses(p)
	case MsgPowerChanged:
		return validatePowerChanged(p)
	case MsgErrorTransmit:
		return validateErrorTransmit(p)
	}
	return nil
}

func validatePulses(p *Packet) []ValidationError {
	pulses, ok := p.Pulses()
	if !ok {
		return []ValidationError{{
			Type:    AnomalyMissingField,
			Message: fmt.Sprintf("%s without a valid pulse list", FormatMessageType(p.Type())),
		}}
	}

	errors := []ValidationError{}
	if len(pulses) > MaxPulses {
		errors = append(errors, ValidationError{
			Type:    AnomalyTooManyPulses,
			Message: fmt.Sprintf("Too many pulses (%d, max %d)", len(pulses), MaxPulses),
			Details: map[string]interface{}{"count": len(pulses), "max": MaxPulses},
		})
	}

	for i, pulse := range pulses {
		if pulse.Level0 == pulse.Level1 {
			errors = append(errors, ValidationError{
				Type:    AnomalyInvalidLevel,
				Message: fmt.Sprintf("Pulse %d has equal levels (%d)", i, pulse.Level0),
				Details: map[string]interface{}{"index": i, "level": pulse.Level0},
			})
		}
		if pulse.Duration0 > manchester.EndDuration || pulse.Duration1 > manchester.EndDuration {
			errors = append(errors, ValidationError{
				Type:    AnomalyInvalidDuration,
				Message: fmt.Sprintf("Pulse %d duration exceeds %d us", i, manchester.EndDuration),
				Details: map[string]interface{}{"index": i, "d0": pulse.Duration0, "d1": pulse.Duration1},
			})
		}
	}

	return errors
}

func validatePowerChanged(p *Packet) []ValidationError {
	level, ok := GetMapUint(p.PayloadMap(), 1)
	if !ok {
		return []ValidationError{{
			Type:    AnomalyMissingField,
			Message: "POWER_CHANGED without a level",
		}}
	}
	if level > 1 {
		return []ValidationError{{
			Type:    AnomalyInvalidValue,
			Message: fmt.Sprintf("Invalid power level=%d (valid 0-1)", level),
			Details: map[string]interface{}{"level": level},
		}}
	}
	return nil
}

func validateErrorTransmit(p *Packet) []ValidationError {
	code, ok := GetMapUint(p.PayloadMap(), 0)
	if !ok {
		return []ValidationError{{
			Type:    AnomalyMissingField,
			Message: "ERROR_TRANSMIT without a code",
		}}
	}
	if code > uint64(TransmitErrorInvalid) {
		return []ValidationError{{
			Type:    AnomalyInvalidValue,
			Message: fmt.Sprintf("Invalid transmit error code=%d (valid 0-%d)", code, TransmitErrorInvalid),
			Details: map[string]interface{}{"code": code, "max": int(TransmitErrorInvalid)},
		}}
	}
	return nil
}
