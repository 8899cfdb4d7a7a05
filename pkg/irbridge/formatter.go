// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package irbridge

import (
	"fmt"
	"strings"

	"github.com/Thermoquad/acmitm/pkg/manchester"
)

// maxFormattedPulses bounds how many pulses FormatPayloadMap prints.
const maxFormattedPulses = 8

// FormatPacket formats a packet into a human-readable string
func FormatPacket(p *Packet) string {
	timestamp := p.timestamp.Format("15:04:05.000")
	msgType := FormatMessageType(p.Type())

	result := fmt.Sprintf("[%s] %s (0x%02X) len=%d\n", timestamp, msgType, p.Type(), p.length)

	payloadMap := p.PayloadMap()
	if payloadMap != nil || p.Type() == MsgPingRequest {
		result += FormatPayloadMap(p.Type(), payloadMap)
	}

	return result
}

// FormatMessageType returns the human-readable name for a message type
func FormatMessageType(msgType uint8) string {
	switch msgType {
	case MsgIRTransmit:
		return "IR_TRANSMIT"
	case MsgPingRequest:
		return "PING_REQUEST"
	case MsgIRReceived:
		return "IR_RECEIVED"
	case MsgPowerChanged:
		return "POWER_CHANGED"
	case MsgPingResponse:
		return "PING_RESPONSE"
	case MsgErrorTransmit:
		return "ERROR_TRANSMIT"
	case MsgErrorInvalidCmd:
		return "ERROR_INVALID_CMD"
	default:
		return "UNKNOWN"
	}
}

// FormatPayloadMap formats the CBOR payload map based on message type
func FormatPayloadMap(msgType uint8, m map[int]interface{}) string {
	switch msgType {
	case MsgPingRequest:
		return "  (no payload)\n"

	case MsgPingResponse:
		// 0 => uptime-ms
		uptime, _ := GetMapUint(m, 0)
		return fmt.Sprintf("  Uptime: %s\n", formatDuration(uptime))

	case MsgIRReceived, MsgIRTransmit:
		// 0 => [[level0, duration0, level1, duration1], ...]
		pulses, ok := GetMapPulses(m, 0)
		if !ok {
			return "  Pulses: (malformed)\n"
		}
		return fmt.Sprintf("  Pulses: %d %s\n", len(pulses), FormatPulses(pulses, maxFormattedPulses))

	case MsgPowerChanged:
		// 0 => pin, 1 => level
		pin, _ := GetMapUint(m, 0)
		level, _ := GetMapUint(m, 1)
		state := "OFF"
		if level != 0 {
			state = "ON"
		}
		return fmt.Sprintf("  Pin: %d, Level: %s (%d)\n", pin, state, level)

	case MsgErrorTransmit:
		// 0 => code
		code, _ := GetMapUint(m, 0)
		return fmt.Sprintf("  Code: %s (%d)\n", formatTransmitError(TransmitError(code)), code)
	}

	if len(m) == 0 {
		return "  (no payload)\n"
	}
	return fmt.Sprintf("  Payload: %v\n", m)
}

// FormatPulses renders up to limit pulses as {l0:d0,l1:d1} pairs.
// A limit of zero prints every pulse.
func FormatPulses(pulses []manchester.Pulse, limit int) string {
	var sb strings.Builder
	n := len(pulses)
	if limit > 0 && n > limit {
		n = limit
	}
	for i := 0; i < n; i++ {
		p := pulses[i]
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "{%d:%d,%d:%d}", p.Level0, p.Duration0, p.Level1, p.Duration1)
	}
	if n < len(pulses) {
		fmt.Fprintf(&sb, " ... (+%d)", len(pulses)-n)
	}
	return sb.String()
}

func formatTransmitError(code TransmitError) string {
	switch code {
	case TransmitErrorNone:
		return "NONE"
	case TransmitErrorBusy:
		return "BUSY"
	case TransmitErrorTimeout:
		return "TIMEOUT"
	case TransmitErrorTooLong:
		return "TOO_LONG"
	case TransmitErrorInvalid:
		return "INVALID"
	default:
		return "UNKNOWN"
	}
}

// formatDuration converts milliseconds to human-readable duration
func formatDuration(ms uint64) string {
	seconds := ms / 1000
	if seconds == 0 {
		return fmt.Sprintf("%d ms", ms)
	}

	const (
		secondsPerMinute = 60
		secondsPerHour   = 60 * secondsPerMinute
		secondsPerDay    = 24 * secondsPerHour
	)

	units := []struct {
		name string
		size uint64
	}{
		{"day", secondsPerDay},
		{"hour", secondsPerHour},
		{"minute", secondsPerMinute},
		{"second", 1},
	}

	parts := []string{}
	for _, u := range units {
		n := seconds / u.size
		seconds %= u.size
		switch {
		case n == 1:
			parts = append(parts, "1 "+u.name)
		case n > 1:
			parts = append(parts, fmt.Sprintf("%d %ss", n, u.name))
		}
	}

	if len(parts) == 1 {
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
}
