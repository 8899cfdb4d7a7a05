// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package irbridge

import "github.com/Thermoquad/acmitm/pkg/manchester"

// Builders return Packet structs ready for encoding with the correct payload
// keys for each message type.

// NewIRTransmit creates an IR_TRANSMIT packet (0x10).
// The bridge replies with ERROR_TRANSMIT only on failure.
func NewIRTransmit(pulses []manchester.Pulse) *Packet {
	return NewPacketWithPayload(MsgIRTransmit, map[int]interface{}{
		0: PulsesToCBOR(pulses),
	})
}

// NewPingRequest creates a PING_REQUEST packet (0x2F).
// The bridge responds with PING_RESPONSE containing its uptime.
func NewPingRequest() *Packet {
	return NewPacketWithPayload(MsgPingRequest, nil)
}

// NewPingResponse creates a PING_RESPONSE packet (0x3F).
func NewPingResponse(uptimeMs uint64) *Packet {
	return NewPacketWithPayload(MsgPingResponse, map[int]interface{}{
		0: uptimeMs,
	})
}

// NewIRReceived creates an IR_RECEIVED packet (0x30), as sent by the bridge.
func NewIRReceived(pulses []manchester.Pulse) *Packet {
	return NewPacketWithPayload(MsgIRReceived, map[int]interface{}{
		0: PulsesToCBOR(pulses),
	})
}

// NewPowerChanged creates a POWER_CHANGED packet (0x31), as sent by the bridge.
func NewPowerChanged(pin uint8, on bool) *Packet {
	level := uint64(0)
	if on {
		level = 1
	}
	return NewPacketWithPayload(MsgPowerChanged, map[int]interface{}{
		0: uint64(pin),
		1: level,
	})
}

// NewErrorTransmit creates an ERROR_TRANSMIT packet (0xE0).
func NewErrorTransmit(code TransmitError) *Packet {
	return NewPacketWithPayload(MsgErrorTransmit, map[int]interface{}{
		0: uint64(code),
	})
}
