// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package irbridge implements the framed serial protocol spoken by the IR
// bridge board.
//
// The bridge sits between the air conditioner's IR receiver and emitter. It
// reports every captured transmission and every edge of the power detector
// input, and transmits pulse sequences on request. Frames are byte-stuffed,
// CRC-16-CCITT protected, and carry a CBOR message [msg_type, payload_map].
package irbridge

// Protocol framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Packet size limits
const (
	LengthSize     = 2
	CRCSize        = 2
	MaxPayloadSize = 8192
	MaxPacketSize  = LengthSize + MaxPayloadSize + CRCSize
)

// CRC-16-CCITT configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// Message types - Commands (Host → Bridge) 0x10-0x2F
const (
	MsgIRTransmit  = 0x10
	MsgPingRequest = 0x2F
)

// Message types - Reports (Bridge → Host) 0x30-0x3F
const (
	MsgIRReceived   = 0x30
	MsgPowerChanged = 0x31
	MsgPingResponse = 0x3F
)

// Message types - Errors (Bridge → Host) 0xE0-0xEF
const (
	MsgErrorTransmit   = 0xE0
	MsgErrorInvalidCmd = 0xE1
)

// Decoder states (internal)
const (
	stateIdle = iota
	stateLength1
	stateLength2
	statePayload
	stateCRC1
	stateCRC2
	stateEnd
)

// TransmitError is the code carried by ERROR_TRANSMIT.
type TransmitError int

// Transmit error values
const (
	TransmitErrorNone    TransmitError = 0x00
	TransmitErrorBusy    TransmitError = 0x01
	TransmitErrorTimeout TransmitError = 0x02
	TransmitErrorTooLong TransmitError = 0x03
	TransmitErrorInvalid TransmitError = 0x04
)

// MaxPulses is the largest capture the bridge reports or accepts.
const MaxPulses = 512
