// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package irbridge

import (
	"time"

	"github.com/Thermoquad/acmitm/pkg/manchester"
)

// Packet is a decoded bridge frame
type Packet struct {
	length      uint16
	cborPayload []byte // [msg_type, payload_map]
	crc         uint16
	timestamp   time.Time

	// Parsed lazily from cborPayload
	msgType    uint8
	payloadMap map[int]interface{}
	parsed     bool
	parseErr   error
}

// NewPacket creates a packet from raw frame fields
func NewPacket(length uint16, cborPayload []byte, crc uint16) *Packet {
	return &Packet{
		length:      length,
		cborPayload: cborPayload,
		crc:         crc,
		timestamp:   time.Now(),
	}
}

// NewPacketWithPayload creates a packet from a message type and payload map.
// CBOR encoding and CRC are computed when the packet is encoded.
func NewPacketWithPayload(msgType uint8, payload map[int]interface{}) *Packet {
	return &Packet{
		msgType:    msgType,
		payloadMap: payload,
		parsed:     true,
		timestamp:  time.Now(),
	}
}

func (p *Packet) ensureParsed() {
	if p.parsed {
		return
	}
	p.parsed = true
	if len(p.cborPayload) == 0 {
		return
	}
	p.msgType, p.payloadMap, p.parseErr = ParseCBORMessage(p.cborPayload)
}

// Length returns the CBOR payload length
func (p *Packet) Length() uint16 {
	return p.length
}

// Type returns the message type
func (p *Packet) Type() uint8 {
	p.ensureParsed()
	return p.msgType
}

// Payload returns the raw CBOR bytes
func (p *Packet) Payload() []byte {
	return p.cborPayload
}

// PayloadMap returns the decoded payload map (nil for empty payloads)
func (p *Packet) PayloadMap() map[int]interface{} {
	p.ensureParsed()
	return p.payloadMap
}

// ParseError returns any error from parsing the CBOR payload
func (p *Packet) ParseError() error {
	p.ensureParsed()
	return p.parseErr
}

// CRC returns the frame CRC
func (p *Packet) CRC() uint16 {
	return p.crc
}

// Timestamp returns when the packet was decoded or built
func (p *Packet) Timestamp() time.Time {
	return p.timestamp
}

// Pulses returns the capture carried by IR_RECEIVED or IR_TRANSMIT.
func (p *Packet) Pulses() ([]manchester.Pulse, bool) {
	switch p.Type() {
	case MsgIRReceived, MsgIRTransmit:
		return GetMapPulses(p.PayloadMap(), 0)
	}
	return nil, false
}

// PowerLevel returns the detector pin and level carried by POWER_CHANGED.
func (p *Packet) PowerLevel() (pin uint64, on bool, ok bool) {
	if p.Type() != MsgPowerChanged {
		return 0, false, false
	}
	m := p.PayloadMap()
	pin, _ = GetMapUint(m, 0)
	level, ok := GetMapUint(m, 1)
	return pin, level != 0, ok
}
