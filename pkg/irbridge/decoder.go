// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package irbridge

import (
	"errors"
	"fmt"
	"time"
)

// ErrCRCMismatch is wrapped by DecodeByte when a frame fails its checksum.
var ErrCRCMismatch = errors.New("CRC mismatch")

// Decoder implements the bridge frame decoder state machine
type Decoder struct {
	state       int
	buffer      []byte // length + payload, unstuffed
	bufferIndex int
	escapeNext  bool
	length      uint16
	crc         uint16
}

// NewDecoder creates a new frame decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state:  stateIdle,
		buffer: make([]byte, LengthSize+MaxPayloadSize),
	}
}

// Reset resets the decoder state to idle
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.bufferIndex = 0
	d.escapeNext = false
	d.length = 0
	d.crc = 0
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed packet, or nil if the frame is incomplete.
// Returns an error if decoding fails; the decoder is then reset.
func (d *Decoder) DecodeByte(b byte) (*Packet, error) {
	switch b {
	case StartByte:
		d.Reset()
		d.state = stateLength1
		return nil, nil

	case EndByte:
		if d.state != stateEnd || d.escapeNext {
			state := d.state
			d.Reset()
			if state == stateIdle {
				return nil, nil
			}
			return nil, fmt.Errorf("unexpected END byte in state %d", state)
		}
		calculated := CalculateCRC(d.buffer[:d.bufferIndex])
		if d.crc != calculated {
			err := fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrCRCMismatch, calculated, d.crc)
			d.Reset()
			return nil, err
		}
		payload := make([]byte, d.length)
		copy(payload, d.buffer[LengthSize:d.bufferIndex])
		packet := &Packet{
			length:      d.length,
			cborPayload: payload,
			crc:         d.crc,
			timestamp:   time.Now(),
		}
		d.Reset()
		return packet, nil

	case EscByte:
		if d.state != stateIdle {
			d.escapeNext = true
		}
		return nil, nil
	}

	if d.escapeNext {
		b ^= EscXor
		d.escapeNext = false
	}

	switch d.state {
	case stateIdle:
		// Waiting for START byte
		return nil, nil

	case stateLength1:
		d.length = uint16(b) << 8
		d.buffer[0] = b
		d.bufferIndex = 1
		d.state = stateLength2
		return nil, nil

	case stateLength2:
		d.length |= uint16(b)
		d.buffer[1] = b
		d.bufferIndex = LengthSize
		if d.length > MaxPayloadSize {
			length := d.length
			d.Reset()
			return nil, fmt.Errorf("invalid length: %d (max %d)", length, MaxPayloadSize)
		}
		if d.length == 0 {
			d.state = stateCRC1
		} else {
			d.state = statePayload
		}
		return nil, nil

	case statePayload:
		if d.bufferIndex >= len(d.buffer) {
			d.Reset()
			return nil, fmt.Errorf("buffer overflow: frame exceeds max size")
		}
		d.buffer[d.bufferIndex] = b
		d.bufferIndex++
		if d.bufferIndex-LengthSize >= int(d.length) {
			d.state = stateCRC1
		}
		return nil, nil

	case stateCRC1:
		d.crc = uint16(b) << 8
		d.state = stateCRC2
		return nil, nil

	case stateCRC2:
		d.crc |= uint16(b)
		d.state = stateEnd
		return nil, nil

	case stateEnd:
		length := d.length
		d.Reset()
		return nil, fmt.Errorf("frame longer than length %d", length)

	default:
		d.Reset()
		return nil, fmt.Errorf("invalid state: %d", d.state)
	}
}
