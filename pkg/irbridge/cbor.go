// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package irbridge

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/acmitm/pkg/manchester"
)

// ParseCBORMessage parses a bridge CBOR message: [msg_type, payload_map]
// Returns the message type and decoded payload map (nil for empty payloads)
func ParseCBORMessage(data []byte) (msgType uint8, payload map[int]interface{}, err error) {
	if len(data) == 0 {
		return 0, nil, fmt.Errorf("empty CBOR payload")
	}

	var msg []interface{}
	if err := cbor.Unmarshal(data, &msg); err != nil {
		return 0, nil, fmt.Errorf("failed to decode CBOR: %w", err)
	}

	if len(msg) != 2 {
		return 0, nil, fmt.Errorf("expected 2-element array, got %d elements", len(msg))
	}

	switch v := msg[0].(type) {
	case uint64:
		if v > 255 {
			return 0, nil, fmt.Errorf("message type out of range: %d", v)
		}
		msgType = uint8(v)
	default:
		return 0, nil, fmt.Errorf("expected uint for message type, got %T", msg[0])
	}

	if msg[1] == nil {
		return msgType, nil, nil
	}

	m, ok := msg[1].(map[interface{}]interface{})
	if !ok {
		return 0, nil, fmt.Errorf("expected map or nil for payload, got %T", msg[1])
	}
	payload = make(map[int]interface{}, len(m))
	for key, val := range m {
		switch k := key.(type) {
		case uint64:
			payload[int(k)] = val
		case int64:
			payload[int(k)] = val
		default:
			return 0, nil, fmt.Errorf("expected integer map key, got %T", key)
		}
	}

	return msgType, payload, nil
}

// GetMapUint extracts a uint64 from a CBOR map by key
func GetMapUint(m map[int]interface{}, key int) (uint64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	return toUint(v)
}

func toUint(v interface{}) (uint64, bool) {
	switch val := v.(type) {
	case uint64:
		return val, true
	case int64:
		if val >= 0 {
			return uint64(val), true
		}
	}
	return 0, false
}

// GetMapPulses extracts a pulse list encoded as [[level0, duration0,
// level1, duration1], ...]. Any malformed entry rejects the whole list.
func GetMapPulses(m map[int]interface{}, key int) ([]manchester.Pulse, bool) {
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, false
	}

	pulses := make([]manchester.Pulse, 0, len(list))
	for _, item := range list {
		fields, ok := item.([]interface{})
		if !ok || len(fields) != 4 {
			return nil, false
		}
		var raw [4]uint64
		for i, f := range fields {
			u, ok := toUint(f)
			if !ok {
				return nil, false
			}
			raw[i] = u
		}
		if raw[0] > 1 || raw[2] > 1 || raw[1] > 0xFFFF || raw[3] > 0xFFFF {
			return nil, false
		}
		pulses = append(pulses, manchester.Pulse{
			Level0:    uint8(raw[0]),
			Duration0: uint16(raw[1]),
			Level1:    uint8(raw[2]),
			Duration1: uint16(raw[3]),
		})
	}
	return pulses, true
}

// PulsesToCBOR converts pulses to the payload representation used by
// GetMapPulses.
func PulsesToCBOR(pulses []manchester.Pulse) []interface{} {
	out := make([]interface{}, len(pulses))
	for i, p := range pulses {
		out[i] = []interface{}{
			uint64(p.Level0), uint64(p.Duration0),
			uint64(p.Level1), uint64(p.Duration1),
		}
	}
	return out
}
