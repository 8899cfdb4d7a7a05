// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ac

import (
	"fmt"

	"github.com/Thermoquad/acmitm/pkg/acproto"
)

// Persisted word layout, bit offsets from the LSB. Unused bits are zero.
const (
	detectedPowerBit = 0
	powerBit         = 1
	temperatureShift = 2
	temperatureMask  = 0x7F
	fanShift         = 9
	fanMask          = 0x0F
	modeShift        = 13
	modeMask         = 0x0F
)

// State is the canonical appliance state.
type State struct {
	Power         bool
	DetectedPower bool
	Temperature   int
	Mode          acproto.Mode
	Fan           acproto.Fan
}

// Pack encodes s into the persisted word. Temperature is stored in 7 bits.
func (s State) Pack() uint64 {
	var w uint64
	if s.DetectedPower {
		w |= 1 << detectedPowerBit
	}
	if s.Power {
		w |= 1 << powerBit
	}
	w |= (uint64(s.Temperature) & temperatureMask) << temperatureShift
	w |= (uint64(s.Fan) & fanMask) << fanShift
	w |= (uint64(s.Mode) & modeMask) << modeShift
	return w
}

// Unpack decodes a persisted word.
func Unpack(w uint64) State {
	return State{
		DetectedPower: w&(1<<detectedPowerBit) != 0,
		Power:         w&(1<<powerBit) != 0,
		Temperature:   int((w >> temperatureShift) & temperatureMask),
		Fan:           acproto.Fan((w >> fanShift) & fanMask),
		Mode:          acproto.Mode((w >> modeShift) & modeMask),
	}
}

func (s State) String() string {
	return fmt.Sprintf("power=%t detected=%t temperature=%dC mode=%s fan=%s",
		s.Power, s.DetectedPower, s.Temperature, s.Mode, s.Fan)
}

// Change lists the fields an Update should set. Nil fields are left alone.
type Change struct {
	Power       *bool
	Temperature *int
	Mode        *acproto.Mode
	Fan         *acproto.Fan
}

// Empty reports whether c sets no field.
func (c Change) Empty() bool {
	return c.Power == nil && c.Temperature == nil && c.Mode == nil && c.Fan == nil
}

func ptr[T any](v T) *T {
	return &v
}
