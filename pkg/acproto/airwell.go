// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package acproto

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/acmitm/pkg/manchester"
)

// Airwell frame layout, bit offsets from the LSB.
const (
	AirwellBits    = 34
	AirwellRepeat  = 3
	AirwellHalf    = 950
	airwellOffset  = 15
	airwellOneBit  = 1
	airwellSleep   = 18
	airwellTemp    = 19
	airwellSwing   = 25
	airwellFan     = 28
	airwellMode    = 30
	airwellToggle  = 33
	airwellTempLen = 4
	airwellFanLen  = 2
	airwellModeLen = 3
)

// ErrEmptyFrame is returned for a frame that decodes to the zero word.
var ErrEmptyFrame = errors.New("empty frame")

var airwellModes = NewValueMap(ModeAuto,
	Entry[Mode]{1, ModeCool},
	Entry[Mode]{2, ModeHeat},
	Entry[Mode]{3, ModeAuto},
	Entry[Mode]{4, ModeDry},
	Entry[Mode]{5, ModeFan},
)

var airwellFans = NewValueMap(FanAuto,
	Entry[Fan]{0, FanLow},
	Entry[Fan]{1, FanMedium},
	Entry[Fan]{2, FanHigh},
	Entry[Fan]{3, FanAuto},
)

// AirwellFrame is the raw 34-bit Airwell word split into fields.
type AirwellFrame struct {
	One         bool
	Sleep       bool
	TempNibble  uint8
	Swing       bool
	FanCode     uint8
	ModeCode    uint8
	PowerToggle bool
}

func field(word uint64, offset, width uint) uint64 {
	return (word >> offset) & (1<<width - 1)
}

// ParseAirwellFrame splits a protocol word.
func ParseAirwellFrame(word uint64) AirwellFrame {
	return AirwellFrame{
		One:         field(word, airwellOneBit, 1) == 1,
		Sleep:       field(word, airwellSleep, 1) == 1,
		TempNibble:  uint8(field(word, airwellTemp, airwellTempLen)),
		Swing:       field(word, airwellSwing, 1) == 1,
		FanCode:     uint8(field(word, airwellFan, airwellFanLen)),
		ModeCode:    uint8(field(word, airwellMode, airwellModeLen)),
		PowerToggle: field(word, airwellToggle, 1) == 1,
	}
}

// Word packs the frame back into a protocol word.
func (f AirwellFrame) Word() uint64 {
	var w uint64
	set := func(v uint64, offset, width uint) {
		w |= (v & (1<<width - 1)) << offset
	}
	set(b2u(f.One), airwellOneBit, 1)
	set(b2u(f.Sleep), airwellSleep, 1)
	set(uint64(f.TempNibble), airwellTemp, airwellTempLen)
	set(b2u(f.Swing), airwellSwing, 1)
	set(uint64(f.FanCode), airwellFan, airwellFanLen)
	set(uint64(f.ModeCode), airwellMode, airwellModeLen)
	set(b2u(f.PowerToggle), airwellToggle, 1)
	return w
}

func (f AirwellFrame) String() string {
	return fmt.Sprintf("toggle=%t mode=%d fan=%d temp=%dC swing=%t sleep=%t",
		f.PowerToggle, f.ModeCode, f.FanCode, int(f.TempNibble)+airwellOffset, f.Swing, f.Sleep)
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// Airwell is the Airwell remote protocol.
type Airwell struct{}

func (Airwell) profile() {}

func (Airwell) Name() string { return "Airwell" }

func (Airwell) Bounds() (int, int) { return 16, 30 }

func (Airwell) Modes() []Mode { return airwellModes.Values() }

func (Airwell) Fans() []Fan { return airwellFans.Values() }

func (Airwell) DefaultMode() Mode { return airwellModes.Default() }

func (Airwell) DefaultFan() Fan { return airwellFans.Default() }

func (Airwell) Timing() manchester.Timing {
	return manchester.Timing{
		HeaderMark:  3 * AirwellHalf,
		HeaderSpace: 3 * AirwellHalf,
		HalfPeriod:  AirwellHalf,
		TailMark:    4 * AirwellHalf,
	}
}

func (a Airwell) Decode(pulses []manchester.Pulse) (Reading, error) {
	res, err := manchester.Decode(pulses, a.Timing())
	if err != nil {
		return Reading{}, err
	}
	if res.Value == 0 {
		return Reading{}, ErrEmptyFrame
	}

	frame := ParseAirwellFrame(res.Value)
	r := Reading{
		Word:        res.Value,
		PowerToggle: frame.PowerToggle,
		Temperature: int(frame.TempNibble) + airwellOffset,
	}
	if m, ok := airwellModes.Lookup(int(frame.ModeCode)); ok {
		r.Mode = &m
	}
	if f, ok := airwellFans.Lookup(int(frame.FanCode)); ok {
		r.Fan = &f
	}
	return r, nil
}

func (a Airwell) Encode(cmd Command) ([]manchester.Pulse, uint64) {
	nibble := cmd.Temperature - airwellOffset
	nibble = max(0, min(nibble, 1<<airwellTempLen-1))

	word := AirwellFrame{
		One:         true,
		TempNibble:  uint8(nibble),
		FanCode:     uint8(airwellFans.CodeOrDefault(cmd.Fan)),
		ModeCode:    uint8(airwellModes.CodeOrDefault(cmd.Mode)),
		PowerToggle: cmd.Power != cmd.DetectedPower,
	}.Word()

	return manchester.Encode(a.Timing(), AirwellRepeat, word, AirwellBits), word
}
