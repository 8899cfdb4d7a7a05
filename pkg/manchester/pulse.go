// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package manchester implements the timing-tolerant Manchester line code
// used by air conditioner IR remotes.
//
// A transmission is a header pulse followed by body pulses. Each bit cell is
// two half-periods: a bit 1 is high-then-low, a bit 0 is low-then-high.
// Receivers see consecutive half-periods of the same level merged into one
// double-length phase; the decoder carries a one half-period backlog across
// phases to undo that compression.
package manchester

// Signal levels as reported by the IR receiver.
const (
	LevelLow  = 0
	LevelHigh = 1
)

// EndDuration is the high-phase duration of the terminating pulse. It is
// long enough for any receiver timeout to close the capture.
const EndDuration = 0x7FFF

// DefaultTolerance is the accepted timing deviation in percent.
const DefaultTolerance = 25

// Pulse is one low-phase/high-phase pair, durations in microseconds.
type Pulse struct {
	Level0    uint8
	Duration0 uint16
	Level1    uint8
	Duration1 uint16
}

// Timing describes the line-code parameters of one vendor protocol.
type Timing struct {
	HeaderMark  uint16
	HeaderSpace uint16
	HalfPeriod  uint16
	TailMark    uint16

	// Tolerance in percent. Zero selects DefaultTolerance.
	Tolerance uint16
}

func (t Timing) tolerance() uint32 {
	if t.Tolerance == 0 {
		return DefaultTolerance
	}
	return uint32(t.Tolerance)
}

// WithinTolerance reports whether value lies within ±pct percent of expected.
func WithinTolerance(value, expected uint32, pct uint32) bool {
	lower := expected * (100 - pct) / 100
	upper := expected * (100 + pct) / 100
	return lower <= value && value <= upper
}

type phase struct {
	level    uint8
	duration uint32
}

// Normalize merges adjacent phases of the same level and re-pairs the result
// into alternating low/high pulses, the shape a hardware receiver reports.
// Zero-length phases are dropped, as is idle high time before the first mark.
// Captures that already alternate pass through unchanged.
func Normalize(pulses []Pulse) []Pulse {
	phases := make([]phase, 0, len(pulses)*2)
	push := func(level uint8, d uint16) {
		if d == 0 {
			return
		}
		if level != LevelLow {
			level = LevelHigh
		}
		if n := len(phases); n > 0 && phases[n-1].level == level {
			phases[n-1].duration += uint32(d)
			return
		}
		if len(phases) == 0 && level == LevelHigh {
			return
		}
		phases = append(phases, phase{level: level, duration: uint32(d)})
	}
	for _, p := range pulses {
		push(p.Level0, p.Duration0)
		push(p.Level1, p.Duration1)
	}

	out := make([]Pulse, 0, (len(phases)+1)/2)
	for i := 0; i < len(phases); i += 2 {
		p := Pulse{
			Level0:    LevelLow,
			Duration0: clamp(phases[i].duration),
			Level1:    LevelHigh,
		}
		if i+1 < len(phases) {
			p.Duration1 = clamp(phases[i+1].duration)
		}
		out = append(out, p)
	}
	return out
}

func clamp(d uint32) uint16 {
	if d > EndDuration {
		return EndDuration
	}
	return uint16(d)
}
