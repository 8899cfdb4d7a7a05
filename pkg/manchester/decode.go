// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package manchester

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidHeader is returned when the first pulse is not a header.
	ErrInvalidHeader = errors.New("manchester: invalid header")

	// ErrNoData is returned when the header is valid but no bit follows it.
	ErrNoData = errors.New("manchester: no data after header")
)

// BodyError reports where body parsing stopped. Decode returns it wrapped
// only when no bit could be recovered; otherwise it is kept on the Result.
type BodyError struct {
	Index    int
	Phase    string
	Duration uint16
}

func (e *BodyError) Error() string {
	return fmt.Sprintf("manchester: invalid %s phase %d us at pulse %d", e.Phase, e.Duration, e.Index)
}

// Result is a decoded protocol word.
type Result struct {
	Value uint64

	// Bits is the number of bits accumulated into Value, MSB first.
	Bits int

	// Parsed is the number of body pulses consumed, for diagnostics.
	Parsed int

	// Stop describes the phase that ended the body, nil if the pulses ran out.
	Stop *BodyError
}

type class int

const (
	classInvalid class = iota
	classHalf
	classDouble
	classOver
)

type decoder struct {
	half uint32
	pct  uint32

	pending bool
	level   uint8

	value uint64
	bits  int
}

func (d *decoder) classify(duration uint16) class {
	v := uint32(duration)
	switch {
	case WithinTolerance(v, d.half*2, d.pct):
		return classDouble
	case WithinTolerance(v, d.half, d.pct):
		return classHalf
	case v > d.half*2*(100+d.pct)/100:
		return classOver
	}
	return classInvalid
}

// edge consumes one phase at level. A pending backlog of the opposite level
// completes a bit cell: entering low ends a high-then-low cell (1), entering
// high ends a low-then-high cell (0).
func (d *decoder) edge(level uint8, c class) {
	if d.pending && d.level != level {
		d.value <<= 1
		if level == LevelLow {
			d.value |= 1
		}
		d.bits++
		d.pending = false
		if c == classDouble {
			d.pending = true
			d.level = level
		}
		return
	}
	d.pending = true
	d.level = level
}

// Decode parses a received transmission into a protocol word.
//
// The capture is normalized first, so raw encoder output and hardware
// captures decode the same way. Parsing stops at the first phase that is
// neither a half nor a double half-period. A phase longer than a double
// half-period (the tail mark, or an idle gap) still completes the bit cell
// pending before it. Decode fails only when the header is invalid or no bit
// was recovered.
func Decode(pulses []Pulse, t Timing) (Result, error) {
	pulses = Normalize(pulses)
	if len(pulses) == 0 {
		return Result{}, ErrInvalidHeader
	}

	d := &decoder{half: uint32(t.HalfPeriod), pct: t.tolerance()}

	header := pulses[0]
	if !WithinTolerance(uint32(header.Duration0), uint32(t.HeaderMark), d.pct) {
		return Result{}, fmt.Errorf("%w: mark %d us", ErrInvalidHeader, header.Duration0)
	}

	space := uint32(header.Duration1)
	switch {
	case WithinTolerance(space, uint32(t.HeaderSpace)+d.half, d.pct):
		var excess uint32
		if space > uint32(t.HeaderSpace) {
			excess = space - uint32(t.HeaderSpace)
		}
		// Only a genuine extra half-period seeds the backlog, not one
		// accepted through tolerance drift on the combined duration.
		if WithinTolerance(excess, d.half, d.pct) {
			d.pending = true
			d.level = header.Level1
		}
	case WithinTolerance(space, uint32(t.HeaderSpace), d.pct):
	default:
		return Result{}, fmt.Errorf("%w: space %d us", ErrInvalidHeader, header.Duration1)
	}

	res := Result{}
	body := pulses[1:]
	for i, p := range body {
		if stop := d.phase(i, "low", LevelLow, p.Duration0); stop != nil {
			res.Stop = stop
			break
		}
		if stop := d.phase(i, "high", LevelHigh, p.Duration1); stop != nil {
			res.Stop = stop
			break
		}
		res.Parsed = i + 1
	}

	res.Value = d.value
	res.Bits = d.bits
	if d.bits == 0 {
		if res.Stop != nil {
			return res, fmt.Errorf("%w: %w", ErrNoData, res.Stop)
		}
		return res, ErrNoData
	}
	return res, nil
}

func (d *decoder) phase(index int, name string, level uint8, duration uint16) *BodyError {
	switch c := d.classify(duration); c {
	case classHalf, classDouble:
		d.edge(level, c)
		return nil
	case classOver:
		if d.pending && d.level != level {
			d.edge(level, c)
		}
	}
	return &BodyError{Index: index, Phase: name, Duration: duration}
}
