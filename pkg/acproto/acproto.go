// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package acproto maps vendor IR protocol words to a canonical air
// conditioner state.
package acproto

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Thermoquad/acmitm/pkg/manchester"
)

// ErrUnknownProfile is returned by Lookup for an unrecognized model name.
var ErrUnknownProfile = errors.New("unknown AC profile")

// Mode is the canonical operating mode.
type Mode uint8

const (
	ModeFan Mode = iota
	ModeCool
	ModeHeat
	ModeDry
	ModeAuto
)

var modeNames = map[Mode]string{
	ModeFan:  "fan_only",
	ModeCool: "cool",
	ModeHeat: "heat",
	ModeDry:  "dry",
	ModeAuto: "auto",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// ParseMode accepts the names produced by Mode.String.
func ParseMode(s string) (Mode, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m, name := range modeNames {
		if name == s {
			return m, true
		}
	}
	return 0, false
}

// Fan is the canonical fan speed.
type Fan uint8

const (
	FanLow Fan = iota
	FanMedium
	FanHigh
	FanAuto
)

var fanNames = map[Fan]string{
	FanLow:    "low",
	FanMedium: "medium",
	FanHigh:   "high",
	FanAuto:   "auto",
}

func (f Fan) String() string {
	if name, ok := fanNames[f]; ok {
		return name
	}
	return fmt.Sprintf("fan(%d)", uint8(f))
}

// ParseFan accepts the names produced by Fan.String.
func ParseFan(s string) (Fan, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for f, name := range fanNames {
		if name == s {
			return f, true
		}
	}
	return 0, false
}

// Entry associates a protocol code with a canonical value.
type Entry[T comparable] struct {
	Code  int
	Value T
}

// ValueMap is a bidirectional code/value table with a default for
// unmapped values.
type ValueMap[T comparable] struct {
	entries []Entry[T]
	def     T
}

// NewValueMap builds a map. def is returned by ValueOrDefault and used by
// CodeOrDefault for values without an entry.
func NewValueMap[T comparable](def T, entries ...Entry[T]) ValueMap[T] {
	return ValueMap[T]{entries: entries, def: def}
}

// Lookup returns the value mapped to code.
func (m ValueMap[T]) Lookup(code int) (T, bool) {
	for _, e := range m.entries {
		if e.Code == code {
			return e.Value, true
		}
	}
	var zero T
	return zero, false
}

// ValueOrDefault returns the value mapped to code, or the default.
func (m ValueMap[T]) ValueOrDefault(code int) T {
	if v, ok := m.Lookup(code); ok {
		return v
	}
	return m.def
}

// Code returns the code mapped to v.
func (m ValueMap[T]) Code(v T) (int, bool) {
	for _, e := range m.entries {
		if e.Value == v {
			return e.Code, true
		}
	}
	return 0, false
}

// CodeOrDefault returns the code mapped to v, falling back to the default
// value's code.
func (m ValueMap[T]) CodeOrDefault(v T) int {
	if c, ok := m.Code(v); ok {
		return c
	}
	c, _ := m.Code(m.def)
	return c
}

// Default returns the default value.
func (m ValueMap[T]) Default() T {
	return m.def
}

// Values lists the mapped values in table order.
func (m ValueMap[T]) Values() []T {
	out := make([]T, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Value
	}
	return out
}

// Reading is a decoded remote frame, already translated to canonical
// values. Fields whose codes had no mapping are nil.
type Reading struct {
	Word        uint64
	PowerToggle bool
	Temperature int
	Mode        *Mode
	Fan         *Fan
}

// Command is the state a transmitted frame should bring the unit to.
type Command struct {
	Power         bool
	DetectedPower bool
	Temperature   int
	Mode          Mode
	Fan           Fan
}

// Profile is one vendor protocol. The set is closed; see Lookup.
type Profile interface {
	Name() string

	// Bounds returns the accepted temperature range in °C, inclusive.
	Bounds() (min, max int)

	Modes() []Mode
	Fans() []Fan

	// DefaultMode and DefaultFan replace unsupported persisted values.
	DefaultMode() Mode
	DefaultFan() Fan

	Timing() manchester.Timing

	Decode(pulses []manchester.Pulse) (Reading, error)

	// Encode returns the pulses to transmit and the protocol word they carry.
	Encode(cmd Command) ([]manchester.Pulse, uint64)

	profile()
}

var profiles = []Profile{
	Airwell{},
}

// Lookup resolves a model name, ignoring case.
func Lookup(name string) (Profile, error) {
	for _, p := range profiles {
		if strings.EqualFold(p.Name(), name) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
}

// Names lists the supported model names.
func Names() []string {
	out := make([]string, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, p.Name())
	}
	return out
}

// SupportsMode reports whether p accepts m.
func SupportsMode(p Profile, m Mode) bool {
	return slices.Contains(p.Modes(), m)
}

// SupportsFan reports whether p accepts f.
func SupportsFan(p Profile, f Fan) bool {
	return slices.Contains(p.Fans(), f)
}

// InBounds reports whether t is within p's temperature range.
func InBounds(p Profile, t int) bool {
	lo, hi := p.Bounds()
	return lo <= t && t <= hi
}
