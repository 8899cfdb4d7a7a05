// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package acproto

import (
	"errors"
	"testing"

	"github.com/Thermoquad/acmitm/pkg/manchester"
)

// ============================================================
// Registry
// ============================================================

func TestLookupCaseInsensitive(t *testing.T) {
	for _, name := range []string{"Airwell", "airwell", "AIRWELL", "aIrWeLl"} {
		p, err := Lookup(name)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", name, err)
		}
		if p.Name() != "Airwell" {
			t.Errorf("Lookup(%q) = %s", name, p.Name())
		}
	}
}

func TestLookupUnknown(t *testing.T) {
	p, err := Lookup("Daikin")
	if !errors.Is(err, ErrUnknownProfile) {
		t.Errorf("expected ErrUnknownProfile, got %v", err)
	}
	if p != nil {
		t.Errorf("expected nil profile, got %v", p)
	}
}

func TestNames(t *testing.T) {
	names := Names()
	if len(names) != 1 || names[0] != "Airwell" {
		t.Errorf("Names() = %v", names)
	}
}

func TestParseNames(t *testing.T) {
	for m := ModeFan; m <= ModeAuto; m++ {
		got, ok := ParseMode(m.String())
		if !ok || got != m {
			t.Errorf("ParseMode(%q) = %v, %v", m.String(), got, ok)
		}
	}
	for f := FanLow; f <= FanAuto; f++ {
		got, ok := ParseFan(f.String())
		if !ok || got != f {
			t.Errorf("ParseFan(%q) = %v, %v", f.String(), got, ok)
		}
	}
	if _, ok := ParseMode("off"); ok {
		t.Error("off is not a mode")
	}
	if _, ok := ParseFan("turbo"); ok {
		t.Error("turbo is not a fan speed")
	}
	if m, ok := ParseMode(" COOL "); !ok || m != ModeCool {
		t.Error("ParseMode should ignore case and surrounding space")
	}
}

// ============================================================
// Value maps
// ============================================================

func TestValueMap(t *testing.T) {
	if m, ok := airwellModes.Lookup(4); !ok || m != ModeDry {
		t.Errorf("code 4 = %v, %v", m, ok)
	}
	if _, ok := airwellModes.Lookup(7); ok {
		t.Error("code 7 should be unmapped")
	}
	if m := airwellModes.ValueOrDefault(0); m != ModeAuto {
		t.Errorf("default mode = %v", m)
	}
	if c, ok := airwellFans.Code(FanHigh); !ok || c != 2 {
		t.Errorf("FanHigh code = %d, %v", c, ok)
	}

	partial := NewValueMap(FanAuto, Entry[Fan]{3, FanAuto})
	if c := partial.CodeOrDefault(FanLow); c != 3 {
		t.Errorf("CodeOrDefault fallback = %d, want 3", c)
	}
}

// ============================================================
// Airwell
// ============================================================

func TestAirwellFrameFields(t *testing.T) {
	f := AirwellFrame{One: true, TempNibble: 5, FanCode: 3, ModeCode: 1, PowerToggle: true}
	word := f.Word()

	want := uint64(1)<<1 | 5<<19 | 3<<28 | 1<<30 | 1<<33
	if word != want {
		t.Fatalf("word = %#x, want %#x", word, want)
	}
	if ParseAirwellFrame(word) != f {
		t.Errorf("parse mismatch: %+v", ParseAirwellFrame(word))
	}
}

func TestAirwellDecodeScenario(t *testing.T) {
	a := Airwell{}
	word := AirwellFrame{One: true, TempNibble: 5, FanCode: 3, ModeCode: 1, PowerToggle: true}.Word()
	pulses := manchester.Encode(a.Timing(), AirwellRepeat, word, AirwellBits)

	r, err := a.Decode(pulses)
	if err != nil {
		t.Fatal(err)
	}
	if r.Word != word {
		t.Errorf("word = %#x, want %#x", r.Word, word)
	}
	if !r.PowerToggle {
		t.Error("expected power toggle")
	}
	if r.Temperature != 20 {
		t.Errorf("temperature = %d, want 20", r.Temperature)
	}
	if r.Mode == nil || *r.Mode != ModeCool {
		t.Errorf("mode = %v, want cool", r.Mode)
	}
	if r.Fan == nil || *r.Fan != FanAuto {
		t.Errorf("fan = %v, want auto", r.Fan)
	}
}

func TestAirwellDecodeUnmappedMode(t *testing.T) {
	a := Airwell{}
	word := AirwellFrame{One: true, TempNibble: 3, ModeCode: 7}.Word()
	r, err := a.Decode(manchester.Encode(a.Timing(), 1, word, AirwellBits))
	if err != nil {
		t.Fatal(err)
	}
	if r.Mode != nil {
		t.Errorf("unmapped mode code decoded as %v", *r.Mode)
	}
	if r.Fan == nil || *r.Fan != FanLow {
		t.Errorf("fan = %v, want low", r.Fan)
	}
}

func TestAirwellDecodeEmpty(t *testing.T) {
	a := Airwell{}
	_, err := a.Decode(manchester.Encode(a.Timing(), 1, 0, AirwellBits))
	if !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("expected ErrEmptyFrame, got %v", err)
	}

	_, err = a.Decode([]manchester.Pulse{{Level0: 0, Duration0: 100, Level1: 1, Duration1: 100}})
	if !errors.Is(err, manchester.ErrInvalidHeader) {
		t.Errorf("expected ErrInvalidHeader, got %v", err)
	}
}

func TestAirwellEncode(t *testing.T) {
	a := Airwell{}
	tests := []struct {
		name   string
		cmd    Command
		toggle bool
	}{
		{"turn on", Command{Power: true, DetectedPower: false, Temperature: 24, Mode: ModeHeat, Fan: FanMedium}, true},
		{"turn off", Command{Power: false, DetectedPower: true, Temperature: 16, Mode: ModeDry, Fan: FanLow}, true},
		{"adjust", Command{Power: true, DetectedPower: true, Temperature: 30, Mode: ModeFan, Fan: FanHigh}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pulses, word := a.Encode(tt.cmd)
			if len(pulses) != (1+AirwellBits)*AirwellRepeat+1 {
				t.Errorf("got %d pulses", len(pulses))
			}

			r, err := a.Decode(pulses)
			if err != nil {
				t.Fatal(err)
			}
			if r.Word != word {
				t.Errorf("decoded %#x, encoded %#x", r.Word, word)
			}
			if r.PowerToggle != tt.toggle {
				t.Errorf("toggle = %v, want %v", r.PowerToggle, tt.toggle)
			}
			if r.Temperature != tt.cmd.Temperature {
				t.Errorf("temperature = %d, want %d", r.Temperature, tt.cmd.Temperature)
			}
			if r.Mode == nil || *r.Mode != tt.cmd.Mode {
				t.Errorf("mode = %v, want %v", r.Mode, tt.cmd.Mode)
			}
			if r.Fan == nil || *r.Fan != tt.cmd.Fan {
				t.Errorf("fan = %v, want %v", r.Fan, tt.cmd.Fan)
			}
			if !ParseAirwellFrame(word).One {
				t.Error("constant one bit not set")
			}
		})
	}
}

func TestAirwellEncodeClampsNibble(t *testing.T) {
	_, word := Airwell{}.Encode(Command{Power: true, Temperature: 5})
	if n := ParseAirwellFrame(word).TempNibble; n != 0 {
		t.Errorf("nibble = %d, want 0", n)
	}
	_, word = Airwell{}.Encode(Command{Power: true, Temperature: 99})
	if n := ParseAirwellFrame(word).TempNibble; n != 15 {
		t.Errorf("nibble = %d, want 15", n)
	}
}

func TestBoundsHelpers(t *testing.T) {
	var p Profile = Airwell{}
	if !InBounds(p, 16) || !InBounds(p, 30) || InBounds(p, 15) || InBounds(p, 31) {
		t.Error("bounds should be inclusive 16..30")
	}
	if !SupportsMode(p, ModeFan) || SupportsMode(p, Mode(9)) {
		t.Error("SupportsMode mismatch")
	}
	if !SupportsFan(p, FanAuto) || SupportsFan(p, Fan(9)) {
		t.Error("SupportsFan mismatch")
	}
}
