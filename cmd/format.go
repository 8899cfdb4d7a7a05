// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"

	"github.com/Thermoquad/acmitm/pkg/acproto"
	"github.com/Thermoquad/acmitm/pkg/manchester"
)

// formatUptime formats uptime in milliseconds to human-friendly string
func formatUptime(ms uint64) string {
	seconds := ms / 1000
	units := []struct {
		name string
		size uint64
	}{
		{"day", 24 * 60 * 60},
		{"hour", 60 * 60},
		{"minute", 60},
		{"second", 1},
	}

	parts := []string{}
	for _, u := range units {
		n := seconds / u.size
		seconds %= u.size
		if n == 0 {
			continue
		}
		if n == 1 {
			parts = append(parts, "1 "+u.name)
		} else {
			parts = append(parts, fmt.Sprintf("%d %ss", n, u.name))
		}
	}

	switch len(parts) {
	case 0:
		return "0 seconds"
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

// describeReading renders decoded fields, marking unmapped codes.
func describeReading(r acproto.Reading) string {
	mode, fan := "unmapped", "unmapped"
	if r.Mode != nil {
		mode = r.Mode.String()
	}
	if r.Fan != nil {
		fan = r.Fan.String()
	}
	return fmt.Sprintf("word=0x%X toggle=%t temperature=%dC mode=%s fan=%s",
		r.Word, r.PowerToggle, r.Temperature, mode, fan)
}

// describeCapture decodes pulses with profile for display.
func describeCapture(profile acproto.Profile, pulses []manchester.Pulse) string {
	r, err := profile.Decode(pulses)
	if err != nil {
		return fmt.Sprintf("%s: no frame (%v)", profile.Name(), err)
	}
	s := profile.Name() + ": " + describeReading(r)
	if _, ok := profile.(acproto.Airwell); ok {
		s += "\n  " + acproto.ParseAirwellFrame(r.Word).String()
	}
	return s
}
