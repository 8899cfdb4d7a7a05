// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package manchester

// Encode builds a transmission for value. The frame (header plus width bits,
// MSB first) is emitted repeat times, followed by a single tail pulse whose
// high phase is EndDuration.
func Encode(t Timing, repeat int, value uint64, width int) []Pulse {
	if width > 64 {
		width = 64
	}
	if width < 0 {
		width = 0
	}

	header := Pulse{Level0: LevelLow, Duration0: t.HeaderMark, Level1: LevelHigh, Duration1: t.HeaderSpace}
	tail := Pulse{Level0: LevelLow, Duration0: t.TailMark, Level1: LevelHigh, Duration1: EndDuration}
	bit0 := Pulse{Level0: LevelLow, Duration0: t.HalfPeriod, Level1: LevelHigh, Duration1: t.HalfPeriod}
	bit1 := Pulse{Level0: LevelHigh, Duration0: t.HalfPeriod, Level1: LevelLow, Duration1: t.HalfPeriod}

	out := make([]Pulse, 0, (1+width)*max(repeat, 0)+1)
	for r := 0; r < repeat; r++ {
		out = append(out, header)
		for bit := width - 1; bit >= 0; bit-- {
			if value&(1<<uint(bit)) != 0 {
				out = append(out, bit1)
			} else {
				out = append(out, bit0)
			}
		}
	}
	return append(out, tail)
}
