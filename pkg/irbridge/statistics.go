// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package irbridge

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks frame and capture statistics
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Frame counters
	TotalPackets     uint64
	ValidPackets     uint64
	CRCErrors        uint64
	DecodeErrors     uint64
	MalformedPackets uint64

	// Capture counters
	Captures        uint64
	ShortCaptures   uint64
	DecodedFrames   uint64
	UndecodedFrames uint64
	PowerEdges      uint64
	TransmitErrors  uint64

	// Rates (calculated)
	PacketRate float64 // packets/sec
	ErrorRate  float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update records one frame and the result of decoding and validating it
func (s *Statistics) Update(packet *Packet, decodeErr error, validationErrors []ValidationError) {
	s.TotalPackets++
	s.LastUpdateTime = time.Now()

	if decodeErr != nil {
		if errors.Is(decodeErr, ErrCRCMismatch) {
			s.CRCErrors++
		} else {
			s.DecodeErrors++
		}
		return
	}

	if len(validationErrors) > 0 {
		s.MalformedPackets++
		return
	}
	s.ValidPackets++

	switch packet.Type() {
	case MsgIRReceived:
		s.Captures++
	case MsgPowerChanged:
		s.PowerEdges++
	case MsgErrorTransmit:
		s.TransmitErrors++
	}
}

// RecordCapture records the outcome of decoding a capture into a protocol word.
// Captures shorter than the noise floor count as short and are not decoded.
func (s *Statistics) RecordCapture(short, decoded bool) {
	switch {
	case short:
		s.ShortCaptures++
	case decoded:
		s.DecodedFrames++
	default:
		s.UndecodedFrames++
	}
}

// CalculateRates updates the packet and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.PacketRate = float64(s.TotalPackets) / elapsed
		s.ErrorRate = float64(s.CRCErrors+s.DecodeErrors+s.MalformedPackets) / elapsed
	}
}

// DecodeRate returns the percentage of captures that decoded to a frame
func (s *Statistics) DecodeRate() float64 {
	attempts := s.DecodedFrames + s.UndecodedFrames
	if attempts == 0 {
		return 0
	}
	return float64(s.DecodedFrames) * 100.0 / float64(attempts)
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent float64
	if s.TotalPackets > 0 {
		validPercent = float64(s.ValidPackets) * 100.0 / float64(s.TotalPackets)
	}

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", time.Since(s.StartTime).Seconds())
	result += fmt.Sprintf("Total Packets:   %8d\n", s.TotalPackets)
	result += fmt.Sprintf("Valid Packets:   %8d (%.1f%%)\n", s.ValidPackets, validPercent)

	if s.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d\n", s.CRCErrors)
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d\n", s.DecodeErrors)
	}
	if s.MalformedPackets > 0 {
		result += fmt.Sprintf("Malformed Pkts:  %8d\n", s.MalformedPackets)
	}

	result += fmt.Sprintf("IR Captures:     %8d (short %d)\n", s.Captures, s.ShortCaptures)
	result += fmt.Sprintf("Decoded Frames:  %8d (%.1f%%)\n", s.DecodedFrames, s.DecodeRate())
	result += fmt.Sprintf("Power Edges:     %8d\n", s.PowerEdges)
	if s.TransmitErrors > 0 {
		result += fmt.Sprintf("Transmit Errors: %8d\n", s.TransmitErrors)
	}

	result += fmt.Sprintf("Packet Rate:     %8.2f pkt/s\n", s.PacketRate)
	result += fmt.Sprintf("Error Rate:      %8.2f err/s\n", s.ErrorRate)

	return result
}
