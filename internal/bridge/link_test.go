// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/acmitm/pkg/acproto"
	"github.com/Thermoquad/acmitm/pkg/irbridge"
	"github.com/Thermoquad/acmitm/pkg/manchester"
)

type recorded struct {
	mu       sync.Mutex
	captures [][]manchester.Pulse
	edges    []bool
	packets  int
}

func (r *recorded) handlers() Handlers {
	return Handlers{
		OnCapture: func(p []manchester.Pulse) bool {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.captures = append(r.captures, p)
			return true
		},
		OnPower: func(_ int, on bool) bool {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.edges = append(r.edges, on)
			return true
		},
		OnPacket: func(*irbridge.Packet) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.packets++
		},
	}
}

func (r *recorded) snapshot() (int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.captures), len(r.edges), r.packets
}

type harness struct {
	link   *Link
	board  net.Conn
	rec    *recorded
	hook   *test.Hook
	cancel context.CancelFunc
	done   chan error
}

func startLink(t *testing.T) *harness {
	t.Helper()
	host, board := net.Pipe()
	logger, hook := test.NewNullLogger()

	h := &harness{
		link:  NewLink(host, Options{Logger: logrus.NewEntry(logger)}),
		board: board,
		rec:   &recorded{},
		hook:  hook,
		done:  make(chan error, 1),
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.link.Run(ctx, h.rec.handlers()) }()

	t.Cleanup(func() {
		cancel()
		board.Close()
		<-h.done
	})
	return h
}

func (h *harness) send(t *testing.T, p *irbridge.Packet) {
	t.Helper()
	require.NoError(t, h.board.SetWriteDeadline(time.Now().Add(2*time.Second)))
	_, err := h.board.Write(irbridge.EncodePacket(p))
	require.NoError(t, err)
}

func airwellPulses() []manchester.Pulse {
	a := acproto.Airwell{}
	pulses, _ := a.Encode(acproto.Command{Power: true, Temperature: 24, Mode: acproto.ModeCool, Fan: acproto.FanAuto})
	return pulses
}

func TestRunDeliversCaptures(t *testing.T) {
	h := startLink(t)
	pulses := airwellPulses()

	h.send(t, irbridge.NewIRReceived(pulses))

	require.Eventually(t, func() bool {
		n, _, _ := h.rec.snapshot()
		return n == 1
	}, 2*time.Second, 10*time.Millisecond)

	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()
	assert.Equal(t, pulses, h.rec.captures[0])
}

func TestRunFiltersShortCaptures(t *testing.T) {
	h := startLink(t)

	h.send(t, irbridge.NewIRReceived(make([]manchester.Pulse, DefaultMinPulses-1)))
	h.send(t, irbridge.NewPowerChanged(7, true))

	require.Eventually(t, func() bool {
		_, edges, _ := h.rec.snapshot()
		return edges == 1
	}, 2*time.Second, 10*time.Millisecond)

	captures, _, packets := h.rec.snapshot()
	assert.Zero(t, captures)
	assert.Equal(t, 2, packets)
}

func TestRunSkipsNoise(t *testing.T) {
	h := startLink(t)

	_, err := h.board.Write([]byte{0x00, 0x13, irbridge.StartByte, 0x00, 0x05, 0x01, irbridge.EndByte})
	require.NoError(t, err)
	h.send(t, irbridge.NewPowerChanged(7, false))

	require.Eventually(t, func() bool {
		_, edges, _ := h.rec.snapshot()
		return edges == 1
	}, 2*time.Second, 10*time.Millisecond)

	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()
	assert.False(t, h.rec.edges[0])
}

func TestTransmit(t *testing.T) {
	h := startLink(t)
	pulses := airwellPulses()

	got := make(chan *irbridge.Packet, 1)
	go func() {
		dec := irbridge.NewDecoder()
		buf := make([]byte, 512)
		for {
			n, err := h.board.Read(buf)
			if err != nil {
				return
			}
			for _, b := range buf[:n] {
				if p, _ := dec.DecodeByte(b); p != nil {
					got <- p
					return
				}
			}
		}
	}()

	require.NoError(t, h.link.Transmit(pulses))

	select {
	case p := <-got:
		assert.Equal(t, uint8(irbridge.MsgIRTransmit), p.Type())
		sent, ok := p.Pulses()
		require.True(t, ok)
		assert.Equal(t, pulses, sent)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame written")
	}
}

func TestRunLogsTransmitErrors(t *testing.T) {
	h := startLink(t)

	h.send(t, irbridge.NewErrorTransmit(irbridge.TransmitErrorBusy))
	h.send(t, irbridge.NewPowerChanged(7, true))

	require.Eventually(t, func() bool {
		_, edges, _ := h.rec.snapshot()
		return edges == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, _, packets := h.rec.snapshot()
	assert.Equal(t, 2, packets)

	var found bool
	for _, e := range h.hook.AllEntries() {
		if e.Message == "Bridge failed transmitting" {
			found = true
			assert.Equal(t, logrus.ErrorLevel, e.Level)
			assert.EqualValues(t, irbridge.TransmitErrorBusy, e.Data["code"])
		}
	}
	assert.True(t, found)
}

func TestTransmitTooLong(t *testing.T) {
	h := startLink(t)
	err := h.link.Transmit(make([]manchester.Pulse, irbridge.MaxPulses+1))
	assert.ErrorIs(t, err, ErrTooManyPulses)
}

func TestPing(t *testing.T) {
	h := startLink(t)

	go func() {
		dec := irbridge.NewDecoder()
		buf := make([]byte, 64)
		for {
			n, err := h.board.Read(buf)
			if err != nil {
				return
			}
			for _, b := range buf[:n] {
				if p, _ := dec.DecodeByte(b); p != nil && p.Type() == irbridge.MsgPingRequest {
					_, _ = h.board.Write(irbridge.EncodePacket(irbridge.NewPingResponse(42_000)))
				}
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	uptime, rtt, err := h.link.Ping(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(42_000), uptime)
	assert.Greater(t, rtt, time.Duration(0))
}

func TestRunStopsOnCancel(t *testing.T) {
	host, board := net.Pipe()
	defer board.Close()
	link := NewLink(host, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- link.Run(ctx, Handlers{}) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRunReportsRemoteClose(t *testing.T) {
	host, board := net.Pipe()
	link := NewLink(host, Options{})

	done := make(chan error, 1)
	go func() { done <- link.Run(context.Background(), Handlers{}) }()

	board.Close()
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
