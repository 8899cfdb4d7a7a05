// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge talks to the IR bridge board: it turns received frames into
// captures and power edges, and sends transmit and ping requests.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/acmitm/internal/metrics"
	"github.com/Thermoquad/acmitm/pkg/irbridge"
	"github.com/Thermoquad/acmitm/pkg/manchester"
)

// DefaultMinPulses is the shortest capture passed on; shorter ones are noise.
const DefaultMinPulses = 5

// ErrTooManyPulses is returned by Transmit for sequences the bridge rejects.
var ErrTooManyPulses = errors.New("too many pulses")

// Handlers receive decoded bridge reports. They run on the reader goroutine
// and must not block.
type Handlers struct {
	// OnCapture gets every capture at least MinPulses long.
	OnCapture func(pulses []manchester.Pulse) bool

	// OnPower gets every power detector edge.
	OnPower func(pin int, on bool) bool

	// OnPacket, when set, sees every valid frame before dispatch.
	OnPacket func(p *irbridge.Packet)
}

// Options configures a Link.
type Options struct {
	MinPulses int
	Logger    *logrus.Entry
}

// Link is one session with a bridge board. Transmit and Ping may be called
// from any goroutine while Run reads.
type Link struct {
	conn      Conn
	minPulses int

	writeMu sync.Mutex
	pong    chan uint64

	log *logrus.Entry
}

// NewLink wraps an open connection.
func NewLink(conn Conn, opts Options) *Link {
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	minPulses := opts.MinPulses
	if minPulses <= 0 {
		minPulses = DefaultMinPulses
	}
	return &Link{
		conn:      conn,
		minPulses: minPulses,
		pong:      make(chan uint64, 1),
		log:       log.WithField("component", "bridge"),
	}
}

// Run reads frames until ctx is cancelled or the connection fails. The
// connection is closed on return.
func (l *Link) Run(ctx context.Context, h Handlers) error {
	stop := context.AfterFunc(ctx, func() { l.conn.Close() })
	defer stop()
	defer l.conn.Close()

	decoder := irbridge.NewDecoder()
	buf := make([]byte, 256)

	for {
		n, err := l.conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("bridge closed the connection")
			}
			return fmt.Errorf("bridge read: %w", err)
		}

		for i := 0; i < n; i++ {
			packet, err := decoder.DecodeByte(buf[i])
			if err != nil {
				metrics.RecordBridgeFrame(false)
				l.log.WithError(err).Debug("Dropping malformed frame")
				continue
			}
			if packet == nil {
				continue
			}
			metrics.RecordBridgeFrame(true)
			l.dispatch(packet, h)
		}
	}
}

func (l *Link) dispatch(p *irbridge.Packet, h Handlers) {
	if err := p.ParseError(); err != nil {
		l.log.WithError(err).Warn("Dropping frame with undecodable payload")
		return
	}
	if h.OnPacket != nil {
		h.OnPacket(p)
	}

	switch p.Type() {
	case irbridge.MsgIRReceived:
		pulses, ok := p.Pulses()
		if !ok {
			l.log.Warn("IR_RECEIVED without a pulse list")
			return
		}
		if len(pulses) < l.minPulses {
			l.log.WithField("pulses", len(pulses)).Trace("Ignoring short capture")
			return
		}
		if h.OnCapture != nil {
			h.OnCapture(pulses)
		}

	case irbridge.MsgPowerChanged:
		pin, on, ok := p.PowerLevel()
		if !ok {
			l.log.Warn("POWER_CHANGED without a level")
			return
		}
		if h.OnPower != nil {
			h.OnPower(int(pin), on)
		}

	case irbridge.MsgPingResponse:
		uptime, _ := irbridge.GetMapUint(p.PayloadMap(), 0)
		select {
		case l.pong <- uptime:
		default:
		}

	case irbridge.MsgErrorTransmit:
		code, _ := irbridge.GetMapUint(p.PayloadMap(), 0)
		err := fmt.Errorf("bridge transmit error 0x%02X", code)
		metrics.RecordTransmit(err)
		l.log.WithField("code", code).Error("Bridge failed transmitting")

	case irbridge.MsgErrorInvalidCmd:
		l.log.Warn("Bridge rejected a command")

	default:
		l.log.WithField("type", irbridge.FormatMessageType(p.Type())).Debug("Ignoring frame")
	}
}

func (l *Link) write(p *irbridge.Packet) error {
	frame := irbridge.EncodePacket(p)
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	_, err := l.conn.Write(frame)
	return err
}

// Transmit asks the bridge to emit pulses. Failures reported later by the
// bridge are logged by Run.
func (l *Link) Transmit(pulses []manchester.Pulse) error {
	if len(pulses) > irbridge.MaxPulses {
		err := fmt.Errorf("%w: %d, max %d", ErrTooManyPulses, len(pulses), irbridge.MaxPulses)
		metrics.RecordTransmit(err)
		return err
	}
	err := l.write(irbridge.NewIRTransmit(pulses))
	metrics.RecordTransmit(err)
	if err != nil {
		return fmt.Errorf("bridge write: %w", err)
	}
	return nil
}

// Ping sends PING_REQUEST and waits for the response. Run must be active.
func (l *Link) Ping(ctx context.Context) (uptimeMs uint64, rtt time.Duration, err error) {
	// drop a stale response
	select {
	case <-l.pong:
	default:
	}

	start := time.Now()
	if err := l.write(irbridge.NewPingRequest()); err != nil {
		return 0, 0, fmt.Errorf("bridge write: %w", err)
	}

	select {
	case uptime := <-l.pong:
		return uptime, time.Since(start), nil
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	}
}

// Close closes the connection.
func (l *Link) Close() error {
	return l.conn.Close()
}
