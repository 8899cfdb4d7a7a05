// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package ac holds the canonical air conditioner state and applies decoded
// remote frames and inbound commands to it.
//
// An Engine is not safe for concurrent use. It is owned by the single event
// consumer, which is the only caller of its methods.
package ac

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/acmitm/pkg/acproto"
	"github.com/Thermoquad/acmitm/pkg/manchester"
)

// Store persists the packed state word.
type Store interface {
	Save(word uint64) error
	Load() (uint64, error)
}

// Transmitter sends a pulse sequence through the IR emitter.
type Transmitter interface {
	Transmit(pulses []manchester.Pulse) error
}

// Notifier receives field changes. Each method is called at most once per
// Update, synchronously, in the order power, temperature, mode, fan.
type Notifier interface {
	PowerChanged(on bool)
	TemperatureChanged(temperature int)
	ModeChanged(mode acproto.Mode)
	FanChanged(fan acproto.Fan)
}

// Config configures an Engine.
type Config struct {
	Model       string
	Store       Store
	Transmitter Transmitter
	Notifier    Notifier
	Logger      *logrus.Entry
}

// Engine is the AC state machine for one appliance.
type Engine struct {
	profile  acproto.Profile
	state    State
	store    Store
	tx       Transmitter
	notifier Notifier
	log      *logrus.Entry
}

// New resolves the model profile and loads the persisted state. A load
// failure starts from the zero state; an unknown model is fatal.
func New(cfg Config) (*Engine, error) {
	profile, err := acproto.Lookup(cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedDevice, err)
	}

	log := cfg.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "ac")

	e := &Engine{
		profile:  profile,
		store:    cfg.Store,
		tx:       cfg.Transmitter,
		notifier: cfg.Notifier,
		log:      log,
	}

	if e.store != nil {
		word, err := e.store.Load()
		if err != nil {
			e.log.WithError(err).Warn("Failed loading persisted state, starting from defaults")
			word = 0
		}
		e.state = Unpack(word)
	}
	e.normalize()

	e.log.WithFields(logrus.Fields{
		"model": profile.Name(),
		"state": e.state.String(),
	}).Info("AC initialized")

	return e, nil
}

// normalize pulls loaded fields back into the profile's supported ranges.
func (e *Engine) normalize() {
	lo, hi := e.profile.Bounds()
	if e.state.Temperature < lo || e.state.Temperature > hi {
		e.state.Temperature = lo
	}
	if !acproto.SupportsMode(e.profile, e.state.Mode) {
		e.state.Mode = e.profile.DefaultMode()
	}
	if !acproto.SupportsFan(e.profile, e.state.Fan) {
		e.state.Fan = e.profile.DefaultFan()
	}
}

// SetNotifier replaces the change notifier.
func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

// Profile returns the active vendor profile.
func (e *Engine) Profile() acproto.Profile {
	return e.profile
}

// State returns a copy of the current state.
func (e *Engine) State() State {
	return e.state
}

// Update applies c, notifying for each field that actually changes, then
// persists the whole state. Persisting happens on every call, even when
// nothing changed.
func (e *Engine) Update(c Change) {
	if c.Power != nil && *c.Power != e.state.Power {
		e.state.Power = *c.Power
		if e.notifier != nil {
			e.notifier.PowerChanged(e.state.Power)
		}
	}
	if c.Temperature != nil && *c.Temperature != e.state.Temperature {
		e.state.Temperature = *c.Temperature
		if e.notifier != nil {
			e.notifier.TemperatureChanged(e.state.Temperature)
		}
	}
	if c.Mode != nil && *c.Mode != e.state.Mode {
		e.state.Mode = *c.Mode
		if e.notifier != nil {
			e.notifier.ModeChanged(e.state.Mode)
		}
	}
	if c.Fan != nil && *c.Fan != e.state.Fan {
		e.state.Fan = *c.Fan
		if e.notifier != nil {
			e.notifier.FanChanged(e.state.Fan)
		}
	}

	e.persist()
	e.log.WithField("state", e.state.String()).Info("AC state updated")
}

func (e *Engine) persist() {
	if e.store == nil {
		return
	}
	if err := e.store.Save(e.state.Pack()); err != nil {
		e.log.WithError(fmt.Errorf("%w: %w", ErrPersist, err)).Error("Failed persisting AC state")
	}
}

// Decode applies a received capture. Captures that do not decode, and
// fields that are out of range or unmapped, leave the state untouched.
func (e *Engine) Decode(pulses []manchester.Pulse) error {
	r, err := e.profile.Decode(pulses)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	e.log.WithField("word", fmt.Sprintf("0x%X", r.Word)).Debug("Decoded frame")

	var c Change
	if r.PowerToggle {
		c.Power = ptr(!e.state.Power)
	}
	if acproto.InBounds(e.profile, r.Temperature) {
		c.Temperature = ptr(r.Temperature)
	} else {
		e.log.WithField("temperature", r.Temperature).Warn("Ignoring out of range temperature")
	}
	if r.Mode != nil && acproto.SupportsMode(e.profile, *r.Mode) {
		c.Mode = r.Mode
	}
	if r.Fan != nil && acproto.SupportsFan(e.profile, *r.Fan) {
		c.Fan = r.Fan
	}

	e.Update(c)
	return nil
}

// Encode builds the frame that brings the unit to the current state. It
// returns nil pulses when both the commanded and detected power are off.
func (e *Engine) Encode() ([]manchester.Pulse, uint64) {
	if !e.state.Power && !e.state.DetectedPower {
		return nil, 0
	}
	return e.profile.Encode(acproto.Command{
		Power:         e.state.Power,
		DetectedPower: e.state.DetectedPower,
		Temperature:   e.state.Temperature,
		Mode:          e.state.Mode,
		Fan:           e.state.Fan,
	})
}

// Send encodes and transmits the current state. It is a no-op when the unit
// is off and meant to stay off.
func (e *Engine) Send() error {
	pulses, word := e.Encode()
	if pulses == nil {
		return nil
	}
	if e.tx == nil {
		return fmt.Errorf("%w: no transmitter", ErrTransmit)
	}

	e.log.WithField("word", fmt.Sprintf("0x%X", word)).Info("Transmitting")
	if err := e.tx.Transmit(pulses); err != nil {
		return fmt.Errorf("%w: %w", ErrTransmit, err)
	}
	return nil
}

// SetDetectedPower records the sensed power level. When it disagrees with
// the commanded power, the current state is transmitted so the toggle bit
// brings the unit back in line. The detected level is not persisted here.
func (e *Engine) SetDetectedPower(on bool) error {
	e.state.DetectedPower = on
	if e.state.DetectedPower == e.state.Power {
		return nil
	}
	return e.Send()
}

// SetPower sets the commanded power.
func (e *Engine) SetPower(on bool) {
	e.Update(Change{Power: &on})
}

// SetTemperature sets the target temperature.
func (e *Engine) SetTemperature(t int) error {
	if !acproto.InBounds(e.profile, t) {
		lo, hi := e.profile.Bounds()
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrOutOfRange, t, lo, hi)
	}
	e.Update(Change{Temperature: &t})
	return nil
}

// SetMode sets the operating mode.
func (e *Engine) SetMode(m acproto.Mode) error {
	if !acproto.SupportsMode(e.profile, m) {
		return fmt.Errorf("%w: mode %s", ErrUnsupportedValue, m)
	}
	e.Update(Change{Mode: &m})
	return nil
}

// SetFan sets the fan speed.
func (e *Engine) SetFan(f acproto.Fan) error {
	if !acproto.SupportsFan(e.profile, f) {
		return fmt.Errorf("%w: fan %s", ErrUnsupportedValue, f)
	}
	e.Update(Change{Fan: &f})
	return nil
}
