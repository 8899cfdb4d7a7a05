// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package events serializes everything that touches the AC state through one
// consumer. Producers (IR captures, the power detector, the heartbeat timer,
// MQTT callbacks, OTA completions) copy their payload into an Event and
// enqueue it; the Core handles events strictly in arrival order, one at a
// time.
package events

import (
	"fmt"

	"github.com/Thermoquad/acmitm/internal/ota"
	"github.com/Thermoquad/acmitm/pkg/acproto"
	"github.com/Thermoquad/acmitm/pkg/manchester"
)

// Kind identifies an event variant.
type Kind uint8

const (
	KindHeartbeatTimer Kind = iota
	KindNetworkConnected
	KindNetworkDisconnected
	KindOTARequested
	KindOTACompleted
	KindMQTTConnected
	KindMQTTDisconnected
	KindPowerDetectorChanged
	KindIRReceived
	KindACPowerChanged
	KindACTemperatureChanged
	KindACModeChanged
	KindACFanChanged
	KindACPowerCommand
	KindACTemperatureCommand
	KindACModeCommand
	KindACFanCommand
)

var kindNames = [...]string{
	KindHeartbeatTimer:       "HeartbeatTimer",
	KindNetworkConnected:     "NetworkConnected",
	KindNetworkDisconnected:  "NetworkDisconnected",
	KindOTARequested:         "OTARequested",
	KindOTACompleted:         "OTACompleted",
	KindMQTTConnected:        "MQTTConnected",
	KindMQTTDisconnected:     "MQTTDisconnected",
	KindPowerDetectorChanged: "PowerDetectorChanged",
	KindIRReceived:           "IRReceived",
	KindACPowerChanged:       "ACPowerChanged",
	KindACTemperatureChanged: "ACTemperatureChanged",
	KindACModeChanged:        "ACModeChanged",
	KindACFanChanged:         "ACFanChanged",
	KindACPowerCommand:       "ACPowerCommand",
	KindACTemperatureCommand: "ACTemperatureCommand",
	KindACModeCommand:        "ACModeCommand",
	KindACFanCommand:         "ACFanCommand",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Event is one queued unit of work. The set of variants is closed.
type Event interface {
	Kind() Kind
	event()
}

type (
	HeartbeatTimer      struct{}
	NetworkConnected    struct{}
	NetworkDisconnected struct{}
	MQTTConnected       struct{}
	MQTTDisconnected    struct{}
)

// OTARequested asks for an update download from URL.
type OTARequested struct {
	Type ota.Kind
	URL  string
}

// OTACompleted reports the end of an update. Err is nil on success.
type OTACompleted struct {
	Type ota.Kind
	Err  error
}

// PowerDetectorChanged carries a debounced power-sense edge.
type PowerDetectorChanged struct {
	Pin   int
	Level bool
}

// IRReceived owns a copy of one received capture.
type IRReceived struct {
	Pulses []manchester.Pulse
}

type ACPowerChanged struct{ On bool }

type ACTemperatureChanged struct{ Temperature int }

type ACModeChanged struct{ Mode acproto.Mode }

type ACFanChanged struct{ Fan acproto.Fan }

type ACPowerCommand struct{ On bool }

type ACTemperatureCommand struct{ Temperature int }

type ACModeCommand struct{ Mode acproto.Mode }

type ACFanCommand struct{ Fan acproto.Fan }

func (HeartbeatTimer) Kind() Kind { return KindHeartbeatTimer }
func (NetworkConnected) Kind() Kind { return KindNetworkConnected }
func (NetworkDisconnected) Kind() Kind { return KindNetworkDisconnected }
func (OTARequested) Kind() Kind { return KindOTARequested }
func (OTACompleted) Kind() Kind { return KindOTACompleted }
func (MQTTConnected) Kind() Kind { return KindMQTTConnected }
func (MQTTDisconnected) Kind() Kind { return KindMQTTDisconnected }
func (PowerDetectorChanged) Kind() Kind { return KindPowerDetectorChanged }
func (IRReceived) Kind() Kind { return KindIRReceived }
func (ACPowerChanged) Kind() Kind { return KindACPowerChanged }
func (ACTemperatureChanged) Kind() Kind { return KindACTemperatureChanged }
func (ACModeChanged) Kind() Kind { return KindACModeChanged }
func (ACFanChanged) Kind() Kind { return KindACFanChanged }
func (ACPowerCommand) Kind() Kind { return KindACPowerCommand }
func (ACTemperatureCommand) Kind() Kind { return KindACTemperatureCommand }
func (ACModeCommand) Kind() Kind { return KindACModeCommand }
func (ACFanCommand) Kind() Kind { return KindACFanCommand }

func (HeartbeatTimer) event() {}
func (NetworkConnected) event() {}
func (NetworkDisconnected) event() {}
func (OTARequested) event() {}
func (OTACompleted) event() {}
func (MQTTConnected) event() {}
func (MQTTDisconnected) event() {}
func (PowerDetectorChanged) event() {}
func (IRReceived) event() {}
func (ACPowerChanged) event() {}
func (ACTemperatureChanged) event() {}
func (ACModeChanged) event() {}
func (ACFanChanged) event() {}
func (ACPowerCommand) event() {}
func (ACTemperatureCommand) event() {}
func (ACModeCommand) event() {}
func (ACFanCommand) event() {}
