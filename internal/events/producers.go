// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package events

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/acmitm/internal/ota"
	"github.com/Thermoquad/acmitm/pkg/acproto"
	"github.com/Thermoquad/acmitm/pkg/manchester"
)

// DefaultHeartbeat is the heartbeat period used when none is configured.
const DefaultHeartbeat = 60 * time.Second

// Producers copy their payload, enqueue and return. None of them touches
// consumer state.

func (c *Core) enqueue(ev Event) {
	if err := c.queue.Enqueue(context.Background(), ev); err != nil {
		c.log.WithError(err).WithField("event", ev.Kind().String()).Debug("Event not queued")
	}
}

// OnIRReceived queues a capture without blocking. It reports false when the
// queue was full and the capture was lost.
func (c *Core) OnIRReceived(pulses []manchester.Pulse) bool {
	ev := IRReceived{Pulses: append([]manchester.Pulse(nil), pulses...)}
	if !c.queue.TryEnqueue(ev) {
		c.log.WithField("pulses", len(pulses)).Warn("Event queue full, dropping IR capture")
		return false
	}
	return true
}

// OnPowerChanged queues a power-detector edge without blocking.
func (c *Core) OnPowerChanged(pin int, on bool) bool {
	if !c.queue.TryEnqueue(PowerDetectorChanged{Pin: pin, Level: on}) {
		c.log.WithField("level", on).Warn("Event queue full, dropping power change")
		return false
	}
	return true
}

func (c *Core) OnNetworkConnected() { c.enqueue(NetworkConnected{}) }
func (c *Core) OnNetworkDisconnected() { c.enqueue(NetworkDisconnected{}) }
func (c *Core) OnMQTTConnected() { c.enqueue(MQTTConnected{}) }
func (c *Core) OnMQTTDisconnected() { c.enqueue(MQTTDisconnected{}) }

// OnOTACompleted is the Updater completion callback.
func (c *Core) OnOTACompleted(kind ota.Kind, err error) {
	c.enqueue(OTACompleted{Type: kind, Err: err})
}

func (c *Core) otaHandler(kind ota.Kind) func(topic string, payload []byte) {
	return func(topic string, payload []byte) {
		c.enqueue(OTARequested{Type: kind, URL: strings.TrimSpace(string(payload))})
	}
}

func (c *Core) onPowerSet(_ string, payload []byte) {
	c.enqueue(ACPowerCommand{On: string(payload) == "on"})
}

func (c *Core) onTemperatureSet(topic string, payload []byte) {
	t, err := strconv.Atoi(strings.TrimSpace(string(payload)))
	if err != nil {
		c.log.WithFields(logrus.Fields{"topic": topic, "payload": string(payload)}).Warn("Ignoring malformed temperature")
		return
	}
	c.enqueue(ACTemperatureCommand{Temperature: t})
}

func (c *Core) onModeSet(topic string, payload []byte) {
	name := string(payload)
	if name == "off" {
		c.enqueue(ACPowerCommand{On: false})
		return
	}
	m, ok := acproto.ParseMode(name)
	if !ok {
		c.log.WithFields(logrus.Fields{"topic": topic, "payload": name}).Warn("Ignoring unknown mode")
		return
	}
	c.enqueue(ACModeCommand{Mode: m})
}

func (c *Core) onFanSet(topic string, payload []byte) {
	f, ok := acproto.ParseFan(string(payload))
	if !ok {
		c.log.WithFields(logrus.Fields{"topic": topic, "payload": string(payload)}).Warn("Ignoring unknown fan speed")
		return
	}
	c.enqueue(ACFanCommand{Fan: f})
}

// Heartbeat queues a HeartbeatTimer event every interval until ctx is done.
func (c *Core) Heartbeat(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultHeartbeat
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.queue.Enqueue(ctx, HeartbeatTimer{}); err != nil {
				return nil
			}
		}
	}
}
