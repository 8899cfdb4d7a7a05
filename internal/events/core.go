// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package events

import (
	"context"
	"errors"
	"runtime"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/acmitm/internal/ac"
	"github.com/Thermoquad/acmitm/internal/metrics"
	"github.com/Thermoquad/acmitm/internal/ota"
	"github.com/Thermoquad/acmitm/pkg/acproto"
)

// reconnectEvery is the number of MQTT disconnections after which the
// network session is recycled.
const reconnectEvery = 3

// Broker is the network collaborator. Publishing uses the broker's
// configured QoS and retain flag.
type Broker interface {
	Connect() error
	Disconnect()
	IsConnected() bool
	Publish(topic string, payload []byte) error
	Subscribe(topic string, handler func(topic string, payload []byte)) error
	Unsubscribe(topics ...string) error
}

// Updater downloads updates in the background and calls done when finished.
type Updater interface {
	Start(kind ota.Kind, url string, done func(kind ota.Kind, err error))
}

// Config configures a Core.
type Config struct {
	Device        string
	Version       string
	ConfigVersion string

	Queue   *Queue
	Engine  *ac.Engine
	Broker  Broker
	Updater Updater

	// Restart is called after a successful update.
	Restart func()

	// FreeMemory reports the value published on the FreeMemory topic.
	// Defaults to the free space in the Go heap.
	FreeMemory func() uint64

	Logger *logrus.Entry
}

// Core is the single event consumer. All of its state, including the AC
// engine, is touched only from Run.
type Core struct {
	queue   *Queue
	engine  *ac.Engine
	broker  Broker
	updater Updater
	topics  Topics

	version       string
	configVersion string
	restart       func()
	freeMemory    func() uint64
	started       time.Time

	// pending holds events raised while handling the current one. They are
	// handled in order before the next queued event.
	pending       []Event
	disconnects   int
	subscriptions []string

	log *logrus.Entry
}

// NewCore wires a consumer to its queue and collaborators and registers it
// as the engine's notifier.
func NewCore(cfg Config) *Core {
	log := cfg.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	q := cfg.Queue
	if q == nil {
		q = NewQueue(DefaultDepth)
	}
	mem := cfg.FreeMemory
	if mem == nil {
		mem = heapFree
	}
	restart := cfg.Restart
	if restart == nil {
		restart = func() {}
	}

	c := &Core{
		queue:         q,
		engine:        cfg.Engine,
		broker:        cfg.Broker,
		updater:       cfg.Updater,
		topics:        Topics{Device: cfg.Device},
		version:       cfg.Version,
		configVersion: cfg.ConfigVersion,
		restart:       restart,
		freeMemory:    mem,
		started:       time.Now(),
		log:           log.WithField("component", "events"),
	}
	if c.engine != nil {
		c.engine.SetNotifier(c)
	}
	return c
}

// heapFree is heap memory obtained from the OS but not holding objects.
func heapFree() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapSys - ms.HeapInuse
}

// Queue returns the queue producers feed.
func (c *Core) Queue() *Queue {
	return c.queue
}

// Run consumes events until ctx is cancelled or the queue is closed. The
// event in progress always completes. Run closes the queue on return so
// blocked producers are released.
func (c *Core) Run(ctx context.Context) error {
	defer c.queue.Close()
	c.log.WithField("depth", c.queue.Cap()).Info("Event core started")

	for {
		ev, err := c.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) || ctx.Err() != nil {
				c.log.Info("Event core stopped")
				return nil
			}
			return err
		}
		c.process(ev)
	}
}

// process handles ev and then everything it raised, in order.
func (c *Core) process(ev Event) {
	c.dispatch(ev)
	for len(c.pending) > 0 {
		next := c.pending[0]
		c.pending = c.pending[1:]
		c.dispatch(next)
	}
}

func (c *Core) dispatch(ev Event) {
	start := time.Now()
	c.log.WithField("event", ev.Kind().String()).Debug("Handling event")
	c.handle(ev)
	metrics.RecordEvent(ev.Kind().String(), time.Since(start))
}

func (c *Core) handle(ev Event) {
	switch e := ev.(type) {
	case HeartbeatTimer:
		c.publishHeartbeat()
	case NetworkConnected:
		c.onNetworkConnected()
	case NetworkDisconnected:
		c.onNetworkDisconnected()
	case OTARequested:
		c.onOTARequested(e)
	case OTACompleted:
		c.onOTACompleted(e)
	case MQTTConnected:
		c.onMQTTConnected()
	case MQTTDisconnected:
		c.onMQTTDisconnected()
	case PowerDetectorChanged:
		c.onPowerDetectorChanged(e)
	case IRReceived:
		c.onIRReceived(e)
	case ACPowerChanged:
		c.log.WithField("power", e.On).Info("AC power changed")
		c.publish(c.topics.Power(), powerPayload(e.On))
		c.publishAC()
	case ACTemperatureChanged:
		c.log.WithField("temperature", e.Temperature).Info("AC temperature changed")
		c.publish(c.topics.Temperature(), strconv.Itoa(e.Temperature))
	case ACModeChanged:
		c.log.WithField("mode", e.Mode.String()).Info("AC mode changed")
		c.publishAC()
	case ACFanChanged:
		c.log.WithField("fan", e.Fan.String()).Info("AC fan changed")
		c.publish(c.topics.Fan(), e.Fan.String())
	case ACPowerCommand:
		c.engine.SetPower(e.On)
		c.send()
	case ACTemperatureCommand:
		if err := c.engine.SetTemperature(e.Temperature); err != nil {
			c.log.WithError(err).Error("Failed setting AC temperature")
			return
		}
		c.send()
	case ACModeCommand:
		// A mode command also powers the unit on.
		c.engine.SetPower(true)
		if err := c.engine.SetMode(e.Mode); err != nil {
			c.log.WithError(err).Error("Failed setting AC mode")
			return
		}
		c.send()
	case ACFanCommand:
		if err := c.engine.SetFan(e.Fan); err != nil {
			c.log.WithError(err).Error("Failed setting AC fan")
			return
		}
		c.send()
	default:
		c.log.WithField("event", ev.Kind().String()).Warn("Unhandled event")
	}
}

// ============================================================
// ac.Notifier
// ============================================================

// The engine notifies synchronously from inside a handler. Notifications are
// queued locally and published once that handler returns.

func (c *Core) PowerChanged(on bool) {
	c.pending = append(c.pending, ACPowerChanged{On: on})
}

func (c *Core) TemperatureChanged(temperature int) {
	c.pending = append(c.pending, ACTemperatureChanged{Temperature: temperature})
}

func (c *Core) ModeChanged(mode acproto.Mode) {
	c.pending = append(c.pending, ACModeChanged{Mode: mode})
}

func (c *Core) FanChanged(fan acproto.Fan) {
	c.pending = append(c.pending, ACFanChanged{Fan: fan})
}

// ============================================================
// Handlers
// ============================================================

func (c *Core) send() {
	if err := c.engine.Send(); err != nil {
		c.log.WithError(err).Error("Failed transmitting AC state")
	}
}

func (c *Core) onIRReceived(e IRReceived) {
	err := c.engine.Decode(e.Pulses)
	metrics.RecordDecode(err == nil)
	if err != nil {
		c.log.WithError(err).WithField("pulses", len(e.Pulses)).Debug("Dropping capture")
		return
	}
	// Echo the normalized command so the unit and the canonical state agree.
	c.send()
}

func (c *Core) onPowerDetectorChanged(e PowerDetectorChanged) {
	c.log.WithFields(logrus.Fields{"pin": e.Pin, "level": e.Level}).Info("Power changed")
	if err := c.engine.SetDetectedPower(e.Level); err != nil {
		c.log.WithError(err).Error("Failed correcting AC power")
	}
}

func (c *Core) onNetworkConnected() {
	if c.broker == nil {
		return
	}
	c.log.Info("Connected to the network, connecting to MQTT")
	if err := c.broker.Connect(); err != nil {
		c.log.WithError(err).Error("Failed connecting to MQTT")
	}
}

func (c *Core) onNetworkDisconnected() {
	if c.broker == nil {
		return
	}
	c.log.Info("Disconnected from the network, stopping MQTT")
	c.broker.Disconnect()
	// A manual disconnect does not raise MQTTDisconnected.
	c.cleanup()
}

func (c *Core) onMQTTConnected() {
	c.log.Info("Connected to MQTT")
	c.selfPublish()
	c.subscribeOTA()
	c.subscribeAC()
}

func (c *Core) onMQTTDisconnected() {
	c.log.Info("Disconnected from MQTT")
	c.cleanup()

	c.disconnects++
	if c.disconnects%reconnectEvery == 0 {
		c.log.WithField("disconnects", c.disconnects).Warn("Repeated MQTT disconnections, reconnecting to the network")
		c.pending = append(c.pending, NetworkDisconnected{}, NetworkConnected{})
	}
}

func (c *Core) onOTARequested(e OTARequested) {
	log := c.log.WithFields(logrus.Fields{"type": e.Type.String(), "url": e.URL})
	if c.updater == nil {
		log.Warn("Ignoring update request, no updater configured")
		return
	}
	log.Info("Starting update")
	c.updater.Start(e.Type, e.URL, c.OnOTACompleted)
}

func (c *Core) onOTACompleted(e OTACompleted) {
	log := c.log.WithField("type", e.Type.String())
	if e.Err != nil {
		log.WithError(e.Err).Error("Update failed")
		return
	}
	log.Info("Update completed, restarting")
	c.restart()
}

// ============================================================
// Publishing
// ============================================================

func (c *Core) publish(topic, payload string) {
	if c.broker == nil {
		return
	}
	err := c.broker.Publish(topic, []byte(payload))
	metrics.RecordPublish(err)
	if err != nil {
		c.log.WithError(err).WithField("topic", topic).Debug("Publish failed")
	}
}

func (c *Core) publishAC() {
	s := c.engine.State()
	c.publish(c.topics.Action(), actionPayload(s.Power, s.Mode))
	c.publish(c.topics.Mode(), modePayload(s.Power, s.Mode))
}

// publishHeartbeat is skipped while disconnected so stale values are not
// queued by the client.
func (c *Core) publishHeartbeat() {
	if c.broker == nil || !c.broker.IsConnected() {
		return
	}
	uptime := int64(time.Since(c.started) / time.Second)
	c.publish(c.topics.Uptime(), strconv.FormatInt(uptime, 10))
	c.publish(c.topics.FreeMemory(), strconv.FormatUint(c.freeMemory(), 10))
}

func (c *Core) selfPublish() {
	c.publish(c.topics.Status(), "online")
	c.publish(c.topics.Version(), c.version)
	c.publish(c.topics.ConfigVersion(), c.configVersion)
	c.publishHeartbeat()
}

// ============================================================
// Subscriptions
// ============================================================

func (c *Core) subscribe(topic string, handler func(topic string, payload []byte)) {
	if err := c.broker.Subscribe(topic, handler); err != nil {
		c.log.WithError(err).WithField("topic", topic).Error("Failed subscribing")
		return
	}
	c.subscriptions = append(c.subscriptions, topic)
}

func (c *Core) subscribeOTA() {
	if c.broker == nil {
		return
	}
	for _, kind := range []ota.Kind{ota.Firmware, ota.Config} {
		handler := c.otaHandler(kind)
		c.subscribe(c.topics.OTA(kind), handler)
		c.subscribe(GlobalOTA(kind), handler)
	}
}

func (c *Core) subscribeAC() {
	if c.broker == nil {
		return
	}
	c.subscribe(c.topics.PowerSet(), c.onPowerSet)
	c.subscribe(c.topics.TemperatureSet(), c.onTemperatureSet)
	c.subscribe(c.topics.ModeSet(), c.onModeSet)
	c.subscribe(c.topics.FanSet(), c.onFanSet)
}

// cleanup drops every subscription made since the last connect.
func (c *Core) cleanup() {
	if c.broker == nil || len(c.subscriptions) == 0 {
		return
	}
	if err := c.broker.Unsubscribe(c.subscriptions...); err != nil {
		c.log.WithError(err).Debug("Unsubscribe failed")
	}
	c.subscriptions = nil
}
