// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/acmitm/internal/ac"
	"github.com/Thermoquad/acmitm/internal/ota"
	"github.com/Thermoquad/acmitm/pkg/acproto"
	"github.com/Thermoquad/acmitm/pkg/manchester"
)

const device = "AC-MITM-TEST"

type message struct {
	Topic   string
	Payload string
}

type fakeBroker struct {
	mu           sync.Mutex
	connected    bool
	connects     int
	disconnects  int
	published    []message
	handlers     map[string]func(string, []byte)
	subscribed   []string
	unsubscribed []string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: map[string]func(string, []byte){}}
}

func (b *fakeBroker) Connect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connects++
	return nil
}

func (b *fakeBroker) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnects++
}

func (b *fakeBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *fakeBroker) Publish(topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, message{topic, string(payload)})
	return nil
}

func (b *fakeBroker) Subscribe(topic string, handler func(string, []byte)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	b.subscribed = append(b.subscribed, topic)
	return nil
}

func (b *fakeBroker) Unsubscribe(topics ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range topics {
		delete(b.handlers, t)
	}
	b.unsubscribed = append(b.unsubscribed, topics...)
	return nil
}

// deliver simulates an inbound message.
func (b *fakeBroker) deliver(t *testing.T, topic, payload string) {
	t.Helper()
	b.mu.Lock()
	h, ok := b.handlers[topic]
	b.mu.Unlock()
	require.True(t, ok, "not subscribed to %s", topic)
	h(topic, []byte(payload))
}

func (b *fakeBroker) messages() []message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]message(nil), b.published...)
}

func (b *fakeBroker) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = nil
}

type fakeUpdater struct {
	kinds []ota.Kind
	urls  []string
	done  func(ota.Kind, error)
}

func (u *fakeUpdater) Start(kind ota.Kind, url string, done func(ota.Kind, error)) {
	u.kinds = append(u.kinds, kind)
	u.urls = append(u.urls, url)
	u.done = done
}

type memStore struct{ word uint64 }

func (s *memStore) Save(w uint64) error { s.word = w; return nil }
func (s *memStore) Load() (uint64, error) { return s.word, nil }

type fakeTx struct {
	mu   sync.Mutex
	sent int
}

func (t *fakeTx) Transmit([]manchester.Pulse) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent++
	return nil
}

func (t *fakeTx) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sent
}

type coreHarness struct {
	core     *Core
	engine   *ac.Engine
	broker   *fakeBroker
	updater  *fakeUpdater
	tx       *fakeTx
	restarts int
}

func newCoreHarness(t *testing.T, initial ac.State) *coreHarness {
	t.Helper()
	logger, _ := test.NewNullLogger()
	log := logrus.NewEntry(logger)

	h := &coreHarness{
		broker:  newFakeBroker(),
		updater: &fakeUpdater{},
		tx:      &fakeTx{},
	}
	engine, err := ac.New(ac.Config{
		Model:       "airwell",
		Store:       &memStore{word: initial.Pack()},
		Transmitter: h.tx,
		Logger:      log,
	})
	require.NoError(t, err)
	h.engine = engine

	h.core = NewCore(Config{
		Device:        device,
		Version:       "1.2.0",
		ConfigVersion: "abc123",
		Queue:         NewQueue(DefaultDepth),
		Engine:        engine,
		Broker:        h.broker,
		Updater:       h.updater,
		Restart:       func() { h.restarts++ },
		FreeMemory:    func() uint64 { return 1234 },
		Logger:        log,
	})
	return h
}

// drain handles everything queued so far on the calling goroutine.
func (h *coreHarness) drain(t *testing.T) {
	t.Helper()
	for h.core.Queue().Len() > 0 {
		ev, err := h.core.Queue().Dequeue(context.Background())
		require.NoError(t, err)
		h.core.process(ev)
	}
}

func capture(f acproto.AirwellFrame) []manchester.Pulse {
	a := acproto.Airwell{}
	return manchester.Encode(a.Timing(), acproto.AirwellRepeat, f.Word(), acproto.AirwellBits)
}

func topic(name string) string { return device + "/" + name }

var idle = ac.State{Temperature: 16, Mode: acproto.ModeFan, Fan: acproto.FanLow}

// ============================================================
// AC state
// ============================================================

func TestIRCapturePublishesChanges(t *testing.T) {
	h := newCoreHarness(t, idle)

	h.core.process(IRReceived{Pulses: capture(acproto.AirwellFrame{
		One: true, PowerToggle: true, ModeCode: 1, FanCode: 3, TempNibble: 5,
	})})

	assert.Equal(t, []message{
		{topic("Power"), "on"},
		{topic("Action"), "cooling"},
		{topic("Mode"), "cool"},
		{topic("Temperature"), "20"},
		{topic("Action"), "cooling"},
		{topic("Mode"), "cool"},
		{topic("Fan"), "auto"},
	}, h.broker.messages())
	assert.Equal(t, 1, h.tx.count(), "decoded frame is echoed")
	assert.Empty(t, h.core.pending)
}

func TestIRCaptureNoise(t *testing.T) {
	h := newCoreHarness(t, idle)

	h.core.process(IRReceived{Pulses: []manchester.Pulse{{Level0: 1, Duration0: 500, Duration1: 500}}})

	assert.Empty(t, h.broker.messages())
	assert.Zero(t, h.tx.count())
	assert.Equal(t, idle, h.engine.State())
}

func TestPowerOffPublishesOff(t *testing.T) {
	on := ac.State{Power: true, DetectedPower: true, Temperature: 24, Mode: acproto.ModeHeat, Fan: acproto.FanHigh}
	h := newCoreHarness(t, on)

	h.core.process(ACPowerCommand{On: false})

	assert.Equal(t, []message{
		{topic("Power"), "off"},
		{topic("Action"), "off"},
		{topic("Mode"), "off"},
	}, h.broker.messages())
	assert.Equal(t, 1, h.tx.count(), "unit is still on and must be toggled")
}

func TestPowerDetector(t *testing.T) {
	on := ac.State{Power: true, DetectedPower: true, Temperature: 24, Mode: acproto.ModeCool, Fan: acproto.FanAuto}
	h := newCoreHarness(t, on)

	h.core.process(PowerDetectorChanged{Pin: 7, Level: true})
	assert.Zero(t, h.tx.count())

	h.core.process(PowerDetectorChanged{Pin: 7, Level: false})
	assert.Equal(t, 1, h.tx.count())
	assert.False(t, h.engine.State().DetectedPower)
	assert.Empty(t, h.broker.messages())
}

func TestRunProcessesInOrder(t *testing.T) {
	on := ac.State{Power: true, DetectedPower: true, Temperature: 24, Mode: acproto.ModeCool, Fan: acproto.FanAuto}
	h := newCoreHarness(t, on)

	require.NoError(t, h.core.Queue().Enqueue(context.Background(), ACTemperatureCommand{Temperature: 19}))
	require.NoError(t, h.core.Queue().Enqueue(context.Background(), ACFanCommand{Fan: acproto.FanHigh}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.core.Run(ctx) }()

	require.Eventually(t, func() bool { return len(h.broker.messages()) == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []message{
		{topic("Temperature"), "19"},
		{topic("Fan"), "high"},
	}, h.broker.messages())
	assert.Equal(t, 2, h.tx.count())
	assert.Equal(t, 19, h.engine.State().Temperature)
	assert.Equal(t, acproto.FanHigh, h.engine.State().Fan)
}

// ============================================================
// MQTT commands
// ============================================================

func connected(t *testing.T, h *coreHarness) {
	t.Helper()
	h.broker.connected = true
	h.core.process(MQTTConnected{})
	h.broker.reset()
}

func TestModeCommandPowersOn(t *testing.T) {
	h := newCoreHarness(t, idle)
	connected(t, h)

	h.broker.deliver(t, topic("Mode/Set"), "heat")
	h.drain(t)

	assert.Equal(t, []message{
		{topic("Power"), "on"},
		{topic("Action"), "heating"},
		{topic("Mode"), "heat"},
		{topic("Action"), "heating"},
		{topic("Mode"), "heat"},
	}, h.broker.messages())
	assert.Equal(t, 1, h.tx.count())
}

func TestModeOffPowersDown(t *testing.T) {
	on := ac.State{Power: true, DetectedPower: true, Temperature: 24, Mode: acproto.ModeDry, Fan: acproto.FanAuto}
	h := newCoreHarness(t, on)
	connected(t, h)

	h.broker.deliver(t, topic("Mode/Set"), "off")
	h.drain(t)

	assert.False(t, h.engine.State().Power)
	assert.Equal(t, acproto.ModeDry, h.engine.State().Mode)
}

func TestCommandPayloads(t *testing.T) {
	on := ac.State{Power: true, DetectedPower: true, Temperature: 24, Mode: acproto.ModeCool, Fan: acproto.FanAuto}
	h := newCoreHarness(t, on)
	connected(t, h)

	h.broker.deliver(t, topic("Temperature/Set"), " 26 ")
	h.broker.deliver(t, topic("Fan/Set"), "medium")
	h.drain(t)
	assert.Equal(t, 26, h.engine.State().Temperature)
	assert.Equal(t, acproto.FanMedium, h.engine.State().Fan)
	assert.Equal(t, 2, h.tx.count())

	// dropped before reaching the queue
	h.broker.deliver(t, topic("Temperature/Set"), "warm")
	h.broker.deliver(t, topic("Mode/Set"), "turbo")
	h.broker.deliver(t, topic("Fan/Set"), "max")
	assert.Zero(t, h.core.Queue().Len())

	// rejected by the engine
	h.broker.deliver(t, topic("Temperature/Set"), "40")
	h.drain(t)
	assert.Equal(t, 26, h.engine.State().Temperature)
	assert.Equal(t, 2, h.tx.count())

	h.broker.deliver(t, topic("Power/Set"), "standby")
	h.drain(t)
	assert.False(t, h.engine.State().Power)
}

// ============================================================
// Connectivity
// ============================================================

func TestMQTTConnected(t *testing.T) {
	h := newCoreHarness(t, idle)
	h.broker.connected = true

	h.core.process(MQTTConnected{})

	assert.Equal(t, []message{
		{topic("Status"), "online"},
		{topic("Version"), "1.2.0"},
		{topic("ConfigVersion"), "abc123"},
		{topic("Uptime"), "0"},
		{topic("FreeMemory"), "1234"},
	}, h.broker.messages())
	assert.Equal(t, []string{
		topic("OTA/Firmware"),
		GlobalFirmwareTopic,
		topic("OTA/Config"),
		GlobalConfigTopic,
		topic("Power/Set"),
		topic("Temperature/Set"),
		topic("Mode/Set"),
		topic("Fan/Set"),
	}, h.broker.subscribed)
}

func TestMQTTDisconnectedUnsubscribes(t *testing.T) {
	h := newCoreHarness(t, idle)
	connected(t, h)

	h.core.process(MQTTDisconnected{})

	assert.ElementsMatch(t, h.broker.subscribed, h.broker.unsubscribed)
	assert.Empty(t, h.broker.handlers)
	assert.Zero(t, h.broker.disconnects)
}

func TestRepeatedDisconnectsRecycleNetwork(t *testing.T) {
	h := newCoreHarness(t, idle)

	for i := 1; i <= 2*reconnectEvery; i++ {
		connected(t, h)
		h.core.process(MQTTDisconnected{})
		assert.Equal(t, i/reconnectEvery, h.broker.disconnects, "after %d disconnections", i)
		assert.Equal(t, i/reconnectEvery, h.broker.connects, "after %d disconnections", i)
	}
}

func TestNetworkEvents(t *testing.T) {
	h := newCoreHarness(t, idle)

	h.core.process(NetworkConnected{})
	assert.Equal(t, 1, h.broker.connects)

	connected(t, h)
	h.core.process(NetworkDisconnected{})
	assert.Equal(t, 1, h.broker.disconnects)
	assert.Len(t, h.broker.unsubscribed, 8)
}

func TestHeartbeatOnlyWhenConnected(t *testing.T) {
	h := newCoreHarness(t, idle)

	h.core.process(HeartbeatTimer{})
	assert.Empty(t, h.broker.messages())

	h.broker.connected = true
	h.core.process(HeartbeatTimer{})
	msgs := h.broker.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, topic("Uptime"), msgs[0].Topic)
	assert.Equal(t, message{topic("FreeMemory"), "1234"}, msgs[1])
}

func TestHeartbeatTicker(t *testing.T) {
	h := newCoreHarness(t, idle)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.core.Heartbeat(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool { return h.core.Queue().Len() > 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	ev, err := h.core.Queue().Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, KindHeartbeatTimer, ev.Kind())
}

// ============================================================
// Updates
// ============================================================

func TestOTARestartsOnSuccess(t *testing.T) {
	h := newCoreHarness(t, idle)
	connected(t, h)

	h.broker.deliver(t, GlobalConfigTopic, "https://updates.local/ac.yaml\n")
	h.drain(t)

	require.Equal(t, []ota.Kind{ota.Config}, h.updater.kinds)
	assert.Equal(t, []string{"https://updates.local/ac.yaml"}, h.updater.urls)
	assert.Zero(t, h.restarts)

	h.updater.done(ota.Config, nil)
	h.drain(t)
	assert.Equal(t, 1, h.restarts)
}

func TestOTAFailureKeepsRunning(t *testing.T) {
	h := newCoreHarness(t, idle)
	connected(t, h)

	h.broker.deliver(t, topic("OTA/Firmware"), "https://updates.local/fw.bin")
	h.drain(t)
	require.Equal(t, []ota.Kind{ota.Firmware}, h.updater.kinds)

	h.updater.done(ota.Firmware, ota.ErrUnsupported)
	h.drain(t)
	assert.Zero(t, h.restarts)
}

// ============================================================
// Producers and lifecycle
// ============================================================

func TestOnIRReceivedCopiesPulses(t *testing.T) {
	h := newCoreHarness(t, idle)
	pulses := []manchester.Pulse{{Level0: 1, Duration0: 950, Duration1: 950}}

	require.True(t, h.core.OnIRReceived(pulses))
	pulses[0].Duration0 = 1

	ev, err := h.core.Queue().Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint16(950), ev.(IRReceived).Pulses[0].Duration0)
}

func TestInterruptProducersDropWhenFull(t *testing.T) {
	h := newCoreHarness(t, idle)
	for i := 0; i < DefaultDepth; i++ {
		require.True(t, h.core.OnPowerChanged(7, i%2 == 0))
	}

	assert.False(t, h.core.OnIRReceived(nil))
	assert.False(t, h.core.OnPowerChanged(7, true))
	assert.Equal(t, uint64(2), h.core.Queue().Dropped())
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newCoreHarness(t, idle)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.core.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}

	err := h.core.Queue().Enqueue(context.Background(), HeartbeatTimer{})
	assert.True(t, errors.Is(err, ErrClosed))
}
