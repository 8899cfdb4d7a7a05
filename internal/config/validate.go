// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/acmitm/pkg/acproto"
)

// Validate checks configuration correctness. It does not mutate cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	// ------------------------------------------------------------
	// DEVICE
	// ------------------------------------------------------------

	for i := 0; i < len(cfg.Device.Name); i++ {
		c := cfg.Device.Name[i]
		if c > 0x7F || c == '/' || c == '+' || c == '#' {
			return fmt.Errorf("device.name %q: must be ASCII without MQTT topic separators or wildcards", cfg.Device.Name)
		}
	}
	if _, err := acproto.Lookup(cfg.Device.Model); err != nil {
		return fmt.Errorf("device.model: %w (supported: %v)", err, acproto.Names())
	}

	// ------------------------------------------------------------
	// BRIDGE
	// ------------------------------------------------------------

	if cfg.Bridge.Port != "" && cfg.Bridge.URL != "" {
		return fmt.Errorf("bridge: port and url are mutually exclusive")
	}
	if cfg.Bridge.Baud < 0 {
		return fmt.Errorf("bridge.baud %d: must be positive", cfg.Bridge.Baud)
	}
	if cfg.Bridge.MinPulses < 0 {
		return fmt.Errorf("bridge.min_pulses %d: must not be negative", cfg.Bridge.MinPulses)
	}

	// ------------------------------------------------------------
	// MQTT
	// ------------------------------------------------------------

	srv := cfg.MQTT.Server
	if cfg.MQTT.Enabled() {
		if srv.Port < 1 || srv.Port > 65535 {
			return fmt.Errorf("mqtt.server.port %d: out of range", srv.Port)
		}
	}
	if (srv.ClientCert == "") != (srv.ClientKey == "") {
		return fmt.Errorf("mqtt.server: client_cert and client_key must be set together")
	}
	if cfg.MQTT.Publish.QoS > 2 {
		return fmt.Errorf("mqtt.publish.qos %d: must be 0, 1 or 2", cfg.MQTT.Publish.QoS)
	}

	// ------------------------------------------------------------
	// SERVICES
	// ------------------------------------------------------------

	if cfg.Heartbeat.Interval < time.Second {
		return fmt.Errorf("heartbeat.interval %s: must be at least 1s", cfg.Heartbeat.Interval)
	}
	if cfg.Queue.Depth < 1 {
		return fmt.Errorf("queue.depth %d: must be positive", cfg.Queue.Depth)
	}
	if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return fmt.Errorf("log.format %q: must be text or json", cfg.Log.Format)
	}

	return nil
}
