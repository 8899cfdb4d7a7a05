// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultModel     = "airwell"
	DefaultBaud      = 115200
	DefaultMinPulses = 5
	DefaultHeartbeat = 60 * time.Second
	DefaultDepth     = 10
	DefaultStorePath = "acmitm-state"
)

// Normalize fills unset fields with their defaults. It runs before Validate
// and never overwrites a value that was set.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	// ------------------------------------------------------------
	// DEVICE
	// ------------------------------------------------------------

	if cfg.Device.Name == "" {
		id := uuid.New().String()
		cfg.Device.Name = "AC-MITM-" + strings.ToUpper(id[:4])
	}
	if cfg.Device.Model == "" {
		cfg.Device.Model = DefaultModel
	}

	// ------------------------------------------------------------
	// BRIDGE
	// ------------------------------------------------------------

	if cfg.Bridge.Baud == 0 {
		cfg.Bridge.Baud = DefaultBaud
	}
	if cfg.Bridge.MinPulses == 0 {
		cfg.Bridge.MinPulses = DefaultMinPulses
	}

	// ------------------------------------------------------------
	// MQTT
	// ------------------------------------------------------------

	if cfg.MQTT.Enabled() {
		if cfg.MQTT.Server.Port == 0 {
			cfg.MQTT.Server.Port = 1883
			if cfg.MQTT.Server.SSL {
				cfg.MQTT.Server.Port = 8883
			}
		}
		if cfg.MQTT.Server.ClientID == "" {
			cfg.MQTT.Server.ClientID = fmt.Sprintf("%s-%s", cfg.Device.Name, uuid.New().String()[:8])
		}
	}

	// ------------------------------------------------------------
	// SERVICES
	// ------------------------------------------------------------

	if cfg.Store.Path == "" && !cfg.Store.InMemory {
		cfg.Store.Path = DefaultStorePath
	}
	if cfg.Heartbeat.Interval == 0 {
		cfg.Heartbeat.Interval = DefaultHeartbeat
	}
	if cfg.Queue.Depth == 0 {
		cfg.Queue.Depth = DefaultDepth
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
