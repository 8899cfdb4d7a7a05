// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the daemon's YAML configuration.
package config

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PasswordEnv overrides mqtt.server.password when set.
const PasswordEnv = "ACMITM_MQTT_PASSWORD"

type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Store     StoreConfig     `yaml:"store"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Queue     QueueConfig     `yaml:"queue"`
	Log       LogConfig       `yaml:"log"`

	version string
}

// ---- DEVICE ----

type DeviceConfig struct {
	Name  string `yaml:"name"`
	Model string `yaml:"model"`

	// PowerPin is the bridge pin wired to the power detector. Zero accepts
	// edges from any pin.
	PowerPin int `yaml:"power_pin"`
}

// ---- IR BRIDGE ----

type BridgeConfig struct {
	Port        string `yaml:"port"`
	Baud        int    `yaml:"baud"`
	URL         string `yaml:"url"`
	Username    string `yaml:"username"`
	NoSSLVerify bool   `yaml:"no_ssl_verify"`

	// Captures with fewer pulses are treated as noise.
	MinPulses int `yaml:"min_pulses"`
}

// ---- MQTT ----

type MQTTConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Publish PublishConfig `yaml:"publish"`
}

type ServerConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	SSL        bool   `yaml:"ssl"`
	ClientID   string `yaml:"client_id"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	ServerCert string `yaml:"server_cert"`
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
}

type PublishConfig struct {
	QoS    uint8 `yaml:"qos"`
	Retain bool  `yaml:"retain"`
}

// ---- SERVICES ----

type StoreConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

type MetricsConfig struct {
	// Listen is the /metrics address. Empty disables the listener.
	Listen string `yaml:"listen"`
}

type HeartbeatConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type QueueConfig struct {
	Depth int `yaml:"depth"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Enabled reports whether an MQTT server is configured.
func (m MQTTConfig) Enabled() bool {
	return m.Server.Host != ""
}

// Version returns the hex SHA-256 of the file the configuration was parsed
// from.
func (c *Config) Version() string {
	return c.version
}

// Load reads, normalizes and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes a configuration document. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if pw := os.Getenv(PasswordEnv); pw != "" {
		cfg.MQTT.Server.Password = pw
	}

	Normalize(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	cfg.version = hex.EncodeToString(sum[:])
	return cfg, nil
}
