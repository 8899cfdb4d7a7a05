// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/Thermoquad/acmitm/internal/bridge"
	"github.com/Thermoquad/acmitm/internal/config"
)

// BridgePasswordEnv holds the WebSocket bridge password.
const BridgePasswordEnv = "ACMITM_BRIDGE_PASSWORD"

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv(BridgePasswordEnv); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// bridgeTarget merges the connection flags over the configuration. Flags win.
func bridgeTarget(cfg *config.Config) config.BridgeConfig {
	var target config.BridgeConfig
	if cfg != nil {
		target = cfg.Bridge
	}
	if portName != "" {
		target.Port, target.URL = portName, ""
	}
	if wsURL != "" {
		target.URL, target.Port = wsURL, ""
		target.Username = wsUsername
		target.NoSSLVerify = wsNoSSLVerify
	}
	if rootCmd.PersistentFlags().Changed("baud") || target.Baud == 0 {
		target.Baud = baudRate
	}
	return target
}

// OpenConnection opens either a serial or WebSocket connection to the bridge
func OpenConnection(ctx context.Context, cfg *config.Config) (bridge.Conn, string, error) {
	target := bridgeTarget(cfg)

	if target.URL != "" {
		password := ""
		if target.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		conn, err := bridge.OpenWebSocket(ctx, target.URL, target.Username, password, target.NoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s", target.URL), nil
	}

	if target.Port != "" {
		conn, err := bridge.OpenSerial(target.Port, target.Baud)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud", target.Port, target.Baud), nil
	}

	if ports, err := bridge.ListPorts(); err == nil && len(ports) > 0 {
		return nil, "", fmt.Errorf("either --port or --url must be specified (available ports: %s)", strings.Join(ports, ", "))
	}
	return nil, "", fmt.Errorf("either --port or --url must be specified")
}

// loadConfig reads --config when given. Without it, defaults apply. --model
// overrides the configured model.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.Parse(nil)
	}
	if err != nil {
		return nil, err
	}
	if modelName != "" {
		cfg.Device.Model = modelName
		if err := config.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
