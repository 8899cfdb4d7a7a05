// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/acmitm/internal/ac"
	"github.com/Thermoquad/acmitm/internal/bridge"
	"github.com/Thermoquad/acmitm/internal/broker"
	"github.com/Thermoquad/acmitm/internal/config"
	"github.com/Thermoquad/acmitm/internal/events"
	"github.com/Thermoquad/acmitm/internal/metrics"
	"github.com/Thermoquad/acmitm/internal/ota"
	"github.com/Thermoquad/acmitm/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the controller",
	Long: `Run the controller against an IR bridge.

Captures from the bridge are decoded into the canonical AC state, which is
persisted, published over MQTT and echoed back to the unit. Commands arriving
on the <device>/<Field>/Set topics are applied and transmitted. A configuration
update received on the OTA topics replaces --config and exits so the service
manager restarts the process with it.

Without an mqtt.server.host the controller runs offline and only mirrors the
remote.`,
	RunE: runController,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// newLogger builds the process logger from the log section.
func newLogger(cfg config.LogConfig) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

func runController(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	log := logrus.NewEntry(logger).WithField("device", cfg.Device.Name)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	restart := false
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	db, err := store.Open(store.Options{Path: cfg.Store.Path, InMemory: cfg.Store.InMemory, Logger: log})
	if err != nil {
		return err
	}
	defer db.Close()

	conn, connInfo, err := OpenConnection(ctx, cfg)
	if err != nil {
		return err
	}
	link := bridge.NewLink(conn, bridge.Options{MinPulses: cfg.Bridge.MinPulses, Logger: log})
	defer link.Close()

	engine, err := ac.New(ac.Config{
		Model:       cfg.Device.Model,
		Store:       db,
		Transmitter: link,
		Logger:      log,
	})
	if err != nil {
		return err
	}

	coreCfg := events.Config{
		Device:        cfg.Device.Name,
		Version:       Version,
		ConfigVersion: cfg.Version(),
		Queue:         events.NewQueue(cfg.Queue.Depth),
		Engine:        engine,
		Restart: func() {
			restart = true
			cancel()
		},
		Logger: log,
	}

	var mqttClient *broker.Broker
	if cfg.MQTT.Enabled() {
		topics := events.Topics{Device: cfg.Device.Name}
		mqttClient, err = broker.New(broker.Options{
			Host:        cfg.MQTT.Server.Host,
			Port:        cfg.MQTT.Server.Port,
			SSL:         cfg.MQTT.Server.SSL,
			ClientID:    cfg.MQTT.Server.ClientID,
			Username:    cfg.MQTT.Server.Username,
			Password:    cfg.MQTT.Server.Password,
			ServerCert:  cfg.MQTT.Server.ServerCert,
			ClientCert:  cfg.MQTT.Server.ClientCert,
			ClientKey:   cfg.MQTT.Server.ClientKey,
			WillTopic:   topics.Status(),
			WillPayload: "offline",
			QoS:         cfg.MQTT.Publish.QoS,
			Retain:      cfg.MQTT.Publish.Retain,
			Logger:      log,
		})
		if err != nil {
			return err
		}
		coreCfg.Broker = mqttClient
		coreCfg.Updater = ota.New(ota.Options{
			ConfigPath: configPath,
			Validate: func(data []byte) error {
				_, err := config.Parse(data)
				return err
			},
			Logger: log,
		})
	} else {
		log.Warn("No MQTT server configured, running offline")
	}

	core := events.NewCore(coreCfg)
	if mqttClient != nil {
		mqttClient.SetHandlers(core.OnMQTTConnected, core.OnMQTTDisconnected)
	}

	log.WithFields(logrus.Fields{
		"bridge":  connInfo,
		"model":   engine.Profile().Name(),
		"state":   engine.State().String(),
		"version": Version,
	}).Info("Starting controller")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return core.Run(gctx) })
	g.Go(func() error {
		return link.Run(gctx, bridge.Handlers{
			OnCapture: core.OnIRReceived,
			OnPower: func(pin int, on bool) bool {
				if cfg.Device.PowerPin != 0 && pin != cfg.Device.PowerPin {
					return false
				}
				return core.OnPowerChanged(pin, on)
			},
		})
	})
	g.Go(func() error { return core.Heartbeat(gctx, cfg.Heartbeat.Interval) })
	if cfg.Metrics.Listen != "" {
		g.Go(func() error { return metrics.Serve(gctx, cfg.Metrics.Listen, log) })
	}
	if mqttClient != nil {
		core.OnNetworkConnected()
		defer mqttClient.Disconnect()
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if restart {
		// The supervisor starts a new process with the updated configuration.
		log.Info("Exiting for restart")
		return nil
	}
	log.Info("Controller stopped")
	return nil
}
