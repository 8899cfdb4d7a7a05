// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package broker is the MQTT network collaborator of the event core.
package broker

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

const (
	defaultTimeout = 10 * time.Second
	quiesceMillis  = 250
)

// ErrTimeout is returned when the broker does not acknowledge in time.
var ErrTimeout = errors.New("timed out")

// Options configures a Broker.
type Options struct {
	Host     string
	Port     int
	SSL      bool
	ClientID string
	Username string
	Password string

	// PEM files. ServerCert replaces the system roots.
	ServerCert string
	ClientCert string
	ClientKey  string

	// WillTopic receives WillPayload when the session is lost.
	WillTopic   string
	WillPayload string

	QoS     uint8
	Retain  bool
	Timeout time.Duration

	Logger *logrus.Entry
}

// Broker wraps a paho client. Publishes use the configured QoS and retain
// flag.
type Broker struct {
	client  mqtt.Client
	opts    Options
	timeout time.Duration

	onConnect    func()
	onDisconnect func()

	log *logrus.Entry
}

// New builds a client. Nothing is dialed until Connect.
func New(opts Options) (*Broker, error) {
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	b := &Broker{
		opts:    opts,
		timeout: opts.Timeout,
		log:     log.WithField("component", "broker"),
	}
	if b.timeout <= 0 {
		b.timeout = defaultTimeout
	}

	copts, err := b.clientOptions()
	if err != nil {
		return nil, err
	}
	b.client = mqtt.NewClient(copts)
	return b, nil
}

// SetHandlers registers the session callbacks. Call before Connect.
func (b *Broker) SetHandlers(onConnect, onDisconnect func()) {
	b.onConnect = onConnect
	b.onDisconnect = onDisconnect
}

func (b *Broker) clientOptions() (*mqtt.ClientOptions, error) {
	scheme := "tcp"
	if b.opts.SSL {
		scheme = "ssl"
	}

	copts := mqtt.NewClientOptions()
	copts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, b.opts.Host, b.opts.Port))
	copts.SetClientID(b.opts.ClientID)
	if b.opts.Username != "" {
		copts.SetUsername(b.opts.Username)
		copts.SetPassword(b.opts.Password)
	}
	if b.opts.WillTopic != "" {
		copts.SetWill(b.opts.WillTopic, b.opts.WillPayload, b.opts.QoS, b.opts.Retain)
	}
	copts.SetAutoReconnect(true)
	copts.SetConnectRetry(true)
	copts.SetCleanSession(true)
	// Handlers enqueue onto the event core and may block.
	copts.SetOrderMatters(false)
	copts.SetConnectTimeout(b.timeout)

	copts.SetOnConnectHandler(func(mqtt.Client) {
		b.log.Info("MQTT session established")
		if b.onConnect != nil {
			b.onConnect()
		}
	})
	copts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.log.WithError(err).Warn("MQTT connection lost")
		if b.onDisconnect != nil {
			b.onDisconnect()
		}
	})

	if b.opts.SSL {
		tlsCfg, err := tlsConfig(b.opts)
		if err != nil {
			return nil, err
		}
		copts.SetTLSConfig(tlsCfg)
	}
	return copts, nil
}

func tlsConfig(opts Options) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if opts.ServerCert != "" {
		pem, err := os.ReadFile(opts.ServerCert)
		if err != nil {
			return nil, fmt.Errorf("read server certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates in %s", opts.ServerCert)
		}
		cfg.RootCAs = pool
	}

	if opts.ClientCert != "" || opts.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(opts.ClientCert, opts.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

// Connect starts the session. The client keeps retrying in the background
// when the first attempt does not finish within the timeout.
func (b *Broker) Connect() error {
	b.log.WithField("client_id", b.opts.ClientID).Info("Connecting to MQTT")
	token := b.client.Connect()
	if !token.WaitTimeout(b.timeout) {
		b.log.Warn("MQTT not reachable yet, retrying in background")
		return nil
	}
	return token.Error()
}

// Disconnect closes the session. The connection-lost handler does not run.
func (b *Broker) Disconnect() {
	b.client.Disconnect(quiesceMillis)
}

// IsConnected reports whether the session is up.
func (b *Broker) IsConnected() bool {
	return b.client.IsConnectionOpen()
}

// Publish sends payload to topic.
func (b *Broker) Publish(topic string, payload []byte) error {
	token := b.client.Publish(topic, b.opts.QoS, b.opts.Retain, payload)
	return b.wait(token, "publish "+topic)
}

// Subscribe routes messages on topic to handler.
func (b *Broker) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	token := b.client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	return b.wait(token, "subscribe "+topic)
}

// Unsubscribe drops subscriptions.
func (b *Broker) Unsubscribe(topics ...string) error {
	if len(topics) == 0 {
		return nil
	}
	token := b.client.Unsubscribe(topics...)
	return b.wait(token, "unsubscribe")
}

func (b *Broker) wait(token mqtt.Token, op string) error {
	if !token.WaitTimeout(b.timeout) {
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
