// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package ota downloads configuration updates requested over MQTT.
package ota

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// Kind selects what an update replaces.
type Kind uint8

const (
	Firmware Kind = iota
	Config
)

func (k Kind) String() string {
	switch k {
	case Firmware:
		return "firmware"
	case Config:
		return "configuration"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// DefaultMaxSize bounds a downloaded configuration document.
const DefaultMaxSize = 1 << 20

var (
	// ErrUnsupported is reported for firmware updates, which a host build
	// cannot apply. The binary is replaced by the package manager instead.
	ErrUnsupported = errors.New("firmware updates are not supported on this build")

	// ErrTooLarge is reported when a download exceeds the size limit.
	ErrTooLarge = errors.New("update exceeds size limit")
)

// Options configures an Updater.
type Options struct {
	// ConfigPath is the file a configuration update replaces.
	ConfigPath string

	// Validate rejects a downloaded configuration before it is written.
	Validate func(data []byte) error

	Client  *http.Client
	Timeout time.Duration
	MaxSize int64
	Logger  *logrus.Entry
}

// Updater runs one download at a time in the background.
type Updater struct {
	opts Options
	busy chan struct{}
	log  *logrus.Entry
}

// New creates an Updater.
func New(opts Options) *Updater {
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Updater{
		opts: opts,
		busy: make(chan struct{}, 1),
		log:  log.WithField("component", "ota"),
	}
}

// Start downloads in a new goroutine and calls done with the result. A
// request made while another download runs fails immediately.
func (u *Updater) Start(kind Kind, url string, done func(kind Kind, err error)) {
	select {
	case u.busy <- struct{}{}:
	default:
		go done(kind, errors.New("update already in progress"))
		return
	}

	go func() {
		defer func() { <-u.busy }()

		ctx, cancel := context.WithTimeout(context.Background(), u.opts.Timeout)
		defer cancel()

		err := u.Download(ctx, kind, url)
		done(kind, err)
	}()
}

// Download fetches and applies an update synchronously.
func (u *Updater) Download(ctx context.Context, kind Kind, url string) error {
	log := u.log.WithFields(logrus.Fields{"type": kind.String(), "url": url})

	if kind != Config {
		return ErrUnsupported
	}
	if u.opts.ConfigPath == "" {
		return fmt.Errorf("no configuration file to update")
	}

	log.Info("Downloading update")
	data, err := u.fetch(ctx, url)
	if err != nil {
		return err
	}

	if u.opts.Validate != nil {
		if err := u.opts.Validate(data); err != nil {
			return fmt.Errorf("downloaded configuration rejected: %w", err)
		}
	}

	if err := writeAtomic(u.opts.ConfigPath, data); err != nil {
		return fmt.Errorf("write configuration: %w", err)
	}
	log.WithField("bytes", len(data)).Info("Configuration updated")
	return nil
}

func (u *Updater) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := u.opts.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download: unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, u.opts.MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	if int64(len(data)) > u.opts.MaxSize {
		return nil, ErrTooLarge
	}
	return data, nil
}

// writeAtomic replaces path so readers see either the old or the new file.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	name := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0o600); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}
