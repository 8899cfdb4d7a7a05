// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ota

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newUpdater(t *testing.T, validate func([]byte) error) (*Updater, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "acmitm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o600))
	return New(Options{ConfigPath: path, Validate: validate}), path
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "firmware", Firmware.String())
	assert.Equal(t, "configuration", Config.String())
	assert.Equal(t, "Kind(9)", Kind(9).String())
}

func TestDownloadConfig(t *testing.T) {
	srv := serve(t, http.StatusOK, "device:\n  name: new\n")
	u, path := newUpdater(t, nil)

	require.NoError(t, u.Download(context.Background(), Config, srv.URL))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "device:\n  name: new\n", string(data))
}

func TestDownloadFirmwareUnsupported(t *testing.T) {
	u, path := newUpdater(t, nil)

	err := u.Download(context.Background(), Firmware, "http://unused")
	assert.ErrorIs(t, err, ErrUnsupported)

	data, _ := os.ReadFile(path)
	assert.Equal(t, "old", string(data))
}

func TestDownloadRejectedKeepsOldFile(t *testing.T) {
	srv := serve(t, http.StatusOK, "garbage")
	u, path := newUpdater(t, func([]byte) error { return errors.New("invalid") })

	err := u.Download(context.Background(), Config, srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")

	data, _ := os.ReadFile(path)
	assert.Equal(t, "old", string(data))
}

func TestDownloadHTTPError(t *testing.T) {
	srv := serve(t, http.StatusNotFound, "")
	u, _ := newUpdater(t, nil)

	err := u.Download(context.Background(), Config, srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestDownloadTooLarge(t *testing.T) {
	srv := serve(t, http.StatusOK, strings.Repeat("x", 100))
	path := filepath.Join(t.TempDir(), "acmitm.yaml")
	u := New(Options{ConfigPath: path, MaxSize: 10})

	err := u.Download(context.Background(), Config, srv.URL)
	assert.ErrorIs(t, err, ErrTooLarge)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestStartReportsCompletion(t *testing.T) {
	srv := serve(t, http.StatusOK, "ok")
	u, _ := newUpdater(t, nil)

	type result struct {
		kind Kind
		err  error
	}
	done := make(chan result, 1)
	u.Start(Config, srv.URL, func(kind Kind, err error) {
		done <- result{kind, err}
	})

	select {
	case r := <-done:
		assert.Equal(t, Config, r.kind)
		assert.NoError(t, r.err)
	case <-time.After(5 * time.Second):
		t.Fatal("update did not complete")
	}
}

func TestStartWhileBusy(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	u, _ := newUpdater(t, nil)
	first := make(chan error, 1)
	second := make(chan error, 1)

	u.Start(Config, srv.URL, func(_ Kind, err error) { first <- err })
	u.Start(Config, srv.URL, func(_ Kind, err error) { second <- err })

	select {
	case err := <-second:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("second request was not rejected")
	}
}
