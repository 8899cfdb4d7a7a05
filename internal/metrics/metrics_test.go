// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package metrics

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	before := testutil.ToFloat64(irDecodes.WithLabelValues("error"))
	RecordDecode(false)
	assert.Equal(t, before+1, testutil.ToFloat64(irDecodes.WithLabelValues("error")))

	before = testutil.ToFloat64(irTransmits.WithLabelValues("ok"))
	RecordTransmit(nil)
	assert.Equal(t, before+1, testutil.ToFloat64(irTransmits.WithLabelValues("ok")))

	before = testutil.ToFloat64(mqttPublishes.WithLabelValues("error"))
	RecordPublish(errors.New("not connected"))
	assert.Equal(t, before+1, testutil.ToFloat64(mqttPublishes.WithLabelValues("error")))

	before = testutil.ToFloat64(eventsDropped)
	RecordDrop()
	assert.Equal(t, before+1, testutil.ToFloat64(eventsDropped))

	SetQueueDepth(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(queueDepth))

	before = testutil.ToFloat64(eventsProcessed.WithLabelValues("IRReceived"))
	RecordEvent("IRReceived", 3*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(eventsProcessed.WithLabelValues("IRReceived")))
}

func TestServe(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, addr, logrus.NewEntry(logrus.New()))
	}()

	RecordPersistFailure()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return false
		}
		body = string(b)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	assert.True(t, strings.Contains(body, "acmitm_store_persist_failures_total"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
