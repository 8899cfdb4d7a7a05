// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exposes the daemon's Prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "acmitm"

// ============================================================
// Collectors
// ============================================================

var (
	// eventsProcessed counts events handled by the consumer.
	// Labels: kind
	eventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "processed_total",
		Help:      "Events handled by the consumer",
	}, []string{"kind"})

	eventDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "handle_seconds",
		Help:      "Time spent handling one event",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"kind"})

	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "dropped_total",
		Help:      "Events lost to a full queue on the non-blocking path",
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "queue_depth",
		Help:      "Events waiting in the queue",
	})

	// irDecodes counts received captures by outcome.
	// Labels: result (ok, error)
	irDecodes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ir",
		Name:      "decodes_total",
		Help:      "Received IR captures by decode result",
	}, []string{"result"})

	irTransmits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ir",
		Name:      "transmits_total",
		Help:      "IR transmit requests by result",
	}, []string{"result"})

	persistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "persist_failures_total",
		Help:      "State words that could not be written",
	})

	mqttPublishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "mqtt",
		Name:      "publishes_total",
		Help:      "MQTT publishes by result",
	}, []string{"result"})

	// bridgeFrames counts frames read from the IR bridge.
	// Labels: result (ok, error)
	bridgeFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bridge",
		Name:      "frames_total",
		Help:      "Frames received from the IR bridge by result",
	}, []string{"result"})
)

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// ============================================================
// Recording functions
// ============================================================

// RecordEvent records one handled event of the given kind.
func RecordEvent(kind string, d time.Duration) {
	eventsProcessed.WithLabelValues(kind).Inc()
	eventDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordDrop records an event lost on the non-blocking enqueue path.
func RecordDrop() {
	eventsDropped.Inc()
}

// SetQueueDepth reports the number of queued events.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// RecordDecode records the outcome of decoding a capture.
func RecordDecode(ok bool) {
	irDecodes.WithLabelValues(result(ok)).Inc()
}

// RecordTransmit records the outcome of a transmit request.
func RecordTransmit(err error) {
	irTransmits.WithLabelValues(result(err == nil)).Inc()
}

// RecordPersistFailure records a failed state write.
func RecordPersistFailure() {
	persistFailures.Inc()
}

// RecordPublish records the outcome of an MQTT publish.
func RecordPublish(err error) {
	mqttPublishes.WithLabelValues(result(err == nil)).Inc()
}

// RecordBridgeFrame records a frame read from the bridge.
func RecordBridgeFrame(ok bool) {
	bridgeFrames.WithLabelValues(result(ok)).Inc()
}

// ============================================================
// HTTP listener
// ============================================================

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, log *logrus.Entry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("Serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
