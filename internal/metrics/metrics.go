// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exposes link counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRegistry creates a registry with the Go and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the /metrics HTTP handler for reg
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// LinkMetrics counts traffic on a protocol link
type LinkMetrics struct {
	BytesReceived prometheus.Counter
	FramesSent    *prometheus.CounterVec // labels: command
	Events        *prometheus.CounterVec // labels: command
	DecodeErrors  *prometheus.CounterVec // labels: kind
}

// NewLinkMetrics registers and returns the link counters
func NewLinkMetrics(reg prometheus.Registerer) *LinkMetrics {
	m := &LinkMetrics{
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flightlink_bytes_received_total",
			Help: "Total bytes read from the flight controller link.",
		}),
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flightlink_frames_sent_total",
			Help: "Frames written to the link by command.",
		}, []string{"command"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flightlink_events_total",
			Help: "Decoded events by command.",
		}, []string{"command"}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flightlink_decode_errors_total",
			Help: "Decode errors by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.BytesReceived, m.FramesSent, m.Events, m.DecodeErrors)
	return m
}

// Serve exposes reg on addr under /metrics until ctx is cancelled
func Serve(ctx context.Context, addr string, reg *prometheus.Registry, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(reg))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
