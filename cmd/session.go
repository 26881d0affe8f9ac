// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/flightlink/internal/link"
	"github.com/Thermoquad/flightlink/internal/metrics"
	"github.com/Thermoquad/flightlink/internal/transport"
	"github.com/Thermoquad/flightlink/pkg/lpfc"
)

// requestTimeout bounds a single command/response exchange
const requestTimeout = 2 * time.Second

// session is an open connection with a link running on top of it
type session struct {
	// ctx is cancelled by SIGINT or SIGTERM. The link keeps running until
	// close, so a command can still clean up after an interrupt.
	ctx  context.Context
	stop context.CancelFunc

	runCtx    context.Context
	runCancel context.CancelFunc

	link     *link.Link
	connInfo string
	started  time.Time

	finished chan struct{}
	err      error
}

// openSession opens the configured transport and builds a link over it.
// Register dispatcher handlers, then call start.
func openSession(l *zap.Logger, extra ...link.Option) (*session, error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	conn, connInfo, err := transport.Open(ctx, cfg)
	if err != nil {
		stop()
		return nil, err
	}
	runCtx, runCancel := context.WithCancel(context.Background())

	opts := []link.Option{
		link.WithLogger(l),
		link.WithRate(cfg.Link.SendRate, cfg.Link.SendBurst),
		link.WithBufferSize(cfg.Link.BufferSize),
	}
	if cfg.Metrics.Addr != "" {
		reg := metrics.NewRegistry()
		opts = append(opts, link.WithMetrics(metrics.NewLinkMetrics(reg)))
		go func() {
			if err := metrics.Serve(runCtx, cfg.Metrics.Addr, reg, l); err != nil {
				l.Error("metrics server failed", zap.Error(err))
			}
		}()
	}
	opts = append(opts, extra...)

	l.Info("connected", zap.String("connection", connInfo))

	return &session{
		ctx:       ctx,
		stop:      stop,
		runCtx:    runCtx,
		runCancel: runCancel,
		link:      link.New(conn, opts...),
		connInfo:  connInfo,
		started:   time.Now(),
		finished:  make(chan struct{}),
	}, nil
}

// start runs the link in the background
func (s *session) start() {
	go func() {
		s.err = s.link.Run(s.runCtx)
		close(s.finished)
	}()
}

// done is closed when the link stops
func (s *session) done() <-chan struct{} {
	return s.finished
}

// wait blocks until the link stops and returns its error
func (s *session) wait() error {
	<-s.finished
	return s.err
}

// run blocks until an interrupt or until the link stops
func (s *session) run() error {
	select {
	case <-s.ctx.Done():
		return s.close()
	case <-s.finished:
		s.stop()
		return s.err
	}
}

// close stops the link and waits for it
func (s *session) close() error {
	s.runCancel()
	err := s.wait()
	s.stop()
	return err
}

// request sends frame and waits up to requestTimeout for the reply. It
// still works after an interrupt, until close.
func (s *session) request(frame []byte, want lpfc.Command) (lpfc.Event, error) {
	ctx, cancel := context.WithTimeout(s.runCtx, requestTimeout)
	defer cancel()
	return s.link.Request(ctx, frame, want)
}

// send writes a frame that has no reply
func (s *session) send(frame []byte) error {
	ctx, cancel := context.WithTimeout(s.runCtx, requestTimeout)
	defer cancel()
	return s.link.Send(ctx, frame)
}
