// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link runs the protocol over a byte connection: it reads and
// decodes frames, dispatches events and paces outbound commands.
package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Thermoquad/flightlink/internal/capture"
	"github.com/Thermoquad/flightlink/internal/metrics"
	"github.com/Thermoquad/flightlink/pkg/lpfc"
)

// Defaults for command pacing
const (
	DefaultSendRate  = 20.0
	DefaultSendBurst = 4
)

// ErrClosed is returned by Request when Run has stopped
var ErrClosed = errors.New("link: closed")

// Option configures a Link
type Option func(*Link)

// WithLogger sets the logger used by the link and its dispatcher
func WithLogger(logger *zap.Logger) Option {
	return func(l *Link) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithRate limits Send to r frames per second with the given burst
func WithRate(r float64, burst int) Option {
	return func(l *Link) {
		if r > 0 && burst > 0 {
			l.limiter = rate.NewLimiter(rate.Limit(r), burst)
		}
	}
}

// WithBufferSize sets the decoder's reassembly buffer size. Sizes below
// lpfc.MinStreamBufferSize are raised to it.
func WithBufferSize(n int) Option {
	return func(l *Link) {
		l.bufferSize = n
	}
}

// WithDirection makes the link decode frames travelling in dir. The default
// is Inbound (a ground station); the simulator decodes Outbound commands.
func WithDirection(dir lpfc.Direction) Option {
	return func(l *Link) {
		l.dir = dir
	}
}

// WithMetrics counts traffic in m
func WithMetrics(m *metrics.LinkMetrics) Option {
	return func(l *Link) {
		l.metrics = m
	}
}

// WithCapture records every chunk read and frame sent to w
func WithCapture(w *capture.Writer) Option {
	return func(l *Link) {
		l.capture = w
	}
}

// WithStatistics tracks frames in s instead of a private tracker
func WithStatistics(s *lpfc.Statistics) Option {
	return func(l *Link) {
		if s != nil {
			l.stats = s
		}
	}
}

// Link owns a connection and the protocol state on top of it.
//
// Only the Run goroutine touches the decoder. Send and Request are safe for
// concurrent use.
type Link struct {
	conn       io.ReadWriteCloser
	dir        lpfc.Direction
	bufferSize int
	decoder    *lpfc.Decoder
	dispatcher *lpfc.Dispatcher
	stats      *lpfc.Statistics
	limiter    *rate.Limiter
	metrics    *metrics.LinkMetrics
	capture    *capture.Writer
	logger     *zap.Logger

	writeMu sync.Mutex

	waitMu  sync.Mutex
	waiters []*waiter
	done    chan struct{}
	runOnce sync.Once
}

type waiter struct {
	cmd lpfc.Command
	ch  chan lpfc.Event
}

// New creates a link over conn. The link takes ownership of conn and
// closes it when Run returns.
func New(conn io.ReadWriteCloser, opts ...Option) *Link {
	l := &Link{
		conn:       conn,
		dir:        lpfc.Inbound,
		bufferSize: lpfc.DefaultBufferSize,
		stats:      lpfc.NewStatistics(),
		limiter:    rate.NewLimiter(rate.Limit(DefaultSendRate), DefaultSendBurst),
		logger:     zap.NewNop(),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.bufferSize < lpfc.MinStreamBufferSize {
		l.bufferSize = lpfc.MinStreamBufferSize
	}
	l.decoder = lpfc.NewDecoderFor(l.dir, l.bufferSize)
	l.dispatcher = lpfc.NewDispatcher(l.logger)
	return l
}

// Dispatcher returns the dispatcher events are routed to. Register
// handlers before calling Run.
func (l *Link) Dispatcher() *lpfc.Dispatcher {
	return l.dispatcher
}

// Statistics returns the link's frame statistics
func (l *Link) Statistics() *lpfc.Statistics {
	return l.stats
}

// Run reads from the connection until ctx is cancelled or the connection
// fails. It returns nil after cancellation or a clean EOF.
func (l *Link) Run(ctx context.Context) error {
	defer l.runOnce.Do(func() { close(l.done) })

	stop := context.AfterFunc(ctx, func() {
		l.conn.Close()
	})
	defer func() {
		if stop() {
			l.conn.Close()
		}
	}()

	buf := make([]byte, lpfc.ReadChunkSize)
	for {
		n, err := l.conn.Read(buf)
		if n > 0 {
			l.handleChunk(buf[:n])
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			l.logger.Error("link read failed", zap.Error(err))
			return fmt.Errorf("link: read: %w", err)
		}
	}
}

// handleChunk runs one chunk through the decoder and everything watching it
func (l *Link) handleChunk(chunk []byte) {
	l.stats.AddBytes(len(chunk))
	if l.metrics != nil {
		l.metrics.BytesReceived.Add(float64(len(chunk)))
	}
	if l.capture != nil {
		if err := l.capture.Write(l.dir, chunk); err != nil {
			l.logger.Warn("capture write failed", zap.Error(err))
		}
	}

	for _, r := range l.decoder.Feed(chunk) {
		if r.Err != nil {
			l.stats.Update(r, nil)
			if l.metrics != nil {
				l.metrics.DecodeErrors.WithLabelValues(lpfc.ErrorKind(r.Err)).Inc()
			}
			l.dispatcher.DispatchError(r.Err)
			continue
		}

		anomalies := lpfc.ValidateEvent(r.Event)
		l.stats.Update(r, anomalies)
		for _, a := range anomalies {
			l.logger.Warn("anomalous value",
				zap.Stringer("command", r.Event.Command()),
				zap.String("detail", a.Message))
		}
		if l.metrics != nil {
			l.metrics.Events.WithLabelValues(r.Event.Command().String()).Inc()
		}

		l.notifyWaiters(r.Event)
		l.dispatcher.Dispatch(r.Event)
	}
}

// Send writes one frame once the rate limiter allows it
func (l *Link) Send(ctx context.Context, frame []byte) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("link: send: %w", err)
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if _, err := l.conn.Write(frame); err != nil {
		return fmt.Errorf("link: write: %w", err)
	}

	l.stats.AddSent()
	cmd := frameCommand(frame)
	if l.metrics != nil {
		l.metrics.FramesSent.WithLabelValues(cmd.String()).Inc()
	}
	if l.capture != nil {
		if err := l.capture.Write(l.sendDirection(), frame); err != nil {
			l.logger.Warn("capture write failed", zap.Error(err))
		}
	}
	l.logger.Debug("frame sent", zap.Stringer("command", cmd), zap.Int("len", len(frame)))
	return nil
}

// Request sends frame and waits for the next event carrying want. Run must
// be active on another goroutine.
func (l *Link) Request(ctx context.Context, frame []byte, want lpfc.Command) (lpfc.Event, error) {
	w := &waiter{cmd: want, ch: make(chan lpfc.Event, 1)}

	l.waitMu.Lock()
	l.waiters = append(l.waiters, w)
	l.waitMu.Unlock()
	defer l.removeWaiter(w)

	if err := l.Send(ctx, frame); err != nil {
		return nil, err
	}

	select {
	case ev := <-w.ch:
		return ev, nil
	case <-l.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, fmt.Errorf("link: waiting for %s: %w", want, ctx.Err())
	}
}

func (l *Link) notifyWaiters(ev lpfc.Event) {
	l.waitMu.Lock()
	defer l.waitMu.Unlock()

	kept := l.waiters[:0]
	for _, w := range l.waiters {
		if w.cmd == ev.Command() {
			w.ch <- ev
			continue
		}
		kept = append(kept, w)
	}
	l.waiters = kept
}

func (l *Link) removeWaiter(target *waiter) {
	l.waitMu.Lock()
	defer l.waitMu.Unlock()

	for i, w := range l.waiters {
		if w == target {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			return
		}
	}
}

func (l *Link) sendDirection() lpfc.Direction {
	if l.dir == lpfc.Inbound {
		return lpfc.Outbound
	}
	return lpfc.Inbound
}

// frameCommand extracts the command byte of an encoded frame
func frameCommand(frame []byte) lpfc.Command {
	if len(frame) <= lpfc.HeaderLen {
		return lpfc.Command(0xFF)
	}
	return lpfc.Command(frame[lpfc.HeaderLen])
}
