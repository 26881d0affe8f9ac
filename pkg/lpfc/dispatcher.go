// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lpfc

import (
	"sync"

	"go.uber.org/zap"
)

// Dispatcher routes decoded events to handlers registered per event variant.
// Registration and dispatch may happen from different goroutines.
type Dispatcher struct {
	mu       sync.RWMutex
	pid      func(*PIDEvent)
	settings func(*SettingsEvent)
	angles   func(*AnglesEvent)
	stream   func(*StreamEvent)
	request  func(*RequestEvent)
	errors   func(error)
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher. A nil logger disables diagnostics.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{logger: logger}
}

// OnPID registers the handler for PID values
func (d *Dispatcher) OnPID(fn func(*PIDEvent)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pid = fn
}

// OnSettings registers the handler for settings
func (d *Dispatcher) OnSettings(fn func(*SettingsEvent)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.settings = fn
}

// OnAngles registers the handler for attitude telemetry
func (d *Dispatcher) OnAngles(fn func(*AnglesEvent)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.angles = fn
}

// OnStream registers the handler for SEND_ANGLES commands
func (d *Dispatcher) OnStream(fn func(*StreamEvent)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stream = fn
}

// OnRequest registers the handler for payload-less commands
func (d *Dispatcher) OnRequest(fn func(*RequestEvent)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.request = fn
}

// OnError registers the handler for decode errors
func (d *Dispatcher) OnError(fn func(error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errors = fn
}

// Dispatch routes ev to its handler. It returns false, after logging a
// diagnostic, if no handler is registered for the event's variant.
// Handlers run on the caller's goroutine.
func (d *Dispatcher) Dispatch(ev Event) bool {
	d.mu.RLock()
	var handler func()
	switch e := ev.(type) {
	case *PIDEvent:
		if fn := d.pid; fn != nil {
			handler = func() { fn(e) }
		}
	case *SettingsEvent:
		if fn := d.settings; fn != nil {
			handler = func() { fn(e) }
		}
	case *AnglesEvent:
		if fn := d.angles; fn != nil {
			handler = func() { fn(e) }
		}
	case *StreamEvent:
		if fn := d.stream; fn != nil {
			handler = func() { fn(e) }
		}
	case *RequestEvent:
		if fn := d.request; fn != nil {
			handler = func() { fn(e) }
		}
	}
	d.mu.RUnlock()

	if handler != nil {
		handler()
		return true
	}

	if ev != nil {
		d.logger.Debug("no handler for event",
			zap.Stringer("command", ev.Command()),
			zap.Stringer("direction", ev.Direction()))
	}
	return false
}

// DispatchError hands a decode error to the error handler. Errors are always
// logged, whether a handler is registered or not.
func (d *Dispatcher) DispatchError(err error) {
	d.logger.Warn("decode error", zap.String("kind", ErrorKind(err)), zap.Error(err))

	d.mu.RLock()
	fn := d.errors
	d.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// DispatchResults dispatches every result returned by Decoder.Feed.
func (d *Dispatcher) DispatchResults(results []Result) {
	for _, r := range results {
		if r.Err != nil {
			d.DispatchError(r.Err)
			continue
		}
		d.Dispatch(r.Event)
	}
}
