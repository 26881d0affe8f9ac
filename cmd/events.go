// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Thermoquad/flightlink/pkg/lpfc"
)

// batchInterval is how often queued link events are handed to the TUI
const batchInterval = 50 * time.Millisecond

// batchQueueSize bounds the events held between two batches
const batchQueueSize = 256

// linkEvent is one decode result as seen by a TUI
type linkEvent struct {
	event            lpfc.Event
	decodeErr        error
	validationErrors []lpfc.ValidationError
}

// linkSyncMsg reports the first valid frame and the bytes dropped before it
type linkSyncMsg struct {
	invalidBytes int
}

// linkBatchMsg carries the events queued since the last batch
type linkBatchMsg struct {
	syncMsg *linkSyncMsg
	events  []linkEvent
	dropped int64 // events lost because the queue was full
}

// linkClosedMsg reports that the link stopped
type linkClosedMsg struct {
	err error
}

// eventPump queues dispatcher output and forwards it to a TUI in batches, so
// a fast telemetry stream does not flood the update loop.
type eventPump struct {
	batchChan chan linkEvent
	syncChan  chan linkSyncMsg
	dropped   atomic.Int64

	// Run goroutine only
	synchronized bool
	invalidBytes int
}

// newEventPump registers handlers for every event kind on d
func newEventPump(d *lpfc.Dispatcher) *eventPump {
	ep := &eventPump{
		batchChan: make(chan linkEvent, batchQueueSize),
		syncChan:  make(chan linkSyncMsg, 1),
	}

	d.OnPID(func(e *lpfc.PIDEvent) { ep.onEvent(e) })
	d.OnSettings(func(e *lpfc.SettingsEvent) { ep.onEvent(e) })
	d.OnAngles(func(e *lpfc.AnglesEvent) { ep.onEvent(e) })
	d.OnError(ep.onError)
	return ep
}

func (ep *eventPump) onEvent(ev lpfc.Event) {
	if !ep.synchronized {
		ep.synchronized = true
		select {
		case ep.syncChan <- linkSyncMsg{invalidBytes: ep.invalidBytes}:
		default:
		}
	}
	ep.queue(linkEvent{event: ev, validationErrors: lpfc.ValidateEvent(ev)})
}

func (ep *eventPump) onError(err error) {
	if !ep.synchronized {
		// Noise before the first frame is line garbage, not an error
		var de *lpfc.DecodeError
		if errors.As(err, &de) {
			ep.invalidBytes += de.Skipped
		}
		return
	}
	ep.queue(linkEvent{decodeErr: err})
}

func (ep *eventPump) queue(ev linkEvent) {
	select {
	case ep.batchChan <- ev:
	default:
		ep.dropped.Add(1)
	}
}

// run forwards batches to send every batchInterval until done is closed
func (ep *eventPump) run(done <-chan struct{}, send func(tea.Msg)) {
	ticker := time.NewTicker(batchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			ep.flush(send)
			return
		case <-ticker.C:
			ep.flush(send)
		}
	}
}

func (ep *eventPump) flush(send func(tea.Msg)) {
	var batch linkBatchMsg

	select {
	case sync := <-ep.syncChan:
		batch.syncMsg = &sync
	default:
	}

drainLoop:
	for {
		select {
		case msg := <-ep.batchChan:
			batch.events = append(batch.events, msg)
		default:
			break drainLoop
		}
	}

	batch.dropped = ep.dropped.Swap(0)

	if batch.syncMsg != nil || len(batch.events) > 0 || batch.dropped > 0 {
		send(batch)
	}
}

// pumpToProgram starts ep for s and reports the end of the link to p. A
// SIGTERM quits the program.
func pumpToProgram(ep *eventPump, s *session, p *tea.Program) {
	go func() {
		ep.run(s.done(), p.Send)
		p.Send(linkClosedMsg{err: s.err})
	}()
	go func() {
		select {
		case <-s.ctx.Done():
			p.Quit()
		case <-s.done():
		}
	}()
}
