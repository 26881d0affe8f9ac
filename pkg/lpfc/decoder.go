// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lpfc

import (
	"bytes"
	"time"
)

// Result is the outcome of one frame found by the decoder: either an Event
// or an error. Errors wrap one of the sentinel errors in a *DecodeError.
type Result struct {
	Event Event
	Err   error
}

// Decoder reassembles frames from a byte stream and decodes them.
//
// A Decoder is not safe for concurrent use: feed it from one goroutine.
type Decoder struct {
	dir    Direction
	header []byte
	buf    []byte
	limit  int
	now    func() time.Time
}

// NewDecoder creates a decoder for inbound (response) frames with the
// default buffer size.
func NewDecoder() *Decoder {
	return NewDecoderFor(Inbound, DefaultBufferSize)
}

// NewCommandDecoder creates a decoder for outbound (command) frames, as seen
// by the flight controller.
func NewCommandDecoder() *Decoder {
	return NewDecoderFor(Outbound, DefaultBufferSize)
}

// NewDecoderFor creates a decoder for the given direction with a reassembly
// buffer of size bytes. The size is raised to MaxFrameSize if smaller.
func NewDecoderFor(dir Direction, size int) *Decoder {
	if size < MaxFrameSize {
		size = MaxFrameSize
	}
	return &Decoder{
		dir:    dir,
		header: []byte(dir.Header()),
		buf:    make([]byte, 0, size),
		limit:  size,
		now:    time.Now,
	}
}

// Reset discards any buffered bytes
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
}

// Buffered returns the number of bytes waiting for the rest of a frame
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Direction returns the direction of frames the decoder accepts
func (d *Decoder) Direction() Direction {
	return d.dir
}

// Feed appends data to the reassembly buffer and decodes every complete
// frame in it, in order. Incomplete frames stay buffered for the next call;
// if nothing is complete yet, Feed returns no results.
//
// A chunk that does not fit in the buffer is rejected whole with
// ErrBufferOverflow, and the partial frame buffered before it is dropped.
func (d *Decoder) Feed(data []byte) []Result {
	if len(data) > d.limit-len(d.buf) {
		dropped := len(d.buf) + len(data)
		d.buf = d.buf[:0]
		return []Result{{Err: &DecodeError{Err: ErrBufferOverflow, Skipped: dropped}}}
	}
	d.buf = append(d.buf, data...)

	var results []Result
	for {
		d.skipTerminators()

		// Header, command and length must be present
		if len(d.buf) < HeaderLen+2 {
			break
		}

		if !bytes.HasPrefix(d.buf, d.header) {
			skipped := d.resync()
			results = append(results, Result{Err: &DecodeError{Err: ErrBadHeader, Skipped: skipped}})
			continue
		}

		cmd := Command(d.buf[HeaderLen])
		length := int(d.buf[HeaderLen+1])
		total := HeaderLen + 2 + length + 1
		if len(d.buf) < total {
			break
		}

		payload := d.buf[HeaderLen+2 : HeaderLen+2+length]
		received := d.buf[total-1]
		expected := frameChecksum(cmd, payload)

		var r Result
		if received != expected {
			r.Err = &DecodeError{
				Err:      ErrChecksumMismatch,
				Command:  cmd,
				Length:   length,
				Expected: expected,
				Received: received,
				Skipped:  total,
			}
		} else {
			r = d.decodeFrame(cmd, payload)
		}

		d.consume(total)
		results = append(results, r)
	}

	return results
}

// decodeFrame turns a checksummed frame into an event
func (d *Decoder) decodeFrame(cmd Command, payload []byte) Result {
	schema, err := Lookup(cmd, d.dir)
	if err != nil {
		return Result{Err: &DecodeError{Err: ErrUnknownCommand, Command: cmd, Length: len(payload)}}
	}

	values, err := schema.Unpack(payload)
	if err != nil {
		return Result{Err: &DecodeError{Err: ErrSchemaMismatch, Command: cmd, Length: len(payload)}}
	}

	ev, err := newEvent(schema, values, d.now())
	if err != nil {
		return Result{Err: &DecodeError{Err: ErrUnknownCommand, Command: cmd, Length: len(payload)}}
	}
	return Result{Event: ev}
}

// skipTerminators drops CR/LF left between frames
func (d *Decoder) skipTerminators() {
	n := 0
	for n < len(d.buf) && (d.buf[n] == '\r' || d.buf[n] == '\n') {
		n++
	}
	if n > 0 {
		d.consume(n)
	}
}

// resync discards bytes until the buffer starts with something that could
// be a header, and returns how many bytes were dropped.
func (d *Decoder) resync() int {
	skipped := 0
	for len(d.buf) > 0 {
		i := bytes.IndexByte(d.buf[1:], d.header[0])
		if i < 0 {
			skipped += len(d.buf)
			d.buf = d.buf[:0]
			break
		}
		d.consume(i + 1)
		skipped += i + 1

		n := min(len(d.buf), HeaderLen)
		if bytes.Equal(d.buf[:n], d.header[:n]) {
			break
		}
	}
	return skipped
}

func (d *Decoder) consume(n int) {
	d.buf = append(d.buf[:0], d.buf[n:]...)
}
