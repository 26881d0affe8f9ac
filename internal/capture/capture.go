// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture records raw link traffic to a CBOR file and reads it back.
//
// A capture is a CBOR sequence: one Header item followed by one Record item
// per chunk read from or written to the link.
package capture

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/Thermoquad/flightlink/pkg/lpfc"
)

// Version is the capture format version written by this package
const Version = 1

// ErrVersion is returned for captures written by an unknown format version
var ErrVersion = errors.New("capture: unsupported version")

// Header opens every capture
type Header struct {
	Version   int       `cbor:"1,keyasint"`
	SessionID string    `cbor:"2,keyasint"`
	Started   time.Time `cbor:"3,keyasint"`
	Source    string    `cbor:"4,keyasint"`
}

// Record is one chunk of link traffic. Offset is measured from
// Header.Started.
type Record struct {
	Offset    time.Duration  `cbor:"1,keyasint"`
	Direction lpfc.Direction `cbor:"2,keyasint"`
	Data      []byte         `cbor:"3,keyasint"`
}

var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Writer appends records to a capture. It is safe for concurrent use.
type Writer struct {
	mu      sync.Mutex
	enc     *cbor.Encoder
	started time.Time
	header  Header
	now     func() time.Time
}

// NewWriter writes a fresh header for source to w
func NewWriter(w io.Writer, source string) (*Writer, error) {
	now := time.Now()
	h := Header{
		Version:   Version,
		SessionID: uuid.NewString(),
		Started:   now,
		Source:    source,
	}

	enc := encMode.NewEncoder(w)
	if err := enc.Encode(h); err != nil {
		return nil, fmt.Errorf("capture: write header: %w", err)
	}

	return &Writer{enc: enc, started: now, header: h, now: time.Now}, nil
}

// Header returns the header written at the start of the capture
func (w *Writer) Header() Header {
	return w.header
}

// Write records data travelling in dir. The slice is encoded before Write
// returns, so callers may reuse it.
func (w *Writer) Write(dir lpfc.Direction, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	rec := Record{
		Offset:    w.now().Sub(w.started),
		Direction: dir,
		Data:      data,
	}
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("capture: write record: %w", err)
	}
	return nil
}

// Reader iterates over a capture
type Reader struct {
	dec    *cbor.Decoder
	header Header
}

// NewReader reads and checks the capture header
func NewReader(r io.Reader) (*Reader, error) {
	dec := cbor.NewDecoder(r)

	var h Header
	if err := dec.Decode(&h); err != nil {
		return nil, fmt.Errorf("capture: read header: %w", err)
	}
	if h.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, h.Version)
	}
	if _, err := uuid.Parse(h.SessionID); err != nil {
		return nil, fmt.Errorf("capture: bad session id %q: %w", h.SessionID, err)
	}

	return &Reader{dec: dec, header: h}, nil
}

// Header returns the capture header
func (r *Reader) Header() Header {
	return r.header
}

// Next returns the next record, or io.EOF after the last one
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("capture: read record: %w", err)
	}
	return rec, nil
}
