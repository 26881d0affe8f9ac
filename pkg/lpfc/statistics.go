// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lpfc

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Statistics tracks frame statistics and error rates. It is safe for
// concurrent use.
type Statistics struct {
	mu sync.Mutex

	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	BytesReceived   uint64
	TotalFrames     uint64
	ValidFrames     uint64
	FramesSent      uint64
	BadHeaders      uint64
	ChecksumErrors  uint64
	UnknownCommands uint64
	SchemaErrors    uint64
	Overflows       uint64
	AnomalousValues uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// AddBytes counts raw bytes received from the transport
func (s *Statistics) AddBytes(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BytesReceived += uint64(n)
}

// AddSent counts a frame written to the transport
func (s *Statistics) AddSent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FramesSent++
}

// Update updates statistics based on a decode result and its validation errors
func (s *Statistics) Update(r Result, validationErrors []ValidationError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.TotalFrames++
	s.LastUpdateTime = time.Now()

	if r.Err != nil {
		switch {
		case errors.Is(r.Err, ErrBadHeader):
			s.BadHeaders++
		case errors.Is(r.Err, ErrChecksumMismatch):
			s.ChecksumErrors++
		case errors.Is(r.Err, ErrUnknownCommand):
			s.UnknownCommands++
		case errors.Is(r.Err, ErrSchemaMismatch):
			s.SchemaErrors++
		case errors.Is(r.Err, ErrBufferOverflow):
			s.Overflows++
		}
		return
	}

	if len(validationErrors) > 0 {
		s.AnomalousValues++
		return
	}
	s.ValidFrames++
}

// errorCount returns the number of decode errors; s.mu must be held.
func (s *Statistics) errorCount() uint64 {
	return s.BadHeaders + s.ChecksumErrors + s.UnknownCommands + s.SchemaErrors + s.Overflows
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()
}

func (s *Statistics) calculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.errorCount()) / elapsed
	}
}

// Snapshot returns a copy of the counters with rates calculated
func (s *Statistics) Snapshot() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()
	return Statistics{
		StartTime:       s.StartTime,
		LastUpdateTime:  s.LastUpdateTime,
		BytesReceived:   s.BytesReceived,
		TotalFrames:     s.TotalFrames,
		ValidFrames:     s.ValidFrames,
		FramesSent:      s.FramesSent,
		BadHeaders:      s.BadHeaders,
		ChecksumErrors:  s.ChecksumErrors,
		UnknownCommands: s.UnknownCommands,
		SchemaErrors:    s.SchemaErrors,
		Overflows:       s.Overflows,
		AnomalousValues: s.AnomalousValues,
		FrameRate:       s.FrameRate,
		ErrorRate:       s.ErrorRate,
	}
}

// Errors returns the total number of decode errors
func (s *Statistics) Errors() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorCount()
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	snap := s.Snapshot()

	var validPercent, errorPercent float64
	if snap.TotalFrames > 0 {
		validPercent = float64(snap.ValidFrames) * 100.0 / float64(snap.TotalFrames)
		errorPercent = float64(snap.errorCount()) * 100.0 / float64(snap.TotalFrames)
	}

	elapsed := time.Since(snap.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Bytes Received:  %8d\n", snap.BytesReceived)
	result += fmt.Sprintf("Frames Sent:     %8d\n", snap.FramesSent)
	result += fmt.Sprintf("Total Frames:    %8d\n", snap.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", snap.ValidFrames, validPercent)

	if snap.errorCount() > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d (%.1f%%)\n", snap.errorCount(), errorPercent)
		if snap.BadHeaders > 0 {
			result += fmt.Sprintf("  Bad Header:       %5d\n", snap.BadHeaders)
		}
		if snap.ChecksumErrors > 0 {
			result += fmt.Sprintf("  Checksum:         %5d\n", snap.ChecksumErrors)
		}
		if snap.UnknownCommands > 0 {
			result += fmt.Sprintf("  Unknown Command:  %5d\n", snap.UnknownCommands)
		}
		if snap.SchemaErrors > 0 {
			result += fmt.Sprintf("  Schema Mismatch:  %5d\n", snap.SchemaErrors)
		}
		if snap.Overflows > 0 {
			result += fmt.Sprintf("  Buffer Overflow:  %5d\n", snap.Overflows)
		}
	}
	if snap.AnomalousValues > 0 {
		result += fmt.Sprintf("Anomalous Values:%8d\n", snap.AnomalousValues)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", snap.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", snap.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.StartTime = now
	s.LastUpdateTime = now
	s.BytesReceived = 0
	s.TotalFrames = 0
	s.ValidFrames = 0
	s.FramesSent = 0
	s.BadHeaders = 0
	s.ChecksumErrors = 0
	s.UnknownCommands = 0
	s.SchemaErrors = 0
	s.Overflows = 0
	s.AnomalousValues = 0
	s.FrameRate = 0
	s.ErrorRate = 0
}
