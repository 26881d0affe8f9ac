// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sim is a simulated flight controller. It answers commands the way
// the firmware does, for bench testing without hardware.
package sim

import (
	"context"
	"io"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/flightlink/internal/link"
	"github.com/Thermoquad/flightlink/pkg/lpfc"
)

// DefaultStreamInterval is the SEND_ANGLES telemetry period
const DefaultStreamInterval = 20 * time.Millisecond

// responseEnd terminates every response, as on the firmware
var responseEnd = []byte("\r\n")

// Factory defaults restored by RESTORE_DEFAULTS
var (
	DefaultPIDs = [4]lpfc.PID{
		lpfc.PIDRollPitch:    {Kp: 420, Ki: 1150, Kd: 20, IntLimit: 300},
		lpfc.PIDYaw:          {Kp: 600, Ki: 50, Kd: 0, IntLimit: 200},
		lpfc.PIDSonarAltHold: {Kp: 80, Ki: 30, Kd: 25, IntLimit: 500},
		lpfc.PIDBaroAltHold:  {Kp: 60, Ki: 20, Kd: 30, IntLimit: 500},
	}

	DefaultSettings = lpfc.Settings{
		AngleKp:               450,
		HeadingKp:             30,
		AngleMaxInc:           30,
		AngleMaxIncSonar:      10,
		StickScalingRollPitch: 200,
		StickScalingYaw:       250,
	}
)

// State is a snapshot of the device
type State struct {
	PIDs            [4]lpfc.PID
	Settings        lpfc.Settings
	Streaming       bool
	AccCalibrations int
	MagCalibrations int
	RestoreCount    int
}

// Device holds flight controller state
type Device struct {
	mu    sync.Mutex
	state State

	interval  time.Duration
	terminate bool
	attitude  func(elapsed time.Duration) lpfc.Angles
	logger    *zap.Logger
}

// Option configures a Device
type Option func(*Device)

// WithStreamInterval sets the telemetry period
func WithStreamInterval(d time.Duration) Option {
	return func(dev *Device) {
		if d > 0 {
			dev.interval = d
		}
	}
}

// WithAttitude replaces the simulated motion
func WithAttitude(f func(elapsed time.Duration) lpfc.Angles) Option {
	return func(dev *Device) {
		if f != nil {
			dev.attitude = f
		}
	}
}

// WithoutTerminators omits the CR/LF after each response
func WithoutTerminators() Option {
	return func(dev *Device) {
		dev.terminate = false
	}
}

// WithLogger sets the device logger
func WithLogger(logger *zap.Logger) Option {
	return func(dev *Device) {
		if logger != nil {
			dev.logger = logger
		}
	}
}

// NewDevice creates a device with factory defaults
func NewDevice(opts ...Option) *Device {
	d := &Device{
		interval:  DefaultStreamInterval,
		terminate: true,
		attitude:  Hover,
		logger:    zap.NewNop(),
	}
	d.restoreDefaults()
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Hover is a gentle oscillation around level with a slowly turning heading
func Hover(elapsed time.Duration) lpfc.Angles {
	s := elapsed.Seconds()
	return lpfc.Angles{
		Roll:  15 * math.Sin(2*math.Pi*s/4),
		Pitch: 10 * math.Cos(2*math.Pi*s/6),
		// Wrap after rounding to wire precision so yaw never encodes as 360.00
		Yaw: math.Mod(math.Round(s*10*lpfc.AngleScale)/lpfc.AngleScale, 360),
	}
}

// State returns a copy of the device state
func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Device) restoreDefaults() {
	d.state.PIDs = DefaultPIDs
	d.state.Settings = DefaultSettings
	d.state.Streaming = false
}

// Serve runs the device over conn until ctx is cancelled or the connection
// fails. conn is closed on return.
func (d *Device) Serve(ctx context.Context, conn io.ReadWriteCloser) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l := link.New(conn,
		link.WithDirection(lpfc.Outbound),
		link.WithRate(1000, 64),
		link.WithLogger(d.logger),
	)

	reply := func(frame []byte) {
		if d.terminate {
			frame = append(frame, responseEnd...)
		}
		if err := l.Send(ctx, frame); err != nil && ctx.Err() == nil {
			d.logger.Warn("reply failed", zap.Error(err))
		}
	}

	disp := l.Dispatcher()
	disp.OnPID(func(e *lpfc.PIDEvent) {
		d.mu.Lock()
		d.state.PIDs[e.Group] = e.PID
		d.mu.Unlock()
		d.logger.Info("pid updated", zap.Stringer("group", e.Group), zap.String("values", lpfc.FormatPID(e.PID)))
	})
	disp.OnSettings(func(e *lpfc.SettingsEvent) {
		d.mu.Lock()
		d.state.Settings = e.Settings
		d.mu.Unlock()
		d.logger.Info("settings updated", zap.String("values", lpfc.FormatSettings(e.Settings)))
	})
	disp.OnStream(func(e *lpfc.StreamEvent) {
		d.mu.Lock()
		d.state.Streaming = e.Enable
		d.mu.Unlock()
		d.logger.Info("angle stream", zap.Bool("enabled", e.Enable))
	})
	disp.OnRequest(func(e *lpfc.RequestEvent) {
		if frame := d.handleRequest(e.Command()); frame != nil {
			reply(frame)
		}
	})
	disp.OnError(func(err error) {
		d.logger.Debug("bad command frame", zap.Error(err))
	})

	go d.stream(ctx, reply)

	return l.Run(ctx)
}

// handleRequest applies a payload-free command and returns the response
// frame, if the command has one.
func (d *Device) handleRequest(cmd lpfc.Command) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch cmd {
	case lpfc.CmdGetPIDRollPitch, lpfc.CmdGetPIDYaw, lpfc.CmdGetPIDSonarAltHold, lpfc.CmdGetPIDBaroAltHold:
		group := lpfc.PIDGroup(cmd / 2)
		return lpfc.NewPIDResponse(group, d.state.PIDs[group])
	case lpfc.CmdGetSettings:
		return lpfc.NewSettingsResponse(d.state.Settings)
	case lpfc.CmdCalibrateAcc:
		d.state.AccCalibrations++
	case lpfc.CmdCalibrateMag:
		d.state.MagCalibrations++
	case lpfc.CmdRestoreDefaults:
		d.restoreDefaults()
		d.state.RestoreCount++
	}
	return nil
}

// stream emits SEND_ANGLES telemetry while streaming is enabled
func (d *Device) stream(ctx context.Context, reply func([]byte)) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			d.mu.Lock()
			on := d.state.Streaming
			d.mu.Unlock()
			if on {
				reply(lpfc.NewAnglesResponse(d.attitude(now.Sub(start))))
			}
		}
	}
}
