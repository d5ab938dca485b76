// Package device defines the command surface of the haptic motion hardware
// and provides a simulated implementation for development and tests.
package device

import (
	"context"
	"errors"

	"github.com/haptisync/haptisync-go/pkg/funscript"
)

// Mode is the device-reported playback engine state.
type Mode string

const (
	// ModeIdle means the device holds position and plays nothing.
	ModeIdle Mode = "IDLE"
	// ModePlaying means the device is advancing through the uploaded script.
	ModePlaying Mode = "PLAYING"
)

// ErrNotConnected is returned by operations that need a paired device.
var ErrNotConnected = errors.New("device not connected")

// State is a snapshot of the device playback engine.
type State struct {
	Mode       Mode  `json:"mode"`
	PositionMs int64 `json:"positionMs"`
}

// Device is the capability surface of the motion hardware. Every call is a
// round trip that can fail. Commands are safe to repeat: stopping a stopped
// device or re-starting mid-play is accepted by the firmware.
type Device interface {
	// Upload replaces the device-side script and resets playback.
	Upload(ctx context.Context, script *funscript.Script) error
	// Start begins playback of the uploaded script at the given time.
	Start(ctx context.Context, atMs int64) error
	// Stop halts playback, holding the current position.
	Stop(ctx context.Context) error
	// Offset nudges the device playback clock by deltaMs.
	Offset(ctx context.Context, deltaMs int64) error
	// State reports the current playback engine snapshot.
	State(ctx context.Context) (State, error)
	// EstimateLatency measures the command round-trip time in milliseconds.
	EstimateLatency(ctx context.Context) (int64, error)
}
