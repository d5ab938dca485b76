// Package autoplay runs continuous script playback without a video: it
// watches for the current script's imminent end and hands off to the next
// script, or restarts the current one, without tight polling.
//
// Device commands run outside the service lock. Each playback cycle carries
// a token; pending near-end timers and in-flight hand-offs compare their
// token against the live one before acting, so a timer that already fired
// cannot act against a since-replaced script.
package autoplay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/haptisync/haptisync-go/internal/device"
	"github.com/haptisync/haptisync-go/internal/services/sequence"
	"github.com/haptisync/haptisync-go/pkg/funscript"
)

// ScriptSource loads scripts and enumerates the pickable universe.
type ScriptSource interface {
	// Script loads a parsed script by ID.
	Script(ctx context.Context, id string) (*funscript.Script, error)
	// ScriptIDs lists the pickable script IDs. An empty playlistID means
	// the whole library.
	ScriptIDs(ctx context.Context, playlistID string) ([]string, error)
}

// Config holds the loop timing tunables.
type Config struct {
	// EarlyMargin is how far before a script's end the near-end check
	// fires.
	EarlyMargin time.Duration

	// RetryInterval is the short re-check delay used when a check fires
	// too early or the device cannot be read.
	RetryInterval time.Duration
}

// DefaultConfig returns the loop defaults.
func DefaultConfig() Config {
	return Config{
		EarlyMargin:   500 * time.Millisecond,
		RetryInterval: 250 * time.Millisecond,
	}
}

// Service is the loop controller. All exported methods are safe for
// concurrent use.
type Service struct {
	mu     sync.Mutex
	cfg    Config
	source ScriptSource
	picker *sequence.Picker

	dev device.Device

	playing    bool
	paused     bool
	currentID  string
	nextID     string
	playlistID string
	durationMs int64
	finalPos   int
	cycleStart time.Time
	pausedAtMs int64
	lastError  string

	// cycle retires pending timers and in-flight hand-offs; checkTimer is
	// the single deferred near-end check.
	cycle      int64
	checkTimer *time.Timer

	onUpdate StatusCallback
	now      func() time.Time
}

// NewService creates a stopped loop controller in sequencing mode off.
func NewService(cfg Config, source ScriptSource) *Service {
	return &Service{
		cfg:    cfg,
		source: source,
		picker: sequence.New(sequence.ModeOff),
		now:    time.Now,
	}
}

// SetUpdateCallback registers the status-change listener.
func (s *Service) SetUpdateCallback(cb StatusCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = cb
}

// Status returns the current loop snapshot.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Service) statusLocked() Status {
	return Status{
		IsPlaying:       s.playing,
		IsPaused:        s.paused,
		CurrentScriptID: s.currentID,
		NextScriptID:    s.nextID,
		Mode:            s.picker.Mode(),
		Error:           s.lastError,
	}
}

func (s *Service) emitUpdate() {
	s.mu.Lock()
	cb := s.onUpdate
	st := s.statusLocked()
	s.mu.Unlock()
	if cb != nil {
		cb(st)
	}
}

// SetDevice installs the device handle. Losing or swapping the device tears
// the running session down.
func (s *Service) SetDevice(dev device.Device) {
	s.mu.Lock()
	if dev == s.dev {
		s.mu.Unlock()
		return
	}
	s.dev = dev
	if s.playing || s.paused {
		s.invalidateLocked()
		s.clearLoopLocked()
	}
	s.mu.Unlock()
	s.emitUpdate()
}

// SetMode switches the sequencing mode. The running cycle finishes as is;
// the mode applies from the next transition, and the eager next pick is
// refreshed so the status reflects the new rules immediately.
func (s *Service) SetMode(mode sequence.Mode) {
	s.picker.SetMode(mode)
	s.mu.Lock()
	cycle := s.cycle
	playing := s.playing
	s.mu.Unlock()
	s.emitUpdate()
	if playing {
		s.pickNext(cycle)
	}
}

// Mode reports the active sequencing mode.
func (s *Service) Mode() sequence.Mode {
	return s.picker.Mode()
}

// SetPlaylist narrows the pickable universe to one playlist. An empty ID
// widens it back to the whole library.
func (s *Service) SetPlaylist(playlistID string) {
	s.mu.Lock()
	s.playlistID = playlistID
	cycle := s.cycle
	playing := s.playing
	s.mu.Unlock()
	s.picker.Reset()
	if playing {
		s.pickNext(cycle)
	}
}

// PlaylistID reports the active playlist, empty for the whole library.
func (s *Service) PlaylistID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playlistID
}

// Start begins a session with the given script: upload, play from zero,
// schedule the near-end check, and eagerly pick what follows. A bad script
// ID fails without touching a session already in progress.
func (s *Service) Start(ctx context.Context, scriptID string) error {
	script, err := s.source.Script(ctx, scriptID)
	if err != nil {
		return fmt.Errorf("load script %s: %w", scriptID, err)
	}

	s.mu.Lock()
	dev := s.dev
	if dev == nil {
		s.mu.Unlock()
		return device.ErrNotConnected
	}
	s.invalidateLocked()
	s.clearLoopLocked()
	cycle := s.cycle
	s.mu.Unlock()
	s.emitUpdate()

	if err := dev.Upload(ctx, script); err != nil {
		err = fmt.Errorf("upload script %s: %w", scriptID, err)
		s.recordError(cycle, err)
		return err
	}
	if err := dev.Start(ctx, 0); err != nil {
		err = fmt.Errorf("start script %s: %w", scriptID, err)
		s.recordError(cycle, err)
		return err
	}

	s.mu.Lock()
	if s.cycle != cycle {
		s.mu.Unlock()
		return nil
	}
	s.playing = true
	s.currentID = scriptID
	s.durationMs = script.DurationMs()
	s.finalPos = script.FinalPos()
	s.cycleStart = s.now()
	s.scheduleCheckLocked(s.checkDelayLocked())
	s.mu.Unlock()
	s.emitUpdate()

	s.pickNext(cycle)
	log.Printf("Autoplay: playing %s (%dms)", scriptID, script.DurationMs())
	return nil
}

// Pause suspends the session at the device's reported position, falling
// back to wall-clock elapsed time when the read fails.
func (s *Service) Pause(ctx context.Context) error {
	s.mu.Lock()
	if !s.playing {
		s.mu.Unlock()
		return nil
	}
	dev := s.dev
	s.invalidateLocked()
	cycle := s.cycle
	elapsedMs := s.now().Sub(s.cycleStart).Milliseconds()
	s.mu.Unlock()

	posMs := elapsedMs
	if st, err := dev.State(ctx); err == nil {
		posMs = st.PositionMs
	} else {
		log.Printf("Autoplay: position read on pause failed, using wall clock: %v", err)
	}

	stopErr := dev.Stop(ctx)

	s.mu.Lock()
	if s.cycle != cycle {
		s.mu.Unlock()
		return stopErr
	}
	s.playing = false
	s.paused = true
	s.pausedAtMs = posMs
	if stopErr != nil {
		s.lastError = fmt.Sprintf("pause: %v", stopErr)
	}
	s.mu.Unlock()
	s.emitUpdate()
	return stopErr
}

// Resume continues a paused session from the recorded position and
// reschedules the near-end check for the remaining duration.
func (s *Service) Resume(ctx context.Context) error {
	s.mu.Lock()
	if !s.paused {
		s.mu.Unlock()
		return nil
	}
	dev := s.dev
	if dev == nil {
		s.mu.Unlock()
		return device.ErrNotConnected
	}
	s.invalidateLocked()
	cycle := s.cycle
	posMs := s.pausedAtMs
	s.mu.Unlock()

	if err := dev.Start(ctx, posMs); err != nil {
		err = fmt.Errorf("resume at %dms: %w", posMs, err)
		s.recordError(cycle, err)
		return err
	}

	s.mu.Lock()
	if s.cycle != cycle {
		s.mu.Unlock()
		return nil
	}
	s.playing = true
	s.paused = false
	s.pausedAtMs = 0
	s.lastError = ""
	// Backdate the cycle start so the near-end math sees the true
	// elapsed time.
	s.cycleStart = s.now().Add(-time.Duration(posMs) * time.Millisecond)
	s.scheduleCheckLocked(s.checkDelayLocked())
	s.mu.Unlock()
	s.emitUpdate()
	return nil
}

// Stop ends the session and clears all loop state. The device stop is best
// effort; the session is gone either way.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.playing && !s.paused && s.currentID == "" {
		s.mu.Unlock()
		return nil
	}
	dev := s.dev
	s.invalidateLocked()
	s.clearLoopLocked()
	s.mu.Unlock()
	s.emitUpdate()

	if dev != nil {
		if err := dev.Stop(ctx); err != nil {
			log.Printf("Autoplay: stop command failed: %v", err)
		}
	}
	return nil
}

// Skip forces the end-of-cycle hand-off immediately.
func (s *Service) Skip(ctx context.Context) error {
	s.mu.Lock()
	if !s.playing {
		s.mu.Unlock()
		return errors.New("autoplay: nothing playing to skip")
	}
	if s.checkTimer != nil {
		s.checkTimer.Stop()
		s.checkTimer = nil
	}
	cycle := s.cycle
	s.mu.Unlock()

	s.advance(cycle)
	return nil
}

// Cleanup cancels the pending check and clears the session for shutdown.
func (s *Service) Cleanup() {
	s.mu.Lock()
	s.invalidateLocked()
	s.clearLoopLocked()
	s.mu.Unlock()
}

// invalidateLocked retires the current cycle so any pending timer or
// in-flight hand-off becomes a no-op.
func (s *Service) invalidateLocked() {
	s.cycle++
	if s.checkTimer != nil {
		s.checkTimer.Stop()
		s.checkTimer = nil
	}
}

func (s *Service) clearLoopLocked() {
	s.playing = false
	s.paused = false
	s.currentID = ""
	s.nextID = ""
	s.durationMs = 0
	s.finalPos = 0
	s.pausedAtMs = 0
	s.lastError = ""
}

// recordError surfaces a command failure, unless the session moved on while
// the command was in flight.
func (s *Service) recordError(cycle int64, err error) {
	s.mu.Lock()
	if s.cycle != cycle {
		s.mu.Unlock()
		return
	}
	s.lastError = err.Error()
	s.mu.Unlock()
	s.emitUpdate()
}
