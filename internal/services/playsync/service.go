// Package playsync keeps a paired haptic device time-aligned with a playing
// video.
//
// The service ingests playhead events from a local player or pushed samples
// from an embedded one, mirrors them onto the device as start/stop commands,
// and runs a background drift loop that nudges the device clock when the two
// timelines diverge. Device commands are asynchronous and slow; a generation
// counter stamped onto every state-changing command makes the last issued
// command win regardless of completion order.
package playsync

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/haptisync/haptisync-go/internal/device"
	"github.com/haptisync/haptisync-go/pkg/funscript"
)

// Config holds drift loop tuning.
type Config struct {
	// TickInterval is how often the drift loop wakes.
	TickInterval time.Duration
	// CheckInterval throttles real work: at most one device poll per interval.
	CheckInterval time.Duration
	// LocalThresholdMs is the correction trigger for local video timelines.
	LocalThresholdMs int64
	// EmbedThresholdMs is the correction trigger for embedded video
	// timelines, looser because their samples arrive late.
	EmbedThresholdMs int64
	// CorrectionCapMs bounds a single correction step.
	CorrectionCapMs int64
}

// DefaultConfig returns the stock drift tuning.
func DefaultConfig() Config {
	return Config{
		TickInterval:     100 * time.Millisecond,
		CheckInterval:    2000 * time.Millisecond,
		LocalThresholdMs: 200,
		EmbedThresholdMs: 500,
		CorrectionCapMs:  500,
	}
}

// Service synchronizes one paired device with one loaded script.
type Service struct {
	mu  sync.Mutex
	cfg Config

	dev    device.Device
	script *funscript.Script

	state          SyncState
	lastError      string
	scriptUploaded bool
	source         Source
	latencyMs      int64
	driftMs        int64

	// generation stamps every state-changing command. A completion whose
	// generation no longer matches is discarded: the visible status always
	// reflects the most recently issued command.
	generation int64

	local *Timeline
	embed *Timeline

	driftOn   bool
	stopChan  chan struct{}
	lastCheck time.Time

	onUpdate StatusCallback
	onDrift  DriftCallback
}

// NewService creates a sync service with no device and no script paired.
func NewService(cfg Config) *Service {
	return &Service{
		cfg:    cfg,
		state:  StateIdle,
		source: SourceLocal,
		local:  NewTimeline(),
		embed:  NewTimeline(),
	}
}

// SetUpdateCallback registers the status listener.
func (s *Service) SetUpdateCallback(cb StatusCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = cb
}

// SetDriftCallback registers the drift sample listener.
func (s *Service) SetDriftCallback(cb DriftCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDrift = cb
}

// Status returns a snapshot of the engine.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Service) statusLocked() Status {
	return Status{
		State:          s.state,
		Source:         s.source,
		ScriptUploaded: s.scriptUploaded,
		DriftMs:        s.driftMs,
		LatencyMs:      s.latencyMs,
		Error:          s.lastError,
	}
}

// emitUpdate posts the current status to the listener outside the lock.
func (s *Service) emitUpdate() {
	s.mu.Lock()
	cb := s.onUpdate
	status := s.statusLocked()
	s.mu.Unlock()

	if cb != nil {
		cb(status)
	}
}

// SetScript loads a motion script, or clears it with nil.
func (s *Service) SetScript(ctx context.Context, script *funscript.Script) {
	s.mu.Lock()
	s.script = script
	s.refreshPairingLocked(ctx)
	s.mu.Unlock()
	s.emitUpdate()
}

// SetDevice pairs a device, or unpairs with nil.
func (s *Service) SetDevice(ctx context.Context, dev device.Device) {
	s.mu.Lock()
	prev := s.dev
	s.dev = dev
	if dev != nil && dev != prev {
		s.latencyMs = 0
		s.estimateLatencyLocked(ctx, dev)
	}
	s.refreshPairingLocked(ctx)
	s.mu.Unlock()
	s.emitUpdate()
}

// Play handles the local video beginning playback at positionMs.
func (s *Service) Play(ctx context.Context, positionMs int64) {
	s.mu.Lock()
	s.source = SourceLocal
	s.local.SetSample(true, positionMs)
	s.startDeviceLocked(ctx, s.local.PositionMs())
	s.mu.Unlock()
	s.emitUpdate()
}

// Pause handles the local video pausing.
func (s *Service) Pause(ctx context.Context) {
	s.mu.Lock()
	s.source = SourceLocal
	s.local.SetPlaying(false)
	s.stopDeviceLocked(ctx, StatePaused)
	s.mu.Unlock()
	s.emitUpdate()
}

// Seeked handles the local video landing on a new position. While paused only
// the bookkeeping moves; the device is left alone until playback resumes.
func (s *Service) Seeked(ctx context.Context, positionMs int64) {
	s.mu.Lock()
	s.source = SourceLocal
	wasPlaying := s.local.Playing()
	s.local.Seek(positionMs)
	if wasPlaying {
		// Force the drift loop to verify the jump on its next tick.
		s.lastCheck = time.Time{}
		s.startDeviceLocked(ctx, s.local.PositionMs())
	}
	s.mu.Unlock()
	s.emitUpdate()
}

// Ended handles the local video finishing. The engine settles in READY so
// replaying the same video needs no re-upload.
func (s *Service) Ended(ctx context.Context) {
	s.mu.Lock()
	s.source = SourceLocal
	s.local.SetPlaying(false)
	s.stopDeviceLocked(ctx, StateReady)
	s.mu.Unlock()
	s.emitUpdate()
}

// Progress handles a routine playhead report from the local video.
func (s *Service) Progress(positionMs int64) {
	s.mu.Lock()
	s.local.Seek(positionMs)
	s.mu.Unlock()
}

// EmbedSample ingests an observed playhead sample from an embedded player.
// Play/pause transitions mirror onto the device; steady samples only
// re-anchor the timeline for the drift loop.
func (s *Service) EmbedSample(ctx context.Context, playing bool, positionMs int64) {
	s.mu.Lock()
	s.source = SourceEmbed
	wasPlaying := s.embed.Playing()
	s.embed.SetSample(playing, positionMs)
	if playing && !wasPlaying {
		s.startDeviceLocked(ctx, s.embed.PositionMs())
	} else if !playing && wasPlaying {
		s.stopDeviceLocked(ctx, StatePaused)
	}
	s.mu.Unlock()
	s.emitUpdate()
}

// SetManualOffset shifts the embedded timeline by ms. Start commands and
// drift comparisons both read the shifted clock.
func (s *Service) SetManualOffset(ms int64) {
	s.mu.Lock()
	s.embed.SetOffset(ms)
	s.mu.Unlock()
}

// ManualOffset returns the embedded timeline shift.
func (s *Service) ManualOffset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.embed.Offset()
}

// Cleanup stops the drift loop.
func (s *Service) Cleanup() {
	s.mu.Lock()
	s.stopDriftLocked()
	s.mu.Unlock()
}

// refreshPairingLocked re-evaluates the device+script pairing. Both present
// kicks off an upload; a dissolved pairing resets the engine to idle. The
// generation returns to zero with the pairing, so upload completions are
// guarded by pairing identity instead of the counter.
func (s *Service) refreshPairingLocked(ctx context.Context) {
	if s.dev != nil && s.script != nil {
		s.stopDriftLocked()
		s.state = StateUploading
		s.lastError = ""
		s.scriptUploaded = false
		s.driftMs = 0
		s.generation = 0
		s.uploadLocked(ctx)
		return
	}

	// Pairing dissolved. Halt a device that may still be moving; a failure
	// here is teardown noise, not a user-visible error.
	if s.dev != nil && s.scriptUploaded {
		dev := s.dev
		go func() {
			if err := dev.Stop(ctx); err != nil {
				log.Printf("Sync: best-effort stop on unpair failed: %v", err)
			}
		}()
	}
	s.stopDriftLocked()
	s.state = StateIdle
	s.lastError = ""
	s.scriptUploaded = false
	s.driftMs = 0
	s.generation = 0
}

// uploadLocked pushes the current script to the current device. The result
// applies only while that exact pairing is still in place.
func (s *Service) uploadLocked(ctx context.Context) {
	dev, script := s.dev, s.script

	go func() {
		err := dev.Upload(ctx, script)

		s.mu.Lock()
		if s.dev != dev || s.script != script {
			s.mu.Unlock()
			return
		}
		if err != nil {
			s.state = StateError
			s.lastError = fmt.Sprintf("upload failed: %v", err)
			log.Printf("Sync: script upload failed: %v", err)
		} else {
			s.scriptUploaded = true
			s.state = StateReady
			s.lastError = ""
			log.Printf("Sync: script uploaded (%d actions, %dms)",
				len(script.Actions), script.DurationMs())
		}
		s.mu.Unlock()
		s.emitUpdate()
	}()
}

// startDeviceLocked issues a guarded start at the given video position. The
// device leads the video by the estimated latency so motion lands on time.
func (s *Service) startDeviceLocked(ctx context.Context, positionMs int64) {
	if s.dev == nil || !s.scriptUploaded {
		return
	}
	s.generation++
	gen := s.generation
	dev := s.dev
	startAt := positionMs + s.latencyMs

	go func() {
		err := dev.Start(ctx, startAt)

		s.mu.Lock()
		if s.generation != gen {
			s.mu.Unlock()
			return
		}
		if err != nil {
			s.state = StateError
			s.lastError = fmt.Sprintf("start failed: %v", err)
			s.stopDriftLocked()
			log.Printf("Sync: start at %dms failed: %v", startAt, err)
		} else {
			s.state = StatePlaying
			s.lastError = ""
			s.startDriftLocked()
		}
		s.mu.Unlock()
		s.emitUpdate()
	}()
}

// stopDeviceLocked issues a guarded stop, settling into target on success.
// The drift loop halts at issue time: corrections must not race a stop
// already in flight.
func (s *Service) stopDeviceLocked(ctx context.Context, target SyncState) {
	if s.dev == nil || !s.scriptUploaded {
		return
	}
	s.generation++
	gen := s.generation
	dev := s.dev
	s.stopDriftLocked()

	go func() {
		err := dev.Stop(ctx)

		s.mu.Lock()
		if s.generation != gen {
			s.mu.Unlock()
			return
		}
		if err != nil {
			s.state = StateError
			s.lastError = fmt.Sprintf("stop failed: %v", err)
			log.Printf("Sync: stop failed: %v", err)
		} else {
			s.state = target
			s.lastError = ""
		}
		s.mu.Unlock()
		s.emitUpdate()
	}()
}

// estimateLatencyLocked measures command latency in the background. Failure
// keeps the default of zero; the estimate never blocks the controller.
func (s *Service) estimateLatencyLocked(ctx context.Context, dev device.Device) {
	go func() {
		latency, err := dev.EstimateLatency(ctx)
		if err != nil {
			log.Printf("Sync: latency estimate failed: %v", err)
			return
		}

		s.mu.Lock()
		if s.dev != dev {
			s.mu.Unlock()
			return
		}
		s.latencyMs = latency
		s.mu.Unlock()
		s.emitUpdate()
	}()
}
