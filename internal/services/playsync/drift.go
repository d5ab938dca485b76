package playsync

import (
	"context"
	"log"
	"time"

	"github.com/haptisync/haptisync-go/internal/device"
)

// startDriftLocked launches the correction loop if it isn't running.
func (s *Service) startDriftLocked() {
	if s.driftOn || s.dev == nil {
		return
	}
	s.driftOn = true
	s.stopChan = make(chan struct{})
	// Zero timestamp makes the first tick check immediately.
	s.lastCheck = time.Time{}
	go s.driftLoop(s.stopChan, s.dev)
}

// stopDriftLocked halts the correction loop.
func (s *Service) stopDriftLocked() {
	if !s.driftOn {
		return
	}
	s.driftOn = false
	close(s.stopChan)
}

// driftLoop compares the video playhead against the device clock and nudges
// the device when they diverge. It wakes at TickInterval but polls the device
// at most once per CheckInterval.
func (s *Service) driftLoop(stop <-chan struct{}, dev device.Device) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.driftCheck(dev)
		}
	}
}

// driftCheck performs one throttled measurement and correction.
func (s *Service) driftCheck(dev device.Device) {
	s.mu.Lock()
	if !s.driftOn || s.dev != dev {
		s.mu.Unlock()
		return
	}
	now := time.Now()
	if !s.lastCheck.IsZero() && now.Sub(s.lastCheck) < s.cfg.CheckInterval {
		s.mu.Unlock()
		return
	}
	s.lastCheck = now

	timeline := s.local
	threshold := s.cfg.LocalThresholdMs
	if s.source == SourceEmbed {
		timeline = s.embed
		threshold = s.cfg.EmbedThresholdMs
	}
	onDrift := s.onDrift
	s.mu.Unlock()

	// A real round trip every time; a cached reading cannot measure the
	// device clock.
	st, err := dev.State(context.Background())
	if err != nil {
		log.Printf("Sync: drift poll failed: %v", err)
		return
	}

	videoMs := timeline.PositionMs()
	drift := videoMs - st.PositionMs

	s.mu.Lock()
	s.driftMs = drift
	s.mu.Unlock()

	if onDrift != nil {
		onDrift(DriftSample{
			VideoTimeMs:  videoMs,
			DeviceTimeMs: st.PositionMs,
			DriftMs:      drift,
		})
	}

	if abs64(drift) <= threshold {
		return
	}

	correction := clamp64(drift, -s.cfg.CorrectionCapMs, s.cfg.CorrectionCapMs)
	log.Printf("Sync: drift %+dms exceeds %dms, correcting %+dms", drift, threshold, correction)

	// Fire and forget: a failed nudge is caught by the next check.
	go func() {
		if err := dev.Offset(context.Background(), correction); err != nil {
			log.Printf("Sync: drift correction %+dms failed: %v", correction, err)
		}
	}()
}

// clamp64 clamps v to [min, max].
func clamp64(v, min, max int64) int64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// abs64 returns the absolute value of v.
func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
