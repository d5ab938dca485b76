package autoplay

import (
	"context"
	"log"
	"time"

	"github.com/haptisync/haptisync-go/internal/device"
	"github.com/haptisync/haptisync-go/pkg/funscript"
)

// checkDelayLocked computes how long to wait before the near-end check:
// the time left until EarlyMargin before the script's end, floored at zero.
func (s *Service) checkDelayLocked() time.Duration {
	elapsed := s.now().Sub(s.cycleStart)
	delay := time.Duration(s.durationMs)*time.Millisecond - s.cfg.EarlyMargin - elapsed
	if delay < 0 {
		return 0
	}
	return delay
}

// scheduleCheckLocked arms the single deferred near-end check under the
// current cycle token.
func (s *Service) scheduleCheckLocked(d time.Duration) {
	if s.checkTimer != nil {
		s.checkTimer.Stop()
	}
	cycle := s.cycle
	s.checkTimer = time.AfterFunc(d, func() { s.nearEndCheck(cycle) })
}

// rescheduleRetry re-arms the check after the short retry interval, unless
// the cycle moved on.
func (s *Service) rescheduleRetry(cycle int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cycle != cycle || !s.playing {
		return
	}
	s.scheduleCheckLocked(s.cfg.RetryInterval)
}

// nearEndCheck asks the device whether the current cycle is over. Too-early
// checks and read failures retry shortly rather than waiting a full cycle,
// so clock skew or a transient disconnect cannot stall continuous playback.
func (s *Service) nearEndCheck(cycle int64) {
	s.mu.Lock()
	if s.cycle != cycle || !s.playing || s.dev == nil {
		s.mu.Unlock()
		return
	}
	dev := s.dev
	durationMs := s.durationMs
	s.mu.Unlock()

	st, err := dev.State(context.Background())
	if err != nil {
		log.Printf("Autoplay: near-end poll failed: %v", err)
		s.rescheduleRetry(cycle)
		return
	}

	remaining := time.Duration(durationMs-st.PositionMs) * time.Millisecond
	if st.Mode == device.ModePlaying && remaining > s.cfg.EarlyMargin {
		s.rescheduleRetry(cycle)
		return
	}

	s.advance(cycle)
}

// advance finishes the current cycle: restart the same script when there is
// no successor, otherwise blend into the next one. Exactly one caller wins
// the hand-off; a concurrent skip or fired timer holding the same token
// no-ops.
func (s *Service) advance(cycle int64) {
	s.mu.Lock()
	if s.cycle != cycle || !s.playing || s.dev == nil {
		s.mu.Unlock()
		return
	}
	s.cycle++
	cycle = s.cycle
	dev := s.dev
	currentID := s.currentID
	nextID := s.nextID
	finalPos := s.finalPos
	s.mu.Unlock()

	ctx := context.Background()

	if nextID == "" {
		// Nothing queued up: loop the script already on the device.
		if err := dev.Start(ctx, 0); err != nil {
			log.Printf("Autoplay: restart of %s failed: %v", currentID, err)
			s.rescheduleRetry(cycle)
			return
		}
		s.mu.Lock()
		if s.cycle != cycle {
			s.mu.Unlock()
			return
		}
		s.cycleStart = s.now()
		s.scheduleCheckLocked(s.checkDelayLocked())
		s.mu.Unlock()
		return
	}

	next, err := s.source.Script(ctx, nextID)
	if err != nil {
		log.Printf("Autoplay: load of next script %s failed: %v", nextID, err)
		s.rescheduleRetry(cycle)
		return
	}

	// Bridge the gap so device motion never jump-cuts between tracks.
	blended := funscript.BlendInto(finalPos, next, funscript.EasingInOutSine)
	if err := dev.Upload(ctx, blended); err != nil {
		log.Printf("Autoplay: upload of next script %s failed: %v", nextID, err)
		s.rescheduleRetry(cycle)
		return
	}
	if err := dev.Start(ctx, 0); err != nil {
		log.Printf("Autoplay: start of next script %s failed: %v", nextID, err)
		s.rescheduleRetry(cycle)
		return
	}

	s.mu.Lock()
	if s.cycle != cycle {
		s.mu.Unlock()
		return
	}
	s.currentID = nextID
	s.nextID = ""
	s.durationMs = blended.DurationMs()
	s.finalPos = blended.FinalPos()
	s.cycleStart = s.now()
	s.lastError = ""
	s.scheduleCheckLocked(s.checkDelayLocked())
	s.mu.Unlock()
	s.emitUpdate()

	s.pickNext(cycle)
	log.Printf("Autoplay: transitioned %s -> %s", currentID, nextID)
}

// pickNext eagerly selects the upcoming script so the status always knows
// what plays next and a hand-off never waits on a selection decision.
func (s *Service) pickNext(cycle int64) {
	s.mu.Lock()
	if s.cycle != cycle || !s.playing {
		s.mu.Unlock()
		return
	}
	currentID := s.currentID
	playlistID := s.playlistID
	s.mu.Unlock()

	universe, err := s.source.ScriptIDs(context.Background(), playlistID)
	if err != nil {
		log.Printf("Autoplay: listing scripts for next pick failed: %v", err)
		return
	}
	next, ok := s.picker.Next(currentID, universe)
	if !ok {
		next = ""
	}

	s.mu.Lock()
	changed := s.cycle == cycle && s.playing && s.nextID != next
	if changed {
		s.nextID = next
	}
	s.mu.Unlock()
	if changed {
		s.emitUpdate()
	}
}
