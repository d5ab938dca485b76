package playsync

import (
	"sync"
	"time"
)

// Timeline tracks a video playhead between reports. While playing, the
// position extrapolates from the last sample using the wall clock. A manual
// offset shifts every read without disturbing the anchor, for sources whose
// reported time is off from the content.
type Timeline struct {
	mu         sync.Mutex
	basePosMs  int64
	anchoredAt time.Time
	playing    bool
	offsetMs   int64

	now func() time.Time
}

// NewTimeline creates a stopped timeline at position zero.
func NewTimeline() *Timeline {
	return &Timeline{now: time.Now}
}

// SetSample re-anchors the timeline at an observed playhead position.
func (tl *Timeline) SetSample(playing bool, positionMs int64) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.basePosMs = positionMs
	tl.anchoredAt = tl.now()
	tl.playing = playing
}

// Seek moves the playhead without changing whether the clock runs.
func (tl *Timeline) Seek(positionMs int64) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.basePosMs = positionMs
	tl.anchoredAt = tl.now()
}

// SetPlaying starts or stops the clock, folding any elapsed time into the
// anchor so the playhead doesn't jump.
func (tl *Timeline) SetPlaying(playing bool) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.playing == playing {
		return
	}
	tl.basePosMs = tl.positionLocked()
	tl.anchoredAt = tl.now()
	tl.playing = playing
}

// Playing reports whether the timeline clock is running.
func (tl *Timeline) Playing() bool {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.playing
}

// SetOffset sets the manual shift applied to every position read.
func (tl *Timeline) SetOffset(ms int64) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.offsetMs = ms
}

// Offset returns the manual shift.
func (tl *Timeline) Offset() int64 {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.offsetMs
}

// PositionMs is the current playhead estimate including the manual offset.
func (tl *Timeline) PositionMs() int64 {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.positionLocked() + tl.offsetMs
}

// positionLocked extrapolates the playhead without the manual offset.
func (tl *Timeline) positionLocked() int64 {
	pos := tl.basePosMs
	if tl.playing {
		pos += tl.now().Sub(tl.anchoredAt).Milliseconds()
	}
	return pos
}

// setNow overrides the clock source for tests.
func (tl *Timeline) setNow(now func() time.Time) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.now = now
}
