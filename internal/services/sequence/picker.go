// Package sequence decides which script plays next when autonomous playback
// crosses a track boundary.
package sequence

import (
	"fmt"
	"math/rand"
	"sync"
)

// Mode selects how the next script is chosen.
type Mode string

const (
	// ModeOff repeats the current script forever.
	ModeOff Mode = "OFF"

	// ModePlayAll walks the whole library in shuffled rounds, finishing a
	// round before any script repeats.
	ModePlayAll Mode = "PLAY_ALL"

	// ModeFullRandom draws uniformly from the library on every boundary.
	ModeFullRandom Mode = "FULL_RANDOM"
)

// ParseMode validates a wire-format mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeOff, ModePlayAll, ModeFullRandom:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown sequencing mode %q", s)
}

// Picker tracks the shuffled round for ModePlayAll and hands out successor
// scripts. All methods are safe for concurrent use.
type Picker struct {
	mu    sync.Mutex
	mode  Mode
	queue []string
	rng   *rand.Rand
}

// New creates a picker in the given mode.
func New(mode Mode) *Picker {
	return &Picker{
		mode: mode,
		rng:  rand.New(rand.NewSource(rand.Int63())),
	}
}

// SetMode switches modes and discards the current round.
func (p *Picker) SetMode(mode Mode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mode = mode
	p.queue = nil
}

// Mode reports the active mode.
func (p *Picker) Mode() Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// Reset discards the current round so the next pick starts a fresh one.
func (p *Picker) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = nil
}

// SetRand replaces the random source. Tests use this for determinism.
func (p *Picker) SetRand(rng *rand.Rand) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rng = rng
}

// Next picks the script to play after current, drawing from universe. The
// second return is false when the mode or the universe leaves nothing to
// pick; ModeOff always declines so the caller loops the current script.
func (p *Picker) Next(current string, universe []string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mode == ModeOff || len(universe) == 0 {
		return "", false
	}
	if p.mode == ModeFullRandom {
		return universe[p.rng.Intn(len(universe))], true
	}

	if len(p.queue) == 0 {
		p.refillLocked(universe)
	}

	// No script plays twice in a row while others are waiting. A round
	// whose last entry is the current script is refilled early; a fresh
	// round that still leads with it rotates that entry to the back.
	if p.queue[0] == current && len(universe) > 1 {
		if len(p.queue) == 1 {
			p.refillLocked(universe)
		}
		if p.queue[0] == current {
			p.queue = append(p.queue[1:], p.queue[0])
		}
	}

	next := p.queue[0]
	p.queue = p.queue[1:]
	return next, true
}

func (p *Picker) refillLocked(universe []string) {
	p.queue = make([]string, len(universe))
	copy(p.queue, universe)
	p.rng.Shuffle(len(p.queue), func(i, j int) {
		p.queue[i], p.queue[j] = p.queue[j], p.queue[i]
	})
}
