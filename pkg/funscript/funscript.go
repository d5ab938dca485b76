// Package funscript provides funscript motion-script parsing, serialization,
// and transition building.
package funscript

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/tidwall/gjson"
)

const (
	// PosMin is the lowest device position.
	PosMin = 0
	// PosMax is the highest device position.
	PosMax = 100
)

// Parse errors.
var (
	ErrInvalidJSON  = errors.New("funscript: invalid JSON")
	ErrNoActions    = errors.New("funscript: no actions")
	ErrNonMonotonic = errors.New("funscript: action times must not decrease")
	ErrNegativeTime = errors.New("funscript: action time before zero")
)

// Action is one motion sample: the device position to reach at a point in time.
type Action struct {
	At  int64 `json:"at"`  // milliseconds from script start
	Pos int   `json:"pos"` // position percent, 0-100
}

// Metadata holds the optional descriptive fields of a funscript file.
type Metadata struct {
	Title        string  `json:"title,omitempty"`
	Description  string  `json:"description,omitempty"`
	DurationMs   int64   `json:"duration,omitempty"`
	AverageSpeed float64 `json:"average_speed,omitempty"`
}

// Script is an ordered motion track for the device.
type Script struct {
	Version  string   `json:"version,omitempty"`
	Inverted bool     `json:"inverted"`
	Range    int      `json:"range,omitempty"`
	Metadata Metadata `json:"metadata"`
	Actions  []Action `json:"actions"`
}

// Stats describes a script track for library listings.
type Stats struct {
	ActionCount  int
	DurationMs   int64
	AverageSpeed float64 // position units travelled per second
}

// Parse reads funscript JSON. Files in the wild vary wildly outside the action
// list, so version, range, and metadata are read tolerantly; the action list
// itself is validated and positions are clamped to the device range.
func Parse(data []byte) (*Script, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}
	root := gjson.ParseBytes(data)

	raw := root.Get("actions")
	if !raw.IsArray() {
		return nil, ErrNoActions
	}

	s := &Script{
		Version:  root.Get("version").String(),
		Inverted: root.Get("inverted").Bool(),
		Range:    int(root.Get("range").Int()),
	}
	if meta := root.Get("metadata"); meta.IsObject() {
		s.Metadata.Title = meta.Get("title").String()
		s.Metadata.Description = meta.Get("description").String()
		s.Metadata.DurationMs = meta.Get("duration").Int()
		s.Metadata.AverageSpeed = meta.Get("average_speed").Float()
	}

	var parseErr error
	prev := int64(-1)
	raw.ForEach(func(_, v gjson.Result) bool {
		at := v.Get("at").Int()
		if at < 0 {
			parseErr = fmt.Errorf("%w: at=%d", ErrNegativeTime, at)
			return false
		}
		if at < prev {
			parseErr = fmt.Errorf("%w: at=%d follows at=%d", ErrNonMonotonic, at, prev)
			return false
		}
		prev = at
		s.Actions = append(s.Actions, Action{
			At:  at,
			Pos: clampPos(int(v.Get("pos").Int())),
		})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	if len(s.Actions) == 0 {
		return nil, ErrNoActions
	}

	return s, nil
}

// Marshal renders the canonical JSON form used for device upload and export.
func (s *Script) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// DurationMs is the time of the last action. The metadata duration is ignored:
// the device plays exactly the action track.
func (s *Script) DurationMs() int64 {
	if len(s.Actions) == 0 {
		return 0
	}
	return s.Actions[len(s.Actions)-1].At
}

// FirstPos returns the position of the first action.
func (s *Script) FirstPos() int {
	if len(s.Actions) == 0 {
		return 0
	}
	return s.Actions[0].Pos
}

// FinalPos returns the position of the last action.
func (s *Script) FinalPos() int {
	if len(s.Actions) == 0 {
		return 0
	}
	return s.Actions[len(s.Actions)-1].Pos
}

// PositionAt returns the interpolated track position at the given time.
// Before the first action it reports the first position; past the end, the last.
func (s *Script) PositionAt(atMs int64) int {
	n := len(s.Actions)
	if n == 0 {
		return 0
	}
	if atMs <= s.Actions[0].At {
		return s.Actions[0].Pos
	}
	if atMs >= s.Actions[n-1].At {
		return s.Actions[n-1].Pos
	}

	i := sort.Search(n, func(i int) bool { return s.Actions[i].At > atMs })
	a, b := s.Actions[i-1], s.Actions[i]
	if b.At == a.At {
		return b.Pos
	}
	progress := float64(atMs-a.At) / float64(b.At-a.At)
	pos := Interpolate(float64(a.Pos), float64(b.Pos), progress, EasingLinear)
	return clampPos(int(math.Round(pos)))
}

// Stats computes track statistics. Average speed is total travel distance over
// total duration, the same figure the funscript analysis tools report.
func (s *Script) Stats() Stats {
	st := Stats{
		ActionCount: len(s.Actions),
		DurationMs:  s.DurationMs(),
	}
	travel := 0
	for i := 1; i < len(s.Actions); i++ {
		travel += absInt(s.Actions[i].Pos - s.Actions[i-1].Pos)
	}
	if st.DurationMs > 0 {
		st.AverageSpeed = float64(travel) / (float64(st.DurationMs) / 1000)
	}
	return st
}

// Shift returns a copy of the script with every action moved deltaMs later.
// Times are floored at zero so the result stays a valid track.
func (s *Script) Shift(deltaMs int64) *Script {
	out := &Script{
		Version:  s.Version,
		Inverted: s.Inverted,
		Range:    s.Range,
		Metadata: s.Metadata,
		Actions:  make([]Action, len(s.Actions)),
	}
	for i, a := range s.Actions {
		at := a.At + deltaMs
		if at < 0 {
			at = 0
		}
		out.Actions[i] = Action{At: at, Pos: a.Pos}
	}
	return out
}

// clampPos clamps a position to the device range.
func clampPos(pos int) int {
	if pos < PosMin {
		return PosMin
	}
	if pos > PosMax {
		return PosMax
	}
	return pos
}

// absInt returns the absolute value of an int.
func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
