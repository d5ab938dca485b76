package device

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haptisync/haptisync-go/pkg/funscript"
)

// Command names as journaled by the simulator.
const (
	CmdUpload  = "upload"
	CmdStart   = "start"
	CmdStop    = "stop"
	CmdOffset  = "offset"
	CmdState   = "state"
	CmdLatency = "latency"
)

// SimConfig configures the simulated device.
type SimConfig struct {
	// LatencyMs is the value reported by EstimateLatency.
	LatencyMs int64
	// CommandDelay is an artificial round-trip time applied to every call.
	CommandDelay time.Duration
}

// Call is one journaled simulator command.
type Call struct {
	Cmd string
	Arg int64
}

// Sim is an in-memory Device with a wall-clock playback position. It backs
// simulator mode in development and doubles as the hardware fake in tests:
// calls are journaled, failures can be injected per command, and a pending
// call can be held open to control completion order.
type Sim struct {
	mu sync.Mutex

	id     string
	cfg    SimConfig
	script *funscript.Script

	mode      Mode
	basePosMs int64
	startedAt time.Time

	calls    []Call
	failures map[string]error
	holds    map[string]chan struct{}

	now func() time.Time
}

// NewSim creates a simulated device with a fresh session identifier.
func NewSim(cfg SimConfig) *Sim {
	return &Sim{
		id:       uuid.NewString(),
		cfg:      cfg,
		mode:     ModeIdle,
		failures: make(map[string]error),
		holds:    make(map[string]chan struct{}),
		now:      time.Now,
	}
}

// ID returns the simulator's session identifier.
func (d *Sim) ID() string {
	return d.id
}

// Upload stores the script and resets the playback engine.
func (d *Sim) Upload(ctx context.Context, script *funscript.Script) error {
	if err := d.begin(ctx, CmdUpload, 0); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.script = script
	d.mode = ModeIdle
	d.basePosMs = 0
	return nil
}

// Start begins playback at the given script time.
func (d *Sim) Start(ctx context.Context, atMs int64) error {
	if err := d.begin(ctx, CmdStart, atMs); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.script == nil {
		return errors.New("sim: no script uploaded")
	}
	d.mode = ModePlaying
	d.basePosMs = atMs
	d.startedAt = d.now()
	return nil
}

// Stop halts playback, holding the current position.
func (d *Sim) Stop(ctx context.Context) error {
	if err := d.begin(ctx, CmdStop, 0); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.basePosMs = d.positionLocked()
	d.mode = ModeIdle
	return nil
}

// Offset nudges the playback clock by deltaMs.
func (d *Sim) Offset(ctx context.Context, deltaMs int64) error {
	if err := d.begin(ctx, CmdOffset, deltaMs); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.basePosMs += deltaMs
	return nil
}

// State reports the playback snapshot. Once the extrapolated position passes
// the end of the uploaded script the engine reports idle at the track end,
// matching firmware that halts instead of looping.
func (d *Sim) State(ctx context.Context) (State, error) {
	if err := d.begin(ctx, CmdState, 0); err != nil {
		return State{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	pos := d.positionLocked()
	mode := d.mode
	if mode == ModePlaying && d.script != nil && pos >= d.script.DurationMs() {
		pos = d.script.DurationMs()
		mode = ModeIdle
	}
	return State{Mode: mode, PositionMs: pos}, nil
}

// EstimateLatency reports the configured latency.
func (d *Sim) EstimateLatency(ctx context.Context) (int64, error) {
	if err := d.begin(ctx, CmdLatency, 0); err != nil {
		return 0, err
	}
	return d.cfg.LatencyMs, nil
}

// begin journals a command, applies the configured delay, honors a pending
// hold, and returns any injected failure.
func (d *Sim) begin(ctx context.Context, cmd string, arg int64) error {
	d.mu.Lock()
	d.calls = append(d.calls, Call{Cmd: cmd, Arg: arg})
	hold := d.holds[cmd]
	delete(d.holds, cmd)
	failure := d.failures[cmd]
	d.mu.Unlock()

	if d.cfg.CommandDelay > 0 {
		select {
		case <-time.After(d.cfg.CommandDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return failure
}

// positionLocked extrapolates the playback position from the last anchor.
func (d *Sim) positionLocked() int64 {
	pos := d.basePosMs
	if d.mode == ModePlaying {
		pos += d.now().Sub(d.startedAt).Milliseconds()
	}
	return pos
}

// FailWith makes every subsequent call of cmd return err until cleared.
func (d *Sim) FailWith(cmd string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[cmd] = err
}

// ClearFailures removes all injected failures.
func (d *Sim) ClearFailures() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = make(map[string]error)
}

// HoldNext blocks the next call of cmd until the returned release function
// runs. Release is idempotent.
func (d *Sim) HoldNext(cmd string) func() {
	ch := make(chan struct{})
	d.mu.Lock()
	d.holds[cmd] = ch
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { close(ch) })
	}
}

// Calls returns a copy of the command journal.
func (d *Sim) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}

// CallCount counts journaled commands by name.
func (d *Sim) CallCount(cmd string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c.Cmd == cmd {
			n++
		}
	}
	return n
}

// Script returns the currently uploaded script, nil if none.
func (d *Sim) Script() *funscript.Script {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.script
}

// SetPosition pins the playback position for tests. Playback continues from
// the new position if the engine is running.
func (d *Sim) SetPosition(ms int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.basePosMs = ms
	d.startedAt = d.now()
}

// SetNow overrides the simulator clock for tests.
func (d *Sim) SetNow(now func() time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = now
}
