package playsync

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haptisync/haptisync-go/internal/device"
	"github.com/haptisync/haptisync-go/pkg/funscript"
)

// testScript returns a simple script running to durMs.
func testScript(durMs int64) *funscript.Script {
	return &funscript.Script{
		Actions: []funscript.Action{
			{At: 0, Pos: 0},
			{At: durMs / 2, Pos: 100},
			{At: durMs, Pos: 0},
		},
	}
}

// fastConfig shrinks the drift loop so tests observe real checks quickly.
func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.TickInterval = 5 * time.Millisecond
	cfg.CheckInterval = 20 * time.Millisecond
	return cfg
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// pairedService returns a service paired with a simulator, with the upload
// and the latency probe both finished.
func pairedService(t *testing.T, cfg Config, simCfg device.SimConfig) (*Service, *device.Sim) {
	t.Helper()
	ctx := context.Background()
	s := NewService(cfg)
	t.Cleanup(s.Cleanup)
	sim := device.NewSim(simCfg)
	s.SetDevice(ctx, sim)
	s.SetScript(ctx, testScript(60000))
	waitFor(t, 2*time.Second, "script upload", func() bool {
		st := s.Status()
		return st.State == StateReady && st.ScriptUploaded
	})
	waitFor(t, 2*time.Second, "latency probe", func() bool {
		return sim.CallCount(device.CmdLatency) >= 1
	})
	return s, sim
}

// TestServiceStartsIdle tests the initial status snapshot.
func TestServiceStartsIdle(t *testing.T) {
	s := NewService(DefaultConfig())
	defer s.Cleanup()

	st := s.Status()
	if st.State != StateIdle {
		t.Errorf("initial state = %s, expected %s", st.State, StateIdle)
	}
	if st.ScriptUploaded {
		t.Error("ScriptUploaded = true before any pairing")
	}
	if st.Source != SourceLocal {
		t.Errorf("initial source = %s, expected %s", st.Source, SourceLocal)
	}
}

// TestPairingUploadsScript tests that completing the device/script pair
// triggers exactly one upload.
func TestPairingUploadsScript(t *testing.T) {
	ctx := context.Background()
	s := NewService(fastConfig())
	defer s.Cleanup()
	sim := device.NewSim(device.SimConfig{})

	s.SetScript(ctx, testScript(60000))
	if st := s.Status(); st.State != StateIdle {
		t.Fatalf("state = %s with script but no device, expected %s", st.State, StateIdle)
	}

	s.SetDevice(ctx, sim)
	waitFor(t, 2*time.Second, "upload to finish", func() bool {
		return s.Status().State == StateReady
	})

	if !s.Status().ScriptUploaded {
		t.Error("ScriptUploaded = false after upload finished")
	}
	if n := sim.CallCount(device.CmdUpload); n != 1 {
		t.Errorf("upload count = %d, expected 1", n)
	}
}

// TestUploadFailureSetsError tests the error path of the async upload.
func TestUploadFailureSetsError(t *testing.T) {
	ctx := context.Background()
	s := NewService(fastConfig())
	defer s.Cleanup()
	sim := device.NewSim(device.SimConfig{})
	sim.FailWith(device.CmdUpload, errors.New("bulk transfer failed"))

	s.SetDevice(ctx, sim)
	s.SetScript(ctx, testScript(60000))
	waitFor(t, 2*time.Second, "error state", func() bool {
		return s.Status().State == StateError
	})

	st := s.Status()
	if !strings.Contains(st.Error, "upload failed") {
		t.Errorf("error = %q, expected upload failure message", st.Error)
	}
	if st.ScriptUploaded {
		t.Error("ScriptUploaded = true after failed upload")
	}
}

// TestPlayCompensatesForLatency tests that a play event starts the device
// ahead of the video by the measured latency.
func TestPlayCompensatesForLatency(t *testing.T) {
	ctx := context.Background()
	s, sim := pairedService(t, fastConfig(), device.SimConfig{LatencyMs: 50})
	waitFor(t, 2*time.Second, "latency estimate", func() bool {
		return s.Status().LatencyMs == 50
	})

	s.Play(ctx, 10000)
	waitFor(t, 2*time.Second, "playing state", func() bool {
		return s.Status().State == StatePlaying
	})

	if n := sim.CallCount(device.CmdStart); n != 1 {
		t.Fatalf("start count = %d, expected exactly 1", n)
	}
	for _, c := range sim.Calls() {
		if c.Cmd == device.CmdStart && c.Arg != 10050 {
			t.Errorf("start position = %d, expected 10050", c.Arg)
		}
	}
}

// TestPauseStopsDeviceOnce tests the local pause path.
func TestPauseStopsDeviceOnce(t *testing.T) {
	ctx := context.Background()
	s, sim := pairedService(t, fastConfig(), device.SimConfig{})

	s.Play(ctx, 1000)
	waitFor(t, 2*time.Second, "playing state", func() bool {
		return s.Status().State == StatePlaying
	})
	s.Pause(ctx)
	waitFor(t, 2*time.Second, "paused state", func() bool {
		return s.Status().State == StatePaused
	})

	if n := sim.CallCount(device.CmdStop); n != 1 {
		t.Errorf("stop count = %d, expected 1", n)
	}
}

// TestSeekWhilePausedIssuesNoDeviceCommand tests that a paused seek only
// moves the timeline.
func TestSeekWhilePausedIssuesNoDeviceCommand(t *testing.T) {
	ctx := context.Background()
	s, sim := pairedService(t, fastConfig(), device.SimConfig{})

	s.Play(ctx, 1000)
	waitFor(t, 2*time.Second, "playing state", func() bool {
		return s.Status().State == StatePlaying
	})
	s.Pause(ctx)
	waitFor(t, 2*time.Second, "paused state", func() bool {
		return s.Status().State == StatePaused
	})

	before := len(sim.Calls())
	s.Seeked(ctx, 20000)
	time.Sleep(80 * time.Millisecond)

	for _, c := range sim.Calls()[before:] {
		t.Errorf("unexpected device command %s after paused seek", c.Cmd)
	}
	if st := s.Status(); st.State != StatePaused {
		t.Errorf("state = %s after paused seek, expected %s", st.State, StatePaused)
	}
}

// TestSeekWhilePlayingRestartsAtNewPosition tests the playing seek path.
func TestSeekWhilePlayingRestartsAtNewPosition(t *testing.T) {
	ctx := context.Background()
	s, sim := pairedService(t, fastConfig(), device.SimConfig{})

	s.Play(ctx, 1000)
	waitFor(t, 2*time.Second, "playing state", func() bool {
		return s.Status().State == StatePlaying
	})
	s.Seeked(ctx, 30000)
	waitFor(t, 2*time.Second, "restart after seek", func() bool {
		return sim.CallCount(device.CmdStart) == 2
	})

	calls := sim.Calls()
	var starts []int64
	for _, c := range calls {
		if c.Cmd == device.CmdStart {
			starts = append(starts, c.Arg)
		}
	}
	if len(starts) != 2 || starts[1] != 30000 {
		t.Errorf("start positions = %v, expected second start at 30000", starts)
	}
	if st := s.Status(); st.State != StatePlaying {
		t.Errorf("state = %s after playing seek, expected %s", st.State, StatePlaying)
	}
}

// TestStaleStartCannotOverridePause tests that command completions apply in
// issue order: a pause issued after a still-running start wins even when the
// start completes last.
func TestStaleStartCannotOverridePause(t *testing.T) {
	ctx := context.Background()
	s, sim := pairedService(t, fastConfig(), device.SimConfig{})

	release := sim.HoldNext(device.CmdStart)
	defer release()

	s.Play(ctx, 5000)
	s.Pause(ctx)
	waitFor(t, 2*time.Second, "paused state", func() bool {
		return s.Status().State == StatePaused
	})

	release()
	time.Sleep(50 * time.Millisecond)

	if st := s.Status(); st.State != StatePaused {
		t.Errorf("state = %s after stale start completed, expected %s", st.State, StatePaused)
	}

	// The discarded start must not have spun up drift checking either.
	polls := sim.CallCount(device.CmdState)
	time.Sleep(80 * time.Millisecond)
	if n := sim.CallCount(device.CmdState); n != polls {
		t.Errorf("drift polls kept running after a stale start: %d -> %d", polls, n)
	}
}

// TestNoDeviceTrafficAfterPause tests that pausing shuts the drift loop down
// rather than leaving it polling.
func TestNoDeviceTrafficAfterPause(t *testing.T) {
	ctx := context.Background()
	s, sim := pairedService(t, fastConfig(), device.SimConfig{})

	s.Play(ctx, 1000)
	waitFor(t, 2*time.Second, "playing state", func() bool {
		return s.Status().State == StatePlaying
	})
	waitFor(t, 2*time.Second, "drift polls", func() bool {
		return sim.CallCount(device.CmdState) >= 2
	})

	s.Pause(ctx)
	waitFor(t, 2*time.Second, "paused state", func() bool {
		return s.Status().State == StatePaused
	})

	quiet := len(sim.Calls())
	time.Sleep(120 * time.Millisecond)
	if n := len(sim.Calls()); n != quiet {
		t.Errorf("device saw %d extra calls after pause, expected none", n-quiet)
	}
}

// TestEndedReturnsToReady tests that the end of the video stops the device
// and leaves the pairing armed for the next play.
func TestEndedReturnsToReady(t *testing.T) {
	ctx := context.Background()
	s, sim := pairedService(t, fastConfig(), device.SimConfig{})

	s.Play(ctx, 1000)
	waitFor(t, 2*time.Second, "playing state", func() bool {
		return s.Status().State == StatePlaying
	})
	s.Ended(ctx)
	waitFor(t, 2*time.Second, "ready state", func() bool {
		return s.Status().State == StateReady
	})

	if n := sim.CallCount(device.CmdStop); n != 1 {
		t.Errorf("stop count = %d, expected 1", n)
	}
	if !s.Status().ScriptUploaded {
		t.Error("ScriptUploaded = false after ended, expected pairing to stay armed")
	}

	quiet := len(sim.Calls())
	time.Sleep(120 * time.Millisecond)
	if n := len(sim.Calls()); n != quiet {
		t.Errorf("device saw %d extra calls after ended, expected none", n-quiet)
	}
}

// TestDriftCorrectionIsCapped tests that a large drift is corrected in
// capped steps rather than one big jump.
func TestDriftCorrectionIsCapped(t *testing.T) {
	ctx := context.Background()
	s, sim := pairedService(t, fastConfig(), device.SimConfig{})

	var mu sync.Mutex
	var samples []DriftSample
	s.SetDriftCallback(func(d DriftSample) {
		mu.Lock()
		samples = append(samples, d)
		mu.Unlock()
	})

	// Embed source: threshold 500ms, so a 900ms drift takes one capped
	// nudge and the 400ms remainder is left alone.
	s.EmbedSample(ctx, true, 10000)
	waitFor(t, 2*time.Second, "playing state", func() bool {
		return s.Status().State == StatePlaying
	})

	st, err := sim.State(ctx)
	if err != nil {
		t.Fatalf("sim state: %v", err)
	}
	sim.SetPosition(st.PositionMs - 900)

	waitFor(t, 2*time.Second, "capped correction", func() bool {
		return sim.CallCount(device.CmdOffset) >= 1
	})
	time.Sleep(100 * time.Millisecond)

	if n := sim.CallCount(device.CmdOffset); n != 1 {
		t.Errorf("offset count = %d, expected exactly 1", n)
	}
	for _, c := range sim.Calls() {
		if c.Cmd == device.CmdOffset && c.Arg != 500 {
			t.Errorf("correction = %+d, expected +500", c.Arg)
		}
	}

	// Now push the device well ahead (the video is still 400ms ahead of it,
	// so +1400 yields roughly -1000 of drift) and expect capped nudges back.
	st, err = sim.State(ctx)
	if err != nil {
		t.Fatalf("sim state: %v", err)
	}
	sim.SetPosition(st.PositionMs + 1400)

	waitFor(t, 2*time.Second, "negative correction", func() bool {
		return sim.CallCount(device.CmdOffset) >= 2
	})
	calls := sim.Calls()
	last := calls[len(calls)-1]
	for i := len(calls) - 1; i >= 0; i-- {
		if calls[i].Cmd == device.CmdOffset {
			last = calls[i]
			break
		}
	}
	if last.Arg != -500 {
		t.Errorf("correction = %+d, expected -500", last.Arg)
	}

	mu.Lock()
	defer mu.Unlock()
	sawLarge := false
	for _, d := range samples {
		if abs64(d.DriftMs) >= 500 {
			sawLarge = true
		}
	}
	if !sawLarge {
		t.Error("no drift sample at or above the cap was reported")
	}
}

// TestDriftWithinThresholdLeftAlone tests that small drift is observed but
// not corrected.
func TestDriftWithinThresholdLeftAlone(t *testing.T) {
	ctx := context.Background()
	s, sim := pairedService(t, fastConfig(), device.SimConfig{})

	var mu sync.Mutex
	var samples []DriftSample
	s.SetDriftCallback(func(d DriftSample) {
		mu.Lock()
		samples = append(samples, d)
		mu.Unlock()
	})

	s.Play(ctx, 5000)
	waitFor(t, 2*time.Second, "playing state", func() bool {
		return s.Status().State == StatePlaying
	})
	waitFor(t, 2*time.Second, "drift samples", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(samples) >= 2
	})

	if n := sim.CallCount(device.CmdOffset); n != 0 {
		t.Errorf("offset count = %d, expected none while in sync", n)
	}
	mu.Lock()
	defer mu.Unlock()
	for _, d := range samples {
		if abs64(d.DriftMs) > 100 {
			t.Errorf("drift sample = %+dms, expected near zero with an honest device", d.DriftMs)
		}
	}
}

// TestLocalThresholdTighterThanEmbed tests that the local source corrects
// drift the embed source would tolerate.
func TestLocalThresholdTighterThanEmbed(t *testing.T) {
	ctx := context.Background()
	s, sim := pairedService(t, fastConfig(), device.SimConfig{})

	s.Play(ctx, 10000)
	waitFor(t, 2*time.Second, "playing state", func() bool {
		return s.Status().State == StatePlaying
	})

	// 300ms sits between the local threshold (200) and the embed one (500).
	st, err := sim.State(ctx)
	if err != nil {
		t.Fatalf("sim state: %v", err)
	}
	sim.SetPosition(st.PositionMs - 300)

	waitFor(t, 2*time.Second, "correction", func() bool {
		return sim.CallCount(device.CmdOffset) >= 1
	})
	for _, c := range sim.Calls() {
		if c.Cmd == device.CmdOffset && (c.Arg < 250 || c.Arg > 350) {
			t.Errorf("correction = %+d, expected roughly +300", c.Arg)
		}
	}
}

// TestEmbedSampleDrivesPlayback tests start/stop transitions derived from
// embed heartbeats.
func TestEmbedSampleDrivesPlayback(t *testing.T) {
	ctx := context.Background()
	s, sim := pairedService(t, fastConfig(), device.SimConfig{})

	s.EmbedSample(ctx, true, 5000)
	waitFor(t, 2*time.Second, "playing state", func() bool {
		return s.Status().State == StatePlaying
	})
	if src := s.Status().Source; src != SourceEmbed {
		t.Errorf("source = %s, expected %s", src, SourceEmbed)
	}
	for _, c := range sim.Calls() {
		if c.Cmd == device.CmdStart && c.Arg != 5000 {
			t.Errorf("start position = %d, expected 5000", c.Arg)
		}
	}

	// A heartbeat that is still playing only refreshes the timeline.
	s.EmbedSample(ctx, true, 6000)
	time.Sleep(30 * time.Millisecond)
	if n := sim.CallCount(device.CmdStart); n != 1 {
		t.Errorf("start count = %d after repeat heartbeat, expected 1", n)
	}

	s.EmbedSample(ctx, false, 7000)
	waitFor(t, 2*time.Second, "paused state", func() bool {
		return s.Status().State == StatePaused
	})
	if n := sim.CallCount(device.CmdStop); n != 1 {
		t.Errorf("stop count = %d, expected 1", n)
	}
}

// TestManualOffsetShiftsEmbedTimeline tests the operator offset knob.
func TestManualOffsetShiftsEmbedTimeline(t *testing.T) {
	ctx := context.Background()
	s, sim := pairedService(t, fastConfig(), device.SimConfig{})

	s.SetManualOffset(-250)
	if got := s.ManualOffset(); got != -250 {
		t.Fatalf("ManualOffset() = %d, expected -250", got)
	}

	s.EmbedSample(ctx, true, 5000)
	waitFor(t, 2*time.Second, "playing state", func() bool {
		return s.Status().State == StatePlaying
	})
	for _, c := range sim.Calls() {
		if c.Cmd == device.CmdStart && c.Arg != 4750 {
			t.Errorf("start position = %d, expected 4750 with -250 offset", c.Arg)
		}
	}
}

// TestScriptRemovalStopsDeviceAndResets tests pairing dissolution while the
// device is running.
func TestScriptRemovalStopsDeviceAndResets(t *testing.T) {
	ctx := context.Background()
	s, sim := pairedService(t, fastConfig(), device.SimConfig{})

	s.Play(ctx, 1000)
	waitFor(t, 2*time.Second, "playing state", func() bool {
		return s.Status().State == StatePlaying
	})

	s.SetScript(ctx, nil)
	waitFor(t, 2*time.Second, "idle state", func() bool {
		return s.Status().State == StateIdle
	})
	waitFor(t, 2*time.Second, "best-effort stop", func() bool {
		return sim.CallCount(device.CmdStop) >= 1
	})

	st := s.Status()
	if st.ScriptUploaded {
		t.Error("ScriptUploaded = true after script removal")
	}
	if st.DriftMs != 0 {
		t.Errorf("DriftMs = %d after reset, expected 0", st.DriftMs)
	}

	quiet := len(sim.Calls())
	time.Sleep(120 * time.Millisecond)
	if n := len(sim.Calls()); n != quiet {
		t.Errorf("device saw %d extra calls after unpair, expected none", n-quiet)
	}
}

// TestDeviceSwapReuploadsToNewDevice tests that replacing the device re-runs
// the upload against the new hardware.
func TestDeviceSwapReuploadsToNewDevice(t *testing.T) {
	ctx := context.Background()
	s, _ := pairedService(t, fastConfig(), device.SimConfig{})

	sim2 := device.NewSim(device.SimConfig{})
	s.SetDevice(ctx, sim2)
	waitFor(t, 2*time.Second, "re-upload", func() bool {
		return sim2.CallCount(device.CmdUpload) == 1 && s.Status().State == StateReady
	})
}

// TestRapidPlayPauseSettlesPaused tests that interleaved completions end up
// honoring the last command issued.
func TestRapidPlayPauseSettlesPaused(t *testing.T) {
	ctx := context.Background()
	s, _ := pairedService(t, fastConfig(), device.SimConfig{})

	for i := 0; i < 5; i++ {
		s.Play(ctx, int64(i)*1000)
		s.Pause(ctx)
	}
	waitFor(t, 2*time.Second, "paused state", func() bool {
		return s.Status().State == StatePaused
	})
	time.Sleep(50 * time.Millisecond)

	st := s.Status()
	if st.State != StatePaused {
		t.Errorf("state = %s after play/pause storm, expected %s", st.State, StatePaused)
	}
	if st.Error != "" {
		t.Errorf("error = %q after play/pause storm, expected none", st.Error)
	}
}

// TestPlayWithoutDeviceKeepsQuiet tests that video events without a paired
// device never reach for hardware.
func TestPlayWithoutDeviceKeepsQuiet(t *testing.T) {
	ctx := context.Background()
	s := NewService(fastConfig())
	defer s.Cleanup()

	s.SetScript(ctx, testScript(60000))
	s.Play(ctx, 1000)
	s.Pause(ctx)
	if st := s.Status(); st.State != StateIdle {
		t.Errorf("state = %s without a device, expected %s", st.State, StateIdle)
	}

	// Pairing afterwards uploads but does not resurrect playback on its own.
	sim := device.NewSim(device.SimConfig{})
	s.SetDevice(ctx, sim)
	waitFor(t, 2*time.Second, "upload", func() bool {
		return s.Status().State == StateReady
	})
	if n := sim.CallCount(device.CmdStart); n != 0 {
		t.Errorf("start count = %d after late pairing, expected 0", n)
	}
}

// TestCleanupStopsDriftLoop tests shutdown while playing.
func TestCleanupStopsDriftLoop(t *testing.T) {
	ctx := context.Background()
	s, sim := pairedService(t, fastConfig(), device.SimConfig{})

	s.Play(ctx, 1000)
	waitFor(t, 2*time.Second, "drift polls", func() bool {
		return sim.CallCount(device.CmdState) >= 1
	})

	s.Cleanup()
	time.Sleep(30 * time.Millisecond)
	quiet := len(sim.Calls())
	time.Sleep(120 * time.Millisecond)
	if n := len(sim.Calls()); n != quiet {
		t.Errorf("device saw %d extra calls after cleanup, expected none", n-quiet)
	}
}

// TestStatusCallbackFires tests that state changes reach the update callback.
func TestStatusCallbackFires(t *testing.T) {
	ctx := context.Background()
	s := NewService(fastConfig())
	defer s.Cleanup()

	var mu sync.Mutex
	var states []SyncState
	s.SetUpdateCallback(func(st Status) {
		mu.Lock()
		states = append(states, st.State)
		mu.Unlock()
	})

	sim := device.NewSim(device.SimConfig{})
	s.SetDevice(ctx, sim)
	s.SetScript(ctx, testScript(60000))
	waitFor(t, 2*time.Second, "ready via callback", func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, st := range states {
			if st == StateReady {
				return true
			}
		}
		return false
	})

	mu.Lock()
	defer mu.Unlock()
	sawUploading := false
	for _, st := range states {
		if st == StateUploading {
			sawUploading = true
		}
	}
	if !sawUploading {
		t.Error("callback never observed the uploading state")
	}
}
