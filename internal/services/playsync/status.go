package playsync

// SyncState is the lifecycle state of the video-device link.
type SyncState string

const (
	// StateIdle means script or device is missing.
	StateIdle SyncState = "IDLE"
	// StateUploading means the script is being pushed to the device.
	StateUploading SyncState = "UPLOADING"
	// StateReady means the device holds the script and awaits a play event.
	StateReady SyncState = "READY"
	// StatePlaying means the device is running in sync with the video.
	StatePlaying SyncState = "PLAYING"
	// StatePaused means playback is halted at a position.
	StatePaused SyncState = "PAUSED"
	// StateError means the most recent command failed.
	StateError SyncState = "ERROR"
)

// Source identifies which video timeline drives synchronization.
type Source string

const (
	// SourceLocal is a video played by this application's own player.
	SourceLocal Source = "LOCAL"
	// SourceEmbed is a video observed in an embedded player whose clock
	// arrives as pushed samples.
	SourceEmbed Source = "EMBED"
)

// Status is a snapshot of the synchronization engine.
type Status struct {
	State          SyncState `json:"status"`
	Source         Source    `json:"source"`
	ScriptUploaded bool      `json:"scriptUploaded"`
	DriftMs        int64     `json:"driftMs"`
	LatencyMs      int64     `json:"latencyMs"`
	Error          string    `json:"error,omitempty"`
}

// StatusCallback receives engine status snapshots.
type StatusCallback func(Status)

// DriftSample is one measurement from the drift loop.
type DriftSample struct {
	VideoTimeMs  int64 `json:"videoTimeMs"`
	DeviceTimeMs int64 `json:"deviceTimeMs"`
	DriftMs      int64 `json:"driftMs"`
}

// DriftCallback receives drift measurements.
type DriftCallback func(DriftSample)
