package autoplay

import "github.com/haptisync/haptisync-go/internal/services/sequence"

// Status is the loop state snapshot exposed over the API and pushed to
// WebSocket subscribers.
type Status struct {
	IsPlaying       bool          `json:"isPlaying"`
	IsPaused        bool          `json:"isPaused"`
	CurrentScriptID string        `json:"currentScriptId"`
	NextScriptID    string        `json:"nextScriptId"`
	Mode            sequence.Mode `json:"mode"`
	Error           string        `json:"error,omitempty"`
}

// StatusCallback receives a snapshot after every status change.
type StatusCallback func(Status)
