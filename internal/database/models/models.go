// Package models contains the database model definitions.
// These models map directly to the SQLite database tables.
package models

import (
	"time"
)

// Script represents an imported funscript in the library.
// Table: scripts
type Script struct {
	ID           string  `gorm:"column:id;primaryKey" json:"id"`
	Name         string  `gorm:"column:name" json:"name"`
	Description  *string `gorm:"column:description" json:"description,omitempty"`
	DurationMs   int64   `gorm:"column:duration_ms" json:"durationMs"`
	ActionCount  int     `gorm:"column:action_count" json:"actionCount"`
	AverageSpeed float64 `gorm:"column:average_speed" json:"averageSpeed"`
	Actions      string  `gorm:"column:actions;default:[]" json:"-"` // JSON array of {at, pos}
	SourcePath   *string `gorm:"column:source_path;index" json:"sourcePath,omitempty"` // Set for scripts imported from the watch directory

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Script) TableName() string { return "scripts" }

// Playlist represents an ordered collection of scripts for autonomous playback.
// Table: playlists
type Playlist struct {
	ID          string    `gorm:"column:id;primaryKey" json:"id"`
	Name        string    `gorm:"column:name" json:"name"`
	Description *string   `gorm:"column:description" json:"description,omitempty"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`

	// Relations
	Entries []PlaylistEntry `gorm:"foreignKey:PlaylistID" json:"entries"`
}

func (Playlist) TableName() string { return "playlists" }

// PlaylistEntry represents one script slot within a playlist.
// Table: playlist_entries
type PlaylistEntry struct {
	ID         string `gorm:"column:id;primaryKey" json:"id"`
	PlaylistID string `gorm:"column:playlist_id;index" json:"playlistId"`
	ScriptID   string `gorm:"column:script_id;index" json:"scriptId"`
	Position   int    `gorm:"column:position" json:"position"`
}

func (PlaylistEntry) TableName() string { return "playlist_entries" }

// Setting represents a system setting.
// Table: settings
type Setting struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	Key       string    `gorm:"column:key;uniqueIndex" json:"key"`
	Value     string    `gorm:"column:value" json:"value"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Setting) TableName() string { return "settings" }
