// Package library manages the script library: funscript imports, queries,
// playlists, and the directory watcher feeding automatic imports.
package library

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/haptisync/haptisync-go/internal/database/models"
	"github.com/haptisync/haptisync-go/internal/database/repositories"
	"github.com/haptisync/haptisync-go/pkg/funscript"
)

// Service exposes the script library.
type Service struct {
	scripts   *repositories.ScriptRepository
	playlists *repositories.PlaylistRepository

	mu       sync.Mutex
	onChange func()
}

// NewService creates a library service over the given repositories.
func NewService(scripts *repositories.ScriptRepository, playlists *repositories.PlaylistRepository) *Service {
	return &Service{scripts: scripts, playlists: playlists}
}

// SetChangeCallback registers a function invoked after every library
// mutation, including imports made by the directory watcher.
func (s *Service) SetChangeCallback(cb func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = cb
}

func (s *Service) notify() {
	s.mu.Lock()
	cb := s.onChange
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Import parses raw funscript data and stores it under the given name. An
// empty name falls back to the script's metadata title.
func (s *Service) Import(ctx context.Context, name string, data []byte) (*models.Script, error) {
	parsed, err := funscript.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse funscript: %w", err)
	}
	if name == "" {
		name = parsed.Metadata.Title
	}
	if name == "" {
		name = "Untitled"
	}

	model, err := buildModel(name, parsed)
	if err != nil {
		return nil, err
	}
	if err := s.scripts.Create(ctx, model); err != nil {
		return nil, fmt.Errorf("store script: %w", err)
	}
	s.notify()
	return model, nil
}

// ImportFile imports a funscript file, upserting by source path so a
// rewritten file updates its existing row instead of duplicating it.
func (s *Service) ImportFile(ctx context.Context, path string) (*models.Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	parsed, err := funscript.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if parsed.Metadata.Title != "" {
		name = parsed.Metadata.Title
	}

	model, err := buildModel(name, parsed)
	if err != nil {
		return nil, err
	}
	model.SourcePath = &path

	existing, err := s.scripts.FindBySourcePath(ctx, path)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		model.ID = existing.ID
		model.CreatedAt = existing.CreatedAt
		model.Description = existing.Description
		if err := s.scripts.Update(ctx, model); err != nil {
			return nil, fmt.Errorf("update script from %s: %w", path, err)
		}
		s.notify()
		return model, nil
	}

	if err := s.scripts.Create(ctx, model); err != nil {
		return nil, fmt.Errorf("store script from %s: %w", path, err)
	}
	s.notify()
	return model, nil
}

// ImportDir imports every funscript file directly inside dir, skipping
// files that fail to parse. Returns the number imported.
func (s *Service) ImportDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read scripts dir %s: %w", dir, err)
	}

	imported := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".funscript") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if _, err := s.ImportFile(ctx, path); err != nil {
			log.Printf("Library: import of %s failed: %v", path, err)
			continue
		}
		imported++
	}
	return imported, nil
}

// List returns script summaries without action payloads.
func (s *Service) List(ctx context.Context) ([]models.Script, error) {
	return s.scripts.FindAll(ctx)
}

// Get returns a script with its actions, nil if it does not exist.
func (s *Service) Get(ctx context.Context, id string) (*models.Script, error) {
	return s.scripts.FindByID(ctx, id)
}

// Delete removes a script and its playlist entries.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.scripts.Delete(ctx, id); err != nil {
		return err
	}
	s.notify()
	return nil
}

// Count returns the number of scripts in the library.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.scripts.Count(ctx)
}

// Script loads and decodes a stored script for device playback.
func (s *Service) Script(ctx context.Context, id string) (*funscript.Script, error) {
	model, err := s.scripts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if model == nil {
		return nil, fmt.Errorf("script %s not found", id)
	}

	var actions []funscript.Action
	if err := json.Unmarshal([]byte(model.Actions), &actions); err != nil {
		return nil, fmt.Errorf("decode actions of %s: %w", id, err)
	}
	if len(actions) == 0 {
		return nil, fmt.Errorf("script %s has no actions", id)
	}
	return &funscript.Script{
		Metadata: funscript.Metadata{Title: model.Name, DurationMs: model.DurationMs},
		Actions:  actions,
	}, nil
}

// ScriptIDs lists the pickable universe for sequencing: one playlist's
// scripts in order, or the whole library when playlistID is empty.
func (s *Service) ScriptIDs(ctx context.Context, playlistID string) ([]string, error) {
	if playlistID == "" {
		return s.scripts.FindIDs(ctx)
	}
	return s.playlists.ScriptIDs(ctx, playlistID)
}

// ListPlaylists returns all playlists with entries in playback order.
func (s *Service) ListPlaylists(ctx context.Context) ([]models.Playlist, error) {
	return s.playlists.FindAll(ctx)
}

// GetPlaylist returns a playlist by ID, nil if it does not exist.
func (s *Service) GetPlaylist(ctx context.Context, id string) (*models.Playlist, error) {
	return s.playlists.FindByID(ctx, id)
}

// CreatePlaylist creates a playlist holding the given scripts in order.
func (s *Service) CreatePlaylist(ctx context.Context, name string, description *string, scriptIDs []string) (*models.Playlist, error) {
	playlist := &models.Playlist{Name: name, Description: description}
	if err := s.playlists.CreateWithEntries(ctx, playlist, scriptIDs); err != nil {
		return nil, fmt.Errorf("create playlist: %w", err)
	}
	s.notify()
	return playlist, nil
}

// UpdatePlaylist updates a playlist's name, description, and entries. A nil
// scriptIDs leaves the entries alone; an empty slice clears them. Returns
// nil if the playlist does not exist.
func (s *Service) UpdatePlaylist(ctx context.Context, id, name string, description *string, scriptIDs []string) (*models.Playlist, error) {
	existing, err := s.playlists.FindByID(ctx, id)
	if err != nil || existing == nil {
		return nil, err
	}

	if name == "" {
		name = existing.Name
	}
	if err := s.playlists.UpdateInfo(ctx, id, name, description); err != nil {
		return nil, fmt.Errorf("update playlist: %w", err)
	}
	if scriptIDs != nil {
		if err := s.playlists.ReplaceEntries(ctx, id, scriptIDs); err != nil {
			return nil, fmt.Errorf("replace playlist entries: %w", err)
		}
	}
	s.notify()
	return s.playlists.FindByID(ctx, id)
}

// DeletePlaylist removes a playlist and its entries.
func (s *Service) DeletePlaylist(ctx context.Context, id string) error {
	if err := s.playlists.Delete(ctx, id); err != nil {
		return err
	}
	s.notify()
	return nil
}

// buildModel converts a parsed script into its database row.
func buildModel(name string, parsed *funscript.Script) (*models.Script, error) {
	actions, err := json.Marshal(parsed.Actions)
	if err != nil {
		return nil, fmt.Errorf("encode actions: %w", err)
	}
	stats := parsed.Stats()
	return &models.Script{
		Name:         name,
		DurationMs:   stats.DurationMs,
		ActionCount:  stats.ActionCount,
		AverageSpeed: stats.AverageSpeed,
		Actions:      string(actions),
	}, nil
}
