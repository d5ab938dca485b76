package repositories

import (
	"context"

	"github.com/haptisync/haptisync-go/internal/database/models"
	"github.com/lucsky/cuid"
	"gorm.io/gorm"
)

// PlaylistRepository handles playlist data access.
type PlaylistRepository struct {
	db *gorm.DB
}

// NewPlaylistRepository creates a new PlaylistRepository.
func NewPlaylistRepository(db *gorm.DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

// entryOrder preloads playlist entries in playback order.
func entryOrder(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// FindAll returns all playlists with their entries.
func (r *PlaylistRepository) FindAll(ctx context.Context) ([]models.Playlist, error) {
	var playlists []models.Playlist
	result := r.db.WithContext(ctx).
		Preload("Entries", entryOrder).
		Order("created_at DESC").
		Find(&playlists)
	return playlists, result.Error
}

// FindByID returns a playlist by ID with its entries.
func (r *PlaylistRepository) FindByID(ctx context.Context, id string) (*models.Playlist, error) {
	var playlist models.Playlist
	result := r.db.WithContext(ctx).
		Preload("Entries", entryOrder).
		First(&playlist, "id = ?", id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &playlist, nil
}

// CreateWithEntries creates a playlist and its entries in a transaction. The
// entry positions follow the order of scriptIDs.
func (r *PlaylistRepository) CreateWithEntries(ctx context.Context, playlist *models.Playlist, scriptIDs []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if playlist.ID == "" {
			playlist.ID = cuid.New()
		}
		if err := tx.Create(playlist).Error; err != nil {
			return err
		}

		if len(scriptIDs) > 0 {
			entries := make([]models.PlaylistEntry, len(scriptIDs))
			for i, scriptID := range scriptIDs {
				entries[i] = models.PlaylistEntry{
					ID:         cuid.New(),
					PlaylistID: playlist.ID,
					ScriptID:   scriptID,
					Position:   i,
				}
			}
			if err := tx.Create(&entries).Error; err != nil {
				return err
			}
			playlist.Entries = entries
		}
		return nil
	})
}

// UpdateInfo updates a playlist's name and description without touching its
// entries.
func (r *PlaylistRepository) UpdateInfo(ctx context.Context, id string, name string, description *string) error {
	updates := map[string]interface{}{"name": name}
	if description != nil {
		updates["description"] = *description
	}
	return r.db.WithContext(ctx).
		Model(&models.Playlist{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// ReplaceEntries replaces a playlist's entries with the given scripts.
func (r *PlaylistRepository) ReplaceEntries(ctx context.Context, playlistID string, scriptIDs []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.PlaylistEntry{}, "playlist_id = ?", playlistID).Error; err != nil {
			return err
		}
		if len(scriptIDs) == 0 {
			return nil
		}
		entries := make([]models.PlaylistEntry, len(scriptIDs))
		for i, scriptID := range scriptIDs {
			entries[i] = models.PlaylistEntry{
				ID:         cuid.New(),
				PlaylistID: playlistID,
				ScriptID:   scriptID,
				Position:   i,
			}
		}
		return tx.Create(&entries).Error
	})
}

// Delete deletes a playlist and its entries.
func (r *PlaylistRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.PlaylistEntry{}, "playlist_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Playlist{}, "id = ?", id).Error
	})
}

// ScriptIDs returns the playlist's script IDs in playback order.
func (r *PlaylistRepository) ScriptIDs(ctx context.Context, playlistID string) ([]string, error) {
	var ids []string
	result := r.db.WithContext(ctx).
		Model(&models.PlaylistEntry{}).
		Where("playlist_id = ?", playlistID).
		Order("position ASC").
		Pluck("script_id", &ids)
	return ids, result.Error
}
