// Package repositories provides data access layer implementations.
package repositories

import (
	"context"

	"github.com/haptisync/haptisync-go/internal/database/models"
	"github.com/lucsky/cuid"
	"gorm.io/gorm"
)

// ScriptRepository handles script data access.
type ScriptRepository struct {
	db *gorm.DB
}

// NewScriptRepository creates a new ScriptRepository.
func NewScriptRepository(db *gorm.DB) *ScriptRepository {
	return &ScriptRepository{db: db}
}

// FindAll returns all scripts ordered by name, without the action payload.
// The actions column can run to megabytes, so listings skip it.
func (r *ScriptRepository) FindAll(ctx context.Context) ([]models.Script, error) {
	var scripts []models.Script
	result := r.db.WithContext(ctx).
		Select("id", "name", "description", "duration_ms", "action_count", "average_speed", "source_path", "created_at", "updated_at").
		Order("name ASC").
		Find(&scripts)
	return scripts, result.Error
}

// FindByID returns a script by ID, including its actions.
func (r *ScriptRepository) FindByID(ctx context.Context, id string) (*models.Script, error) {
	var script models.Script
	result := r.db.WithContext(ctx).First(&script, "id = ?", id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &script, nil
}

// FindBySourcePath returns the script imported from the given file path.
func (r *ScriptRepository) FindBySourcePath(ctx context.Context, path string) (*models.Script, error) {
	var script models.Script
	result := r.db.WithContext(ctx).First(&script, "source_path = ?", path)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &script, nil
}

// Create creates a new script.
func (r *ScriptRepository) Create(ctx context.Context, script *models.Script) error {
	if script.ID == "" {
		script.ID = cuid.New()
	}
	return r.db.WithContext(ctx).Create(script).Error
}

// Update updates an existing script.
func (r *ScriptRepository) Update(ctx context.Context, script *models.Script) error {
	return r.db.WithContext(ctx).Save(script).Error
}

// Delete deletes a script by ID and removes it from any playlists.
func (r *ScriptRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.PlaylistEntry{}, "script_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Script{}, "id = ?", id).Error
	})
}

// FindIDs returns all script IDs ordered by name.
func (r *ScriptRepository) FindIDs(ctx context.Context) ([]string, error) {
	var ids []string
	result := r.db.WithContext(ctx).
		Model(&models.Script{}).
		Order("name ASC").
		Pluck("id", &ids)
	return ids, result.Error
}

// Count returns the number of scripts in the library.
func (r *ScriptRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).
		Model(&models.Script{}).
		Count(&count)
	return count, result.Error
}
