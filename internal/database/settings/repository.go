// Package settings provides database operations for application settings.
//
// # Usage
//
//	repo := settings.NewRepository(db)
//	prepared, err := repo.GetBool(entities.SettingKeyCloudMigrationPrepared)
package settings

import (
	"errors"
	"strconv"

	"gorm.io/gorm"

	"github.com/mrlokans/notesync/internal/entities"
)

// Repository handles all settings database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new settings repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetSetting retrieves a setting by key.
func (r *Repository) GetSetting(key string) (*entities.Setting, error) {
	var setting entities.Setting
	err := r.db.Where("key = ?", key).First(&setting).Error
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

// GetBool reads a boolean setting. A missing key reads as false.
func (r *Repository) GetBool(key string) (bool, error) {
	setting, err := r.GetSetting(key)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(setting.Value)
}

// SetSetting creates or updates a setting.
func (r *Repository) SetSetting(key, value string) error {
	return setSetting(r.db, key, value)
}

// SetSettings writes several settings in one transaction.
func (r *Repository) SetSettings(values map[string]string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		for key, value := range values {
			if err := setSetting(tx, key, value); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteSetting removes a setting by key.
func (r *Repository) DeleteSetting(key string) error {
	return r.db.Where("key = ?", key).Delete(&entities.Setting{}).Error
}

// DeleteSettings removes several settings at once. Missing keys are ignored.
func (r *Repository) DeleteSettings(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.db.Where("key IN ?", keys).Delete(&entities.Setting{}).Error
}

func setSetting(db *gorm.DB, key, value string) error {
	var setting entities.Setting
	result := db.Where("key = ?", key).First(&setting)

	if result.Error == gorm.ErrRecordNotFound {
		setting = entities.Setting{
			Key:   key,
			Value: value,
		}
		return db.Create(&setting).Error
	} else if result.Error != nil {
		return result.Error
	}

	setting.Value = value
	return db.Save(&setting).Error
}
