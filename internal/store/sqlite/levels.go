package sqlite

import (
	"context"
	"errors"

	"github.com/guildbank/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Store) ListLevels(ctx context.Context, guildID string) ([]models.ServiceLevel, error) {
	var rows []levelRow
	err := s.db.WithContext(ctx).
		Where("guild_id = ?", guildID).
		Order("required_balance ASC").
		Find(&rows).Error
	if err != nil {
		return nil, models.StorageError("list levels", err)
	}

	out := make([]models.ServiceLevel, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *Store) AddLevel(ctx context.Context, level *models.ServiceLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var clash int64
		if err := tx.Model(&levelRow{}).
			Where("guild_id = ? AND required_balance = ?", level.GuildID, level.RequiredBalance).
			Count(&clash).Error; err != nil {
			return models.StorageError("add level", err)
		}
		if clash > 0 {
			return models.ErrDuplicateLevelThreshold
		}

		row := levelRow{
			GuildID:         level.GuildID,
			Name:            level.Name,
			Emoji:           level.Emoji,
			RequiredBalance: level.RequiredBalance,
			Color:           level.Color,
			Benefits:        level.Benefits,
			CreatedAt:       level.CreatedAt,
		}
		if err := tx.Create(&row).Error; err != nil {
			return models.StorageError("add level", err)
		}
		level.ID = row.ID
		level.CreatedAt = row.CreatedAt
		return nil
	})
}

func (s *Store) EditLevel(ctx context.Context, guildID string, id int64, patch models.LevelPatch) (*models.ServiceLevel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated models.ServiceLevel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row levelRow
		err := tx.Where("guild_id = ? AND id = ?", guildID, id).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ErrLevelNotFound
		}
		if err != nil {
			return models.StorageError("edit level", err)
		}

		updated = row.toModel()
		patch.Apply(&updated)

		var clash int64
		if err := tx.Model(&levelRow{}).
			Where("guild_id = ? AND required_balance = ? AND id <> ?", guildID, updated.RequiredBalance, id).
			Count(&clash).Error; err != nil {
			return models.StorageError("edit level", err)
		}
		if clash > 0 {
			return models.ErrDuplicateLevelThreshold
		}

		err = tx.Model(&levelRow{}).Where("id = ?", id).Updates(map[string]any{
			"name":             updated.Name,
			"emoji":            updated.Emoji,
			"required_balance": updated.RequiredBalance,
			"color":            updated.Color,
			"benefits":         updated.Benefits,
		}).Error
		return models.StorageError("edit level", err)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) RemoveLevel(ctx context.Context, guildID string, id int64) error {
	result := s.db.WithContext(ctx).Where("guild_id = ? AND id = ?", guildID, id).Delete(&levelRow{})
	if result.Error != nil {
		return models.StorageError("remove level", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrLevelNotFound
	}
	return nil
}

func (s *Store) GetGuildSettings(ctx context.Context, guildID string) (*models.GuildSettings, error) {
	var row settingsRow
	err := s.db.WithContext(ctx).Where("guild_id = ?", guildID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, models.StorageError("guild settings", err)
	}
	return &models.GuildSettings{
		GuildID:        row.GuildID,
		CurrencyName:   row.CurrencyName,
		CurrencySymbol: row.CurrencySymbol,
		Format:         row.Format,
	}, nil
}

func (s *Store) PutGuildSettings(ctx context.Context, gs *models.GuildSettings) error {
	row := settingsRow{
		GuildID:        gs.GuildID,
		CurrencyName:   gs.CurrencyName,
		CurrencySymbol: gs.CurrencySymbol,
		Format:         gs.Format,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	return models.StorageError("put guild settings", err)
}
