package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/guildbank/backend/internal/models"
	"gorm.io/gorm"
)

func (s *Store) CreateLink(ctx context.Context, link *models.GameLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := models.PlayerKey(link.PlayerName)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var held int64
		if err := tx.Model(&linkRow{}).
			Where("guild_id = ? AND user_id = ?", link.GuildID, link.UserID).
			Count(&held).Error; err != nil {
			return models.StorageError("create link", err)
		}
		if held > 0 {
			return models.ErrAccountAlreadyLinked
		}

		var taken int64
		if err := tx.Model(&linkRow{}).
			Where("guild_id = ? AND player_key = ?", link.GuildID, key).
			Count(&taken).Error; err != nil {
			return models.StorageError("create link", err)
		}
		if taken > 0 {
			return models.ErrGameNameTaken
		}

		if link.LinkedAt.IsZero() {
			link.LinkedAt = time.Now()
		}
		row := linkRow{
			GuildID:    link.GuildID,
			UserID:     link.UserID,
			PlayerName: link.PlayerName,
			PlayerKey:  key,
			LinkedAt:   link.LinkedAt,
		}
		return models.StorageError("create link", tx.Create(&row).Error)
	})
}

func (s *Store) DeleteLink(ctx context.Context, guildID, userID string) (*models.GameLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed *models.GameLink
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row linkRow
		err := tx.Where("guild_id = ? AND user_id = ?", guildID, userID).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ErrAccountNotLinked
		}
		if err != nil {
			return models.StorageError("delete link", err)
		}
		if err := tx.Where("guild_id = ? AND user_id = ?", guildID, userID).Delete(&linkRow{}).Error; err != nil {
			return models.StorageError("delete link", err)
		}
		removed = row.toModel()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (s *Store) LinkByUser(ctx context.Context, guildID, userID string) (*models.GameLink, error) {
	return s.findLink(ctx, "link by user", "guild_id = ? AND user_id = ?", guildID, userID)
}

func (s *Store) LinkByPlayer(ctx context.Context, guildID, playerName string) (*models.GameLink, error) {
	return s.findLink(ctx, "link by player", "guild_id = ? AND player_key = ?", guildID, models.PlayerKey(playerName))
}

func (s *Store) findLink(ctx context.Context, op, where string, args ...any) (*models.GameLink, error) {
	var row linkRow
	err := s.db.WithContext(ctx).Where(where, args...).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, models.StorageError(op, err)
	}
	return row.toModel(), nil
}
