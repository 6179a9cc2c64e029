package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/guildbank/backend/internal/models"
)

func (s *Store) ListLevels(ctx context.Context, guildID string) ([]models.ServiceLevel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, guild_id, name, emoji, required_balance, color, benefits, created_at
		FROM service_levels
		WHERE guild_id = $1
		ORDER BY required_balance ASC`, guildID)
	if err != nil {
		return nil, models.StorageError("list levels", err)
	}
	defer rows.Close()

	levels := make([]models.ServiceLevel, 0)
	for rows.Next() {
		var l models.ServiceLevel
		if err := rows.Scan(&l.ID, &l.GuildID, &l.Name, &l.Emoji, &l.RequiredBalance, &l.Color, &l.Benefits, &l.CreatedAt); err != nil {
			return nil, models.StorageError("list levels", err)
		}
		levels = append(levels, l)
	}
	if err := rows.Err(); err != nil {
		return nil, models.StorageError("list levels", err)
	}
	return levels, nil
}

func (s *Store) AddLevel(ctx context.Context, level *models.ServiceLevel) error {
	if level.CreatedAt.IsZero() {
		level.CreatedAt = s.now()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO service_levels (guild_id, name, emoji, required_balance, color, benefits, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		level.GuildID, level.Name, level.Emoji, level.RequiredBalance, level.Color, level.Benefits, level.CreatedAt).
		Scan(&level.ID)
	if isUniqueViolation(err) {
		return models.ErrDuplicateLevelThreshold
	}
	return models.StorageError("add level", err)
}

func (s *Store) EditLevel(ctx context.Context, guildID string, id int64, patch models.LevelPatch) (*models.ServiceLevel, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, models.StorageError("begin", err)
	}
	defer tx.Rollback()

	var l models.ServiceLevel
	err = tx.QueryRowContext(ctx, `
		SELECT id, guild_id, name, emoji, required_balance, color, benefits, created_at
		FROM service_levels
		WHERE guild_id = $1 AND id = $2
		FOR UPDATE`, guildID, id).
		Scan(&l.ID, &l.GuildID, &l.Name, &l.Emoji, &l.RequiredBalance, &l.Color, &l.Benefits, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrLevelNotFound
	}
	if err != nil {
		return nil, models.StorageError("edit level", err)
	}

	patch.Apply(&l)

	var clash bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM service_levels WHERE guild_id = $1 AND required_balance = $2 AND id <> $3)`,
		guildID, l.RequiredBalance, id).Scan(&clash); err != nil {
		return nil, models.StorageError("edit level", err)
	}
	if clash {
		return nil, models.ErrDuplicateLevelThreshold
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE service_levels
		SET name = $1, emoji = $2, required_balance = $3, color = $4, benefits = $5
		WHERE guild_id = $6 AND id = $7`,
		l.Name, l.Emoji, l.RequiredBalance, l.Color, l.Benefits, guildID, id)
	if isUniqueViolation(err) {
		return nil, models.ErrDuplicateLevelThreshold
	}
	if err != nil {
		return nil, models.StorageError("edit level", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, models.StorageError("commit", err)
	}
	return &l, nil
}

func (s *Store) RemoveLevel(ctx context.Context, guildID string, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM service_levels WHERE guild_id = $1 AND id = $2`, guildID, id)
	if err != nil {
		return models.StorageError("remove level", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return models.StorageError("remove level", err)
	}
	if n == 0 {
		return models.ErrLevelNotFound
	}
	return nil
}

func (s *Store) GetGuildSettings(ctx context.Context, guildID string) (*models.GuildSettings, error) {
	gs := models.GuildSettings{GuildID: guildID}
	err := s.db.QueryRowContext(ctx, `
		SELECT currency_name, currency_symbol, format
		FROM guild_settings
		WHERE guild_id = $1`, guildID).Scan(&gs.CurrencyName, &gs.CurrencySymbol, &gs.Format)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, models.StorageError("guild settings", err)
	}
	return &gs, nil
}

func (s *Store) PutGuildSettings(ctx context.Context, gs *models.GuildSettings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guild_settings (guild_id, currency_name, currency_symbol, format)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (guild_id) DO UPDATE
		SET currency_name = EXCLUDED.currency_name,
		    currency_symbol = EXCLUDED.currency_symbol,
		    format = EXCLUDED.format`,
		gs.GuildID, gs.CurrencyName, gs.CurrencySymbol, gs.Format)
	return models.StorageError("put guild settings", err)
}
