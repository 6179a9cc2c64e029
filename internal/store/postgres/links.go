package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/guildbank/backend/internal/models"
	"github.com/lib/pq"
)

const linkUserConstraint = "game_links_pkey"

func (s *Store) CreateLink(ctx context.Context, link *models.GameLink) error {
	if link.LinkedAt.IsZero() {
		link.LinkedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO game_links (guild_id, user_id, player_name, player_key, linked_at)
		VALUES ($1, $2, $3, $4, $5)`,
		link.GuildID, link.UserID, link.PlayerName, models.PlayerKey(link.PlayerName), link.LinkedAt)
	if isUniqueViolation(err) {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Constraint == linkUserConstraint {
			return models.ErrAccountAlreadyLinked
		}
		return models.ErrGameNameTaken
	}
	return models.StorageError("create link", err)
}

func (s *Store) DeleteLink(ctx context.Context, guildID, userID string) (*models.GameLink, error) {
	link := models.GameLink{GuildID: guildID, UserID: userID}
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM game_links
		WHERE guild_id = $1 AND user_id = $2
		RETURNING player_name, linked_at`, guildID, userID).Scan(&link.PlayerName, &link.LinkedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrAccountNotLinked
	}
	if err != nil {
		return nil, models.StorageError("delete link", err)
	}
	return &link, nil
}

func (s *Store) LinkByUser(ctx context.Context, guildID, userID string) (*models.GameLink, error) {
	return s.findLink(ctx, "link by user", `
		SELECT guild_id, user_id, player_name, linked_at
		FROM game_links
		WHERE guild_id = $1 AND user_id = $2`, guildID, userID)
}

func (s *Store) LinkByPlayer(ctx context.Context, guildID, playerName string) (*models.GameLink, error) {
	return s.findLink(ctx, "link by player", `
		SELECT guild_id, user_id, player_name, linked_at
		FROM game_links
		WHERE guild_id = $1 AND player_key = $2`, guildID, models.PlayerKey(playerName))
}

func (s *Store) findLink(ctx context.Context, op, query string, args ...any) (*models.GameLink, error) {
	var link models.GameLink
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&link.GuildID, &link.UserID, &link.PlayerName, &link.LinkedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, models.StorageError(op, err)
	}
	return &link, nil
}
