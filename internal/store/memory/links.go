package memory

import (
	"context"

	"github.com/guildbank/backend/internal/models"
)

func (s *Store) CreateLink(ctx context.Context, link *models.GameLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	guild := s.links[link.GuildID]
	if _, ok := guild[link.UserID]; ok {
		return models.ErrAccountAlreadyLinked
	}
	key := models.PlayerKey(link.PlayerName)
	for _, l := range guild {
		if models.PlayerKey(l.PlayerName) == key {
			return models.ErrGameNameTaken
		}
	}

	if guild == nil {
		guild = make(map[string]models.GameLink)
		s.links[link.GuildID] = guild
	}
	if link.LinkedAt.IsZero() {
		link.LinkedAt = s.now()
	}
	guild[link.UserID] = *link
	return nil
}

func (s *Store) DeleteLink(ctx context.Context, guildID, userID string) (*models.GameLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[guildID][userID]
	if !ok {
		return nil, models.ErrAccountNotLinked
	}
	delete(s.links[guildID], userID)
	return &link, nil
}

func (s *Store) LinkByUser(ctx context.Context, guildID, userID string) (*models.GameLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	link, ok := s.links[guildID][userID]
	if !ok {
		return nil, nil
	}
	return &link, nil
}

func (s *Store) LinkByPlayer(ctx context.Context, guildID, playerName string) (*models.GameLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := models.PlayerKey(playerName)
	for _, l := range s.links[guildID] {
		if models.PlayerKey(l.PlayerName) == key {
			link := l
			return &link, nil
		}
	}
	return nil, nil
}
