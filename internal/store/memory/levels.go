package memory

import (
	"context"
	"sort"

	"github.com/guildbank/backend/internal/models"
)

func (s *Store) ListLevels(ctx context.Context, guildID string) ([]models.ServiceLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ServiceLevel, len(s.levels[guildID]))
	copy(out, s.levels[guildID])
	sort.Slice(out, func(i, j int) bool { return out[i].RequiredBalance < out[j].RequiredBalance })
	return out, nil
}

func (s *Store) AddLevel(ctx context.Context, level *models.ServiceLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.levels[level.GuildID] {
		if l.RequiredBalance == level.RequiredBalance {
			return models.ErrDuplicateLevelThreshold
		}
	}

	s.levelSeq++
	level.ID = s.levelSeq
	if level.CreatedAt.IsZero() {
		level.CreatedAt = s.now()
	}
	s.levels[level.GuildID] = append(s.levels[level.GuildID], *level)
	return nil
}

func (s *Store) EditLevel(ctx context.Context, guildID string, id int64, patch models.LevelPatch) (*models.ServiceLevel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	levels := s.levels[guildID]
	idx := -1
	for i, l := range levels {
		if l.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, models.ErrLevelNotFound
	}

	updated := levels[idx]
	patch.Apply(&updated)
	for i, l := range levels {
		if i != idx && l.RequiredBalance == updated.RequiredBalance {
			return nil, models.ErrDuplicateLevelThreshold
		}
	}

	levels[idx] = updated
	return &updated, nil
}

func (s *Store) RemoveLevel(ctx context.Context, guildID string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	levels := s.levels[guildID]
	for i, l := range levels {
		if l.ID == id {
			s.levels[guildID] = append(levels[:i:i], levels[i+1:]...)
			return nil
		}
	}
	return models.ErrLevelNotFound
}

func (s *Store) GetGuildSettings(ctx context.Context, guildID string) (*models.GuildSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	gs, ok := s.settings[guildID]
	if !ok {
		return nil, nil
	}
	return &gs, nil
}

func (s *Store) PutGuildSettings(ctx context.Context, settings *models.GuildSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings[settings.GuildID] = *settings
	return nil
}
