package services

import (
	"context"
	"strings"
	"time"

	"github.com/guildbank/backend/internal/audit"
	"github.com/guildbank/backend/internal/models"
	"github.com/guildbank/backend/internal/store"
)

// ResolveTier returns the level with the greatest RequiredBalance not above
// balance, or nil. levels need not be sorted.
func ResolveTier(levels []models.ServiceLevel, balance int64) *models.ServiceLevel {
	var best *models.ServiceLevel
	for i := range levels {
		l := &levels[i]
		if l.RequiredBalance > balance {
			continue
		}
		if best == nil || l.RequiredBalance > best.RequiredBalance {
			best = l
		}
	}
	return best
}

// NextTier returns the lowest level strictly above balance and the amount
// still missing to reach it, or nil when there is none.
func NextTier(levels []models.ServiceLevel, balance int64) (*models.ServiceLevel, int64) {
	var next *models.ServiceLevel
	for i := range levels {
		l := &levels[i]
		if l.RequiredBalance <= balance {
			continue
		}
		if next == nil || l.RequiredBalance < next.RequiredBalance {
			next = l
		}
	}
	if next == nil {
		return nil, 0
	}
	return next, next.RequiredBalance - balance
}

// LevelInput is the payload for creating a level.
type LevelInput struct {
	Name            string   `json:"name" validate:"required,min=1,max=100"`
	Emoji           string   `json:"emoji" validate:"max=64"`
	RequiredBalance int64    `json:"required_balance" validate:"gte=0"`
	Color           string   `json:"color" validate:"omitempty"` // #RRGGBB
	Benefits        []string `json:"benefits"`
}

// TierStanding is a balance placed on the guild's level ladder.
type TierStanding struct {
	Balance   int64                `json:"balance"`
	Current   *models.ServiceLevel `json:"current"`
	Next      *models.ServiceLevel `json:"next"`
	Remaining int64                `json:"remaining"`
}

// TierService reads and administers the guild tier registry. It never caches
// levels, so edits are visible to the next resolution.
type TierService struct {
	registry store.TierRegistry
	timeout  time.Duration
	audit    audit.Logger
}

func NewTierService(registry store.TierRegistry, timeout time.Duration, auditLogger audit.Logger) *TierService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &TierService{registry: registry, timeout: timeout, audit: auditLogger}
}

func (t *TierService) ListLevels(ctx context.Context, guildID string) ([]models.ServiceLevel, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.registry.ListLevels(ctx, guildID)
}

func (t *TierService) ResolveTier(ctx context.Context, guildID string, balance int64) (*models.ServiceLevel, error) {
	levels, err := t.ListLevels(ctx, guildID)
	if err != nil {
		return nil, err
	}
	return ResolveTier(levels, balance), nil
}

func (t *TierService) NextTier(ctx context.Context, guildID string, balance int64) (*models.ServiceLevel, int64, error) {
	levels, err := t.ListLevels(ctx, guildID)
	if err != nil {
		return nil, 0, err
	}
	next, remaining := NextTier(levels, balance)
	return next, remaining, nil
}

// Standing resolves current and next tier from a single registry read.
func (t *TierService) Standing(ctx context.Context, guildID string, balance int64) (*TierStanding, error) {
	levels, err := t.ListLevels(ctx, guildID)
	if err != nil {
		return nil, err
	}
	next, remaining := NextTier(levels, balance)
	return &TierStanding{
		Balance:   balance,
		Current:   ResolveTier(levels, balance),
		Next:      next,
		Remaining: remaining,
	}, nil
}

func (t *TierService) AddLevel(ctx context.Context, guildID string, in LevelInput) (*models.ServiceLevel, error) {
	if in.RequiredBalance < 0 {
		return nil, models.ErrInvalidAmount
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, models.ErrMalformedRequest
	}

	level := &models.ServiceLevel{
		GuildID:         guildID,
		Name:            name,
		Emoji:           strings.TrimSpace(in.Emoji),
		RequiredBalance: in.RequiredBalance,
		Benefits:        models.NormalizeBenefits(in.Benefits),
	}
	if in.Color != "" {
		color, err := models.ParseColor(in.Color)
		if err != nil {
			return nil, models.ErrMalformedRequest
		}
		level.Color = color
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	if err := t.registry.AddLevel(ctx, level); err != nil {
		return nil, err
	}

	t.audit.LogOperation("", guildID, "", "LEVEL_ADD", level.RequiredBalance)
	return level, nil
}

func (t *TierService) EditLevel(ctx context.Context, guildID string, id int64, patch models.LevelPatch) (*models.ServiceLevel, error) {
	if patch.RequiredBalance != nil && *patch.RequiredBalance < 0 {
		return nil, models.ErrInvalidAmount
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, models.ErrMalformedRequest
		}
		patch.Name = &name
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	level, err := t.registry.EditLevel(ctx, guildID, id, patch)
	if err != nil {
		return nil, err
	}

	t.audit.LogOperation("", guildID, "", "LEVEL_EDIT", level.RequiredBalance)
	return level, nil
}

func (t *TierService) RemoveLevel(ctx context.Context, guildID string, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	if err := t.registry.RemoveLevel(ctx, guildID, id); err != nil {
		return err
	}

	t.audit.LogOperation("", guildID, "", "LEVEL_REMOVE", 0)
	return nil
}
