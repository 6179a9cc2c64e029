package services

import (
	"context"
	"strings"
	"time"

	"github.com/guildbank/backend/internal/audit"
	"github.com/guildbank/backend/internal/models"
	"github.com/guildbank/backend/internal/store"
)

// PlayRewarder credits the reward for playing on the game server.
type PlayRewarder interface {
	ClaimPlayReward(ctx context.Context, guildID, userID string) (*models.Transaction, error)
}

// LinkService manages the links between users and Minecraft players and
// gates the play reward on them.
type LinkService struct {
	links   store.LinkStore
	rewards PlayRewarder
	timeout time.Duration
	audit   audit.Logger
}

func NewLinkService(links store.LinkStore, rewards PlayRewarder, timeout time.Duration, auditLogger audit.Logger) *LinkService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &LinkService{links: links, rewards: rewards, timeout: timeout, audit: auditLogger}
}

// Link ties the user to playerName. A user must unlink before linking a
// different player.
func (l *LinkService) Link(ctx context.Context, guildID, userID, playerName string) (*models.GameLink, error) {
	if _, err := accountKey(guildID, userID); err != nil {
		return nil, err
	}
	playerName = strings.TrimSpace(playerName)
	if !models.ValidPlayerName(playerName) {
		return nil, models.ErrMalformedRequest
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	link := &models.GameLink{GuildID: guildID, UserID: userID, PlayerName: playerName}
	if err := l.links.CreateLink(ctx, link); err != nil {
		return nil, err
	}

	l.audit.LogOperation("", guildID, userID, "LINK", 0)
	return link, nil
}

// Unlink removes the user's link and returns what was removed.
func (l *LinkService) Unlink(ctx context.Context, guildID, userID string) (*models.GameLink, error) {
	if _, err := accountKey(guildID, userID); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	link, err := l.links.DeleteLink(ctx, guildID, userID)
	if err != nil {
		return nil, err
	}

	l.audit.LogOperation("", guildID, userID, "UNLINK", 0)
	return link, nil
}

// Resolve returns the user's link or models.ErrAccountNotLinked.
func (l *LinkService) Resolve(ctx context.Context, guildID, userID string) (*models.GameLink, error) {
	if _, err := accountKey(guildID, userID); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	link, err := l.links.LinkByUser(ctx, guildID, userID)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, models.ErrAccountNotLinked
	}
	return link, nil
}

// ResolvePlayer returns the link holding playerName or
// models.ErrAccountNotLinked.
func (l *LinkService) ResolvePlayer(ctx context.Context, guildID, playerName string) (*models.GameLink, error) {
	if strings.TrimSpace(playerName) == "" {
		return nil, models.ErrMalformedRequest
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	link, err := l.links.LinkByPlayer(ctx, guildID, playerName)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, models.ErrAccountNotLinked
	}
	return link, nil
}

// ClaimPlayReward credits the play reward to the user linked to playerName.
// Unlinked players get models.ErrAccountNotLinked and nothing is credited.
func (l *LinkService) ClaimPlayReward(ctx context.Context, guildID, playerName string) (*models.GameLink, *models.Transaction, error) {
	link, err := l.ResolvePlayer(ctx, guildID, playerName)
	if err != nil {
		return nil, nil, err
	}

	tr, err := l.rewards.ClaimPlayReward(ctx, guildID, link.UserID)
	if err != nil {
		return link, nil, err
	}
	return link, tr, nil
}
