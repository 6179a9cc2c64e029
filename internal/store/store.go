// Package store defines the persistence contract behind the ledger: the
// account balances, the append-only transaction log, the per-guild tier
// registry, guild settings and game account links.
package store

import (
	"context"

	"github.com/guildbank/backend/internal/models"
)

// Store is the durable source of truth for the ledger.
type Store interface {
	// Atomic runs fn as one serializable unit of work. Every change made
	// through tx is applied only if fn returns nil; otherwise none is.
	Atomic(ctx context.Context, fn func(tx Tx) error) error

	// TopAccounts returns the guild's accounts ordered by balance descending,
	// ties broken by creation order.
	TopAccounts(ctx context.Context, guildID string, limit int) ([]models.Account, error)
	// History returns the newest transactions sent or received by key.
	History(ctx context.Context, key models.AccountKey, limit int) ([]models.Transaction, error)
	// SupplyByGuild sums balances per guild.
	SupplyByGuild(ctx context.Context) (map[string]int64, error)

	TierRegistry
	SettingsStore
	LinkStore

	Ping(ctx context.Context) error
	Close() error
}

// Tx is the view of the store inside an Atomic unit.
type Tx interface {
	// LockAccount returns the account and holds it for the rest of the unit,
	// creating it with defaultBalance when it does not exist yet.
	LockAccount(ctx context.Context, key models.AccountKey, defaultBalance int64) (*models.Account, error)
	// UpdateBalance writes a new balance for an account obtained from
	// LockAccount and bumps its version.
	UpdateBalance(ctx context.Context, account *models.Account, balance int64) error
	// AppendTransaction records t in the transaction log.
	AppendTransaction(ctx context.Context, t *models.Transaction) error
	// LastTransaction returns the newest transaction of type typ credited to
	// key, or nil when there is none.
	LastTransaction(ctx context.Context, key models.AccountKey, typ models.TransactionType) (*models.Transaction, error)
}

// TierRegistry stores the per-guild service levels.
type TierRegistry interface {
	// ListLevels returns the guild's levels ordered by RequiredBalance ascending.
	ListLevels(ctx context.Context, guildID string) ([]models.ServiceLevel, error)
	// AddLevel inserts level and assigns its ID. It fails with
	// models.ErrDuplicateLevelThreshold when the guild already has a level at
	// the same RequiredBalance.
	AddLevel(ctx context.Context, level *models.ServiceLevel) error
	// EditLevel applies patch to the level. Fails with models.ErrLevelNotFound
	// or models.ErrDuplicateLevelThreshold.
	EditLevel(ctx context.Context, guildID string, id int64, patch models.LevelPatch) (*models.ServiceLevel, error)
	// RemoveLevel deletes the level or fails with models.ErrLevelNotFound.
	RemoveLevel(ctx context.Context, guildID string, id int64) error
}

// SettingsStore keeps the per-guild display settings.
type SettingsStore interface {
	// GetGuildSettings returns nil when the guild has no stored settings.
	GetGuildSettings(ctx context.Context, guildID string) (*models.GuildSettings, error)
	PutGuildSettings(ctx context.Context, settings *models.GuildSettings) error
}

// LinkStore keeps the per-guild links between users and game accounts.
type LinkStore interface {
	// CreateLink stores link and sets LinkedAt. It fails with
	// models.ErrAccountAlreadyLinked when the user already has a link and with
	// models.ErrGameNameTaken when another user holds the player name.
	CreateLink(ctx context.Context, link *models.GameLink) error
	// DeleteLink removes the user's link and returns it, or fails with
	// models.ErrAccountNotLinked.
	DeleteLink(ctx context.Context, guildID, userID string) (*models.GameLink, error)
	// LinkByUser returns nil when the user has no link.
	LinkByUser(ctx context.Context, guildID, userID string) (*models.GameLink, error)
	// LinkByPlayer matches the player name case-insensitively and returns nil
	// when nobody linked it.
	LinkByPlayer(ctx context.Context, guildID, playerName string) (*models.GameLink, error)
}
