// Package sqlite implements store.Store on a single SQLite file through gorm.
// SQLite has no row locks, so Atomic units are serialized in-process; the
// backend is meant for single-node deployments.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/guildbank/backend/internal/models"
	"github.com/guildbank/backend/internal/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type accountRow struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	GuildID   string `gorm:"not null;default:'';uniqueIndex:idx_account_owner"`
	UserID    string `gorm:"not null;uniqueIndex:idx_account_owner"`
	Balance   int64  `gorm:"not null;check:balance >= 0"`
	Version   int    `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (accountRow) TableName() string { return "accounts" }

func (r accountRow) toModel() *models.Account {
	return &models.Account{
		GuildID:    r.GuildID,
		UserID:     r.UserID,
		Balance:    r.Balance,
		Version:    r.Version,
		CreatedSeq: r.ID,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

type transactionRow struct {
	ID              string  `gorm:"primaryKey;size:36"`
	GuildID         string  `gorm:"not null;default:'';index:idx_tx_recipient"`
	FromUserID      *string `gorm:"index"`
	ToUserID        string  `gorm:"not null;index:idx_tx_recipient"`
	Amount          int64   `gorm:"not null"`
	TransactionType string  `gorm:"not null;index:idx_tx_recipient"`
	BalanceAfter    int64   `gorm:"not null"`
	CreatedAt       time.Time
}

func (transactionRow) TableName() string { return "transactions" }

func (r transactionRow) toModel() models.Transaction {
	return models.Transaction{
		ID:           r.ID,
		GuildID:      r.GuildID,
		FromUserID:   r.FromUserID,
		ToUserID:     r.ToUserID,
		Amount:       r.Amount,
		Type:         models.TransactionType(r.TransactionType),
		BalanceAfter: r.BalanceAfter,
		CreatedAt:    r.CreatedAt,
	}
}

type levelRow struct {
	ID              int64           `gorm:"primaryKey;autoIncrement"`
	GuildID         string          `gorm:"not null;default:'';uniqueIndex:idx_level_threshold"`
	Name            string          `gorm:"not null"`
	Emoji           string          `gorm:"not null;default:''"`
	RequiredBalance int64           `gorm:"not null;uniqueIndex:idx_level_threshold;check:required_balance >= 0"`
	Color           int             `gorm:"not null;default:0"`
	Benefits        models.Benefits `gorm:"type:text"`
	CreatedAt       time.Time
}

func (levelRow) TableName() string { return "service_levels" }

func (r levelRow) toModel() models.ServiceLevel {
	return models.ServiceLevel{
		ID:              r.ID,
		GuildID:         r.GuildID,
		Name:            r.Name,
		Emoji:           r.Emoji,
		RequiredBalance: r.RequiredBalance,
		Color:           r.Color,
		Benefits:        r.Benefits,
		CreatedAt:       r.CreatedAt,
	}
}

type settingsRow struct {
	GuildID        string `gorm:"primaryKey"`
	CurrencyName   string
	CurrencySymbol string
	Format         string
}

func (settingsRow) TableName() string { return "guild_settings" }

type linkRow struct {
	GuildID    string `gorm:"primaryKey;default:'';uniqueIndex:idx_link_player"`
	UserID     string `gorm:"primaryKey"`
	PlayerName string `gorm:"not null"`
	PlayerKey  string `gorm:"not null;uniqueIndex:idx_link_player"`
	LinkedAt   time.Time
}

func (linkRow) TableName() string { return "game_links" }

func (r linkRow) toModel() *models.GameLink {
	return &models.GameLink{
		GuildID:    r.GuildID,
		UserID:     r.UserID,
		PlayerName: r.PlayerName,
		LinkedAt:   r.LinkedAt,
	}
}

// Models lists every table the backend owns, for AutoMigrate.
func Models() []any {
	return []any{&accountRow{}, &transactionRow{}, &levelRow{}, &settingsRow{}, &linkRow{}}
}

type Store struct {
	db *gorm.DB
	mu sync.Mutex
}

var _ store.Store = (*Store)(nil)

// New migrates the schema and returns the store.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Atomic(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fnErr error
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(&gormTx{db: tx})
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	return models.StorageError("sqlite atomic", err)
}

func (s *Store) TopAccounts(ctx context.Context, guildID string, limit int) ([]models.Account, error) {
	var rows []accountRow
	err := s.db.WithContext(ctx).
		Where("guild_id = ?", guildID).
		Order("balance DESC").Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, models.StorageError("top accounts", err)
	}

	out := make([]models.Account, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r.toModel())
	}
	return out, nil
}

func (s *Store) History(ctx context.Context, key models.AccountKey, limit int) ([]models.Transaction, error) {
	var rows []transactionRow
	err := s.db.WithContext(ctx).
		Where("guild_id = ? AND (to_user_id = ? OR from_user_id = ?)", key.GuildID, key.UserID, key.UserID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, models.StorageError("history", err)
	}

	out := make([]models.Transaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *Store) SupplyByGuild(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		GuildID string
		Total   int64
	}
	err := s.db.WithContext(ctx).Model(&accountRow{}).
		Select("guild_id, COALESCE(SUM(balance), 0) AS total").
		Group("guild_id").
		Scan(&rows).Error
	if err != nil {
		return nil, models.StorageError("supply", err)
	}

	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.GuildID] = r.Total
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return models.StorageError("ping", err)
	}
	return models.StorageError("ping", sqlDB.PingContext(ctx))
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) LockAccount(ctx context.Context, key models.AccountKey, defaultBalance int64) (*models.Account, error) {
	row := accountRow{GuildID: key.GuildID, UserID: key.UserID, Balance: defaultBalance}
	if err := t.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return nil, models.StorageError("create account", err)
	}

	var current accountRow
	if err := t.db.Where("guild_id = ? AND user_id = ?", key.GuildID, key.UserID).First(&current).Error; err != nil {
		return nil, models.StorageError("lock account", err)
	}
	return current.toModel(), nil
}

func (t *gormTx) UpdateBalance(ctx context.Context, account *models.Account, balance int64) error {
	now := time.Now()
	result := t.db.Model(&accountRow{}).
		Where("guild_id = ? AND user_id = ? AND version = ?", account.GuildID, account.UserID, account.Version).
		Updates(map[string]any{
			"balance":    balance,
			"version":    gorm.Expr("version + 1"),
			"updated_at": now,
		})
	if result.Error != nil {
		return models.StorageError("update balance", result.Error)
	}
	if result.RowsAffected == 0 {
		key := models.AccountKey{GuildID: account.GuildID, UserID: account.UserID}
		return models.StorageError("update balance", fmt.Errorf("optimistic lock failed for account %s", key))
	}

	account.Balance = balance
	account.Version++
	account.UpdatedAt = now
	return nil
}

func (t *gormTx) AppendTransaction(ctx context.Context, tr *models.Transaction) error {
	if tr.CreatedAt.IsZero() {
		tr.CreatedAt = time.Now()
	}
	row := transactionRow{
		ID:              tr.ID,
		GuildID:         tr.GuildID,
		FromUserID:      tr.FromUserID,
		ToUserID:        tr.ToUserID,
		Amount:          tr.Amount,
		TransactionType: string(tr.Type),
		BalanceAfter:    tr.BalanceAfter,
		CreatedAt:       tr.CreatedAt,
	}
	return models.StorageError("append transaction", t.db.Create(&row).Error)
}

func (t *gormTx) LastTransaction(ctx context.Context, key models.AccountKey, typ models.TransactionType) (*models.Transaction, error) {
	var row transactionRow
	err := t.db.
		Where("guild_id = ? AND to_user_id = ? AND transaction_type = ?", key.GuildID, key.UserID, string(typ)).
		Order("created_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, models.StorageError("last transaction", err)
	}
	tr := row.toModel()
	return &tr, nil
}
