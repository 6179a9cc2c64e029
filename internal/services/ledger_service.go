package services

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/guildbank/backend/internal/audit"
	"github.com/guildbank/backend/internal/config"
	"github.com/guildbank/backend/internal/metrics"
	"github.com/guildbank/backend/internal/models"
	"github.com/guildbank/backend/internal/store"
	"github.com/sirupsen/logrus"
)

// LedgerService is the only writer of account balances. Every mutation runs
// inside one store.Atomic unit and appends exactly one Transaction.
type LedgerService struct {
	store   store.Store
	cfg     config.LedgerConfig
	timeout time.Duration
	audit   audit.Logger
	log     *logrus.Logger
	now     func() time.Time
}

func NewLedgerService(st store.Store, cfg config.LedgerConfig, timeout time.Duration, auditLogger audit.Logger, log *logrus.Logger) *LedgerService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &LedgerService{
		store:   st,
		cfg:     cfg,
		timeout: timeout,
		audit:   auditLogger,
		log:     log,
		now:     time.Now,
	}
}

// DefaultBalance is the balance new accounts start with.
func (s *LedgerService) DefaultBalance() int64 {
	return s.cfg.DefaultBalance
}

// GetBalance returns the user's balance, creating the account at the default
// balance on first access.
func (s *LedgerService) GetBalance(ctx context.Context, guildID, userID string) (int64, error) {
	key, err := accountKey(guildID, userID)
	if err != nil {
		return 0, err
	}

	var balance int64
	err = s.run(ctx, "get_balance", key, 0, func(tx store.Tx) error {
		acc, err := tx.LockAccount(ctx, key, s.cfg.DefaultBalance)
		if err != nil {
			return err
		}
		balance = acc.Balance
		return nil
	})
	return balance, err
}

// SetBalance overwrites the balance and records the delta as admin_set.
func (s *LedgerService) SetBalance(ctx context.Context, guildID, userID string, amount int64) (*models.Transaction, error) {
	if amount < 0 {
		s.observe("admin_set", models.AccountKey{GuildID: guildID, UserID: userID}, amount, models.ErrInvalidAmount)
		return nil, models.ErrInvalidAmount
	}
	key, err := accountKey(guildID, userID)
	if err != nil {
		return nil, err
	}

	var record *models.Transaction
	err = s.run(ctx, "admin_set", key, amount, func(tx store.Tx) error {
		acc, err := tx.LockAccount(ctx, key, s.cfg.DefaultBalance)
		if err != nil {
			return err
		}
		old := acc.Balance
		if err := tx.UpdateBalance(ctx, acc, amount); err != nil {
			return err
		}
		record = s.newTransaction(key, nil, amount-old, models.TransactionAdminSet, amount)
		return tx.AppendTransaction(ctx, record)
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogOperation(record.ID, guildID, userID, "ADMIN_SET", record.Amount)
	return record, nil
}

// ResetBalance sets the balance back to the configured default.
func (s *LedgerService) ResetBalance(ctx context.Context, guildID, userID string) (*models.Transaction, error) {
	return s.SetBalance(ctx, guildID, userID, s.cfg.DefaultBalance)
}

// Credit adds amount to the user's balance.
func (s *LedgerService) Credit(ctx context.Context, guildID, userID string, amount int64) (*models.Transaction, error) {
	return s.credit(ctx, "credit", models.TransactionCredit, guildID, userID, amount)
}

// Reward mints amount for the user as an administrative grant.
func (s *LedgerService) Reward(ctx context.Context, guildID, userID string, amount int64) (*models.Transaction, error) {
	return s.credit(ctx, "admin_reward", models.TransactionAdminReward, guildID, userID, amount)
}

func (s *LedgerService) credit(ctx context.Context, op string, typ models.TransactionType, guildID, userID string, amount int64) (*models.Transaction, error) {
	if amount <= 0 {
		s.observe(op, models.AccountKey{GuildID: guildID, UserID: userID}, amount, models.ErrInvalidAmount)
		return nil, models.ErrInvalidAmount
	}
	key, err := accountKey(guildID, userID)
	if err != nil {
		return nil, err
	}

	var record *models.Transaction
	err = s.run(ctx, op, key, amount, func(tx store.Tx) error {
		acc, err := tx.LockAccount(ctx, key, s.cfg.DefaultBalance)
		if err != nil {
			return err
		}
		balance, err := addBalance(acc.Balance, amount)
		if err != nil {
			return err
		}
		if err := tx.UpdateBalance(ctx, acc, balance); err != nil {
			return err
		}
		record = s.newTransaction(key, nil, amount, typ, acc.Balance)
		return tx.AppendTransaction(ctx, record)
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogOperation(record.ID, guildID, userID, strings.ToUpper(op), amount)
	return record, nil
}

// Debit removes amount from the user's balance. Nothing is removed when the
// balance is short.
func (s *LedgerService) Debit(ctx context.Context, guildID, userID string, amount int64) (*models.Transaction, error) {
	if amount <= 0 {
		s.observe("debit", models.AccountKey{GuildID: guildID, UserID: userID}, amount, models.ErrInvalidAmount)
		return nil, models.ErrInvalidAmount
	}
	key, err := accountKey(guildID, userID)
	if err != nil {
		return nil, err
	}

	var record *models.Transaction
	err = s.run(ctx, "debit", key, amount, func(tx store.Tx) error {
		acc, err := tx.LockAccount(ctx, key, s.cfg.DefaultBalance)
		if err != nil {
			return err
		}
		if acc.Balance < amount {
			return models.ErrInsufficientFunds
		}
		if err := tx.UpdateBalance(ctx, acc, acc.Balance-amount); err != nil {
			return err
		}
		from := userID
		record = s.newTransaction(key, &from, amount, models.TransactionDebit, acc.Balance)
		return tx.AppendTransaction(ctx, record)
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogOperation(record.ID, guildID, userID, "DEBIT", amount)
	return record, nil
}

// Transfer moves amount between two accounts of the same guild as a single
// unit. The recipient is created at the default balance if needed.
func (s *LedgerService) Transfer(ctx context.Context, guildID, fromUserID, toUserID string, amount int64) (*models.TransferResult, error) {
	fromKey := models.AccountKey{GuildID: guildID, UserID: fromUserID}
	if amount <= 0 {
		s.observe("transfer", fromKey, amount, models.ErrInvalidAmount)
		return nil, models.ErrInvalidAmount
	}
	if _, err := accountKey(guildID, fromUserID); err != nil {
		return nil, err
	}
	toKey, err := accountKey(guildID, toUserID)
	if err != nil {
		return nil, err
	}
	if fromUserID == toUserID {
		s.observe("transfer", fromKey, amount, models.ErrSelfTransfer)
		return nil, models.ErrSelfTransfer
	}

	var result models.TransferResult
	err = s.run(ctx, "transfer", fromKey, amount, func(tx store.Tx) error {
		// Lock accounts in consistent order to prevent deadlocks
		first, second := fromKey, toKey
		if toKey.Less(fromKey) {
			first, second = toKey, fromKey
		}

		firstAcc, err := tx.LockAccount(ctx, first, s.cfg.DefaultBalance)
		if err != nil {
			return err
		}
		secondAcc, err := tx.LockAccount(ctx, second, s.cfg.DefaultBalance)
		if err != nil {
			return err
		}

		fromAcc, toAcc := firstAcc, secondAcc
		if first != fromKey {
			fromAcc, toAcc = secondAcc, firstAcc
		}

		if fromAcc.Balance < amount {
			return models.ErrInsufficientFunds
		}
		toBalance, err := addBalance(toAcc.Balance, amount)
		if err != nil {
			return err
		}

		if err := tx.UpdateBalance(ctx, fromAcc, fromAcc.Balance-amount); err != nil {
			return err
		}
		if err := tx.UpdateBalance(ctx, toAcc, toBalance); err != nil {
			return err
		}

		from := fromUserID
		record := s.newTransaction(toKey, &from, amount, models.TransactionTransfer, toAcc.Balance)
		if err := tx.AppendTransaction(ctx, record); err != nil {
			return err
		}

		result = models.TransferResult{
			Transaction: record,
			FromBalance: fromAcc.Balance,
			ToBalance:   toAcc.Balance,
		}
		return nil
	})
	if err != nil {
		if !models.IsBusinessError(err) {
			s.audit.LogTransfer("", guildID, fromUserID, toUserID, amount, "FAILED")
		}
		return nil, err
	}

	s.audit.LogTransfer(result.Transaction.ID, guildID, fromUserID, toUserID, amount, "SUCCESS")
	return &result, nil
}

// ClaimDaily credits the daily reward unless the user already claimed one
// within the cooldown, in which case a *models.CooldownError is returned.
func (s *LedgerService) ClaimDaily(ctx context.Context, guildID, userID string) (*models.Transaction, error) {
	return s.claim(ctx, "daily", models.TransactionDaily, guildID, userID, s.cfg.DailyAmount, s.cfg.DailyCooldown, models.ErrDailyAlreadyClaimed)
}

// ClaimPlayReward credits the reward for playing on the linked game server,
// at most once per play cooldown. Callers check the account link first.
func (s *LedgerService) ClaimPlayReward(ctx context.Context, guildID, userID string) (*models.Transaction, error) {
	return s.claim(ctx, "play_reward", models.TransactionPlayReward, guildID, userID, s.cfg.PlayReward, s.cfg.PlayCooldown, models.ErrRewardAlreadyClaimed)
}

func (s *LedgerService) claim(ctx context.Context, op string, typ models.TransactionType, guildID, userID string, amount int64, cooldown time.Duration, claimed error) (*models.Transaction, error) {
	key, err := accountKey(guildID, userID)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		s.observe(op, key, amount, models.ErrInvalidAmount)
		return nil, models.ErrInvalidAmount
	}

	var record *models.Transaction
	err = s.run(ctx, op, key, amount, func(tx store.Tx) error {
		acc, err := tx.LockAccount(ctx, key, s.cfg.DefaultBalance)
		if err != nil {
			return err
		}

		now := s.now()
		last, err := tx.LastTransaction(ctx, key, typ)
		if err != nil {
			return err
		}
		if last != nil {
			if wait := last.CreatedAt.Add(cooldown).Sub(now); wait > 0 {
				return &models.CooldownError{Remaining: wait, Cause: claimed}
			}
		}

		balance, err := addBalance(acc.Balance, amount)
		if err != nil {
			return err
		}
		if err := tx.UpdateBalance(ctx, acc, balance); err != nil {
			return err
		}
		record = s.newTransaction(key, nil, amount, typ, acc.Balance)
		record.CreatedAt = now
		return tx.AppendTransaction(ctx, record)
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogOperation(record.ID, guildID, userID, strings.ToUpper(op), amount)
	return record, nil
}

// Top returns the richest accounts of the guild. limit <= 0 uses the
// configured default.
func (s *LedgerService) Top(ctx context.Context, guildID string, limit int) ([]models.Account, error) {
	if limit <= 0 {
		limit = s.cfg.TopLimit
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	accounts, err := s.store.TopAccounts(ctx, guildID, limit)
	s.observe("top", models.AccountKey{GuildID: guildID}, 0, err)
	return accounts, err
}

// History returns the newest transactions involving the user.
func (s *LedgerService) History(ctx context.Context, guildID, userID string, limit int) ([]models.Transaction, error) {
	key, err := accountKey(guildID, userID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	history, err := s.store.History(ctx, key, limit)
	s.observe("history", key, 0, err)
	return history, err
}

func (s *LedgerService) run(ctx context.Context, op string, key models.AccountKey, amount int64, fn func(tx store.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.store.Atomic(ctx, fn)
	s.observe(op, key, amount, err)
	return err
}

func (s *LedgerService) observe(op string, key models.AccountKey, amount int64, err error) {
	if err == nil {
		metrics.RecordLedgerOperation(op, "ok", amount)
		return
	}

	metrics.RecordLedgerOperation(op, models.ErrorCode(err), amount)
	entry := s.log.WithFields(logrus.Fields{
		"op":       op,
		"guild_id": key.GuildID,
		"user_id":  key.UserID,
		"amount":   amount,
	}).WithError(err)

	if models.IsBusinessError(err) {
		entry.Debug("ledger operation rejected")
		return
	}
	entry.Error("ledger operation failed")
	s.audit.LogError(key.GuildID, key.UserID, op, err)
}

func (s *LedgerService) newTransaction(to models.AccountKey, from *string, amount int64, typ models.TransactionType, balanceAfter int64) *models.Transaction {
	return &models.Transaction{
		ID:           uuid.NewString(),
		GuildID:      to.GuildID,
		FromUserID:   from,
		ToUserID:     to.UserID,
		Amount:       amount,
		Type:         typ,
		BalanceAfter: balanceAfter,
		CreatedAt:    s.now(),
	}
}

// addBalance rejects credits that would overflow the balance.
func addBalance(balance, amount int64) (int64, error) {
	if amount > math.MaxInt64-balance {
		return 0, models.ErrInvalidAmount
	}
	return balance + amount, nil
}

func accountKey(guildID, userID string) (models.AccountKey, error) {
	if strings.TrimSpace(userID) == "" {
		return models.AccountKey{}, models.ErrMalformedRequest
	}
	return models.AccountKey{GuildID: guildID, UserID: userID}, nil
}
