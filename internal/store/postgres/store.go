// Package postgres implements store.Store on PostgreSQL through database/sql
// and lib/pq. Accounts are locked with SELECT ... FOR UPDATE and updated with
// an optimistic version check.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/guildbank/backend/internal/models"
	"github.com/guildbank/backend/internal/store"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Atomic(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.StorageError("begin", err)
	}
	defer tx.Rollback()

	if err := fn(&pgTx{tx: tx, now: s.now}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return models.StorageError("commit", err)
	}
	return nil
}

func (s *Store) TopAccounts(ctx context.Context, guildID string, limit int) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT guild_id, user_id, balance, version, created_seq, created_at, updated_at
		FROM accounts
		WHERE guild_id = $1
		ORDER BY balance DESC, created_seq ASC
		LIMIT $2`, guildID, limit)
	if err != nil {
		return nil, models.StorageError("top accounts", err)
	}
	defer rows.Close()

	accounts := make([]models.Account, 0, limit)
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.GuildID, &a.UserID, &a.Balance, &a.Version, &a.CreatedSeq, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, models.StorageError("top accounts", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, models.StorageError("top accounts", err)
	}
	return accounts, nil
}

func (s *Store) History(ctx context.Context, key models.AccountKey, limit int) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, guild_id, from_user_id, to_user_id, amount, transaction_type, balance_after, created_at
		FROM transactions
		WHERE guild_id = $1 AND (to_user_id = $2 OR from_user_id = $2)
		ORDER BY created_at DESC
		LIMIT $3`, key.GuildID, key.UserID, limit)
	if err != nil {
		return nil, models.StorageError("history", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, models.StorageError("history", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, models.StorageError("history", err)
	}
	return out, nil
}

func (s *Store) SupplyByGuild(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT guild_id, COALESCE(SUM(balance), 0) FROM accounts GROUP BY guild_id`)
	if err != nil {
		return nil, models.StorageError("supply", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var guild string
		var total int64
		if err := rows.Scan(&guild, &total); err != nil {
			return nil, models.StorageError("supply", err)
		}
		out[guild] = total
	}
	if err := rows.Err(); err != nil {
		return nil, models.StorageError("supply", err)
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return models.StorageError("ping", s.db.PingContext(ctx))
}

func (s *Store) Close() error {
	return s.db.Close()
}

type pgTx struct {
	tx  *sql.Tx
	now func() time.Time
}

func (t *pgTx) LockAccount(ctx context.Context, key models.AccountKey, defaultBalance int64) (*models.Account, error) {
	now := t.now()
	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO accounts (guild_id, user_id, balance, version, created_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, $4)
		ON CONFLICT (guild_id, user_id) DO NOTHING`,
		key.GuildID, key.UserID, defaultBalance, now); err != nil {
		return nil, models.StorageError("create account", err)
	}

	account := models.Account{GuildID: key.GuildID, UserID: key.UserID}
	err := t.tx.QueryRowContext(ctx, `
		SELECT balance, version, created_seq, created_at, updated_at
		FROM accounts
		WHERE guild_id = $1 AND user_id = $2
		FOR UPDATE`, key.GuildID, key.UserID).
		Scan(&account.Balance, &account.Version, &account.CreatedSeq, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, models.StorageError("lock account", err)
	}
	return &account, nil
}

func (t *pgTx) UpdateBalance(ctx context.Context, account *models.Account, balance int64) error {
	now := t.now()
	result, err := t.tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE guild_id = $3 AND user_id = $4 AND version = $5`,
		balance, now, account.GuildID, account.UserID, account.Version)
	if err != nil {
		return models.StorageError("update balance", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return models.StorageError("update balance", err)
	}
	if rowsAffected == 0 {
		key := models.AccountKey{GuildID: account.GuildID, UserID: account.UserID}
		return models.StorageError("update balance", fmt.Errorf("optimistic lock failed for account %s", key))
	}

	account.Balance = balance
	account.Version++
	account.UpdatedAt = now
	return nil
}

func (t *pgTx) AppendTransaction(ctx context.Context, tr *models.Transaction) error {
	if tr.CreatedAt.IsZero() {
		tr.CreatedAt = t.now()
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO transactions (id, guild_id, from_user_id, to_user_id, amount, transaction_type, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		tr.ID, tr.GuildID, tr.FromUserID, tr.ToUserID, tr.Amount, string(tr.Type), tr.BalanceAfter, tr.CreatedAt)
	return models.StorageError("append transaction", err)
}

func (t *pgTx) LastTransaction(ctx context.Context, key models.AccountKey, typ models.TransactionType) (*models.Transaction, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, guild_id, from_user_id, to_user_id, amount, transaction_type, balance_after, created_at
		FROM transactions
		WHERE guild_id = $1 AND to_user_id = $2 AND transaction_type = $3
		ORDER BY created_at DESC
		LIMIT 1`, key.GuildID, key.UserID, string(typ))

	tr, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, models.StorageError("last transaction", err)
	}
	return tr, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (*models.Transaction, error) {
	var t models.Transaction
	var from sql.NullString
	var typ string
	if err := row.Scan(&t.ID, &t.GuildID, &from, &t.ToUserID, &t.Amount, &typ, &t.BalanceAfter, &t.CreatedAt); err != nil {
		return nil, err
	}
	if from.Valid {
		t.FromUserID = &from.String
	}
	t.Type = models.TransactionType(typ)
	return &t, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}
