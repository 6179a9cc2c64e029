// Package memory is a process-local Store. State is lost on restart, so it
// backs tests and throwaway deployments only.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/guildbank/backend/internal/models"
	"github.com/guildbank/backend/internal/store"
)

// Store keeps all ledger state in maps guarded by one RWMutex. Atomic units
// hold the write lock for their whole duration.
type Store struct {
	mu           sync.RWMutex
	accounts     map[models.AccountKey]models.Account
	transactions []models.Transaction
	levels       map[string][]models.ServiceLevel
	settings     map[string]models.GuildSettings
	links        map[string]map[string]models.GameLink // guild -> user
	accountSeq   int64
	levelSeq     int64
	now          func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		accounts: make(map[models.AccountKey]models.Account),
		levels:   make(map[string][]models.ServiceLevel),
		settings: make(map[string]models.GuildSettings),
		links:    make(map[string]map[string]models.GameLink),
		now:      time.Now,
	}
}

func (s *Store) Atomic(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return models.StorageError("memory atomic", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s, staged: make(map[models.AccountKey]models.Account)}
	if err := fn(tx); err != nil {
		return err
	}

	for key, acc := range tx.staged {
		s.accounts[key] = acc
	}
	s.transactions = append(s.transactions, tx.appended...)
	s.accountSeq += tx.created
	return nil
}

func (s *Store) TopAccounts(ctx context.Context, guildID string, limit int) ([]models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Account, 0)
	for key, acc := range s.accounts {
		if key.GuildID == guildID {
			out = append(out, acc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Balance != out[j].Balance {
			return out[i].Balance > out[j].Balance
		}
		return out[i].CreatedSeq < out[j].CreatedSeq
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) History(ctx context.Context, key models.AccountKey, limit int) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Transaction, 0)
	for i := len(s.transactions) - 1; i >= 0; i-- {
		t := s.transactions[i]
		if t.GuildID != key.GuildID {
			continue
		}
		if t.ToUserID == key.UserID || (t.FromUserID != nil && *t.FromUserID == key.UserID) {
			out = append(out, t)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) SupplyByGuild(ctx context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int64)
	for key, acc := range s.accounts {
		out[key.GuildID] += acc.Balance
	}
	return out, nil
}

// Transactions returns a copy of the whole log, oldest first.
func (s *Store) Transactions() []models.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Transaction(nil), s.transactions...)
}

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) Close() error { return nil }

type memTx struct {
	store    *Store
	staged   map[models.AccountKey]models.Account
	appended []models.Transaction
	created  int64
}

func (t *memTx) LockAccount(ctx context.Context, key models.AccountKey, defaultBalance int64) (*models.Account, error) {
	if acc, ok := t.staged[key]; ok {
		return &acc, nil
	}
	acc, ok := t.store.accounts[key]
	if !ok {
		t.created++
		now := t.store.now()
		acc = models.Account{
			GuildID:    key.GuildID,
			UserID:     key.UserID,
			Balance:    defaultBalance,
			CreatedSeq: t.store.accountSeq + t.created,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}
	t.staged[key] = acc
	return &acc, nil
}

func (t *memTx) UpdateBalance(ctx context.Context, account *models.Account, balance int64) error {
	key := models.AccountKey{GuildID: account.GuildID, UserID: account.UserID}
	current, ok := t.staged[key]
	if !ok {
		return models.StorageError("memory update balance", fmt.Errorf("account %s not locked", key))
	}
	if current.Version != account.Version {
		return models.StorageError("memory update balance", fmt.Errorf("optimistic lock failed for account %s", key))
	}
	if balance < 0 {
		return models.StorageError("memory update balance", fmt.Errorf("negative balance for account %s", key))
	}

	current.Balance = balance
	current.Version++
	current.UpdatedAt = t.store.now()
	t.staged[key] = current

	account.Balance = current.Balance
	account.Version = current.Version
	account.UpdatedAt = current.UpdatedAt
	return nil
}

func (t *memTx) AppendTransaction(ctx context.Context, tr *models.Transaction) error {
	if tr.CreatedAt.IsZero() {
		tr.CreatedAt = t.store.now()
	}
	t.appended = append(t.appended, *tr)
	return nil
}

func (t *memTx) LastTransaction(ctx context.Context, key models.AccountKey, typ models.TransactionType) (*models.Transaction, error) {
	match := func(tr models.Transaction) bool {
		return tr.GuildID == key.GuildID && tr.ToUserID == key.UserID && tr.Type == typ
	}
	for i := len(t.appended) - 1; i >= 0; i-- {
		if match(t.appended[i]) {
			tr := t.appended[i]
			return &tr, nil
		}
	}
	for i := len(t.store.transactions) - 1; i >= 0; i-- {
		if match(t.store.transactions[i]) {
			tr := t.store.transactions[i]
			return &tr, nil
		}
	}
	return nil, nil
}
