package services

import (
	"context"
	"errors"

	"github.com/guildbank/backend/internal/models"
	"github.com/guildbank/backend/internal/store"
	"github.com/guildbank/backend/internal/store/memory"
	"github.com/stretchr/testify/mock"
)

type MockAuditLogger struct {
	mock.Mock
}

func (m *MockAuditLogger) LogTransfer(transactionID, guildID, fromUser, toUser string, amount int64, status string) {
	m.Called(transactionID, guildID, fromUser, toUser, amount, status)
}

func (m *MockAuditLogger) LogError(guildID, accountID, operation string, err error) {
	m.Called(guildID, accountID, operation, err)
}

func (m *MockAuditLogger) LogOperation(transactionID, guildID, accountID, operation string, amount int64) {
	m.Called(transactionID, guildID, accountID, operation, amount)
}

// permissiveAudit accepts any audit call.
func permissiveAudit() *MockAuditLogger {
	m := &MockAuditLogger{}
	m.On("LogTransfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
	m.On("LogError", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
	m.On("LogOperation", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
	return m
}

var errDiskGone = errors.New("disk gone")

// failingStore wraps the memory store and fails the transaction log append,
// after the balance updates were already staged.
type failingStore struct {
	*memory.Store
}

func (f *failingStore) Atomic(ctx context.Context, fn func(tx store.Tx) error) error {
	return f.Store.Atomic(ctx, func(tx store.Tx) error {
		return fn(failingTx{tx})
	})
}

type failingTx struct {
	store.Tx
}

func (failingTx) AppendTransaction(ctx context.Context, t *models.Transaction) error {
	return models.StorageError("append transaction", errDiskGone)
}
