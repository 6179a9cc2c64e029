package handlers

import (
	"context"

	"github.com/guildbank/backend/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) DefaultBalance() int64 {
	return m.Called().Get(0).(int64)
}

func (m *MockLedger) GetBalance(ctx context.Context, guildID, userID string) (int64, error) {
	args := m.Called(ctx, guildID, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedger) SetBalance(ctx context.Context, guildID, userID string, amount int64) (*models.Transaction, error) {
	args := m.Called(ctx, guildID, userID, amount)
	return transactionArg(args, 0), args.Error(1)
}

func (m *MockLedger) ResetBalance(ctx context.Context, guildID, userID string) (*models.Transaction, error) {
	args := m.Called(ctx, guildID, userID)
	return transactionArg(args, 0), args.Error(1)
}

func (m *MockLedger) Credit(ctx context.Context, guildID, userID string, amount int64) (*models.Transaction, error) {
	args := m.Called(ctx, guildID, userID, amount)
	return transactionArg(args, 0), args.Error(1)
}

func (m *MockLedger) Debit(ctx context.Context, guildID, userID string, amount int64) (*models.Transaction, error) {
	args := m.Called(ctx, guildID, userID, amount)
	return transactionArg(args, 0), args.Error(1)
}

func (m *MockLedger) Reward(ctx context.Context, guildID, userID string, amount int64) (*models.Transaction, error) {
	args := m.Called(ctx, guildID, userID, amount)
	return transactionArg(args, 0), args.Error(1)
}

func (m *MockLedger) Transfer(ctx context.Context, guildID, fromUserID, toUserID string, amount int64) (*models.TransferResult, error) {
	args := m.Called(ctx, guildID, fromUserID, toUserID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TransferResult), args.Error(1)
}

func (m *MockLedger) ClaimDaily(ctx context.Context, guildID, userID string) (*models.Transaction, error) {
	args := m.Called(ctx, guildID, userID)
	return transactionArg(args, 0), args.Error(1)
}

func (m *MockLedger) Top(ctx context.Context, guildID string, limit int) ([]models.Account, error) {
	args := m.Called(ctx, guildID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Account), args.Error(1)
}

func (m *MockLedger) History(ctx context.Context, guildID, userID string, limit int) ([]models.Transaction, error) {
	args := m.Called(ctx, guildID, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Transaction), args.Error(1)
}

func transactionArg(args mock.Arguments, i int) *models.Transaction {
	if args.Get(i) == nil {
		return nil
	}
	return args.Get(i).(*models.Transaction)
}
