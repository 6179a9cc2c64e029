package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/guildbank/backend/internal/models"
)

// Ledger is the engine surface the HTTP layer drives.
type Ledger interface {
	DefaultBalance() int64
	GetBalance(ctx context.Context, guildID, userID string) (int64, error)
	SetBalance(ctx context.Context, guildID, userID string, amount int64) (*models.Transaction, error)
	ResetBalance(ctx context.Context, guildID, userID string) (*models.Transaction, error)
	Credit(ctx context.Context, guildID, userID string, amount int64) (*models.Transaction, error)
	Debit(ctx context.Context, guildID, userID string, amount int64) (*models.Transaction, error)
	Reward(ctx context.Context, guildID, userID string, amount int64) (*models.Transaction, error)
	Transfer(ctx context.Context, guildID, fromUserID, toUserID string, amount int64) (*models.TransferResult, error)
	ClaimDaily(ctx context.Context, guildID, userID string) (*models.Transaction, error)
	Top(ctx context.Context, guildID string, limit int) ([]models.Account, error)
	History(ctx context.Context, guildID, userID string, limit int) ([]models.Transaction, error)
}

// Links is the game account link registry surface.
type Links interface {
	Link(ctx context.Context, guildID, userID, playerName string) (*models.GameLink, error)
	Unlink(ctx context.Context, guildID, userID string) (*models.GameLink, error)
	Resolve(ctx context.Context, guildID, userID string) (*models.GameLink, error)
	ResolvePlayer(ctx context.Context, guildID, playerName string) (*models.GameLink, error)
	ClaimPlayReward(ctx context.Context, guildID, playerName string) (*models.GameLink, *models.Transaction, error)
}

// FlexibleID accepts an identifier sent either as a JSON string or as a bare
// number and keeps its literal text, which is what gets signed.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexibleID(strings.TrimSpace(s))
		return nil
	}

	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return err
	}
	*f = FlexibleID(n.String())
	return nil
}

func (f FlexibleID) String() string { return string(f) }
