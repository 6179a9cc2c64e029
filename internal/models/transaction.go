package models

import (
	"time"
)

type TransactionType string

const (
	TransactionTransfer    TransactionType = "transfer"
	TransactionAdminSet    TransactionType = "admin_set"
	TransactionAdminReward TransactionType = "admin_reward"
	TransactionDaily       TransactionType = "daily"
	TransactionCredit      TransactionType = "credit"
	TransactionDebit       TransactionType = "debit"
	TransactionPlayReward  TransactionType = "play_reward"
)

// Transaction is an immutable record of one balance-affecting event.
// FromUserID is nil for system-originated credits.
type Transaction struct {
	ID           string          `json:"id" db:"id"`
	GuildID      string          `json:"guild_id" db:"guild_id"`
	FromUserID   *string         `json:"from_user_id,omitempty" db:"from_user_id"`
	ToUserID     string          `json:"to_user_id" db:"to_user_id"`
	Amount       int64           `json:"amount" db:"amount"`
	Type         TransactionType `json:"transaction_type" db:"transaction_type"`
	BalanceAfter int64           `json:"balance_after" db:"balance_after"` // of ToUserID, or of the debited user for debits
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// TransferResult carries the post-transfer balances of both parties.
type TransferResult struct {
	Transaction *Transaction `json:"transaction"`
	FromBalance int64        `json:"from_balance"`
	ToBalance   int64        `json:"to_balance"`
}
