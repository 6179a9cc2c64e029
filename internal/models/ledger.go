package models

import (
	"time"
)

// Account is the balance of one user inside one guild. An empty GuildID is
// the global scope used when no guild applies.
type Account struct {
	GuildID    string    `json:"guild_id" db:"guild_id"`
	UserID     string    `json:"user_id" db:"user_id"`
	Balance    int64     `json:"balance" db:"balance"` // smallest currency unit
	Version    int       `json:"-" db:"version"`       // for optimistic locking
	CreatedSeq int64     `json:"-" db:"created_seq"`   // stable tie-break for Top
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// AccountKey identifies an account.
type AccountKey struct {
	GuildID string
	UserID  string
}

func (k AccountKey) String() string {
	return k.GuildID + "/" + k.UserID
}

// Less orders keys so multi-account locks are always taken in the same order.
func (k AccountKey) Less(o AccountKey) bool {
	if k.GuildID != o.GuildID {
		return k.GuildID < o.GuildID
	}
	return k.UserID < o.UserID
}
