package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultBenefit is used when a level is created without benefits.
const DefaultBenefit = "Base level"

// ServiceLevel is a balance threshold granting a named tier inside a guild.
type ServiceLevel struct {
	ID              int64     `json:"id" db:"id"`
	GuildID         string    `json:"guild_id" db:"guild_id"`
	Name            string    `json:"name" db:"name"`
	Emoji           string    `json:"emoji" db:"emoji"`
	RequiredBalance int64     `json:"required_balance" db:"required_balance"`
	Color           int       `json:"color" db:"color"`
	Benefits        Benefits  `json:"benefits" db:"benefits"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// LevelPatch holds the fields EditLevel changes; nil fields are left alone.
type LevelPatch struct {
	Name            *string  `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Emoji           *string  `json:"emoji,omitempty" validate:"omitempty,max=64"`
	RequiredBalance *int64   `json:"required_balance,omitempty" validate:"omitempty,gte=0"`
	Color           *int     `json:"color,omitempty" validate:"omitempty,gte=0,lte=16777215"`
	Benefits        []string `json:"benefits,omitempty"`
}

// Apply copies the non-nil patch fields onto level.
func (p LevelPatch) Apply(level *ServiceLevel) {
	if p.Name != nil {
		level.Name = *p.Name
	}
	if p.Emoji != nil {
		level.Emoji = *p.Emoji
	}
	if p.RequiredBalance != nil {
		level.RequiredBalance = *p.RequiredBalance
	}
	if p.Color != nil {
		level.Color = *p.Color
	}
	if p.Benefits != nil {
		level.Benefits = NormalizeBenefits(p.Benefits)
	}
}

// Benefits type for JSONB fields
type Benefits []string

// Value implements driver.Valuer for Benefits
func (b Benefits) Value() (driver.Value, error) {
	if b == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(b)
}

// Scan implements sql.Scanner for Benefits
func (b *Benefits) Scan(value any) error {
	if value == nil {
		*b = nil
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(raw, b)
}

// NormalizeBenefits trims entries, drops blanks and falls back to
// DefaultBenefit when nothing is left.
func NormalizeBenefits(in []string) Benefits {
	out := make(Benefits, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		out = Benefits{DefaultBenefit}
	}
	return out
}

// ParseColor accepts "#RRGGBB" or "RRGGBB".
func ParseColor(s string) (int, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return 0, fmt.Errorf("color %q: want 6 hex digits", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("color %q: %w", s, err)
	}
	return int(v), nil
}
