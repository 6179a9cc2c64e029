package models

// GuildSettings is the per-guild display configuration. Zero-valued fields
// fall back to the process defaults.
type GuildSettings struct {
	GuildID        string `json:"guild_id" db:"guild_id"`
	CurrencyName   string `json:"currency_name" db:"currency_name" validate:"max=32"`
	CurrencySymbol string `json:"currency_symbol" db:"currency_symbol" validate:"max=16"`
	Format         string `json:"format" db:"format" validate:"max=64"`
}
