package config

import (
	"strconv"
	"strings"

	"github.com/guildbank/backend/internal/models"
)

// Resolve merges stored guild settings over the process defaults. A nil
// settings value yields the defaults.
func (c CurrencyConfig) Resolve(guildID string, settings *models.GuildSettings) models.GuildSettings {
	out := models.GuildSettings{
		GuildID:        guildID,
		CurrencyName:   c.Name,
		CurrencySymbol: c.Symbol,
		Format:         c.Format,
	}
	if settings == nil {
		return out
	}
	if settings.CurrencyName != "" {
		out.CurrencyName = settings.CurrencyName
	}
	if settings.CurrencySymbol != "" {
		out.CurrencySymbol = settings.CurrencySymbol
	}
	if settings.Format != "" {
		out.Format = settings.Format
	}
	return out
}

// FormatAmount renders amount with thousands separators through the guild's
// format template. {amount}, {currency} and {symbol} are substituted.
func FormatAmount(settings models.GuildSettings, amount int64) string {
	format := settings.Format
	if format == "" {
		format = "{amount} {currency}"
	}
	r := strings.NewReplacer(
		"{amount}", groupThousands(amount),
		"{currency}", settings.CurrencyName,
		"{symbol}", settings.CurrencySymbol,
	)
	return r.Replace(format)
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	if len(s) <= 3 {
		return sign + s
	}

	var b strings.Builder
	head := len(s) % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return sign + b.String()
}
