package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/guildbank/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, int64(1000), cfg.Ledger.DefaultBalance)
	assert.Equal(t, 10, cfg.Ledger.TopLimit)
	assert.Equal(t, 24*time.Hour, cfg.Ledger.DailyCooldown)
	assert.Equal(t, int64(50), cfg.Ledger.PlayReward)
	assert.Equal(t, time.Hour, cfg.Ledger.PlayCooldown)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "", cfg.Gateway.GuildID)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("API_SECRET_KEY", "s3cret")
	t.Setenv("DEFAULT_BALANCE", "250")
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Gateway.Secret)
	assert.Equal(t, int64(250), cfg.Ledger.DefaultBalance)
	assert.Equal(t, "memory", cfg.Store.Driver)
}

func TestLoad_GatewaySecretAliases(t *testing.T) {
	t.Run("plugin name", func(t *testing.T) {
		t.Setenv("API_KEY", "plugin-secret")

		cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
		require.NoError(t, err)
		assert.Equal(t, "plugin-secret", cfg.Gateway.Secret)
	})

	t.Run("primary name wins", func(t *testing.T) {
		t.Setenv("API_SECRET_KEY", "primary")
		t.Setenv("API_KEY", "plugin-secret")

		cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
		require.NoError(t, err)
		assert.Equal(t, "primary", cfg.Gateway.Secret)
	})
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(path, []byte(`
store:
  driver: sqlite
currency:
  name: gems
permissions:
  transfer: 1
`), 0o600)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "gems", cfg.Currency.Name)
	assert.Equal(t, 1, cfg.Permissions["transfer"])
}

func TestConfig_Validate(t *testing.T) {
	base := func() Config {
		return Config{
			Store:  StoreConfig{Driver: "memory"},
			Ledger: LedgerConfig{DefaultBalance: 1000, DailyAmount: 100, PlayReward: 50, TopLimit: 10},
		}
	}

	t.Run("valid", func(t *testing.T) {
		cfg := base()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("unknown driver", func(t *testing.T) {
		cfg := base()
		cfg.Store.Driver = "mongo"
		assert.Error(t, cfg.Validate())
	})

	t.Run("negative default balance", func(t *testing.T) {
		cfg := base()
		cfg.Ledger.DefaultBalance = -1
		assert.Error(t, cfg.Validate())
	})

	t.Run("permission out of range", func(t *testing.T) {
		cfg := base()
		cfg.Permissions = map[string]int{"transfer": 7}
		assert.Error(t, cfg.Validate())
	})
}

func TestFormatAmount(t *testing.T) {
	currency := CurrencyConfig{Name: "coins", Symbol: "💰", Format: "{amount} {currency}"}

	t.Run("defaults", func(t *testing.T) {
		gs := currency.Resolve("g1", nil)
		assert.Equal(t, "1,500 coins", FormatAmount(gs, 1500))
		assert.Equal(t, "999 coins", FormatAmount(gs, 999))
		assert.Equal(t, "1,000,000 coins", FormatAmount(gs, 1000000))
		assert.Equal(t, "0 coins", FormatAmount(gs, 0))
	})

	t.Run("guild override", func(t *testing.T) {
		gs := currency.Resolve("g1", &models.GuildSettings{CurrencyName: "gems", Format: "{symbol} {amount} {currency}"})
		assert.Equal(t, "💰 12,345 gems", FormatAmount(gs, 12345))
		assert.Equal(t, "g1", gs.GuildID)
	})

	t.Run("negative delta", func(t *testing.T) {
		gs := currency.Resolve("g1", nil)
		assert.Equal(t, "-1,234 coins", FormatAmount(gs, -1234))
	})
}
