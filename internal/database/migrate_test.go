package database

import (
	"io"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	source, err := iofs.New(migrationFiles, "migrations")
	require.NoError(t, err)
	defer source.Close()

	first, err := source.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	up, _, err := source.ReadUp(first)
	require.NoError(t, err)
	body, err := io.ReadAll(up)
	require.NoError(t, err)
	up.Close()

	for _, table := range []string{"accounts", "transactions", "service_levels", "guild_settings"} {
		assert.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS "+table)
	}
	assert.Contains(t, string(body), "UNIQUE (guild_id, required_balance)")

	down, _, err := source.ReadDown(first)
	require.NoError(t, err)
	down.Close()

	second, err := source.Next(first)
	require.NoError(t, err)
	assert.Equal(t, uint(2), second)

	up, _, err = source.ReadUp(second)
	require.NoError(t, err)
	body, err = io.ReadAll(up)
	require.NoError(t, err)
	up.Close()

	assert.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS game_links")
	assert.Contains(t, string(body), "CONSTRAINT game_links_pkey PRIMARY KEY (guild_id, user_id)")
	assert.Contains(t, string(body), "CONSTRAINT game_links_player_key UNIQUE (guild_id, player_key)")
}
