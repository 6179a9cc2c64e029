package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/guildbank/backend/internal/models"
	"github.com/guildbank/backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	st, err := New(db)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestStore_Atomic(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	alice := models.AccountKey{GuildID: "g1", UserID: "alice"}

	t.Run("lazy create and update", func(t *testing.T) {
		err := st.Atomic(ctx, func(tx store.Tx) error {
			acc, err := tx.LockAccount(ctx, alice, 1000)
			require.NoError(t, err)
			assert.Equal(t, int64(1000), acc.Balance)

			if err := tx.UpdateBalance(ctx, acc, 700); err != nil {
				return err
			}
			return tx.AppendTransaction(ctx, &models.Transaction{
				ID: "t1", GuildID: "g1", ToUserID: "alice", Amount: 300,
				Type: models.TransactionDebit, BalanceAfter: 700,
			})
		})
		require.NoError(t, err)

		top, err := st.TopAccounts(ctx, "g1", 10)
		require.NoError(t, err)
		require.Len(t, top, 1)
		assert.Equal(t, int64(700), top[0].Balance)
		assert.Equal(t, 1, top[0].Version)
	})

	t.Run("failed unit rolls back", func(t *testing.T) {
		err := st.Atomic(ctx, func(tx store.Tx) error {
			acc, err := tx.LockAccount(ctx, alice, 1000)
			require.NoError(t, err)
			require.NoError(t, tx.UpdateBalance(ctx, acc, 0))
			return models.ErrInsufficientFunds
		})
		assert.ErrorIs(t, err, models.ErrInsufficientFunds)

		top, err := st.TopAccounts(ctx, "g1", 10)
		require.NoError(t, err)
		assert.Equal(t, int64(700), top[0].Balance)
	})

	t.Run("stale version is rejected", func(t *testing.T) {
		err := st.Atomic(ctx, func(tx store.Tx) error {
			acc, err := tx.LockAccount(ctx, alice, 1000)
			require.NoError(t, err)
			acc.Version--
			return tx.UpdateBalance(ctx, acc, 1)
		})
		assert.ErrorIs(t, err, models.ErrStorageUnavailable)
	})

	t.Run("last transaction and history", func(t *testing.T) {
		err := st.Atomic(ctx, func(tx store.Tx) error {
			last, err := tx.LastTransaction(ctx, alice, models.TransactionDebit)
			require.NoError(t, err)
			require.NotNil(t, last)
			assert.Equal(t, "t1", last.ID)

			none, err := tx.LastTransaction(ctx, alice, models.TransactionDaily)
			require.NoError(t, err)
			assert.Nil(t, none)
			return nil
		})
		require.NoError(t, err)

		history, err := st.History(ctx, alice, 10)
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})
}

func TestStore_TopOrderAndSupply(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	for _, user := range []string{"a", "b", "c"} {
		key := models.AccountKey{GuildID: "g1", UserID: user}
		require.NoError(t, st.Atomic(ctx, func(tx store.Tx) error {
			_, err := tx.LockAccount(ctx, key, 1000)
			return err
		}))
	}
	require.NoError(t, st.Atomic(ctx, func(tx store.Tx) error {
		_, err := tx.LockAccount(ctx, models.AccountKey{GuildID: "g2", UserID: "a"}, 1000)
		return err
	}))

	top, err := st.TopAccounts(ctx, "g1", 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "a", top[0].UserID)
	assert.Equal(t, "b", top[1].UserID)

	supply, err := st.SupplyByGuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"g1": 3000, "g2": 1000}, supply)
}

func TestStore_Levels(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	bronze := &models.ServiceLevel{GuildID: "g1", Name: "Bronze", RequiredBalance: 500, Benefits: models.Benefits{"Base level"}}
	gold := &models.ServiceLevel{GuildID: "g1", Name: "Gold", RequiredBalance: 5000}
	require.NoError(t, st.AddLevel(ctx, gold))
	require.NoError(t, st.AddLevel(ctx, bronze))
	require.NoError(t, st.AddLevel(ctx, &models.ServiceLevel{GuildID: "g2", Name: "Bronze", RequiredBalance: 500}))

	assert.ErrorIs(t, st.AddLevel(ctx, &models.ServiceLevel{GuildID: "g1", Name: "Copper", RequiredBalance: 500}),
		models.ErrDuplicateLevelThreshold)

	levels, err := st.ListLevels(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, levels, 2)
	assert.Equal(t, "Bronze", levels[0].Name)
	assert.Equal(t, models.Benefits{"Base level"}, levels[0].Benefits)

	threshold := int64(500)
	_, err = st.EditLevel(ctx, "g1", gold.ID, models.LevelPatch{RequiredBalance: &threshold})
	assert.ErrorIs(t, err, models.ErrDuplicateLevelThreshold)

	name := "Platinum"
	edited, err := st.EditLevel(ctx, "g1", gold.ID, models.LevelPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Platinum", edited.Name)
	assert.Equal(t, int64(5000), edited.RequiredBalance)

	_, err = st.EditLevel(ctx, "g2", gold.ID, models.LevelPatch{Name: &name})
	assert.ErrorIs(t, err, models.ErrLevelNotFound)

	require.NoError(t, st.RemoveLevel(ctx, "g1", bronze.ID))
	assert.ErrorIs(t, st.RemoveLevel(ctx, "g1", bronze.ID), models.ErrLevelNotFound)
}

func TestStore_GuildSettings(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	got, err := st.GetGuildSettings(ctx, "g1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, st.PutGuildSettings(ctx, &models.GuildSettings{GuildID: "g1", CurrencyName: "gems"}))
	require.NoError(t, st.PutGuildSettings(ctx, &models.GuildSettings{GuildID: "g1", CurrencyName: "gold", CurrencySymbol: "G"}))

	got, err = st.GetGuildSettings(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, &models.GuildSettings{GuildID: "g1", CurrencyName: "gold", CurrencySymbol: "G"}, got)
}

func TestStore_Links(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	link := &models.GameLink{GuildID: "g1", UserID: "alice", PlayerName: "Steve"}
	require.NoError(t, st.CreateLink(ctx, link))
	assert.False(t, link.LinkedAt.IsZero())

	err := st.CreateLink(ctx, &models.GameLink{GuildID: "g1", UserID: "alice", PlayerName: "Alex"})
	assert.ErrorIs(t, err, models.ErrAccountAlreadyLinked)

	err = st.CreateLink(ctx, &models.GameLink{GuildID: "g1", UserID: "bob", PlayerName: "STEVE"})
	assert.ErrorIs(t, err, models.ErrGameNameTaken)

	// another guild may reuse the name
	require.NoError(t, st.CreateLink(ctx, &models.GameLink{GuildID: "g2", UserID: "bob", PlayerName: "Steve"}))

	got, err := st.LinkByPlayer(ctx, "g1", "steve")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, "Steve", got.PlayerName)

	got, err = st.LinkByUser(ctx, "g1", "bob")
	require.NoError(t, err)
	assert.Nil(t, got)

	removed, err := st.DeleteLink(ctx, "g1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "Steve", removed.PlayerName)

	_, err = st.DeleteLink(ctx, "g1", "alice")
	assert.ErrorIs(t, err, models.ErrAccountNotLinked)

	got, err = st.LinkByUser(ctx, "g1", "alice")
	require.NoError(t, err)
	assert.Nil(t, got)
}
