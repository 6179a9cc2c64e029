package services

import (
	"context"
	"testing"
	"time"

	"github.com/guildbank/backend/internal/models"
	"github.com/guildbank/backend/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTiers(t *testing.T) *TierService {
	t.Helper()
	return NewTierService(memory.New(), time.Second, permissiveAudit())
}

func seedLevels(t *testing.T, svc *TierService, guildID string, thresholds ...int64) []*models.ServiceLevel {
	t.Helper()
	out := make([]*models.ServiceLevel, 0, len(thresholds))
	for _, th := range thresholds {
		l, err := svc.AddLevel(context.Background(), guildID, LevelInput{
			Name:            "tier",
			RequiredBalance: th,
		})
		require.NoError(t, err)
		out = append(out, l)
	}
	return out
}

func TestResolveTier_Pure(t *testing.T) {
	levels := []models.ServiceLevel{
		{ID: 3, RequiredBalance: 100000},
		{ID: 1, RequiredBalance: 10000},
		{ID: 2, RequiredBalance: 50000},
	}

	cases := []struct {
		balance   int64
		current   int64 // 0 = none
		next      int64
		remaining int64
	}{
		{0, 0, 1, 10000},
		{9999, 0, 1, 1},
		{10000, 1, 2, 40000},
		{49999, 1, 2, 1},
		{50000, 2, 3, 50000},
		{100000, 3, 0, 0},
		{250000, 3, 0, 0},
	}

	for _, tc := range cases {
		current := ResolveTier(levels, tc.balance)
		next, remaining := NextTier(levels, tc.balance)

		if tc.current == 0 {
			assert.Nil(t, current, "balance %d", tc.balance)
		} else if assert.NotNil(t, current, "balance %d", tc.balance) {
			assert.Equal(t, tc.current, current.ID)
		}

		if tc.next == 0 {
			assert.Nil(t, next, "balance %d", tc.balance)
		} else if assert.NotNil(t, next, "balance %d", tc.balance) {
			assert.Equal(t, tc.next, next.ID)
		}
		assert.Equal(t, tc.remaining, remaining)

		// repeated calls agree
		assert.Equal(t, current, ResolveTier(levels, tc.balance))
	}

	assert.Nil(t, ResolveTier(nil, 1000))
	next, remaining := NextTier(nil, 1000)
	assert.Nil(t, next)
	assert.Zero(t, remaining)
}

func TestTierService_ResolveAndNext(t *testing.T) {
	ctx := context.Background()
	svc := newTestTiers(t)
	seedLevels(t, svc, "g1", 10000, 50000, 100000)

	current, err := svc.ResolveTier(ctx, "g1", 49999)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, int64(10000), current.RequiredBalance)

	next, remaining, err := svc.NextTier(ctx, "g1", 49999)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, int64(50000), next.RequiredBalance)
	assert.Equal(t, int64(1), remaining)

	other, err := svc.ResolveTier(ctx, "g2", 49999)
	require.NoError(t, err)
	assert.Nil(t, other)

	standing, err := svc.Standing(ctx, "g1", 100000)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), standing.Current.RequiredBalance)
	assert.Nil(t, standing.Next)
}

func TestTierService_AddLevel(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults and color parsing", func(t *testing.T) {
		svc := newTestTiers(t)

		l, err := svc.AddLevel(ctx, "g1", LevelInput{
			Name:            "  Gold ",
			Emoji:           "🥇",
			RequiredBalance: 5000,
			Color:           "#FFD700",
		})
		require.NoError(t, err)
		assert.Equal(t, "Gold", l.Name)
		assert.Equal(t, 0xFFD700, l.Color)
		assert.Equal(t, models.Benefits{models.DefaultBenefit}, l.Benefits)
		assert.NotZero(t, l.ID)
	})

	t.Run("duplicate threshold in same guild", func(t *testing.T) {
		svc := newTestTiers(t)
		seedLevels(t, svc, "g1", 5000)

		_, err := svc.AddLevel(ctx, "g1", LevelInput{Name: "Other", RequiredBalance: 5000})
		assert.ErrorIs(t, err, models.ErrDuplicateLevelThreshold)

		// same name is fine
		_, err = svc.AddLevel(ctx, "g1", LevelInput{Name: "tier", RequiredBalance: 6000})
		assert.NoError(t, err)

		// other guilds are independent
		_, err = svc.AddLevel(ctx, "g2", LevelInput{Name: "Other", RequiredBalance: 5000})
		assert.NoError(t, err)
	})

	t.Run("invalid input", func(t *testing.T) {
		svc := newTestTiers(t)

		_, err := svc.AddLevel(ctx, "g1", LevelInput{Name: "x", RequiredBalance: -1})
		assert.ErrorIs(t, err, models.ErrInvalidAmount)
		_, err = svc.AddLevel(ctx, "g1", LevelInput{Name: "  ", RequiredBalance: 1})
		assert.ErrorIs(t, err, models.ErrMalformedRequest)
		_, err = svc.AddLevel(ctx, "g1", LevelInput{Name: "x", RequiredBalance: 1, Color: "blue"})
		assert.ErrorIs(t, err, models.ErrMalformedRequest)
	})
}

func TestTierService_EditRemove(t *testing.T) {
	ctx := context.Background()
	svc := newTestTiers(t)
	levels := seedLevels(t, svc, "g1", 100, 200)

	t.Run("edit keeps its own threshold", func(t *testing.T) {
		name := "Bronze"
		same := int64(100)
		l, err := svc.EditLevel(ctx, "g1", levels[0].ID, models.LevelPatch{Name: &name, RequiredBalance: &same})
		require.NoError(t, err)
		assert.Equal(t, "Bronze", l.Name)
	})

	t.Run("edit onto another threshold", func(t *testing.T) {
		clash := int64(200)
		_, err := svc.EditLevel(ctx, "g1", levels[0].ID, models.LevelPatch{RequiredBalance: &clash})
		assert.ErrorIs(t, err, models.ErrDuplicateLevelThreshold)
	})

	t.Run("edit is visible to resolution", func(t *testing.T) {
		moved := int64(150)
		_, err := svc.EditLevel(ctx, "g1", levels[0].ID, models.LevelPatch{RequiredBalance: &moved})
		require.NoError(t, err)

		current, err := svc.ResolveTier(ctx, "g1", 120)
		require.NoError(t, err)
		assert.Nil(t, current)
	})

	t.Run("unknown level", func(t *testing.T) {
		name := "x"
		_, err := svc.EditLevel(ctx, "g1", 999, models.LevelPatch{Name: &name})
		assert.ErrorIs(t, err, models.ErrLevelNotFound)

		// level ids are scoped to the guild
		_, err = svc.EditLevel(ctx, "g2", levels[0].ID, models.LevelPatch{Name: &name})
		assert.ErrorIs(t, err, models.ErrLevelNotFound)

		assert.ErrorIs(t, svc.RemoveLevel(ctx, "g1", 999), models.ErrLevelNotFound)
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, svc.RemoveLevel(ctx, "g1", levels[1].ID))

		remaining, err := svc.ListLevels(ctx, "g1")
		require.NoError(t, err)
		require.Len(t, remaining, 1)
		assert.Equal(t, levels[0].ID, remaining[0].ID)
	})
}
