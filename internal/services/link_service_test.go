package services

import (
	"context"
	"testing"
	"time"

	"github.com/guildbank/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestLinks(t *testing.T) (*LinkService, *LedgerService) {
	t.Helper()
	ledger, st := newTestLedger(t)
	return NewLinkService(st, ledger, time.Second, permissiveAudit()), ledger
}

func TestLinkService_Link(t *testing.T) {
	ctx := context.Background()

	t.Run("link and resolve both ways", func(t *testing.T) {
		links, _ := newTestLinks(t)

		link, err := links.Link(ctx, "g1", "u1", " Steve_42 ")
		require.NoError(t, err)
		assert.Equal(t, "Steve_42", link.PlayerName)
		assert.False(t, link.LinkedAt.IsZero())

		byUser, err := links.Resolve(ctx, "g1", "u1")
		require.NoError(t, err)
		assert.Equal(t, "Steve_42", byUser.PlayerName)

		byPlayer, err := links.ResolvePlayer(ctx, "g1", "steve_42")
		require.NoError(t, err)
		assert.Equal(t, "u1", byPlayer.UserID)
	})

	t.Run("one link per user", func(t *testing.T) {
		links, _ := newTestLinks(t)

		_, err := links.Link(ctx, "g1", "u1", "Steve")
		require.NoError(t, err)

		_, err = links.Link(ctx, "g1", "u1", "Alex")
		assert.ErrorIs(t, err, models.ErrAccountAlreadyLinked)

		link, err := links.Resolve(ctx, "g1", "u1")
		require.NoError(t, err)
		assert.Equal(t, "Steve", link.PlayerName)
	})

	t.Run("player name held by another user", func(t *testing.T) {
		links, _ := newTestLinks(t)

		_, err := links.Link(ctx, "g1", "u1", "Steve")
		require.NoError(t, err)

		_, err = links.Link(ctx, "g1", "u2", "STEVE")
		assert.ErrorIs(t, err, models.ErrGameNameTaken)
	})

	t.Run("guilds are isolated", func(t *testing.T) {
		links, _ := newTestLinks(t)

		_, err := links.Link(ctx, "g1", "u1", "Steve")
		require.NoError(t, err)
		_, err = links.Link(ctx, "g2", "u2", "Steve")
		require.NoError(t, err)

		_, err = links.Resolve(ctx, "", "u1")
		assert.ErrorIs(t, err, models.ErrAccountNotLinked)
	})

	t.Run("invalid player names", func(t *testing.T) {
		links, _ := newTestLinks(t)

		for _, name := range []string{"", "ab", "this_name_is_too_long", "bad name", "bad-name"} {
			_, err := links.Link(ctx, "g1", "u1", name)
			assert.ErrorIs(t, err, models.ErrMalformedRequest, name)
		}

		_, err := links.Link(ctx, "g1", "u1", ".BedrockGuy")
		assert.NoError(t, err)
	})

	t.Run("empty user id", func(t *testing.T) {
		links, _ := newTestLinks(t)

		_, err := links.Link(ctx, "g1", "", "Steve")
		assert.ErrorIs(t, err, models.ErrMalformedRequest)
	})
}

func TestLinkService_Unlink(t *testing.T) {
	ctx := context.Background()
	links, _ := newTestLinks(t)

	_, err := links.Unlink(ctx, "g1", "u1")
	assert.ErrorIs(t, err, models.ErrAccountNotLinked)

	_, err = links.Link(ctx, "g1", "u1", "Steve")
	require.NoError(t, err)

	removed, err := links.Unlink(ctx, "g1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Steve", removed.PlayerName)

	_, err = links.ResolvePlayer(ctx, "g1", "Steve")
	assert.ErrorIs(t, err, models.ErrAccountNotLinked)

	// the name is free again
	_, err = links.Link(ctx, "g1", "u2", "Steve")
	assert.NoError(t, err)
}

func TestLinkService_ClaimPlayReward(t *testing.T) {
	ctx := context.Background()

	t.Run("unlinked player gets nothing", func(t *testing.T) {
		ledger, st := newTestLedger(t)
		links := NewLinkService(st, ledger, time.Second, permissiveAudit())

		_, _, err := links.ClaimPlayReward(ctx, "g1", "Nobody")
		assert.ErrorIs(t, err, models.ErrAccountNotLinked)
		assert.Empty(t, st.Transactions())
	})

	t.Run("linked player credits the user", func(t *testing.T) {
		links, ledger := newTestLinks(t)
		_, err := links.Link(ctx, "g1", "u1", "Steve")
		require.NoError(t, err)

		link, tr, err := links.ClaimPlayReward(ctx, "g1", "steve")
		require.NoError(t, err)
		assert.Equal(t, "u1", link.UserID)
		assert.Equal(t, models.TransactionPlayReward, tr.Type)
		assert.Equal(t, "u1", tr.ToUserID)

		balance, _ := ledger.GetBalance(ctx, "g1", "u1")
		assert.Equal(t, int64(1050), balance)

		_, _, err = links.ClaimPlayReward(ctx, "g1", "Steve")
		assert.ErrorIs(t, err, models.ErrRewardAlreadyClaimed)
	})

	t.Run("audits link changes", func(t *testing.T) {
		ledger, st := newTestLedger(t)
		auditLog := &MockAuditLogger{}
		auditLog.On("LogOperation", "", "g1", "u1", "LINK", int64(0)).Once()
		auditLog.On("LogOperation", "", "g1", "u1", "UNLINK", int64(0)).Once()
		links := NewLinkService(st, ledger, time.Second, auditLog)

		_, err := links.Link(ctx, "g1", "u1", "Steve")
		require.NoError(t, err)
		_, err = links.Unlink(ctx, "g1", "u1")
		require.NoError(t, err)

		auditLog.AssertExpectations(t)
		auditLog.AssertNotCalled(t, "LogError", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
