package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermissionTable_CanExecute(t *testing.T) {
	table := NewPermissionTable(nil)

	member := Actor{ID: "u1", GuildID: "g1", Level: LevelDefault}
	admin := Actor{ID: "u2", GuildID: "g1", Level: LevelAdmin}
	owner := Actor{ID: "u3", GuildID: "g1", GuildAdmin: true}

	assert.True(t, table.CanExecute(member, OpTransfer))
	assert.True(t, table.CanExecute(member, OpBalance))
	assert.False(t, table.CanExecute(member, OpAdminSet))
	assert.False(t, table.CanExecute(member, OpLevelAdd))

	assert.True(t, table.CanExecute(admin, OpAdminSet))
	assert.True(t, table.CanExecute(admin, OpLevelRemove))

	assert.False(t, table.CanExecute(admin, Operation("unknown")))
	assert.True(t, table.CanExecute(owner, Operation("unknown")))
}

func TestPermissionTable_Overrides(t *testing.T) {
	table := NewPermissionTable(map[string]int{"transfer": 1, "admin_reward": 2})

	assert.False(t, table.CanExecute(Actor{Level: LevelDefault}, OpTransfer))
	assert.True(t, table.CanExecute(Actor{Level: LevelVIP}, OpTransfer))
	assert.True(t, table.CanExecute(Actor{Level: LevelModerator}, OpAdminReward))

	lvl, ok := table.Required(OpAdminSet)
	assert.True(t, ok)
	assert.Equal(t, LevelAdmin, lvl)

	// the defaults are not shared between tables
	assert.True(t, NewPermissionTable(nil).CanExecute(Actor{Level: LevelDefault}, OpTransfer))
}

func TestCanActFor(t *testing.T) {
	member := Actor{ID: "u1", GuildID: "g1", Level: LevelDefault}
	vip := Actor{ID: "u4", GuildID: "g1", Level: LevelVIP}
	moderator := Actor{ID: "u2", GuildID: "g1", Level: LevelModerator}
	owner := Actor{ID: "u3", GuildID: "g1", GuildAdmin: true}

	for _, op := range []Operation{OpDaily, OpHistory, OpLink, OpUnlink} {
		assert.True(t, CanActFor(member, op, "u1"), op)
		assert.False(t, CanActFor(member, op, "victim"), op)
		assert.False(t, CanActFor(vip, op, "victim"), op)
		assert.True(t, CanActFor(moderator, op, "victim"), op)
		assert.True(t, CanActFor(owner, op, "victim"), op)
	}

	// reading a balance or a link is not restricted to the owner
	assert.True(t, CanActFor(member, OpBalance, "victim"))
	assert.True(t, CanActFor(member, OpLinkStatus, "victim"))

	// tokens without a subject never match a user
	assert.False(t, CanActFor(Actor{}, OpDaily, ""))
}
