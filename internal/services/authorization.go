package services

// PermissionLevel orders what an actor may do. Higher includes lower.
type PermissionLevel int

const (
	LevelDefault PermissionLevel = iota
	LevelVIP
	LevelModerator
	LevelAdmin
)

// Operation names a caller-visible ledger action.
type Operation string

const (
	OpBalance     Operation = "balance"
	OpTransfer    Operation = "transfer"
	OpTop         Operation = "top"
	OpDaily       Operation = "daily"
	OpHistory     Operation = "history"
	OpLevels      Operation = "levels"
	OpAdminSet    Operation = "admin_set"
	OpAdminReset  Operation = "admin_reset"
	OpAdminReward Operation = "admin_reward"
	OpLevelAdd    Operation = "level_add"
	OpLevelEdit   Operation = "level_edit"
	OpLevelRemove Operation = "level_remove"
	OpSetCurrency Operation = "set_currency"
	OpLinkStatus  Operation = "link_status"
	OpLink        Operation = "link"
	OpUnlink      Operation = "unlink"
)

// Actor is whoever asks for an operation.
type Actor struct {
	ID         string
	GuildID    string
	Level      PermissionLevel
	GuildAdmin bool // server administrators pass every check
}

// Authorizer decides whether actor may run op. The ledger itself never
// authorizes; its callers do.
type Authorizer interface {
	CanExecute(actor Actor, op Operation) bool
}

var defaultPermissions = map[Operation]PermissionLevel{
	OpBalance:     LevelDefault,
	OpTransfer:    LevelDefault,
	OpTop:         LevelDefault,
	OpDaily:       LevelDefault,
	OpHistory:     LevelDefault,
	OpLevels:      LevelDefault,
	OpAdminSet:    LevelAdmin,
	OpAdminReset:  LevelAdmin,
	OpAdminReward: LevelAdmin,
	OpLevelAdd:    LevelAdmin,
	OpLevelEdit:   LevelAdmin,
	OpLevelRemove: LevelAdmin,
	OpSetCurrency: LevelAdmin,
	OpLinkStatus:  LevelDefault,
	OpLink:        LevelDefault,
	OpUnlink:      LevelDefault,
}

// selfService operations act on one member's account. Members may only run
// them on their own; moderators and server administrators on anyone's.
var selfService = map[Operation]bool{
	OpDaily:   true,
	OpHistory: true,
	OpLink:    true,
	OpUnlink:  true,
}

// CanActFor reports whether actor may run op on userID's account. It is
// checked in addition to CanExecute.
func CanActFor(actor Actor, op Operation, userID string) bool {
	if !selfService[op] || actor.GuildAdmin || actor.Level >= LevelModerator {
		return true
	}
	return actor.ID != "" && actor.ID == userID
}

// PermissionTable maps operations to the minimum level required. It is
// immutable after construction; unknown operations are denied.
type PermissionTable struct {
	required map[Operation]PermissionLevel
}

// NewPermissionTable starts from the built-in table and applies overrides
// keyed by operation name.
func NewPermissionTable(overrides map[string]int) *PermissionTable {
	required := make(map[Operation]PermissionLevel, len(defaultPermissions))
	for op, lvl := range defaultPermissions {
		required[op] = lvl
	}
	for op, lvl := range overrides {
		required[Operation(op)] = PermissionLevel(lvl)
	}
	return &PermissionTable{required: required}
}

func (p *PermissionTable) CanExecute(actor Actor, op Operation) bool {
	if actor.GuildAdmin {
		return true
	}
	required, ok := p.required[op]
	if !ok {
		return false
	}
	return actor.Level >= required
}

// Required returns the level needed for op and whether op is known.
func (p *PermissionTable) Required(op Operation) (PermissionLevel, bool) {
	lvl, ok := p.required[op]
	return lvl, ok
}
