package models

import (
	"regexp"
	"strings"
	"time"
)

// GameLink ties a user to a Minecraft player inside one guild. A user has at
// most one link and a player name belongs to at most one user.
type GameLink struct {
	GuildID    string    `json:"guild_id" db:"guild_id"`
	UserID     string    `json:"user_id" db:"user_id"`
	PlayerName string    `json:"minecraft_username" db:"player_name"`
	LinkedAt   time.Time `json:"linked_at" db:"linked_at"`
}

// Java names, optionally carrying the Floodgate prefix of Bedrock players.
var playerNamePattern = regexp.MustCompile(`^[.*]?[A-Za-z0-9_]{3,16}$`)

// ValidPlayerName reports whether name can be a Minecraft player name.
func ValidPlayerName(name string) bool {
	return playerNamePattern.MatchString(name)
}

// PlayerKey is the case-insensitive form player names are matched on.
func PlayerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
