// Command tokengen mints bearer tokens for the admin API.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/guildbank/backend/internal/config"
	mW "github.com/guildbank/backend/internal/middleware"
	"github.com/guildbank/backend/internal/services"
)

func main() {
	configPath := flag.String("config", "", "path to a .env or YAML config file (default .env)")
	subject := flag.String("sub", "", "actor id recorded in the token (required)")
	guild := flag.String("guild", "", "guild the token is bound to; empty for a global token")
	level := flag.Int("level", int(services.LevelAdmin), "permission level: 0 default, 1 vip, 2 moderator, 3 admin")
	guildAdmin := flag.Bool("guild-admin", false, "bypass the permission table for the bound guild")
	expiry := flag.Duration("expiry", 0, "token lifetime (default jwt.expiry_hours)")
	flag.Parse()

	if *subject == "" {
		fmt.Fprintln(os.Stderr, "tokengen: -sub is required")
		flag.Usage()
		os.Exit(2)
	}
	if *level < int(services.LevelDefault) || *level > int(services.LevelAdmin) {
		fmt.Fprintf(os.Stderr, "tokengen: level %d out of range\n", *level)
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tokengen: %v\n", err)
		os.Exit(1)
	}

	lifetime := *expiry
	if lifetime <= 0 {
		lifetime = time.Duration(cfg.JWT.ExpiryHours) * time.Hour
	}

	issuer := mW.NewTokenIssuer(cfg.JWT.SecretKey, cfg.JWT.Issuer, lifetime)
	token, err := issuer.Issue(services.Actor{
		ID:         *subject,
		GuildID:    *guild,
		Level:      services.PermissionLevel(*level),
		GuildAdmin: *guildAdmin,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "tokengen: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
