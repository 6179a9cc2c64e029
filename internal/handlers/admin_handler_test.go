package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/guildbank/backend/internal/audit"
	"github.com/guildbank/backend/internal/config"
	"github.com/guildbank/backend/internal/logger"
	mW "github.com/guildbank/backend/internal/middleware"
	"github.com/guildbank/backend/internal/models"
	"github.com/guildbank/backend/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCurrency = config.CurrencyConfig{Name: "coins", Symbol: "💰", Format: "{amount} {currency}"}

type adminFixture struct {
	router http.Handler
	tokens *mW.TokenIssuer
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	ledger, st := newTestLedger()
	log := logger.Discard()
	tiers := services.NewTierService(st, time.Second, audit.NewAuditLogger(log))
	links := services.NewLinkService(st, ledger, time.Second, audit.NewAuditLogger(log))
	h := NewAdminHandler(ledger, tiers, links, st, testCurrency, services.NewPermissionTable(nil), log)

	tokens := mW.NewTokenIssuer("jwt-secret", "guildbank", time.Hour)
	r := chi.NewRouter()
	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(tokens.Authenticate)
		h.Routes(r)
	})
	return &adminFixture{router: r, tokens: tokens}
}

func (f *adminFixture) do(t *testing.T, actor services.Actor, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	token, err := f.tokens.Issue(actor)
	require.NoError(t, err)

	req := signed(method, "/api/v1/admin"+path, body, "")
	req.Header.Del(mW.SignatureHeader)
	req.Header.Set("Authorization", "Bearer "+token)
	return serve(f.router, req)
}

var (
	member     = services.Actor{ID: "u-member", GuildID: "g1", Level: services.LevelDefault}
	alice      = services.Actor{ID: "alice", GuildID: "g1", Level: services.LevelDefault}
	moderator  = services.Actor{ID: "u-mod", GuildID: "g1", Level: services.LevelModerator}
	guildAdmin = services.Actor{ID: "u-admin", GuildID: "g1", Level: services.LevelAdmin}
	owner      = services.Actor{ID: "u-owner", GuildID: "g1", GuildAdmin: true}
	global     = services.Actor{ID: "ops", Level: services.LevelAdmin}
)

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func TestAdminHandler_Authorization(t *testing.T) {
	f := newAdminFixture(t)

	t.Run("missing token", func(t *testing.T) {
		rr := serve(f.router, signed(http.MethodGet, "/api/v1/admin/guilds/g1/balances/alice", "", ""))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("member reads balance", func(t *testing.T) {
		rr := f.do(t, member, http.MethodGet, "/guilds/g1/balances/alice", "")
		require.Equal(t, http.StatusOK, rr.Code)
		body := decodeBody(t, rr)
		assert.Equal(t, float64(1000), body["balance"])
		assert.Equal(t, "1,000 coins", body["formatted"])
	})

	t.Run("member cannot set balance", func(t *testing.T) {
		rr := f.do(t, member, http.MethodPut, "/guilds/g1/balances/alice", `{"amount":5}`)
		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.Equal(t, "forbidden", decodeBody(t, rr)["code"])
	})

	t.Run("token bound to another guild", func(t *testing.T) {
		rr := f.do(t, guildAdmin, http.MethodGet, "/guilds/g2/balances/alice", "")
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("guild owner bypasses levels", func(t *testing.T) {
		rr := f.do(t, owner, http.MethodPut, "/guilds/g1/balances/alice", `{"amount":5}`)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("global token reaches every guild", func(t *testing.T) {
		rr := f.do(t, global, http.MethodGet, "/guilds/g2/balances/alice", "")
		assert.Equal(t, http.StatusOK, rr.Code)

		rr = f.do(t, global, http.MethodGet, "/guilds/global/balances/alice", "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "", decodeBody(t, rr)["guild_id"])
	})
}

func TestAdminHandler_Balances(t *testing.T) {
	f := newAdminFixture(t)

	rr := f.do(t, guildAdmin, http.MethodPut, "/guilds/g1/balances/alice", `{"amount":1500}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decodeBody(t, rr)
	assert.Equal(t, float64(1500), body["new_balance"])
	assert.Equal(t, "1,500 coins", body["formatted"])

	rr = f.do(t, guildAdmin, http.MethodPut, "/guilds/g1/balances/alice", `{"amount":-1}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid_amount", decodeBody(t, rr)["code"])

	rr = f.do(t, guildAdmin, http.MethodPut, "/guilds/g1/balances/alice", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, guildAdmin, http.MethodPost, "/guilds/g1/balances/alice/reward", `{"amount":250}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(1750), decodeBody(t, rr)["new_balance"])

	rr = f.do(t, guildAdmin, http.MethodPost, "/guilds/g1/balances/alice/reward", `{"amount":0}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, guildAdmin, http.MethodPost, "/guilds/g1/balances/alice/reset", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(1000), decodeBody(t, rr)["new_balance"])

	rr = f.do(t, member, http.MethodGet, "/guilds/g1/balances/alice/history", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do(t, alice, http.MethodGet, "/guilds/g1/balances/alice/history?limit=2", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var history []models.Transaction
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &history))
	require.Len(t, history, 2)
	assert.Equal(t, models.TransactionAdminSet, history[0].Type)
	assert.Equal(t, models.TransactionAdminReward, history[1].Type)

	rr = f.do(t, alice, http.MethodGet, "/guilds/g1/balances/alice/history?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, moderator, http.MethodGet, "/guilds/g1/balances/alice/history", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAdminHandler_ClaimDaily(t *testing.T) {
	f := newAdminFixture(t)

	for _, victim := range []string{"victim1", "victim2"} {
		rr := f.do(t, member, http.MethodPost, "/guilds/g1/balances/"+victim+"/daily", "")
		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.Equal(t, "forbidden", decodeBody(t, rr)["code"])

		rr = f.do(t, guildAdmin, http.MethodGet, "/guilds/g1/balances/"+victim, "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, float64(1000), decodeBody(t, rr)["balance"])
	}

	rr := f.do(t, alice, http.MethodPost, "/guilds/g1/balances/alice/daily", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(1100), decodeBody(t, rr)["new_balance"])

	rr = f.do(t, moderator, http.MethodPost, "/guilds/g1/balances/bob/daily", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(1100), decodeBody(t, rr)["new_balance"])

	rr = f.do(t, alice, http.MethodPost, "/guilds/g1/balances/alice/daily", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, "daily_already_claimed", body["code"])
	assert.NotEmpty(t, body["details"].(map[string]any)["retry_after"])
}

func TestAdminHandler_MemberTransfer(t *testing.T) {
	f := newAdminFixture(t)

	rr := f.do(t, alice, http.MethodPost, "/guilds/g1/transfers", `{"to_user_id":"bob","amount":300}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decodeBody(t, rr)
	assert.Equal(t, float64(700), body["from_balance"])
	assert.Equal(t, float64(1300), body["to_balance"])
	tr := body["transaction"].(map[string]any)
	assert.Equal(t, "alice", tr["from_user_id"])
	assert.Equal(t, "bob", tr["to_user_id"])

	rr = f.do(t, alice, http.MethodPost, "/guilds/g1/transfers", `{"to_user_id":"bob","amount":5000}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "insufficient_funds", decodeBody(t, rr)["code"])

	rr = f.do(t, alice, http.MethodPost, "/guilds/g1/transfers", `{"to_user_id":"alice","amount":1}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "self_transfer", decodeBody(t, rr)["code"])

	rr = f.do(t, alice, http.MethodPost, "/guilds/g1/transfers", `{"to_user_id":"bob"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, alice, http.MethodPost, "/guilds/g2/transfers", `{"to_user_id":"bob","amount":1}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestAdminHandler_Links(t *testing.T) {
	f := newAdminFixture(t)

	rr := f.do(t, alice, http.MethodGet, "/guilds/g1/links/alice", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "account_not_linked", decodeBody(t, rr)["code"])

	rr = f.do(t, member, http.MethodPut, "/guilds/g1/links/alice", `{"minecraft_username":"Hijack"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do(t, alice, http.MethodPut, "/guilds/g1/links/alice", `{"minecraft_username":"Steve"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "Steve", decodeBody(t, rr)["minecraft_username"])

	rr = f.do(t, alice, http.MethodPut, "/guilds/g1/links/alice", `{"minecraft_username":"Alex"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "account_already_linked", decodeBody(t, rr)["code"])

	rr = f.do(t, moderator, http.MethodPut, "/guilds/g1/links/bob", `{"minecraft_username":"steve"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "game_name_taken", decodeBody(t, rr)["code"])

	rr = f.do(t, moderator, http.MethodPut, "/guilds/g1/links/bob", `{"minecraft_username":"no spaces"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// link status is visible to other members
	rr = f.do(t, member, http.MethodGet, "/guilds/g1/links/alice", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Steve", decodeBody(t, rr)["minecraft_username"])

	rr = f.do(t, member, http.MethodDelete, "/guilds/g1/links/alice", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do(t, alice, http.MethodDelete, "/guilds/g1/links/alice", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Steve", decodeBody(t, rr)["minecraft_username"])

	rr = f.do(t, alice, http.MethodDelete, "/guilds/g1/links/alice", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAdminHandler_Top(t *testing.T) {
	f := newAdminFixture(t)

	for user, amount := range map[string]string{"alice": "300", "bob": "2000", "carol": "900"} {
		rr := f.do(t, guildAdmin, http.MethodPut, "/guilds/g1/balances/"+user, `{"amount":`+amount+`}`)
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr := f.do(t, member, http.MethodGet, "/guilds/g1/top?limit=2", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var entries []leaderboardEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, leaderboardEntry{Rank: 1, UserID: "bob", Balance: 2000, Formatted: "2,000 coins"}, entries[0])
	assert.Equal(t, "carol", entries[1].UserID)
}

func TestAdminHandler_Levels(t *testing.T) {
	f := newAdminFixture(t)

	rr := f.do(t, guildAdmin, http.MethodPost, "/guilds/g1/levels",
		`{"name":"Bronze","emoji":"🥉","required_balance":500,"color":"#CD7F32"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var bronze models.ServiceLevel
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &bronze))
	assert.Equal(t, 0xCD7F32, bronze.Color)
	assert.Equal(t, models.Benefits{models.DefaultBenefit}, bronze.Benefits)

	rr = f.do(t, guildAdmin, http.MethodPost, "/guilds/g1/levels", `{"name":"Gold","required_balance":5000}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	var gold models.ServiceLevel
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &gold))

	t.Run("duplicate threshold", func(t *testing.T) {
		rr := f.do(t, guildAdmin, http.MethodPost, "/guilds/g1/levels", `{"name":"Copper","required_balance":500}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "duplicate_level_threshold", decodeBody(t, rr)["code"])
	})

	t.Run("member cannot add", func(t *testing.T) {
		rr := f.do(t, member, http.MethodPost, "/guilds/g1/levels", `{"name":"Silver","required_balance":1000}`)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("resolve standing", func(t *testing.T) {
		rr := f.do(t, member, http.MethodGet, "/guilds/g1/levels/resolve/alice", "")
		require.Equal(t, http.StatusOK, rr.Code)
		var standing services.TierStanding
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &standing))
		assert.Equal(t, int64(1000), standing.Balance)
		require.NotNil(t, standing.Current)
		assert.Equal(t, "Bronze", standing.Current.Name)
		require.NotNil(t, standing.Next)
		assert.Equal(t, "Gold", standing.Next.Name)
		assert.Equal(t, int64(4000), standing.Remaining)
	})

	t.Run("edit is visible to the next resolution", func(t *testing.T) {
		rr := f.do(t, guildAdmin, http.MethodPatch, "/guilds/g1/levels/"+itoa(gold.ID), `{"required_balance":800}`)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		rr = f.do(t, member, http.MethodGet, "/guilds/g1/levels/resolve/alice", "")
		var standing services.TierStanding
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &standing))
		assert.Equal(t, "Gold", standing.Current.Name)
		assert.Nil(t, standing.Next)
	})

	t.Run("edit onto an existing threshold", func(t *testing.T) {
		rr := f.do(t, guildAdmin, http.MethodPatch, "/guilds/g1/levels/"+itoa(gold.ID), `{"required_balance":500}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("list is ascending", func(t *testing.T) {
		rr := f.do(t, member, http.MethodGet, "/guilds/g1/levels", "")
		var levels []models.ServiceLevel
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &levels))
		require.Len(t, levels, 2)
		assert.Equal(t, "Bronze", levels[0].Name)
		assert.Equal(t, "Gold", levels[1].Name)
	})

	t.Run("levels are scoped to the guild", func(t *testing.T) {
		rr := f.do(t, global, http.MethodGet, "/guilds/g2/levels", "")
		assert.JSONEq(t, `[]`, rr.Body.String())
	})

	t.Run("remove", func(t *testing.T) {
		rr := f.do(t, guildAdmin, http.MethodDelete, "/guilds/g1/levels/"+itoa(bronze.ID), "")
		assert.Equal(t, http.StatusNoContent, rr.Code)

		rr = f.do(t, guildAdmin, http.MethodDelete, "/guilds/g1/levels/"+itoa(bronze.ID), "")
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "level_not_found", decodeBody(t, rr)["code"])

		rr = f.do(t, guildAdmin, http.MethodDelete, "/guilds/g1/levels/abc", "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestAdminHandler_Settings(t *testing.T) {
	f := newAdminFixture(t)

	rr := f.do(t, member, http.MethodGet, "/guilds/g1/settings", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "coins", decodeBody(t, rr)["currency_name"])

	rr = f.do(t, member, http.MethodPut, "/guilds/g1/settings", `{"currency_name":"gems"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do(t, guildAdmin, http.MethodPut, "/guilds/g1/settings",
		`{"guild_id":"g2","currency_name":"gems","currency_symbol":"💎","format":"{symbol}{amount}"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "g1", decodeBody(t, rr)["guild_id"])

	rr = f.do(t, member, http.MethodGet, "/guilds/g1/balances/alice", "")
	assert.Equal(t, "💎1,000", decodeBody(t, rr)["formatted"])

	rr = f.do(t, global, http.MethodGet, "/guilds/g2/balances/alice", "")
	assert.Equal(t, "1,000 coins", decodeBody(t, rr)["formatted"])

	rr = f.do(t, guildAdmin, http.MethodPut, "/guilds/g1/settings", `{"currency_name":"`+strings.Repeat("x", 40)+`"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
