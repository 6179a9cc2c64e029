package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/guildbank/backend/internal/config"
	mW "github.com/guildbank/backend/internal/middleware"
	"github.com/guildbank/backend/internal/models"
	"github.com/guildbank/backend/internal/services"
	"github.com/guildbank/backend/internal/store"
	"github.com/sirupsen/logrus"
)

// GlobalGuild is the path segment addressing the global (empty) guild scope.
const GlobalGuild = "global"

const defaultHistoryLimit = 20

// Tiers is the tier registry surface used by the admin API.
type Tiers interface {
	ListLevels(ctx context.Context, guildID string) ([]models.ServiceLevel, error)
	Standing(ctx context.Context, guildID string, balance int64) (*services.TierStanding, error)
	AddLevel(ctx context.Context, guildID string, in services.LevelInput) (*models.ServiceLevel, error)
	EditLevel(ctx context.Context, guildID string, id int64, patch models.LevelPatch) (*models.ServiceLevel, error)
	RemoveLevel(ctx context.Context, guildID string, id int64) error
}

// AdminHandler serves the bearer-authenticated guild administration API.
type AdminHandler struct {
	ledger    Ledger
	tiers     Tiers
	links     Links
	settings  store.SettingsStore
	currency  config.CurrencyConfig
	authz     services.Authorizer
	validator *services.ValidationHelper
	log       *logrus.Logger
}

func NewAdminHandler(ledger Ledger, tiers Tiers, links Links, settings store.SettingsStore, currency config.CurrencyConfig, authz services.Authorizer, log *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		ledger:    ledger,
		tiers:     tiers,
		links:     links,
		settings:  settings,
		currency:  currency,
		authz:     authz,
		validator: services.NewValidationHelper(),
		log:       log,
	}
}

// Routes mounts the guild routes; r must already run Authenticate.
func (h *AdminHandler) Routes(r chi.Router) {
	r.Route("/guilds/{guild_id}", func(r chi.Router) {
		r.Get("/balances/{user_id}", h.GetBalance)
		r.Put("/balances/{user_id}", h.SetBalance)
		r.Post("/balances/{user_id}/reset", h.ResetBalance)
		r.Post("/balances/{user_id}/reward", h.Reward)
		r.Post("/balances/{user_id}/daily", h.ClaimDaily)
		r.Get("/balances/{user_id}/history", h.History)
		r.Post("/transfers", h.Transfer)
		r.Get("/top", h.Top)

		r.Get("/links/{user_id}", h.GetLink)
		r.Put("/links/{user_id}", h.Link)
		r.Delete("/links/{user_id}", h.Unlink)

		r.Get("/levels", h.ListLevels)
		r.Post("/levels", h.AddLevel)
		r.Get("/levels/resolve/{user_id}", h.ResolveLevel)
		r.Patch("/levels/{level_id}", h.EditLevel)
		r.Delete("/levels/{level_id}", h.RemoveLevel)

		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.PutSettings)
	})
}

type amountRequest struct {
	Amount *int64 `json:"amount" validate:"required"`
}

type memberTransferRequest struct {
	ToUserID string `json:"to_user_id" validate:"required"`
	Amount   *int64 `json:"amount" validate:"required"`
}

type linkRequest struct {
	PlayerName string `json:"minecraft_username" validate:"required,max=17"`
}

type balanceResponse struct {
	GuildID   string `json:"guild_id"`
	UserID    string `json:"user_id"`
	Balance   int64  `json:"balance"`
	Formatted string `json:"formatted"`
}

type mutationResponse struct {
	Status      string              `json:"status"`
	Transaction *models.Transaction `json:"transaction"`
	NewBalance  int64               `json:"new_balance"`
	Formatted   string              `json:"formatted"`
}

type leaderboardEntry struct {
	Rank      int    `json:"rank"`
	UserID    string `json:"user_id"`
	Balance   int64  `json:"balance"`
	Formatted string `json:"formatted"`
}

// authorize resolves the guild in the path and checks the caller may run op
// there. It writes the error response itself.
func (h *AdminHandler) authorize(w http.ResponseWriter, r *http.Request, op services.Operation) (string, bool) {
	guildID := chi.URLParam(r, "guild_id")
	if guildID == GlobalGuild {
		guildID = ""
	}

	actor, ok := mW.ActorFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Authentication required", http.StatusUnauthorized, nil)
		return "", false
	}
	if actor.GuildID != "" && actor.GuildID != guildID {
		services.SendLedgerError(w, models.ErrForbidden)
		return "", false
	}
	if !h.authz.CanExecute(actor, op) {
		h.log.WithFields(logrus.Fields{
			"actor":    actor.ID,
			"guild_id": guildID,
			"op":       op,
		}).Warn("admin operation denied")
		services.SendLedgerError(w, models.ErrForbidden)
		return "", false
	}
	return guildID, true
}

// authorizeMember is authorize for operations on the {user_id} account.
// Self-service operations are limited to the caller's own account below
// moderator level.
func (h *AdminHandler) authorizeMember(w http.ResponseWriter, r *http.Request, op services.Operation) (string, string, bool) {
	guildID, ok := h.authorize(w, r, op)
	if !ok {
		return "", "", false
	}
	userID := chi.URLParam(r, "user_id")

	actor, _ := mW.ActorFromContext(r.Context())
	if !services.CanActFor(actor, op, userID) {
		h.log.WithFields(logrus.Fields{
			"actor":    actor.ID,
			"guild_id": guildID,
			"user_id":  userID,
			"op":       op,
		}).Warn("admin operation on another member denied")
		services.SendLedgerError(w, models.ErrForbidden)
		return "", "", false
	}
	return guildID, userID, true
}

func (h *AdminHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !models.IsBusinessError(err) {
		h.log.WithError(err).WithField("path", r.URL.Path).Error("admin operation failed")
	}
	services.SendLedgerError(w, err)
}

func (h *AdminHandler) guildSettings(ctx context.Context, guildID string) (models.GuildSettings, error) {
	stored, err := h.settings.GetGuildSettings(ctx, guildID)
	if err != nil {
		return models.GuildSettings{}, err
	}
	return h.currency.Resolve(guildID, stored), nil
}

func (h *AdminHandler) format(ctx context.Context, guildID string, amount int64) string {
	settings, err := h.guildSettings(ctx, guildID)
	if err != nil {
		settings = h.currency.Resolve(guildID, nil)
	}
	return config.FormatAmount(settings, amount)
}

func (h *AdminHandler) sendMutation(w http.ResponseWriter, r *http.Request, guildID string, tr *models.Transaction) {
	services.SendJSON(w, http.StatusOK, mutationResponse{
		Status:      "success",
		Transaction: tr,
		NewBalance:  tr.BalanceAfter,
		Formatted:   h.format(r.Context(), guildID, tr.BalanceAfter),
	})
}

// GetBalance returns a member's balance
// @Summary Get member balance
// @Tags Admin
// @Security BearerAuth
// @Produce json
// @Param guild_id path string true "Guild ID or global"
// @Param user_id path string true "User ID"
// @Success 200 {object} balanceResponse
// @Router /api/v1/admin/guilds/{guild_id}/balances/{user_id} [get]
func (h *AdminHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	guildID, ok := h.authorize(w, r, services.OpBalance)
	if !ok {
		return
	}
	userID := chi.URLParam(r, "user_id")

	balance, err := h.ledger.GetBalance(r.Context(), guildID, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	services.SendJSON(w, http.StatusOK, balanceResponse{
		GuildID:   guildID,
		UserID:    userID,
		Balance:   balance,
		Formatted: h.format(r.Context(), guildID, balance),
	})
}

// SetBalance overwrites a member's balance
// @Summary Set member balance
// @Tags Admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param guild_id path string true "Guild ID or global"
// @Param user_id path string true "User ID"
// @Param request body amountRequest true "New balance"
// @Success 200 {object} mutationResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /api/v1/admin/guilds/{guild_id}/balances/{user_id} [put]
func (h *AdminHandler) SetBalance(w http.ResponseWriter, r *http.Request) {
	guildID, ok := h.authorize(w, r, services.OpAdminSet)
	if !ok {
		return
	}
	var req amountRequest
	if !h.validator.DecodeJSON(w, r, &req) {
		return
	}

	tr, err := h.ledger.SetBalance(r.Context(), guildID, chi.URLParam(r, "user_id"), *req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.sendMutation(w, r, guildID, tr)
}

// ResetBalance restores the default balance
// @Summary Reset member balance
// @Tags Admin
// @Security BearerAuth
// @Produce json
// @Param guild_id path string true "Guild ID or global"
// @Param user_id path string true "User ID"
// @Success 200 {object} mutationResponse
// @Router /api/v1/admin/guilds/{guild_id}/balances/{user_id}/reset [post]
func (h *AdminHandler) ResetBalance(w http.ResponseWriter, r *http.Request) {
	guildID, ok := h.authorize(w, r, services.OpAdminReset)
	if !ok {
		return
	}

	tr, err := h.ledger.ResetBalance(r.Context(), guildID, chi.URLParam(r, "user_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.sendMutation(w, r, guildID, tr)
}

// Reward mints currency to a member
// @Summary Reward member
// @Tags Admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param guild_id path string true "Guild ID or global"
// @Param user_id path string true "User ID"
// @Param request body amountRequest true "Reward amount"
// @Success 200 {object} mutationResponse
// @Failure 400 {object} services.ErrorResponse
// @Router /api/v1/admin/guilds/{guild_id}/balances/{user_id}/reward [post]
func (h *AdminHandler) Reward(w http.ResponseWriter, r *http.Request) {
	guildID, ok := h.authorize(w, r, services.OpAdminReward)
	if !ok {
		return
	}
	var req amountRequest
	if !h.validator.DecodeJSON(w, r, &req) {
		return
	}

	tr, err := h.ledger.Reward(r.Context(), guildID, chi.URLParam(r, "user_id"), *req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.sendMutation(w, r, guildID, tr)
}

// ClaimDaily claims the daily reward for a member
// @Summary Claim daily reward
// @Tags Admin
// @Security BearerAuth
// @Produce json
// @Param guild_id path string true "Guild ID or global"
// @Param user_id path string true "User ID"
// @Success 200 {object} mutationResponse
// @Failure 400 {object} services.ErrorResponse
// @Router /api/v1/admin/guilds/{guild_id}/balances/{user_id}/daily [post]
func (h *AdminHandler) ClaimDaily(w http.ResponseWriter, r *http.Request) {
	guildID, userID, ok := h.authorizeMember(w, r, services.OpDaily)
	if !ok {
		return
	}

	tr, err := h.ledger.ClaimDaily(r.Context(), guildID, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.sendMutation(w, r, guildID, tr)
}

// History lists a member's latest transactions
// @Summary Member transaction history
// @Tags Admin
// @Security BearerAuth
// @Produce json
// @Param guild_id path string true "Guild ID or global"
// @Param user_id path string true "User ID"
// @Param limit query int false "Max entries" default(20)
// @Success 200 {array} models.Transaction
// @Router /api/v1/admin/guilds/{guild_id}/balances/{user_id}/history [get]
func (h *AdminHandler) History(w http.ResponseWriter, r *http.Request) {
	guildID, userID, ok := h.authorizeMember(w, r, services.OpHistory)
	if !ok {
		return
	}
	limit, ok := queryLimit(w, r, defaultHistoryLimit)
	if !ok {
		return
	}

	txs, err := h.ledger.History(r.Context(), guildID, userID, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	services.SendJSON(w, http.StatusOK, txs)
}

// Transfer pays another member from the caller's own balance
// @Summary Pay another member
// @Tags Admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param guild_id path string true "Guild ID or global"
// @Param request body memberTransferRequest true "Recipient and amount"
// @Success 200 {object} models.TransferResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /api/v1/admin/guilds/{guild_id}/transfers [post]
func (h *AdminHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	guildID, ok := h.authorize(w, r, services.OpTransfer)
	if !ok {
		return
	}
	actor, _ := mW.ActorFromContext(r.Context())
	if actor.ID == "" {
		services.SendLedgerError(w, models.ErrForbidden)
		return
	}
	var req memberTransferRequest
	if !h.validator.DecodeJSON(w, r, &req) {
		return
	}

	result, err := h.ledger.Transfer(r.Context(), guildID, actor.ID, req.ToUserID, *req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusOK, result)
}

// Top returns the guild leaderboard
// @Summary Guild leaderboard
// @Tags Admin
// @Security BearerAuth
// @Produce json
// @Param guild_id path string true "Guild ID or global"
// @Param limit query int false "Max entries"
// @Success 200 {array} leaderboardEntry
// @Router /api/v1/admin/guilds/{guild_id}/top [get]
func (h *AdminHandler) Top(w http.ResponseWriter, r *http.Request) {
	guildID, ok := h.authorize(w, r, services.OpTop)
	if !ok {
		return
	}
	limit, ok := queryLimit(w, r, 0)
	if !ok {
		return
	}

	accounts, err := h.ledger.Top(r.Context(), guildID, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	settings, err := h.guildSettings(r.Context(), guildID)
	if err != nil {
		settings = h.currency.Resolve(guildID, nil)
	}
	entries := make([]leaderboardEntry, 0, len(accounts))
	for i, a := range accounts {
		entries = append(entries, leaderboardEntry{
			Rank:      i + 1,
			UserID:    a.UserID,
			Balance:   a.Balance,
			Formatted: config.FormatAmount(settings, a.Balance),
		})
	}
	services.SendJSON(w, http.StatusOK, entries)
}

// ListLevels returns the guild's service levels
// @Summary List service levels
// @Tags Levels
// @Security BearerAuth
// @Produce json
// @Param guild_id path string true "Guild ID or global"
// @Success 200 {array} models.ServiceLevel
// @Router /api/v1/admin/guilds/{guild_id}/levels [get]
func (h *AdminHandler) ListLevels(w http.ResponseWriter, r *http.Request) {
	guildID, ok := h.authorize(w, r, services.OpLevels)
	if !ok {
		return
	}

	levels, err := h.tiers.ListLevels(r.Context(), guildID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if levels == nil {
		levels = []models.ServiceLevel{}
	}
	services.SendJSON(w, http.StatusOK, levels)
}

// AddLevel creates a service level
// @Summary Add service level
// @Tags Levels
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param guild_id path string true "Guild ID or global"
// @Param request body services.LevelInput true "Level"
// @Success 201 {object} models.ServiceLevel
// @Failure 400 {object} services.ErrorResponse
// @Router /api/v1/admin/guilds/{guild_id}/levels [post]
func (h *AdminHandler) AddLevel(w http.ResponseWriter, r *http.Request) {
	guildID, ok := h.authorize(w, r, services.OpLevelAdd)
	if !ok {
		return
	}
	var req services.LevelInput
	if !h.validator.DecodeJSON(w, r, &req) {
		return
	}

	level, err := h.tiers.AddLevel(r.Context(), guildID, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusCreated, level)
}

// EditLevel patches a service level
// @Summary Edit service level
// @Tags Levels
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param guild_id path string true "Guild ID or global"
// @Param level_id path int true "Level ID"
// @Param request body models.LevelPatch true "Changed fields"
// @Success 200 {object} models.ServiceLevel
// @Failure 404 {object} services.ErrorResponse
// @Router /api/v1/admin/guilds/{guild_id}/levels/{level_id} [patch]
func (h *AdminHandler) EditLevel(w http.ResponseWriter, r *http.Request) {
	guildID, ok := h.authorize(w, r, services.OpLevelEdit)
	if !ok {
		return
	}
	id, ok := levelID(w, r)
	if !ok {
		return
	}
	var patch models.LevelPatch
	if !h.validator.DecodeJSON(w, r, &patch) {
		return
	}

	level, err := h.tiers.EditLevel(r.Context(), guildID, id, patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusOK, level)
}

// RemoveLevel deletes a service level
// @Summary Remove service level
// @Tags Levels
// @Security BearerAuth
// @Param guild_id path string true "Guild ID or global"
// @Param level_id path int true "Level ID"
// @Success 204
// @Failure 404 {object} services.ErrorResponse
// @Router /api/v1/admin/guilds/{guild_id}/levels/{level_id} [delete]
func (h *AdminHandler) RemoveLevel(w http.ResponseWriter, r *http.Request) {
	guildID, ok := h.authorize(w, r, services.OpLevelRemove)
	if !ok {
		return
	}
	id, ok := levelID(w, r)
	if !ok {
		return
	}

	if err := h.tiers.RemoveLevel(r.Context(), guildID, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResolveLevel places a member on the level ladder
// @Summary Resolve member tier
// @Tags Levels
// @Security BearerAuth
// @Produce json
// @Param guild_id path string true "Guild ID or global"
// @Param user_id path string true "User ID"
// @Success 200 {object} services.TierStanding
// @Router /api/v1/admin/guilds/{guild_id}/levels/resolve/{user_id} [get]
func (h *AdminHandler) ResolveLevel(w http.ResponseWriter, r *http.Request) {
	guildID, ok := h.authorize(w, r, services.OpLevels)
	if !ok {
		return
	}

	balance, err := h.ledger.GetBalance(r.Context(), guildID, chi.URLParam(r, "user_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	standing, err := h.tiers.Standing(r.Context(), guildID, balance)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusOK, standing)
}

// GetLink returns a member's linked Minecraft account
// @Summary Get linked game account
// @Tags Links
// @Security BearerAuth
// @Produce json
// @Param guild_id path string true "Guild ID or global"
// @Param user_id path string true "User ID"
// @Success 200 {object} models.GameLink
// @Failure 404 {object} services.ErrorResponse
// @Router /api/v1/admin/guilds/{guild_id}/links/{user_id} [get]
func (h *AdminHandler) GetLink(w http.ResponseWriter, r *http.Request) {
	guildID, userID, ok := h.authorizeMember(w, r, services.OpLinkStatus)
	if !ok {
		return
	}

	link, err := h.links.Resolve(r.Context(), guildID, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusOK, link)
}

// Link ties a member to a Minecraft player
// @Summary Link game account
// @Tags Links
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param guild_id path string true "Guild ID or global"
// @Param user_id path string true "User ID"
// @Param request body linkRequest true "Player name"
// @Success 201 {object} models.GameLink
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /api/v1/admin/guilds/{guild_id}/links/{user_id} [put]
func (h *AdminHandler) Link(w http.ResponseWriter, r *http.Request) {
	guildID, userID, ok := h.authorizeMember(w, r, services.OpLink)
	if !ok {
		return
	}
	var req linkRequest
	if !h.validator.DecodeJSON(w, r, &req) {
		return
	}

	link, err := h.links.Link(r.Context(), guildID, userID, req.PlayerName)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusCreated, link)
}

// Unlink removes a member's Minecraft link
// @Summary Unlink game account
// @Tags Links
// @Security BearerAuth
// @Produce json
// @Param guild_id path string true "Guild ID or global"
// @Param user_id path string true "User ID"
// @Success 200 {object} models.GameLink
// @Failure 404 {object} services.ErrorResponse
// @Router /api/v1/admin/guilds/{guild_id}/links/{user_id} [delete]
func (h *AdminHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	guildID, userID, ok := h.authorizeMember(w, r, services.OpUnlink)
	if !ok {
		return
	}

	link, err := h.links.Unlink(r.Context(), guildID, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusOK, link)
}

// GetSettings returns the effective guild settings
// @Summary Get guild settings
// @Tags Settings
// @Security BearerAuth
// @Produce json
// @Param guild_id path string true "Guild ID or global"
// @Success 200 {object} models.GuildSettings
// @Router /api/v1/admin/guilds/{guild_id}/settings [get]
func (h *AdminHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	guildID, ok := h.authorize(w, r, services.OpBalance)
	if !ok {
		return
	}

	settings, err := h.guildSettings(r.Context(), guildID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusOK, settings)
}

// PutSettings stores the guild currency settings
// @Summary Update guild settings
// @Tags Settings
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param guild_id path string true "Guild ID or global"
// @Param request body models.GuildSettings true "Settings; guild_id is ignored"
// @Success 200 {object} models.GuildSettings
// @Failure 400 {object} services.ErrorResponse
// @Router /api/v1/admin/guilds/{guild_id}/settings [put]
func (h *AdminHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	guildID, ok := h.authorize(w, r, services.OpSetCurrency)
	if !ok {
		return
	}
	var req models.GuildSettings
	if !h.validator.DecodeJSON(w, r, &req) {
		return
	}
	req.GuildID = guildID

	if err := h.settings.PutGuildSettings(r.Context(), &req); err != nil {
		h.fail(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusOK, h.currency.Resolve(guildID, &req))
}

func levelID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "level_id"), 10, 64)
	if err != nil || id <= 0 {
		services.SendErrorResponse(w, "Invalid level ID", http.StatusBadRequest, nil)
		return 0, false
	}
	return id, true
}

func queryLimit(w http.ResponseWriter, r *http.Request, fallback int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > 100 {
		services.SendErrorResponse(w, "limit must be between 1 and 100", http.StatusBadRequest, nil)
		return 0, false
	}
	return limit, true
}
