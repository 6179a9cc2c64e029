package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/guildbank/backend/internal/metrics"
	mW "github.com/guildbank/backend/internal/middleware"
	"github.com/guildbank/backend/internal/models"
	"github.com/guildbank/backend/internal/services"
	"github.com/sirupsen/logrus"
)

// RequestIDHeader lets callers mark retries of the same mutation.
const RequestIDHeader = "X-Request-ID"

// GatewayHandler is the HMAC-authenticated surface used by trusted external
// systems such as a game server. All its accounts live in one configured
// guild scope.
type GatewayHandler struct {
	ledger    Ledger
	links     Links
	signer    *mW.Signer
	replay    *ReplayCache
	guildID   string
	validator *services.ValidationHelper
	log       *logrus.Logger
}

func NewGatewayHandler(ledger Ledger, links Links, signer *mW.Signer, replay *ReplayCache, guildID string, log *logrus.Logger) *GatewayHandler {
	return &GatewayHandler{
		ledger:    ledger,
		links:     links,
		signer:    signer,
		replay:    replay,
		guildID:   guildID,
		validator: services.NewValidationHelper(),
		log:       log,
	}
}

// Routes mounts the gateway endpoints on r.
func (h *GatewayHandler) Routes(r chi.Router) {
	r.With(mW.RequireSignature(h.signer, func(r *http.Request) string {
		return chi.URLParam(r, "user_id")
	})).Get("/balance/{user_id}", h.GetBalance)

	r.With(mW.RequireSignature(h.signer, func(r *http.Request) string {
		return "test"
	})).Get("/test", h.Test)

	r.Post("/transfer", h.Transfer)
	r.Post("/balance/modify", h.ModifyBalance)

	r.With(mW.RequireSignature(h.signer, func(r *http.Request) string {
		return chi.URLParam(r, "player")
	})).Get("/minecraft/links/{player}", h.ResolvePlayer)
	r.Post("/minecraft/reward", h.PlayReward)
}

type transferRequest struct {
	FromID FlexibleID  `json:"from_id" validate:"required"`
	ToID   FlexibleID  `json:"to_id" validate:"required"`
	Amount json.Number `json:"amount" validate:"required"`
}

type transferResponse struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	FromBalance   int64  `json:"from_balance"`
	ToBalance     int64  `json:"to_balance"`
	TransactionID string `json:"transaction_id"`
}

type modifyRequest struct {
	UserID    FlexibleID  `json:"user_id" validate:"required"`
	Amount    json.Number `json:"amount" validate:"required"`
	Operation string      `json:"operation" validate:"required,oneof=add remove"`
}

type modifyResponse struct {
	Status        string `json:"status"`
	NewBalance    int64  `json:"new_balance"`
	TransactionID string `json:"transaction_id"`
}

type playRewardRequest struct {
	PlayerName string `json:"minecraft_username" validate:"required,max=17"`
}

type playRewardResponse struct {
	Status        string `json:"status"`
	UserID        string `json:"user_id"`
	Amount        int64  `json:"amount"`
	NewBalance    int64  `json:"new_balance"`
	TransactionID string `json:"transaction_id"`
}

// GetBalance returns a user's balance
// @Summary Get balance
// @Description Returns the balance of a user, creating the account at the default balance on first access. Signed over user_id.
// @Tags Gateway
// @Produce json
// @Param user_id path string true "User ID"
// @Param X-Signature header string true "hex HMAC-SHA256 of user_id"
// @Success 200 {object} object{balance=int64}
// @Failure 403 {object} services.ErrorResponse
// @Router /balance/{user_id} [get]
func (h *GatewayHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	balance, err := h.ledger.GetBalance(r.Context(), h.guildID, userID)
	if err != nil {
		h.fail(w, r, "get_balance", err)
		return
	}

	services.SendJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

// Test is a signed liveness check
// @Summary Signed connectivity check
// @Tags Gateway
// @Produce json
// @Param X-Signature header string true "hex HMAC-SHA256 of the string test"
// @Success 200 {object} object{status=string,message=string}
// @Failure 403 {object} services.ErrorResponse
// @Router /test [get]
func (h *GatewayHandler) Test(w http.ResponseWriter, r *http.Request) {
	services.SendJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "API is working!",
	})
}

// Transfer moves funds between two users
// @Summary Transfer funds
// @Description Atomically moves amount from from_id to to_id. Signed over from_id+to_id+amount.
// @Tags Gateway
// @Accept json
// @Produce json
// @Param X-Signature header string true "hex HMAC-SHA256 of from_id+to_id+amount"
// @Param X-Request-ID header string false "Retry key"
// @Param request body object{from_id=string,to_id=string,amount=int64} true "Transfer request"
// @Success 200 {object} transferResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /transfer [post]
func (h *GatewayHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !h.validator.DecodeJSON(w, r, &req) {
		metrics.RecordGatewayRejection("malformed")
		return
	}

	payload := req.FromID.String() + req.ToID.String() + req.Amount.String()
	if !h.verify(w, r, payload) {
		return
	}

	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}

	h.once(w, r, func() (int, any, error) {
		result, err := h.ledger.Transfer(r.Context(), h.guildID, req.FromID.String(), req.ToID.String(), amount)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, transferResponse{
			Status:        "success",
			Message:       "Transfer completed",
			FromBalance:   result.FromBalance,
			ToBalance:     result.ToBalance,
			TransactionID: result.Transaction.ID,
		}, nil
	}, "transfer")
}

// ModifyBalance credits or debits one user
// @Summary Modify balance
// @Description Adds to or removes from a user's balance. Signed over user_id+amount+operation.
// @Tags Gateway
// @Accept json
// @Produce json
// @Param X-Signature header string true "hex HMAC-SHA256 of user_id+amount+operation"
// @Param X-Request-ID header string false "Retry key"
// @Param request body object{user_id=string,amount=int64,operation=string} true "add or remove"
// @Success 200 {object} modifyResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /balance/modify [post]
func (h *GatewayHandler) ModifyBalance(w http.ResponseWriter, r *http.Request) {
	var req modifyRequest
	if !h.validator.DecodeJSON(w, r, &req) {
		metrics.RecordGatewayRejection("malformed")
		return
	}

	payload := req.UserID.String() + req.Amount.String() + req.Operation
	if !h.verify(w, r, payload) {
		return
	}

	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}

	h.once(w, r, func() (int, any, error) {
		var (
			tr  *models.Transaction
			err error
		)
		if req.Operation == "add" {
			tr, err = h.ledger.Credit(r.Context(), h.guildID, req.UserID.String(), amount)
		} else {
			tr, err = h.ledger.Debit(r.Context(), h.guildID, req.UserID.String(), amount)
		}
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, modifyResponse{
			Status:        "success",
			NewBalance:    tr.BalanceAfter,
			TransactionID: tr.ID,
		}, nil
	}, "modify_balance")
}

// ResolvePlayer maps a Minecraft player to the linked user
// @Summary Resolve linked player
// @Description Returns the user linked to the player name. Signed over the player name.
// @Tags Gateway
// @Produce json
// @Param player path string true "Minecraft player name"
// @Param X-Signature header string true "hex HMAC-SHA256 of player"
// @Success 200 {object} models.GameLink
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /minecraft/links/{player} [get]
func (h *GatewayHandler) ResolvePlayer(w http.ResponseWriter, r *http.Request) {
	link, err := h.links.ResolvePlayer(r.Context(), h.guildID, chi.URLParam(r, "player"))
	if err != nil {
		h.fail(w, r, "resolve_player", err)
		return
	}
	services.SendJSON(w, http.StatusOK, link)
}

// PlayReward credits the play reward to the user linked to a player
// @Summary Reward linked player
// @Description Credits the configured play reward to the user linked to minecraft_username, once per cooldown. The game server calls it for players that are online. Signed over minecraft_username.
// @Tags Gateway
// @Accept json
// @Produce json
// @Param X-Signature header string true "hex HMAC-SHA256 of minecraft_username"
// @Param X-Request-ID header string false "Retry key"
// @Param request body playRewardRequest true "Player"
// @Success 200 {object} playRewardResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /minecraft/reward [post]
func (h *GatewayHandler) PlayReward(w http.ResponseWriter, r *http.Request) {
	var req playRewardRequest
	if !h.validator.DecodeJSON(w, r, &req) {
		metrics.RecordGatewayRejection("malformed")
		return
	}

	if !h.verify(w, r, req.PlayerName) {
		return
	}

	h.once(w, r, func() (int, any, error) {
		link, tr, err := h.links.ClaimPlayReward(r.Context(), h.guildID, req.PlayerName)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, playRewardResponse{
			Status:        "success",
			UserID:        link.UserID,
			Amount:        tr.Amount,
			NewBalance:    tr.BalanceAfter,
			TransactionID: tr.ID,
		}, nil
	}, "play_reward")
}

func (h *GatewayHandler) verify(w http.ResponseWriter, r *http.Request, payload string) bool {
	if err := h.signer.VerifyRequest(r, payload); err != nil {
		metrics.RecordGatewayRejection("signature")
		h.log.WithFields(logrus.Fields{
			"path":   r.URL.Path,
			"remote": r.RemoteAddr,
		}).Warn("gateway signature rejected")
		services.SendLedgerError(w, err)
		return false
	}
	return true
}

// once runs a mutation at most once per X-Request-ID while the replay cache
// remembers it.
func (h *GatewayHandler) once(w http.ResponseWriter, r *http.Request, mutate func() (int, any, error), op string) {
	requestID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
	signature := r.Header.Get(mW.SignatureHeader)

	cached, err := h.replay.Begin(r.Context(), requestID, signature)
	if err != nil {
		services.SendErrorResponse(w, "Request is already being processed", http.StatusConflict, nil)
		return
	}
	if cached != nil {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Replayed", "true")
		w.WriteHeader(http.StatusOK)
		w.Write(cached)
		return
	}

	status, body, err := mutate()
	if err != nil {
		h.replay.Abort(r.Context(), requestID, signature)
		h.fail(w, r, op, err)
		return
	}

	var buf bytes.Buffer
	json.NewEncoder(&buf).Encode(body)
	h.replay.Complete(r.Context(), requestID, signature, buf.Bytes())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func (h *GatewayHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if !models.IsBusinessError(err) {
		h.log.WithError(err).WithFields(logrus.Fields{"op": op, "path": r.URL.Path}).Error("gateway operation failed")
	}
	services.SendLedgerError(w, err)
}

// parseAmount accepts only base-10 integers; 1.5 and 1e3 are malformed.
func parseAmount(w http.ResponseWriter, n json.Number) (int64, bool) {
	amount, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		metrics.RecordGatewayRejection("malformed")
		services.SendLedgerError(w, models.ErrMalformedRequest)
		return 0, false
	}
	return amount, true
}
