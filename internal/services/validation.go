package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/guildbank/backend/internal/models"
)

const maxBodyBytes = 1_048_576

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Code    string            `json:"code,omitempty"`    // Stable machine code
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper
func NewValidationHelper() *ValidationHelper {
	return &ValidationHelper{
		validator: validator.New(),
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// DecodeJSON reads exactly one JSON object from the body into dst and
// validates it. On failure it has already written a 400 response.
func (vh *ValidationHelper) DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	dec.UseNumber()

	if err := dec.Decode(dst); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	if err := vh.ValidateStruct(dst); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

// SendJSON writes v with the given status.
func SendJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	errorResp := ErrorResponse{Error: message}

	var verrs validator.ValidationErrors
	if errors.As(validationErr, &verrs) {
		errorResp.Details = make(map[string]string)
		for _, err := range verrs {
			errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	}

	SendJSON(w, statusCode, errorResp)
}

var ledgerErrorMessages = map[string]string{
	"invalid_amount":            "Amount must be a positive integer within the balance limit",
	"insufficient_funds":        "Insufficient funds",
	"self_transfer":             "Cannot transfer to yourself",
	"level_not_found":           "Service level not found",
	"duplicate_level_threshold": "A service level with this required balance already exists",
	"authentication_failure":    "Invalid signature",
	"malformed_request":         "Malformed request",
	"forbidden":                 "Operation not permitted",
	"daily_already_claimed":     "Daily reward already claimed",
	"reward_already_claimed":    "Play reward already claimed",
	"account_already_linked":    "A game account is already linked",
	"game_name_taken":           "This game name is linked to another user",
	"account_not_linked":        "No linked game account",
	"storage_unavailable":       "Service temporarily unavailable",
	"internal":                  "Internal server error",
}

// StatusForError maps a ledger error onto an HTTP status.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrLevelNotFound), errors.Is(err, models.ErrAccountNotLinked):
		return http.StatusNotFound
	case errors.Is(err, models.ErrAuthenticationFailure), errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrMalformedRequest), models.IsBusinessError(err):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// SendLedgerError renders err through the error taxonomy. Only the fixed
// message for its code reaches the client.
func SendLedgerError(w http.ResponseWriter, err error) {
	code := models.ErrorCode(err)
	resp := ErrorResponse{Error: ledgerErrorMessages[code], Code: code}

	var cooldown *models.CooldownError
	if errors.As(err, &cooldown) {
		resp.Details = map[string]string{"retry_after": cooldown.Remaining.Round(time.Second).String()}
	}

	SendJSON(w, StatusForError(err), resp)
}
