package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidAmount           = errors.New("ledger: invalid amount")
	ErrInsufficientFunds       = errors.New("ledger: insufficient funds")
	ErrSelfTransfer            = errors.New("ledger: cannot transfer to self")
	ErrLevelNotFound           = errors.New("ledger: service level not found")
	ErrDuplicateLevelThreshold = errors.New("ledger: service level threshold already exists")
	ErrAuthenticationFailure   = errors.New("ledger: authentication failure")
	ErrMalformedRequest        = errors.New("ledger: malformed request")
	ErrStorageUnavailable      = errors.New("ledger: storage unavailable")
	ErrForbidden               = errors.New("ledger: operation not permitted")
	ErrDailyAlreadyClaimed     = errors.New("ledger: daily reward already claimed")
	ErrRewardAlreadyClaimed    = errors.New("ledger: play reward already claimed")
	ErrAccountAlreadyLinked    = errors.New("ledger: game account already linked")
	ErrGameNameTaken           = errors.New("ledger: game name linked to another user")
	ErrAccountNotLinked        = errors.New("ledger: no linked game account")
)

var errorCodes = map[error]string{
	ErrInvalidAmount:           "invalid_amount",
	ErrInsufficientFunds:       "insufficient_funds",
	ErrSelfTransfer:            "self_transfer",
	ErrLevelNotFound:           "level_not_found",
	ErrDuplicateLevelThreshold: "duplicate_level_threshold",
	ErrAuthenticationFailure:   "authentication_failure",
	ErrMalformedRequest:        "malformed_request",
	ErrStorageUnavailable:      "storage_unavailable",
	ErrForbidden:               "forbidden",
	ErrDailyAlreadyClaimed:     "daily_already_claimed",
	ErrRewardAlreadyClaimed:    "reward_already_claimed",
	ErrAccountAlreadyLinked:    "account_already_linked",
	ErrGameNameTaken:           "game_name_taken",
	ErrAccountNotLinked:        "account_not_linked",
}

// ErrorCode returns the stable machine code for err, or "internal" when err
// does not belong to the ledger taxonomy.
func ErrorCode(err error) string {
	for sentinel, code := range errorCodes {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return "internal"
}

// IsBusinessError reports whether err is a rule violation the caller caused,
// as opposed to an infrastructure failure.
func IsBusinessError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrSelfTransfer) ||
		errors.Is(err, ErrLevelNotFound) ||
		errors.Is(err, ErrDuplicateLevelThreshold) ||
		errors.Is(err, ErrDailyAlreadyClaimed) ||
		errors.Is(err, ErrRewardAlreadyClaimed) ||
		errors.Is(err, ErrAccountAlreadyLinked) ||
		errors.Is(err, ErrGameNameTaken) ||
		errors.Is(err, ErrAccountNotLinked)
}

// StorageError wraps a backend failure so callers can match
// ErrStorageUnavailable while logs keep the driver error.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

// CooldownError is returned by the periodic claims while their cooldown is
// running. Cause is the sentinel it matches; nil means ErrDailyAlreadyClaimed.
type CooldownError struct {
	Remaining time.Duration
	Cause     error
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s (next claim in %s)", e.Unwrap(), e.Remaining.Round(time.Second))
}

func (e *CooldownError) Unwrap() error {
	if e.Cause == nil {
		return ErrDailyAlreadyClaimed
	}
	return e.Cause
}
