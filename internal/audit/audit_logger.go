// Package audit emits one structured event per ledger mutation.
package audit

import (
	"time"

	"github.com/sirupsen/logrus"
)

type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	EventType     string    `json:"event_type"`
	TransactionID string    `json:"transaction_id,omitempty"`
	GuildID       string    `json:"guild_id"`
	AccountID     string    `json:"account_id,omitempty"`
	Amount        int64     `json:"amount"`
	Status        string    `json:"status"`
	Details       any       `json:"details,omitempty"`
}

// Logger is what the ledger needs from an audit sink.
type Logger interface {
	LogTransfer(transactionID, guildID, fromUser, toUser string, amount int64, status string)
	LogError(guildID, accountID, operation string, err error)
	LogOperation(transactionID, guildID, accountID, operation string, amount int64)
}

type AuditLogger struct {
	log *logrus.Logger
}

func NewAuditLogger(log *logrus.Logger) *AuditLogger {
	return &AuditLogger{log: log}
}

func (a *AuditLogger) LogTransfer(transactionID, guildID, fromUser, toUser string, amount int64, status string) {
	a.emit(Event{
		Timestamp:     time.Now(),
		EventType:     "TRANSFER",
		TransactionID: transactionID,
		GuildID:       guildID,
		AccountID:     fromUser,
		Amount:        amount,
		Status:        status,
		Details: map[string]string{
			"from_user": fromUser,
			"to_user":   toUser,
		},
	})
}

func (a *AuditLogger) LogError(guildID, accountID, operation string, err error) {
	a.emit(Event{
		Timestamp: time.Now(),
		EventType: "ERROR",
		GuildID:   guildID,
		AccountID: accountID,
		Status:    "FAILED",
		Details:   map[string]string{"operation": operation, "error": err.Error()},
	})
}

func (a *AuditLogger) LogOperation(transactionID, guildID, accountID, operation string, amount int64) {
	a.emit(Event{
		Timestamp:     time.Now(),
		EventType:     operation,
		TransactionID: transactionID,
		GuildID:       guildID,
		AccountID:     accountID,
		Amount:        amount,
		Status:        "SUCCESS",
	})
}

func (a *AuditLogger) emit(event Event) {
	level := logrus.InfoLevel
	if event.Status == "FAILED" {
		level = logrus.WarnLevel
	}
	a.log.WithField("audit", event).Log(level, "AUDIT")
}
