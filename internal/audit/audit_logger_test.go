package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/guildbank/backend/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var line map[string]any
		require.NoError(t, dec.Decode(&line))
		out = append(out, line)
	}
	return out
}

func TestAuditLogger(t *testing.T) {
	var buf bytes.Buffer
	a := NewAuditLogger(logger.NewWithWriter(&buf, "info", "json"))

	a.LogTransfer("tx1", "g1", "alice", "bob", 500, "SUCCESS")
	a.LogError("g1", "alice", "debit", errors.New("boom"))
	a.LogOperation("tx2", "g1", "bob", "CREDIT", 20)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 3)

	transfer := lines[0]["audit"].(map[string]any)
	assert.Equal(t, "TRANSFER", transfer["event_type"])
	assert.Equal(t, "tx1", transfer["transaction_id"])
	assert.Equal(t, float64(500), transfer["amount"])
	assert.Equal(t, "info", lines[0]["level"])

	failure := lines[1]["audit"].(map[string]any)
	assert.Equal(t, "FAILED", failure["status"])
	assert.Equal(t, "warning", lines[1]["level"])

	op := lines[2]["audit"].(map[string]any)
	assert.Equal(t, "CREDIT", op["event_type"])
	assert.Equal(t, "bob", op["account_id"])
}
