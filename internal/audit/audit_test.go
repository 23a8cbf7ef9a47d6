package audit_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/mpin-labs/mpinclient/internal/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_Log_WritesAuditMarker(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	logger := audit.NewWithLogger(slog.New(handler))

	logger.Log(context.Background(), audit.EventRegistered, "alice", "proj-1", map[string]string{"device": "laptop"})

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "AUDIT_TRAIL", decoded["log_type"])
	assert.Equal(t, "REGISTERED", decoded["event"])
	assert.Equal(t, "alice", decoded["user_id"])
	assert.Equal(t, "laptop", decoded["meta_device"])
}
