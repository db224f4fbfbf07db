package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halolight/halolight-api-go/internal/auth"
)

func TestLogEvent(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { SetLogger(slog.Default()) })

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-123")
	ctx = auth.ContextWithIdentity(ctx, auth.Identity{UserID: "user-42", Roles: []string{"admin"}})

	require.NoError(t, LogEvent(ctx, "user.deleted", map[string]any{"target": "user-7"}))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "audit", entry["type"])
	assert.Equal(t, "user.deleted", entry["event"])
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "user-42", entry["user_id"])
	fields, ok := entry["fields"].(map[string]any)
	require.True(t, ok, "fields group missing: %v", entry)
	assert.Equal(t, "user-7", fields["target"])
}

func TestLogEventRequiresName(t *testing.T) {
	assert.Error(t, LogEvent(context.Background(), "  ", nil))
}
