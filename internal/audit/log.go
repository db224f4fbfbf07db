package audit

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/halolight/halolight-api-go/internal/auth"
)

var current atomic.Pointer[slog.Logger]

// SetLogger routes audit entries to l. Until called, slog.Default is used.
func SetLogger(l *slog.Logger) {
	if l != nil {
		current.Store(l)
	}
}

func logger() *slog.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	return slog.Default()
}

// LogEvent writes an audit entry enriched with the request id and the
// authenticated user, when present in ctx.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	attrs := []slog.Attr{
		slog.String("type", "audit"),
		slog.String("event", event),
	}
	if rid := middleware.GetReqID(ctx); rid != "" {
		attrs = append(attrs, slog.String("request_id", rid))
	}
	if id, ok := auth.IdentityFromContext(ctx); ok {
		attrs = append(attrs, slog.String("user_id", id.UserID))
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	group := make([]any, 0, len(keys))
	for _, k := range keys {
		group = append(group, slog.Any(k, fields[k]))
	}
	attrs = append(attrs, slog.Group("fields", group...))

	logger().LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
	return nil
}
