package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/halolight/halolight-api-go/internal/auth"
	"github.com/halolight/halolight-api-go/internal/office"
)

const testToken = "good-token"

var testIdentity = auth.Identity{UserID: "user-1", Email: "alice@example.com", Roles: []string{"user"}}

type stubAuth struct {
	registerFn    func(context.Context, auth.RegisterInput) (auth.AuthResult, error)
	loginFn       func(context.Context, string, string) (auth.AuthResult, error)
	refreshFn     func(context.Context, string) (auth.TokenPair, error)
	logoutFn      func(context.Context, string) error
	logoutAllFn   func(context.Context, string) error
	currentUserFn func(context.Context, string) (auth.UserWithRoles, error)
	authorizeFn   func(context.Context, string, string) error

	// identity overrides testIdentity when set.
	identity *auth.Identity
}

func (s *stubAuth) Register(ctx context.Context, in auth.RegisterInput) (auth.AuthResult, error) {
	if s.registerFn != nil {
		return s.registerFn(ctx, in)
	}
	return auth.AuthResult{}, nil
}

func (s *stubAuth) Login(ctx context.Context, email, password string) (auth.AuthResult, error) {
	if s.loginFn != nil {
		return s.loginFn(ctx, email, password)
	}
	return auth.AuthResult{}, nil
}

func (s *stubAuth) Refresh(ctx context.Context, token string) (auth.TokenPair, error) {
	if s.refreshFn != nil {
		return s.refreshFn(ctx, token)
	}
	return auth.TokenPair{}, nil
}

func (s *stubAuth) Logout(ctx context.Context, token string) error {
	if s.logoutFn != nil {
		return s.logoutFn(ctx, token)
	}
	return nil
}

func (s *stubAuth) LogoutAll(ctx context.Context, userID string) error {
	if s.logoutAllFn != nil {
		return s.logoutAllFn(ctx, userID)
	}
	return nil
}

func (s *stubAuth) CurrentUser(ctx context.Context, userID string) (auth.UserWithRoles, error) {
	if s.currentUserFn != nil {
		return s.currentUserFn(ctx, userID)
	}
	return auth.UserWithRoles{User: auth.User{ID: userID}}, nil
}

// Authenticate accepts only testToken.
func (s *stubAuth) Authenticate(_ context.Context, token string) (auth.Identity, error) {
	if token != testToken {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	if s.identity != nil {
		return *s.identity, nil
	}
	return testIdentity, nil
}

func (s *stubAuth) Authorize(ctx context.Context, userID, required string) error {
	if s.authorizeFn != nil {
		return s.authorizeFn(ctx, userID, required)
	}
	return nil
}

// stubAdmin and stubOffice embed the interface; tests override the methods
// they exercise and anything else panics.
type stubAdmin struct {
	AdminService
	listUsersFn        func(context.Context, auth.UserQuery) (auth.Page[auth.User], error)
	deleteUserFn       func(context.Context, string, string) error
	updateUserFn       func(context.Context, string, string, auth.UserUpdate) (auth.User, error)
	createPermissionFn func(context.Context, string, string, string) (auth.Permission, error)
}

func (s *stubAdmin) ListUsers(ctx context.Context, q auth.UserQuery) (auth.Page[auth.User], error) {
	return s.listUsersFn(ctx, q)
}

func (s *stubAdmin) UpdateUser(ctx context.Context, actorID, userID string, upd auth.UserUpdate) (auth.User, error) {
	return s.updateUserFn(ctx, actorID, userID, upd)
}

func (s *stubAdmin) CreatePermission(ctx context.Context, resource, action, description string) (auth.Permission, error) {
	return s.createPermissionFn(ctx, resource, action, description)
}

func (s *stubAdmin) DeleteUser(ctx context.Context, actorID, userID string) error {
	return s.deleteUserFn(ctx, actorID, userID)
}

type stubOffice struct {
	OfficeService
	listNotificationsFn func(context.Context, auth.Identity, office.NotificationQuery) (auth.Page[office.Notification], error)
	shareDocumentFn     func(context.Context, auth.Identity, string, string, office.SharePermission) (office.Document, error)
	statsFn             func(context.Context, auth.Identity) (office.DashboardStats, error)
}

func (s *stubOffice) ListNotifications(ctx context.Context, actor auth.Identity, q office.NotificationQuery) (auth.Page[office.Notification], error) {
	return s.listNotificationsFn(ctx, actor, q)
}

func (s *stubOffice) ShareDocument(ctx context.Context, actor auth.Identity, docID, userID string, perm office.SharePermission) (office.Document, error) {
	return s.shareDocumentFn(ctx, actor, docID, userID, perm)
}

func (s *stubOffice) Stats(ctx context.Context, actor auth.Identity) (office.DashboardStats, error) {
	return s.statsFn(ctx, actor)
}

type readyFunc func(context.Context) error

func (f readyFunc) Check(ctx context.Context) error { return f(ctx) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAPI(d Deps) *API {
	if d.Auth == nil {
		d.Auth = &stubAuth{}
	}
	if d.Logger == nil {
		d.Logger = discardLogger()
	}
	d.Version = "test"
	return New(d)
}

func do(t *testing.T, h http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		payload, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.10:4000"
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}
