package auth

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRBACStore struct {
	RBACStore

	listUsers  func(ctx context.Context, q UserQuery) ([]User, int, error)
	createUser func(ctx context.Context, u *User, roleIDs []string) error
	updateUser func(ctx context.Context, id string, upd UserUpdate) (User, error)
	deleteUser func(ctx context.Context, id string) error
	assignRole func(ctx context.Context, userID, roleID string) error
	createRole func(ctx context.Context, name, label, description string) (Role, error)
	createPerm func(ctx context.Context, resource, action, description string) (Permission, error)
}

func (s *stubRBACStore) ListUsers(ctx context.Context, q UserQuery) ([]User, int, error) {
	return s.listUsers(ctx, q)
}

func (s *stubRBACStore) CreateUserWithRoles(ctx context.Context, u *User, roleIDs []string) error {
	return s.createUser(ctx, u, roleIDs)
}

func (s *stubRBACStore) UpdateUser(ctx context.Context, id string, upd UserUpdate) (User, error) {
	return s.updateUser(ctx, id, upd)
}

func (s *stubRBACStore) DeleteUser(ctx context.Context, id string) error {
	return s.deleteUser(ctx, id)
}

func (s *stubRBACStore) AssignRole(ctx context.Context, userID, roleID string) error {
	return s.assignRole(ctx, userID, roleID)
}

func (s *stubRBACStore) CreateRole(ctx context.Context, name, label, description string) (Role, error) {
	return s.createRole(ctx, name, label, description)
}

func (s *stubRBACStore) CreatePermission(ctx context.Context, resource, action, description string) (Permission, error) {
	return s.createPerm(ctx, resource, action, description)
}

func TestNewRBACServiceRequiresStore(t *testing.T) {
	_, err := NewRBACService(nil)
	require.Error(t, err)
}

func TestListUsersNormalizesPaging(t *testing.T) {
	var got UserQuery
	store := &stubRBACStore{listUsers: func(_ context.Context, q UserQuery) ([]User, int, error) {
		got = q
		return nil, 0, nil
	}}
	svc, err := NewRBACService(store)
	require.NoError(t, err)

	page, err := svc.ListUsers(context.Background(), UserQuery{Page: -1, PageSize: 1000, Search: "  al "})
	require.NoError(t, err)
	assert.Equal(t, 1, got.Page)
	assert.Equal(t, maxPageSize, got.PageSize)
	assert.Equal(t, "al", got.Search)
	assert.Equal(t, 0, got.Offset())
	assert.NotNil(t, page.Items)

	_, err = svc.ListUsers(context.Background(), UserQuery{Status: "deleted"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateUserHashesAndAssignsRoles(t *testing.T) {
	var (
		created  User
		assigned []string
	)
	store := &stubRBACStore{
		createUser: func(_ context.Context, u *User, roleIDs []string) error {
			u.ID = "u-1"
			created = *u
			assigned = roleIDs
			return nil
		},
	}
	svc, err := NewRBACService(store)
	require.NoError(t, err)

	user, err := svc.CreateUser(context.Background(), UserInput{
		Email:    " Carol@Example.com",
		Username: "carol",
		Password: "secret123",
		RoleIDs:  []string{"r-1", "r-1", " ", "r-2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)
	assert.Equal(t, "carol@example.com", created.Email)
	assert.Equal(t, "carol", created.Name)
	assert.Equal(t, StatusActive, created.Status)
	assert.NoError(t, VerifyPassword(created.PasswordHash, "secret123"))
	assert.Equal(t, []string{"r-1", "r-2"}, assigned)

	_, err = svc.CreateUser(context.Background(), UserInput{
		Email: "x@example.com", Username: "xavier", Password: "secret123", Status: "archived",
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateUserUnknownRoleLeavesNoUser(t *testing.T) {
	users := map[string]User{}
	store := &stubRBACStore{
		createUser: func(_ context.Context, u *User, roleIDs []string) error {
			for _, id := range roleIDs {
				if id != "r-1" {
					return fmt.Errorf("assign role %s: %w", id, ErrNotFound)
				}
			}
			u.ID = "u-1"
			users[u.Email] = *u
			return nil
		},
	}
	svc, err := NewRBACService(store)
	require.NoError(t, err)

	in := UserInput{Email: "dave@example.com", Username: "dave", Password: "secret123", RoleIDs: []string{"r-1", "r-missing"}}
	_, err = svc.CreateUser(context.Background(), in)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, users)

	in.RoleIDs = []string{"r-1"}
	user, err := svc.CreateUser(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)
	assert.Len(t, users, 1)
}

func TestCreateUserRejectsOverlongPassword(t *testing.T) {
	store := &stubRBACStore{createUser: func(context.Context, *User, []string) error {
		t.Fatal("store must not be reached")
		return nil
	}}
	svc, err := NewRBACService(store)
	require.NoError(t, err)

	_, err = svc.CreateUser(context.Background(), UserInput{
		Email: "erin@example.com", Username: "erin", Password: strings.Repeat("a", 80),
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpdateUserValidatesAndHashes(t *testing.T) {
	var got UserUpdate
	store := &stubRBACStore{updateUser: func(_ context.Context, id string, upd UserUpdate) (User, error) {
		got = upd
		return User{ID: id}, nil
	}}
	svc, err := NewRBACService(store)
	require.NoError(t, err)

	email := "NEW@example.com"
	pw := "another-secret"
	_, err = svc.UpdateUser(context.Background(), "admin", "u-1", UserUpdate{Email: &email, Password: &pw})
	require.NoError(t, err)
	require.NotNil(t, got.Email)
	assert.Equal(t, "new@example.com", *got.Email)
	require.NotNil(t, got.Password)
	assert.NoError(t, VerifyPassword(*got.Password, "another-secret"))

	bad := UserStatus("gone")
	_, err = svc.UpdateUser(context.Background(), "admin", "u-1", UserUpdate{Status: &bad})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.UpdateUser(context.Background(), "admin", "", UserUpdate{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSelfServiceGuards(t *testing.T) {
	deleted := ""
	store := &stubRBACStore{
		deleteUser: func(_ context.Context, id string) error {
			deleted = id
			return nil
		},
		updateUser: func(_ context.Context, id string, upd UserUpdate) (User, error) {
			u := User{ID: id}
			if upd.Status != nil {
				u.Status = *upd.Status
			}
			return u, nil
		},
	}
	svc, err := NewRBACService(store)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteUser(context.Background(), "me", "me"), ErrForbidden)
	require.NoError(t, svc.DeleteUser(context.Background(), "me", "them"))
	assert.Equal(t, "them", deleted)

	_, err = svc.UpdateStatus(context.Background(), "me", "me", StatusSuspended)
	assert.ErrorIs(t, err, ErrForbidden)
	user, err := svc.UpdateStatus(context.Background(), "me", "them", StatusSuspended)
	require.NoError(t, err)
	assert.Equal(t, StatusSuspended, user.Status)

	suspended := StatusSuspended
	_, err = svc.UpdateUser(context.Background(), "me", " me ", UserUpdate{Status: &suspended})
	assert.ErrorIs(t, err, ErrForbidden)
	name := "Me"
	_, err = svc.UpdateUser(context.Background(), "me", "me", UserUpdate{Name: &name})
	assert.NoError(t, err)
}

func TestCreateRoleValidation(t *testing.T) {
	store := &stubRBACStore{createRole: func(_ context.Context, name, label, description string) (Role, error) {
		return Role{ID: "r-1", Name: name, Label: label, Description: description}, nil
	}}
	svc, err := NewRBACService(store)
	require.NoError(t, err)

	role, err := svc.CreateRole(context.Background(), " Editor ", "", " edits ")
	require.NoError(t, err)
	assert.Equal(t, "editor", role.Name)
	assert.Equal(t, "editor", role.Label)
	assert.Equal(t, "edits", role.Description)

	for _, name := range []string{"", "x", "has space", "9lives"} {
		_, err := svc.CreateRole(context.Background(), name, "", "")
		assert.ErrorIs(t, err, ErrInvalidInput, "name %q", name)
	}
}

func TestCreatePermissionValidation(t *testing.T) {
	store := &stubRBACStore{createPerm: func(_ context.Context, resource, action, description string) (Permission, error) {
		return Permission{ID: "p-1", Resource: resource, Action: action}, nil
	}}
	svc, err := NewRBACService(store)
	require.NoError(t, err)

	perm, err := svc.CreatePermission(context.Background(), "Reports", "*", "")
	require.NoError(t, err)
	assert.Equal(t, "reports:*", perm.Key())

	_, err = svc.CreatePermission(context.Background(), "reports:x", "read", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.CreatePermission(context.Background(), "", "read", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
