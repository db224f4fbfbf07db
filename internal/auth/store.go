package auth

import (
	"context"
	"time"
)

// UserStore is the credential store used by the auth flows.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	FindUserByID(ctx context.Context, id string) (User, error)
	FindUserByEmail(ctx context.Context, email string) (User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	TouchLastLogin(ctx context.Context, userID string, at time.Time) error
}

// RoleStore resolves role and permission data for a user.
type RoleStore interface {
	RoleNamesForUser(ctx context.Context, userID string) ([]string, error)
	PermissionsForUser(ctx context.Context, userID string) ([]Permission, error)
	// AssignRoleByName returns ErrNotFound when no role has that name.
	AssignRoleByName(ctx context.Context, userID, roleName string) error
}

// RefreshTokenStore manages refresh token lifecycle. Delete methods report the
// number of rows removed.
type RefreshTokenStore interface {
	CreateRefreshToken(ctx context.Context, tok *RefreshToken) error
	FindRefreshToken(ctx context.Context, token string) (RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, token string) (int64, error)
	DeleteRefreshTokensForUser(ctx context.Context, userID string) (int64, error)
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	UserStore
	RoleStore
	RefreshTokenStore
}

// UserQuery filters and paginates user listings.
type UserQuery struct {
	Search   string
	Status   UserStatus
	Page     int
	PageSize int
}

// Offset returns the row offset for the page.
func (q UserQuery) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// RBACStore backs administrative management of users, roles and permissions.
type RBACStore interface {
	ListUsers(ctx context.Context, q UserQuery) ([]User, int, error)
	FindUserByID(ctx context.Context, id string) (User, error)
	// CreateUserWithRoles is atomic: on any failure no user row remains.
	CreateUserWithRoles(ctx context.Context, u *User, roleIDs []string) error
	UpdateUser(ctx context.Context, id string, upd UserUpdate) (User, error)
	DeleteUser(ctx context.Context, id string) error
	RoleNamesForUser(ctx context.Context, userID string) ([]string, error)

	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id string) (Role, error)
	CreateRole(ctx context.Context, name, label, description string) (Role, error)
	UpdateRole(ctx context.Context, id string, upd RoleUpdate) (Role, error)
	// DeleteRole returns ErrConflict while users are still assigned.
	DeleteRole(ctx context.Context, id string) error
	SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error
	AssignRole(ctx context.Context, userID, roleID string) error
	UnassignRole(ctx context.Context, userID, roleID string) error

	ListPermissions(ctx context.Context) ([]Permission, error)
	CreatePermission(ctx context.Context, resource, action, description string) (Permission, error)
	DeletePermission(ctx context.Context, id string) error
}
