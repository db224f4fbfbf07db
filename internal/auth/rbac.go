package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var roleNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{1,49}$`)

// UserInput carries administrative user creation data.
type UserInput struct {
	Email    string
	Username string
	Password string
	Name     string
	Phone    string
	Status   UserStatus
	RoleIDs  []string
}

// UserUpdate is a partial update. Nil fields are left untouched.
type UserUpdate struct {
	Email    *string
	Username *string
	Password *string
	Name     *string
	Phone    *string
	Avatar   *string
	Status   *UserStatus
}

// RoleUpdate is a partial update. A role's name cannot be changed.
type RoleUpdate struct {
	Label       *string
	Description *string
}

// Page is one page of a listing.
type Page[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

// RBACService validates and applies administrative changes to users, roles and permissions.
type RBACService struct {
	store RBACStore
}

func NewRBACService(store RBACStore) (*RBACService, error) {
	if store == nil {
		return nil, errors.New("rbac store is required")
	}
	return &RBACService{store: store}, nil
}

func (s *RBACService) ListUsers(ctx context.Context, q UserQuery) (Page[User], error) {
	q.Search = strings.TrimSpace(q.Search)
	if q.Status != "" && !q.Status.Valid() {
		return Page[User]{}, fmt.Errorf("%w: unsupported status %s", ErrInvalidInput, q.Status)
	}
	q.Page, q.PageSize = normalizePage(q.Page, q.PageSize)
	users, total, err := s.store.ListUsers(ctx, q)
	if err != nil {
		return Page[User]{}, err
	}
	if users == nil {
		users = []User{}
	}
	return Page[User]{Items: users, Total: total, Page: q.Page, PageSize: q.PageSize}, nil
}

func (s *RBACService) GetUser(ctx context.Context, userID string) (UserWithRoles, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return UserWithRoles{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return UserWithRoles{}, err
	}
	roles, err := s.store.RoleNamesForUser(ctx, userID)
	if err != nil {
		return UserWithRoles{}, err
	}
	if roles == nil {
		roles = []string{}
	}
	return UserWithRoles{User: user, Roles: roles, Permissions: []string{}}, nil
}

func (s *RBACService) CreateUser(ctx context.Context, in UserInput) (User, error) {
	email := normalizeEmail(in.Email)
	if err := validateEmail(email); err != nil {
		return User{}, err
	}
	username := strings.TrimSpace(in.Username)
	if err := validateUsername(username); err != nil {
		return User{}, err
	}
	if err := validatePassword(in.Password); err != nil {
		return User{}, err
	}
	status := in.Status
	if status == "" {
		status = StatusActive
	}
	if !status.Valid() {
		return User{}, fmt.Errorf("%w: unsupported status %s", ErrInvalidInput, status)
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return User{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = username
	}
	user := User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Name:         name,
		Phone:        strings.TrimSpace(in.Phone),
		Status:       status,
	}
	if err := s.store.CreateUserWithRoles(ctx, &user, dedupeStrings(in.RoleIDs)); err != nil {
		return User{}, err
	}
	return user, nil
}

// UpdateUser applies a partial update. Actors cannot change their own status.
func (s *RBACService) UpdateUser(ctx context.Context, actorID, userID string, upd UserUpdate) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if upd.Status != nil && userID == actorID {
		return User{}, fmt.Errorf("%w: cannot change your own status", ErrForbidden)
	}
	if upd.Email != nil {
		email := normalizeEmail(*upd.Email)
		if err := validateEmail(email); err != nil {
			return User{}, err
		}
		upd.Email = &email
	}
	if upd.Username != nil {
		username := strings.TrimSpace(*upd.Username)
		if err := validateUsername(username); err != nil {
			return User{}, err
		}
		upd.Username = &username
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		upd.Name = &name
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return User{}, fmt.Errorf("%w: unsupported status %s", ErrInvalidInput, *upd.Status)
	}
	if upd.Password != nil {
		if err := validatePassword(*upd.Password); err != nil {
			return User{}, err
		}
		hash, err := HashPassword(*upd.Password)
		if err != nil {
			return User{}, err
		}
		upd.Password = &hash
	}
	return s.store.UpdateUser(ctx, userID, upd)
}

// UpdateStatus changes only the account status. Actors cannot change their own status.
func (s *RBACService) UpdateStatus(ctx context.Context, actorID, userID string, status UserStatus) (User, error) {
	if !status.Valid() {
		return User{}, fmt.Errorf("%w: unsupported status %s", ErrInvalidInput, status)
	}
	return s.UpdateUser(ctx, actorID, userID, UserUpdate{Status: &status})
}

// DeleteUser removes a user and everything they own. Actors cannot delete themselves.
func (s *RBACService) DeleteUser(ctx context.Context, actorID, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if userID == actorID {
		return fmt.Errorf("%w: cannot delete your own account", ErrForbidden)
	}
	return s.store.DeleteUser(ctx, userID)
}

func (s *RBACService) ListRoles(ctx context.Context) ([]Role, error) {
	roles, err := s.store.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	if roles == nil {
		roles = []Role{}
	}
	return roles, nil
}

func (s *RBACService) GetRole(ctx context.Context, roleID string) (Role, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return Role{}, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return s.store.GetRole(ctx, roleID)
}

func (s *RBACService) CreateRole(ctx context.Context, name, label, description string) (Role, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if !roleNamePattern.MatchString(name) {
		return Role{}, fmt.Errorf("%w: role name must be 2-50 lowercase letters, digits, '-' or '_'", ErrInvalidInput)
	}
	label = strings.TrimSpace(label)
	if label == "" {
		label = name
	}
	return s.store.CreateRole(ctx, name, label, strings.TrimSpace(description))
}

func (s *RBACService) UpdateRole(ctx context.Context, roleID string, upd RoleUpdate) (Role, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return Role{}, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	if upd.Label != nil {
		label := strings.TrimSpace(*upd.Label)
		if label == "" {
			return Role{}, fmt.Errorf("%w: role label is required", ErrInvalidInput)
		}
		upd.Label = &label
	}
	if upd.Description != nil {
		desc := strings.TrimSpace(*upd.Description)
		upd.Description = &desc
	}
	return s.store.UpdateRole(ctx, roleID, upd)
}

func (s *RBACService) DeleteRole(ctx context.Context, roleID string) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return s.store.DeleteRole(ctx, roleID)
}

func (s *RBACService) SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) (Role, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return Role{}, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	if err := s.store.SetRolePermissions(ctx, roleID, dedupeStrings(permissionIDs)); err != nil {
		return Role{}, err
	}
	return s.store.GetRole(ctx, roleID)
}

func (s *RBACService) AssignRole(ctx context.Context, userID, roleID string) error {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	return s.store.AssignRole(ctx, userID, roleID)
}

func (s *RBACService) UnassignRole(ctx context.Context, userID, roleID string) error {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	return s.store.UnassignRole(ctx, userID, roleID)
}

func (s *RBACService) ListPermissions(ctx context.Context) ([]Permission, error) {
	perms, err := s.store.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	if perms == nil {
		perms = []Permission{}
	}
	return perms, nil
}

func (s *RBACService) CreatePermission(ctx context.Context, resource, action, description string) (Permission, error) {
	resource = strings.TrimSpace(strings.ToLower(resource))
	action = strings.TrimSpace(strings.ToLower(action))
	if resource == "" || action == "" {
		return Permission{}, fmt.Errorf("%w: resource and action are required", ErrInvalidInput)
	}
	if strings.Contains(resource, ":") || strings.Contains(action, ":") {
		return Permission{}, fmt.Errorf("%w: resource and action must not contain ':'", ErrInvalidInput)
	}
	return s.store.CreatePermission(ctx, resource, action, strings.TrimSpace(description))
}

func (s *RBACService) DeletePermission(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: permission_id is required", ErrInvalidInput)
	}
	return s.store.DeletePermission(ctx, id)
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
