package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"
)

const defaultRoleName = "user"

// Service implements the register/login/refresh/logout flows on top of a Store
// and a TokenIssuer. It holds no per-call state; refresh token state lives in the store.
type Service struct {
	store       Store
	tokens      *TokenIssuer
	now         func() time.Time
	defaultRole string
	logger      *slog.Logger
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithDefaultRole sets the role assigned at registration. Empty disables assignment.
func WithDefaultRole(name string) ServiceOption {
	return func(s *Service) error {
		s.defaultRole = strings.TrimSpace(name)
		return nil
	}
}

// WithLogger sets the logger used for best-effort failures.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) error {
		if l != nil {
			s.logger = l
		}
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(store Store, tokens *TokenIssuer, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token issuer is required")
	}
	svc := &Service{
		store:       store,
		tokens:      tokens,
		now:         time.Now,
		defaultRole: defaultRoleName,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Tokens exposes the issuer for callers that need TTL details.
func (s *Service) Tokens() *TokenIssuer { return s.tokens }

// TokenPair represents access and refresh tokens along with their expirations.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64
}

// AuthResult is returned by register and login.
type AuthResult struct {
	User   UserWithRoles
	Tokens TokenPair
}

// RegisterInput carries self-service signup data.
type RegisterInput struct {
	Email    string
	Username string
	Password string
	Name     string
	Phone    string
}

func (in RegisterInput) normalize() (RegisterInput, error) {
	in.Email = normalizeEmail(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	if err := validateEmail(in.Email); err != nil {
		return in, err
	}
	if err := validateUsername(in.Username); err != nil {
		return in, err
	}
	if err := validatePassword(in.Password); err != nil {
		return in, err
	}
	if in.Name == "" {
		in.Name = in.Username
	}
	return in, nil
}

// Register creates an active account, assigns the default role when it exists
// and issues a persisted token pair.
func (s *Service) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	in, err := in.normalize()
	if err != nil {
		return AuthResult{}, err
	}
	exists, err := s.store.EmailExists(ctx, in.Email)
	if err != nil {
		return AuthResult{}, err
	}
	if exists {
		return AuthResult{}, fmt.Errorf("%w: email already registered", ErrConflict)
	}
	exists, err = s.store.UsernameExists(ctx, in.Username)
	if err != nil {
		return AuthResult{}, err
	}
	if exists {
		return AuthResult{}, fmt.Errorf("%w: username already taken", ErrConflict)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return AuthResult{}, err
	}
	user := User{
		Email:        in.Email,
		Username:     in.Username,
		PasswordHash: hash,
		Name:         in.Name,
		Phone:        in.Phone,
		Status:       StatusActive,
	}
	if err := s.store.CreateUser(ctx, &user); err != nil {
		return AuthResult{}, err
	}

	if s.defaultRole != "" {
		if err := s.store.AssignRoleByName(ctx, user.ID, s.defaultRole); err != nil && !errors.Is(err, ErrNotFound) {
			s.logger.WarnContext(ctx, "assign default role failed",
				slog.String("user_id", user.ID),
				slog.String("role", s.defaultRole),
				slog.Any("error", err))
		}
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return AuthResult{}, err
	}
	profile, err := s.project(ctx, user)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{User: profile, Tokens: pair}, nil
}

// Login authenticates credentials. Unknown email and wrong password fail with
// the same ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return AuthResult{}, ErrInvalidCredentials
	}
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			burnPasswordCheck(password)
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return AuthResult{}, ErrInvalidCredentials
	}
	if user.Status != StatusActive {
		return AuthResult{}, ErrAccountInactive
	}

	now := s.now().UTC()
	if err := s.store.TouchLastLogin(ctx, user.ID, now); err != nil {
		return AuthResult{}, err
	}
	user.LastLoginAt = &now

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return AuthResult{}, err
	}
	profile, err := s.project(ctx, user)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{User: profile, Tokens: pair}, nil
}

// Refresh redeems a refresh token. The stored row is authoritative: it must
// exist, belong to the token subject and be unexpired. The row is consumed and
// replaced, so each refresh token works exactly once.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return TokenPair{}, ErrInvalidToken
	}
	refreshToken = strings.TrimSpace(refreshToken)

	rec, err := s.store.FindRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrInvalidToken
		}
		return TokenPair{}, err
	}
	if rec.UserID != claims.UserID() || !s.now().Before(rec.ExpiresAt) {
		return TokenPair{}, ErrInvalidToken
	}

	user, err := s.store.FindUserByID(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrInvalidToken
		}
		return TokenPair{}, err
	}
	if user.Status != StatusActive {
		return TokenPair{}, ErrAccountInactive
	}

	// A concurrent refresh that already consumed the row leaves nothing to delete.
	deleted, err := s.store.DeleteRefreshToken(ctx, refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	if deleted == 0 {
		return TokenPair{}, ErrInvalidToken
	}
	return s.issuePair(ctx, user)
}

// Logout revokes a single refresh token. Unknown tokens are not an error.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return fmt.Errorf("%w: refreshToken is required", ErrInvalidInput)
	}
	_, err := s.store.DeleteRefreshToken(ctx, refreshToken)
	return err
}

// LogoutAll revokes every refresh token owned by the user.
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	_, err := s.store.DeleteRefreshTokensForUser(ctx, userID)
	return err
}

// CurrentUser returns the user with role names and flattened permissions.
func (s *Service) CurrentUser(ctx context.Context, userID string) (UserWithRoles, error) {
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return UserWithRoles{}, err
	}
	return s.project(ctx, user)
}

// Authenticate verifies an access token and resolves the caller's current roles.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (Identity, error) {
	claims, err := s.tokens.VerifyAccessToken(accessToken)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	roles, err := s.store.RoleNamesForUser(ctx, claims.UserID())
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: claims.UserID(), Email: claims.Email, Roles: roles}, nil
}

// Authorize re-resolves the user's permissions and checks required against them.
func (s *Service) Authorize(ctx context.Context, userID, required string) error {
	profile, err := s.CurrentUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrUnauthorized
		}
		return err
	}
	if !profile.HasPermission(required) {
		return fmt.Errorf("%w: missing permission %s", ErrForbidden, required)
	}
	return nil
}

// SweepExpired deletes refresh tokens whose stored expiry has passed.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredRefreshTokens(ctx, s.now().UTC())
}

func (s *Service) issuePair(ctx context.Context, user User) (TokenPair, error) {
	access, accessExp, err := s.tokens.IssueAccessToken(user.ID, user.Email)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.tokens.IssueRefreshToken(user.ID)
	if err != nil {
		return TokenPair{}, err
	}
	rec := RefreshToken{UserID: user.ID, Token: refresh, ExpiresAt: refreshExp}
	if err := s.store.CreateRefreshToken(ctx, &rec); err != nil {
		return TokenPair{}, fmt.Errorf("persist refresh token: %w", err)
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		ExpiresIn:        s.tokens.ExpiresIn(),
	}, nil
}

func (s *Service) project(ctx context.Context, user User) (UserWithRoles, error) {
	roles, err := s.store.RoleNamesForUser(ctx, user.ID)
	if err != nil {
		return UserWithRoles{}, err
	}
	perms, err := s.store.PermissionsForUser(ctx, user.ID)
	if err != nil {
		return UserWithRoles{}, err
	}
	if roles == nil {
		roles = []string{}
	}
	return UserWithRoles{User: user, Roles: roles, Permissions: permissionKeys(perms)}, nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func validateEmail(email string) error {
	at := strings.Index(email, "@")
	if email == "" || at <= 0 || at == len(email)-1 {
		return fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	return nil
}

func validateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < 3 || n > 50 {
		return fmt.Errorf("%w: username must be 3-50 characters", ErrInvalidInput)
	}
	return nil
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < 6 {
		return fmt.Errorf("%w: password must be at least 6 characters", ErrInvalidInput)
	}
	if len(password) > MaxPasswordBytes {
		return fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidInput, MaxPasswordBytes)
	}
	return nil
}
