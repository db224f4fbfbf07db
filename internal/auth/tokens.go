package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/halolight/halolight-api-go/internal/ids"
)

// Default token lifetimes, used when configuration is absent or unparsable.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Token type discriminators carried in the token_type claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims represents JWT claims used by both token kinds.
type Claims struct {
	Email     string `json:"email,omitempty"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim.
func (c Claims) UserID() string { return c.Subject }

// TokenIssuer signs and verifies access and refresh tokens with HS256.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// IssuerOption configures TokenIssuer behavior.
type IssuerOption func(*TokenIssuer) error

// WithRefreshSecret signs refresh tokens with a separate key. Empty keeps the access secret.
func WithRefreshSecret(secret string) IssuerOption {
	return func(t *TokenIssuer) error {
		if secret = strings.TrimSpace(secret); secret != "" {
			t.refreshSecret = []byte(secret)
		}
		return nil
	}
}

// WithIssuer sets the iss claim and requires it on verification.
func WithIssuer(issuer string) IssuerOption {
	return func(t *TokenIssuer) error {
		t.issuer = strings.TrimSpace(issuer)
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) IssuerOption {
	return func(t *TokenIssuer) error {
		if ttl > 0 {
			t.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) IssuerOption {
	return func(t *TokenIssuer) error {
		if ttl > 0 {
			t.refreshTTL = ttl
		}
		return nil
	}
}

// WithTokenClock overrides the time source used for issuing and verifying.
func WithTokenClock(fn func() time.Time) IssuerOption {
	return func(t *TokenIssuer) error {
		if fn != nil {
			t.now = fn
		}
		return nil
	}
}

// NewTokenIssuer constructs a TokenIssuer. The secret is mandatory.
func NewTokenIssuer(secret string, opts ...IssuerOption) (*TokenIssuer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: token secret is required")
	}
	t := &TokenIssuer{
		accessSecret: []byte(secret),
		accessTTL:    DefaultAccessTTL,
		refreshTTL:   DefaultRefreshTTL,
		now:          time.Now,
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	if len(t.refreshSecret) == 0 {
		t.refreshSecret = t.accessSecret
	}
	return t, nil
}

// AccessTTL returns the configured access token lifetime.
func (t *TokenIssuer) AccessTTL() time.Duration { return t.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (t *TokenIssuer) RefreshTTL() time.Duration { return t.refreshTTL }

// ExpiresIn is the access token lifetime in whole seconds.
func (t *TokenIssuer) ExpiresIn() int64 { return int64(t.accessTTL / time.Second) }

// IssueAccessToken signs a short-lived access token for the user.
func (t *TokenIssuer) IssueAccessToken(userID, email string) (string, time.Time, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", time.Time{}, errors.New("auth: userID is required")
	}
	return t.sign(Claims{Email: email, TokenType: TokenTypeAccess}, userID, t.accessTTL, t.accessSecret)
}

// IssueRefreshToken signs a long-lived refresh token for the user. Each token
// carries a unique jti so two tokens minted in the same second still differ.
func (t *TokenIssuer) IssueRefreshToken(userID string) (string, time.Time, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", time.Time{}, errors.New("auth: userID is required")
	}
	return t.sign(Claims{TokenType: TokenTypeRefresh}, userID, t.refreshTTL, t.refreshSecret)
}

// VerifyAccessToken validates signature, expiry and the access discriminator.
func (t *TokenIssuer) VerifyAccessToken(token string) (Claims, error) {
	return t.verify(token, TokenTypeAccess, t.accessSecret)
}

// VerifyRefreshToken validates signature, expiry and the refresh discriminator.
func (t *TokenIssuer) VerifyRefreshToken(token string) (Claims, error) {
	return t.verify(token, TokenTypeRefresh, t.refreshSecret)
}

func (t *TokenIssuer) sign(claims Claims, userID string, ttl time.Duration, secret []byte) (string, time.Time, error) {
	now := t.now().UTC()
	exp := now.Add(ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    t.issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        ids.New(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", claims.TokenType, err)
	}
	return signed, exp, nil
}

func (t *TokenIssuer) verify(token, tokenType string, secret []byte) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.TokenType != tokenType || strings.TrimSpace(claims.Subject) == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
