package pg

import (
	"context"
	"time"

	"github.com/halolight/halolight-api-go/internal/auth"
	"github.com/halolight/halolight-api-go/internal/ids"
)

func (s *Store) CreateRefreshToken(ctx context.Context, tok *auth.RefreshToken) error {
	if s.db == nil {
		return errNoDB
	}
	if tok.ID == "" {
		tok.ID = ids.NewUUID()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into refresh_tokens (id, user_id, token, expires_at)
		values ($1, $2, $3, $4)
		returning created_at
	`, tok.ID, tok.UserID, tok.Token, tok.ExpiresAt).Scan(&tok.CreatedAt)
	return translate(err)
}

func (s *Store) FindRefreshToken(ctx context.Context, token string) (auth.RefreshToken, error) {
	if s.db == nil {
		return auth.RefreshToken{}, errNoDB
	}
	var rec auth.RefreshToken
	err := s.db.QueryRowContext(ctx, `
		select id, user_id, token, expires_at, created_at
		from refresh_tokens
		where token = $1
	`, token).Scan(&rec.ID, &rec.UserID, &rec.Token, &rec.ExpiresAt, &rec.CreatedAt)
	if err != nil {
		return auth.RefreshToken{}, translate(err)
	}
	return rec, nil
}

func (s *Store) DeleteRefreshToken(ctx context.Context, token string) (int64, error) {
	return s.deleteTokens(ctx, `delete from refresh_tokens where token = $1`, token)
}

func (s *Store) DeleteRefreshTokensForUser(ctx context.Context, userID string) (int64, error) {
	return s.deleteTokens(ctx, `delete from refresh_tokens where user_id = $1`, userID)
}

func (s *Store) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	return s.deleteTokens(ctx, `delete from refresh_tokens where expires_at < $1`, now)
}

func (s *Store) deleteTokens(ctx context.Context, query string, arg any) (int64, error) {
	if s.db == nil {
		return 0, errNoDB
	}
	res, err := s.db.ExecContext(ctx, query, arg)
	if err != nil {
		return 0, translate(err)
	}
	return res.RowsAffected()
}
