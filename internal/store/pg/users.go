package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/halolight/halolight-api-go/internal/auth"
	"github.com/halolight/halolight-api-go/internal/ids"
)

const userColumns = `id, email, username, password_hash, name, phone, avatar, status, last_login_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (auth.User, error) {
	var (
		u         auth.User
		phone     sql.NullString
		avatar    sql.NullString
		status    string
		lastLogin sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Name, &phone, &avatar,
		&status, &lastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return auth.User{}, err
	}
	u.Phone = phone.String
	u.Avatar = avatar.String
	u.Status = auth.UserStatus(status)
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return u, nil
}

// rowQuerier is satisfied by both *sql.DB and *sql.Tx.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	if s.db == nil {
		return errNoDB
	}
	return insertUser(ctx, s.db, u)
}

// CreateUserWithRoles inserts the user and its role assignments in one
// transaction. An unknown role id leaves no user behind.
func (s *Store) CreateUserWithRoles(ctx context.Context, u *auth.User, roleIDs []string) error {
	if s.db == nil {
		return errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertUser(ctx, tx, u); err != nil {
		return err
	}
	for _, roleID := range roleIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into user_roles (user_id, role_id)
			values ($1, $2)
			on conflict do nothing
		`, u.ID, roleID); err != nil {
			return fmt.Errorf("assign role %s: %w", roleID, translate(err))
		}
	}
	return tx.Commit()
}

func insertUser(ctx context.Context, q rowQuerier, u *auth.User) error {
	if u.ID == "" {
		u.ID = ids.NewUUID()
	}
	if u.Status == "" {
		u.Status = auth.StatusActive
	}
	row := q.QueryRowContext(ctx, `
		insert into users (id, email, username, password_hash, name, phone, status)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning created_at, updated_at
	`, u.ID, u.Email, u.Username, u.PasswordHash, u.Name, nullIfEmpty(u.Phone), string(u.Status))
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		return translate(err)
	}
	return nil
}

func (s *Store) FindUserByID(ctx context.Context, id string) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id))
	if err != nil {
		return auth.User{}, translate(err)
	}
	return u, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where email = $1`, email))
	if err != nil {
		return auth.User{}, translate(err)
	}
	return u, nil
}

func (s *Store) EmailExists(ctx context.Context, email string) (bool, error) {
	return s.exists(ctx, `select exists(select 1 from users where email = $1)`, email)
}

func (s *Store) UsernameExists(ctx context.Context, username string) (bool, error) {
	return s.exists(ctx, `select exists(select 1 from users where username = $1)`, username)
}

func (s *Store) exists(ctx context.Context, query string, args ...any) (bool, error) {
	if s.db == nil {
		return false, errNoDB
	}
	var ok bool
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (s *Store) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `update users set last_login_at = $1 where id = $2`, at, userID)
	if err != nil {
		return translate(err)
	}
	return affected(res)
}

func (s *Store) ListUsers(ctx context.Context, q auth.UserQuery) ([]auth.User, int, error) {
	if s.db == nil {
		return nil, 0, errNoDB
	}
	var (
		where []string
		args  []any
	)
	if q.Search != "" {
		args = append(args, "%"+q.Search+"%")
		where = append(where, fmt.Sprintf("(email ilike $%d or username ilike $%d or name ilike $%d)", len(args), len(args), len(args)))
	}
	if q.Status != "" {
		args = append(args, string(q.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " where " + strings.Join(where, " and ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from users`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, q.PageSize, q.Offset())
	query := fmt.Sprintf(`select %s from users%s order by created_at desc limit $%d offset $%d`,
		userColumns, clause, len(args)-1, len(args))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (s *Store) UpdateUser(ctx context.Context, id string, upd auth.UserUpdate) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.Email != nil {
		set("email", *upd.Email)
	}
	if upd.Username != nil {
		set("username", *upd.Username)
	}
	if upd.Password != nil {
		set("password_hash", *upd.Password)
	}
	if upd.Name != nil {
		set("name", *upd.Name)
	}
	if upd.Phone != nil {
		set("phone", nullIfEmpty(*upd.Phone))
	}
	if upd.Avatar != nil {
		set("avatar", nullIfEmpty(*upd.Avatar))
	}
	if upd.Status != nil {
		set("status", string(*upd.Status))
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		args = append(args, id)
		query := fmt.Sprintf(`update users set %s where id = $%d`, strings.Join(sets, ", "), len(args))
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return auth.User{}, translate(err)
		}
		if err := affected(res); err != nil {
			return auth.User{}, err
		}
	}
	return s.FindUserByID(ctx, id)
}

// DeleteUser hard-deletes the user; owned rows go with it through cascades.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from users where id = $1`, id)
	if err != nil {
		return translate(err)
	}
	return affected(res)
}

// CountUsers counts all users, or only those with the given status.
func (s *Store) CountUsers(ctx context.Context, status auth.UserStatus) (int64, error) {
	if s.db == nil {
		return 0, errNoDB
	}
	var n int64
	var err error
	if status == "" {
		err = s.db.QueryRowContext(ctx, `select count(*) from users`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `select count(*) from users where status = $1`, string(status)).Scan(&n)
	}
	return n, err
}
