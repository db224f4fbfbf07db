package pg

import (
	"context"
	"database/sql"

	"github.com/halolight/halolight-api-go/internal/ids"
	"github.com/halolight/halolight-api-go/internal/office"
)

func (s *Store) ListNotifications(ctx context.Context, q office.NotificationQuery) ([]office.Notification, int, error) {
	if s.db == nil {
		return nil, 0, errNoDB
	}
	filter := `where user_id = $1`
	if q.UnreadOnly {
		filter += ` and not read`
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from notifications `+filter, q.UserID).Scan(&total); err != nil {
		return nil, 0, translate(err)
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, type, title, content, link, read, created_at
		from notifications `+filter+`
		order by created_at desc
		limit $2 offset $3
	`, q.UserID, q.PageSize, q.Offset())
	if err != nil {
		return nil, 0, translate(err)
	}
	defer rows.Close()

	var out []office.Notification
	for rows.Next() {
		var (
			n    office.Notification
			link sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Content, &link, &n.Read, &n.CreatedAt); err != nil {
			return nil, 0, err
		}
		n.Link = link.String
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Store) CountUnread(ctx context.Context, userID string) (int64, error) {
	if s.db == nil {
		return 0, errNoDB
	}
	var n int64
	err := s.db.QueryRowContext(ctx, `select count(*) from notifications where user_id = $1 and not read`, userID).Scan(&n)
	return n, translate(err)
}

func (s *Store) CreateNotification(ctx context.Context, n *office.Notification) error {
	if s.db == nil {
		return errNoDB
	}
	if n.ID == "" {
		n.ID = ids.NewUUID()
	}
	if n.Type == "" {
		n.Type = "system"
	}
	err := s.db.QueryRowContext(ctx, `
		insert into notifications (id, user_id, type, title, content, link)
		values ($1, $2, $3, $4, $5, $6)
		returning created_at
	`, n.ID, n.UserID, n.Type, n.Title, n.Content, nullIfEmpty(n.Link)).Scan(&n.CreatedAt)
	return translate(err)
}

// MarkNotificationRead scopes the update to the owner so one user cannot touch
// another's notifications.
func (s *Store) MarkNotificationRead(ctx context.Context, userID, id string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `update notifications set read = true where id = $1 and user_id = $2`, id, userID)
	if err != nil {
		return translate(err)
	}
	return affected(res)
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	if s.db == nil {
		return 0, errNoDB
	}
	res, err := s.db.ExecContext(ctx, `update notifications set read = true where user_id = $1 and not read`, userID)
	if err != nil {
		return 0, translate(err)
	}
	return res.RowsAffected()
}

func (s *Store) DeleteNotification(ctx context.Context, userID, id string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from notifications where id = $1 and user_id = $2`, id, userID)
	if err != nil {
		return translate(err)
	}
	return affected(res)
}
