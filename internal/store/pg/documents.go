package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/halolight/halolight-api-go/internal/ids"
	"github.com/halolight/halolight-api-go/internal/office"
)

const documentColumns = `d.id, d.title, d.content, d.type, d.size, d.owner_id, d.team_id, d.created_at, d.updated_at,
	coalesce((select string_agg(t.tag, chr(31) order by t.tag) from document_tags t where t.document_id = d.id), '')`

// tagSeparator joins aggregated tags; normalized tags never contain it.
const tagSeparator = "\x1f"

// visibleTo restricts documents to those the viewer owns, was shared, or can
// reach through team membership. The placeholder index is the viewer id.
func visibleTo(idx int) string {
	return fmt.Sprintf(`(d.owner_id = $%[1]d
		or exists (select 1 from document_shares s where s.document_id = d.id and s.user_id = $%[1]d)
		or exists (select 1 from team_members m where m.team_id = d.team_id and m.user_id = $%[1]d))`, idx)
}

func scanDocument(row rowScanner) (office.Document, error) {
	var (
		d      office.Document
		teamID sql.NullString
		tags   string
	)
	if err := row.Scan(&d.ID, &d.Title, &d.Content, &d.Type, &d.Size, &d.OwnerID, &teamID,
		&d.CreatedAt, &d.UpdatedAt, &tags); err != nil {
		return office.Document{}, err
	}
	d.TeamID = teamID.String
	d.Tags = []string{}
	if tags != "" {
		d.Tags = strings.Split(tags, tagSeparator)
	}
	return d, nil
}

func (s *Store) ListDocuments(ctx context.Context, q office.DocumentQuery) ([]office.Document, int, error) {
	if s.db == nil {
		return nil, 0, errNoDB
	}
	args := []any{q.ViewerID}
	where := []string{visibleTo(1)}
	if q.Search != "" {
		args = append(args, "%"+q.Search+"%")
		where = append(where, fmt.Sprintf("(d.title ilike $%d or d.content ilike $%d)", len(args), len(args)))
	}
	if q.Type != "" {
		args = append(args, q.Type)
		where = append(where, fmt.Sprintf("d.type = $%d", len(args)))
	}
	if q.TeamID != "" {
		args = append(args, q.TeamID)
		where = append(where, fmt.Sprintf("d.team_id = $%d", len(args)))
	}
	if q.Tag != "" {
		args = append(args, q.Tag)
		where = append(where, fmt.Sprintf("exists (select 1 from document_tags t where t.document_id = d.id and t.tag = $%d)", len(args)))
	}
	clause := " where " + strings.Join(where, " and ")

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from documents d`+clause, args...).Scan(&total); err != nil {
		return nil, 0, translate(err)
	}

	args = append(args, q.PageSize, q.Offset())
	query := fmt.Sprintf(`select %s from documents d%s order by d.updated_at desc limit $%d offset $%d`,
		documentColumns, clause, len(args)-1, len(args))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, translate(err)
	}
	defer rows.Close()

	var docs []office.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// GetDocument returns the document with tags and shares.
func (s *Store) GetDocument(ctx context.Context, id string) (office.Document, error) {
	if s.db == nil {
		return office.Document{}, errNoDB
	}
	d, err := scanDocument(s.db.QueryRowContext(ctx, `select `+documentColumns+` from documents d where d.id = $1`, id))
	if err != nil {
		return office.Document{}, translate(err)
	}
	rows, err := s.db.QueryContext(ctx, `
		select user_id, permission, created_at
		from document_shares
		where document_id = $1
		order by created_at
	`, id)
	if err != nil {
		return office.Document{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			sh   office.DocumentShare
			perm string
		)
		if err := rows.Scan(&sh.UserID, &perm, &sh.CreatedAt); err != nil {
			return office.Document{}, err
		}
		sh.Permission = office.SharePermission(perm)
		d.Shares = append(d.Shares, sh)
	}
	if err := rows.Err(); err != nil {
		return office.Document{}, err
	}
	return d, nil
}

func (s *Store) CreateDocument(ctx context.Context, d *office.Document) error {
	if s.db == nil {
		return errNoDB
	}
	if d.ID == "" {
		d.ID = ids.NewUUID()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.QueryRowContext(ctx, `
		insert into documents (id, title, content, type, size, owner_id, team_id)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning created_at, updated_at
	`, d.ID, d.Title, d.Content, d.Type, d.Size, d.OwnerID, nullIfEmpty(d.TeamID)).Scan(&d.CreatedAt, &d.UpdatedAt); err != nil {
		return translate(err)
	}
	if err := insertTags(ctx, tx, d.ID, d.Tags); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) UpdateDocument(ctx context.Context, id string, upd office.DocumentUpdate) (office.Document, error) {
	if s.db == nil {
		return office.Document{}, errNoDB
	}
	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.Title != nil {
		set("title", *upd.Title)
	}
	if upd.Content != nil {
		set("content", *upd.Content)
		set("size", int64(len(*upd.Content)))
	}
	if upd.Type != nil {
		set("type", *upd.Type)
	}
	if upd.TeamID != nil {
		set("team_id", nullIfEmpty(*upd.TeamID))
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		args = append(args, id)
		query := fmt.Sprintf(`update documents set %s where id = $%d`, strings.Join(sets, ", "), len(args))
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return office.Document{}, translate(err)
		}
		if err := affected(res); err != nil {
			return office.Document{}, err
		}
	}
	return s.GetDocument(ctx, id)
}

func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from documents where id = $1`, id)
	if err != nil {
		return translate(err)
	}
	return affected(res)
}

func (s *Store) ShareDocument(ctx context.Context, docID, userID string, perm office.SharePermission) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		insert into document_shares (document_id, user_id, permission)
		values ($1, $2, $3)
		on conflict (document_id, user_id) do update set permission = excluded.permission
	`, docID, userID, string(perm))
	return translate(err)
}

func (s *Store) UnshareDocument(ctx context.Context, docID, userID string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from document_shares where document_id = $1 and user_id = $2`, docID, userID)
	if err != nil {
		return translate(err)
	}
	return affected(res)
}

func (s *Store) SetDocumentTags(ctx context.Context, docID string, tags []string) error {
	if s.db == nil {
		return errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from document_tags where document_id = $1`, docID); err != nil {
		return translate(err)
	}
	if err := insertTags(ctx, tx, docID, tags); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `update documents set updated_at = now() where id = $1`, docID); err != nil {
		return err
	}
	return tx.Commit()
}

func insertTags(ctx context.Context, tx *sql.Tx, docID string, tags []string) error {
	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx, `
			insert into document_tags (document_id, tag)
			values ($1, $2)
			on conflict do nothing
		`, docID, tag); err != nil {
			return translate(err)
		}
	}
	return nil
}

// CountDocuments counts every document, or those owned by ownerID.
func (s *Store) CountDocuments(ctx context.Context, ownerID string) (int64, error) {
	if s.db == nil {
		return 0, errNoDB
	}
	var (
		n   int64
		err error
	)
	if ownerID == "" {
		err = s.db.QueryRowContext(ctx, `select count(*) from documents`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `select count(*) from documents where owner_id = $1`, ownerID).Scan(&n)
	}
	return n, translate(err)
}
