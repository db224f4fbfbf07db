package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/halolight/halolight-api-go/internal/ids"
	"github.com/halolight/halolight-api-go/internal/office"
)

var _ office.Store = (*Store)(nil)

const teamSelect = `
	select t.id, t.name, t.description, t.owner_id, t.created_at, t.updated_at,
	       (select count(*) from team_members m where m.team_id = t.id)
	from teams t`

func scanTeam(row rowScanner) (office.Team, error) {
	var (
		t    office.Team
		desc sql.NullString
	)
	if err := row.Scan(&t.ID, &t.Name, &desc, &t.OwnerID, &t.CreatedAt, &t.UpdatedAt, &t.MemberCount); err != nil {
		return office.Team{}, err
	}
	t.Description = desc.String
	return t, nil
}

func (s *Store) ListTeamsForUser(ctx context.Context, userID string) ([]office.Team, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, teamSelect+`
		where exists (select 1 from team_members tm where tm.team_id = t.id and tm.user_id = $1)
		order by t.name
	`, userID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var teams []office.Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return teams, nil
}

// GetTeam returns the team with its members, owner first.
func (s *Store) GetTeam(ctx context.Context, id string) (office.Team, error) {
	if s.db == nil {
		return office.Team{}, errNoDB
	}
	t, err := scanTeam(s.db.QueryRowContext(ctx, teamSelect+` where t.id = $1`, id))
	if err != nil {
		return office.Team{}, translate(err)
	}
	rows, err := s.db.QueryContext(ctx, `
		select m.user_id, u.username, u.name, m.role, m.joined_at
		from team_members m
		join users u on u.id = m.user_id
		where m.team_id = $1
		order by (m.role = 'owner') desc, m.joined_at
	`, id)
	if err != nil {
		return office.Team{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var m office.TeamMember
		if err := rows.Scan(&m.UserID, &m.Username, &m.Name, &m.Role, &m.JoinedAt); err != nil {
			return office.Team{}, err
		}
		t.Members = append(t.Members, m)
	}
	if err := rows.Err(); err != nil {
		return office.Team{}, err
	}
	return t, nil
}

func (s *Store) CreateTeam(ctx context.Context, t *office.Team) error {
	if s.db == nil {
		return errNoDB
	}
	if t.ID == "" {
		t.ID = ids.NewUUID()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.QueryRowContext(ctx, `
		insert into teams (id, name, description, owner_id)
		values ($1, $2, $3, $4)
		returning created_at, updated_at
	`, t.ID, t.Name, nullIfEmpty(t.Description), t.OwnerID).Scan(&t.CreatedAt, &t.UpdatedAt); err != nil {
		return translate(err)
	}
	if _, err := tx.ExecContext(ctx, `
		insert into team_members (team_id, user_id, role)
		values ($1, $2, $3)
	`, t.ID, t.OwnerID, office.MemberRoleOwner); err != nil {
		return translate(err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	t.MemberCount = 1
	return nil
}

func (s *Store) UpdateTeam(ctx context.Context, id string, upd office.TeamUpdate) (office.Team, error) {
	if s.db == nil {
		return office.Team{}, errNoDB
	}
	var (
		sets []string
		args []any
	)
	if upd.Name != nil {
		args = append(args, *upd.Name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	if upd.Description != nil {
		args = append(args, nullIfEmpty(*upd.Description))
		sets = append(sets, fmt.Sprintf("description = $%d", len(args)))
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		args = append(args, id)
		query := fmt.Sprintf(`update teams set %s where id = $%d`, strings.Join(sets, ", "), len(args))
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return office.Team{}, translate(err)
		}
		if err := affected(res); err != nil {
			return office.Team{}, err
		}
	}
	return s.GetTeam(ctx, id)
}

func (s *Store) DeleteTeam(ctx context.Context, id string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from teams where id = $1`, id)
	if err != nil {
		return translate(err)
	}
	return affected(res)
}

func (s *Store) AddTeamMember(ctx context.Context, teamID, userID, role string) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		insert into team_members (team_id, user_id, role)
		values ($1, $2, $3)
	`, teamID, userID, role)
	return translate(err)
}

func (s *Store) RemoveTeamMember(ctx context.Context, teamID, userID string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from team_members where team_id = $1 and user_id = $2`, teamID, userID)
	if err != nil {
		return translate(err)
	}
	return affected(res)
}

func (s *Store) IsTeamMember(ctx context.Context, teamID, userID string) (bool, error) {
	ok, err := s.exists(ctx, `select exists(select 1 from team_members where team_id = $1 and user_id = $2)`, teamID, userID)
	if err != nil {
		return false, translate(err)
	}
	return ok, nil
}

// CountTeams counts every team, or the teams memberID belongs to.
func (s *Store) CountTeams(ctx context.Context, memberID string) (int64, error) {
	if s.db == nil {
		return 0, errNoDB
	}
	var (
		n   int64
		err error
	)
	if memberID == "" {
		err = s.db.QueryRowContext(ctx, `select count(*) from teams`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `select count(*) from team_members where user_id = $1`, memberID).Scan(&n)
	}
	return n, translate(err)
}
