package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/halolight/halolight-api-go/internal/auth"
	"github.com/halolight/halolight-api-go/internal/ids"
)

func (s *Store) RoleNamesForUser(ctx context.Context, userID string) ([]string, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select r.name
		from user_roles ur
		join roles r on r.id = ur.role_id
		where ur.user_id = $1
		order by r.name
	`, userID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

func (s *Store) PermissionsForUser(ctx context.Context, userID string) ([]auth.Permission, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select distinct p.id, p.resource, p.action, p.description, p.created_at
		from user_roles ur
		join role_permissions rp on rp.role_id = ur.role_id
		join permissions p on p.id = rp.permission_id
		where ur.user_id = $1
		order by p.resource, p.action
	`, userID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	return scanPermissions(rows)
}

func (s *Store) AssignRoleByName(ctx context.Context, userID, roleName string) error {
	if s.db == nil {
		return errNoDB
	}
	var roleID string
	if err := s.db.QueryRowContext(ctx, `select id from roles where name = $1`, roleName).Scan(&roleID); err != nil {
		return translate(err)
	}
	return s.AssignRole(ctx, userID, roleID)
}

func (s *Store) AssignRole(ctx context.Context, userID, roleID string) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		insert into user_roles (user_id, role_id)
		values ($1, $2)
		on conflict do nothing
	`, userID, roleID)
	return translate(err)
}

func (s *Store) UnassignRole(ctx context.Context, userID, roleID string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from user_roles where user_id = $1 and role_id = $2`, userID, roleID)
	if err != nil {
		return translate(err)
	}
	return affected(res)
}

func (s *Store) ListRoles(ctx context.Context) ([]auth.Role, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.name, r.label, r.description, r.created_at, r.updated_at,
		       (select count(*) from user_roles ur where ur.role_id = r.id)
		from roles r
		order by r.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []auth.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// GetRole returns the role with its permissions.
func (s *Store) GetRole(ctx context.Context, id string) (auth.Role, error) {
	if s.db == nil {
		return auth.Role{}, errNoDB
	}
	role, err := scanRole(s.db.QueryRowContext(ctx, `
		select r.id, r.name, r.label, r.description, r.created_at, r.updated_at,
		       (select count(*) from user_roles ur where ur.role_id = r.id)
		from roles r
		where r.id = $1
	`, id))
	if err != nil {
		return auth.Role{}, translate(err)
	}
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.resource, p.action, p.description, p.created_at
		from role_permissions rp
		join permissions p on p.id = rp.permission_id
		where rp.role_id = $1
		order by p.resource, p.action
	`, id)
	if err != nil {
		return auth.Role{}, err
	}
	defer rows.Close()
	role.Permissions, err = scanPermissions(rows)
	if err != nil {
		return auth.Role{}, err
	}
	return role, nil
}

func (s *Store) CreateRole(ctx context.Context, name, label, description string) (auth.Role, error) {
	if s.db == nil {
		return auth.Role{}, errNoDB
	}
	var (
		role auth.Role
		desc sql.NullString
	)
	row := s.db.QueryRowContext(ctx, `
		insert into roles (id, name, label, description)
		values ($1, $2, $3, $4)
		returning id, name, label, description, created_at, updated_at
	`, ids.NewUUID(), name, label, nullIfEmpty(description))
	if err := row.Scan(&role.ID, &role.Name, &role.Label, &desc, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return auth.Role{}, translate(err)
	}
	role.Description = desc.String
	return role, nil
}

func (s *Store) UpdateRole(ctx context.Context, id string, upd auth.RoleUpdate) (auth.Role, error) {
	if s.db == nil {
		return auth.Role{}, errNoDB
	}
	var (
		sets []string
		args []any
	)
	if upd.Label != nil {
		args = append(args, *upd.Label)
		sets = append(sets, fmt.Sprintf("label = $%d", len(args)))
	}
	if upd.Description != nil {
		args = append(args, nullIfEmpty(*upd.Description))
		sets = append(sets, fmt.Sprintf("description = $%d", len(args)))
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		args = append(args, id)
		query := fmt.Sprintf(`update roles set %s where id = $%d`, strings.Join(sets, ", "), len(args))
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return auth.Role{}, translate(err)
		}
		if err := affected(res); err != nil {
			return auth.Role{}, err
		}
	}
	return s.GetRole(ctx, id)
}

// DeleteRole refuses to remove a role that still has users.
func (s *Store) DeleteRole(ctx context.Context, id string) error {
	if s.db == nil {
		return errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var assigned int
	if err := tx.QueryRowContext(ctx, `select count(*) from user_roles where role_id = $1`, id).Scan(&assigned); err != nil {
		return translate(err)
	}
	if assigned > 0 {
		return fmt.Errorf("%w: role is assigned to %d user(s)", auth.ErrConflict, assigned)
	}
	res, err := tx.ExecContext(ctx, `delete from roles where id = $1`, id)
	if err != nil {
		return translate(err)
	}
	if err := affected(res); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	if s.db == nil {
		return errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `select 1 from roles where id = $1`, roleID).Scan(&exists); err != nil {
		return translate(err)
	}
	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
		return err
	}
	for _, permID := range permissionIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission_id)
			values ($1, $2)
		`, roleID, permID); err != nil {
			if translated := translate(err); translated != err {
				return fmt.Errorf("%w: permission %s", translated, permID)
			}
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListPermissions(ctx context.Context) ([]auth.Permission, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, resource, action, description, created_at
		from permissions
		order by resource, action
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

func (s *Store) CreatePermission(ctx context.Context, resource, action, description string) (auth.Permission, error) {
	if s.db == nil {
		return auth.Permission{}, errNoDB
	}
	var (
		p    auth.Permission
		desc sql.NullString
	)
	row := s.db.QueryRowContext(ctx, `
		insert into permissions (id, resource, action, description)
		values ($1, $2, $3, $4)
		returning id, resource, action, description, created_at
	`, ids.NewUUID(), resource, action, nullIfEmpty(description))
	if err := row.Scan(&p.ID, &p.Resource, &p.Action, &desc, &p.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.ConstraintName == "permissions_resource_action_key" {
			return auth.Permission{}, fmt.Errorf("%w: permission %s:%s already exists", auth.ErrConflict, resource, action)
		}
		return auth.Permission{}, translate(err)
	}
	p.Description = desc.String
	return p, nil
}

func (s *Store) DeletePermission(ctx context.Context, id string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from permissions where id = $1`, id)
	if err != nil {
		return translate(err)
	}
	return affected(res)
}

func scanRole(row rowScanner) (auth.Role, error) {
	var (
		role auth.Role
		desc sql.NullString
	)
	if err := row.Scan(&role.ID, &role.Name, &role.Label, &desc, &role.CreatedAt, &role.UpdatedAt, &role.UserCount); err != nil {
		return auth.Role{}, err
	}
	role.Description = desc.String
	return role, nil
}

func scanPermissions(rows *sql.Rows) ([]auth.Permission, error) {
	var perms []auth.Permission
	for rows.Next() {
		var (
			p    auth.Permission
			desc sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Resource, &p.Action, &desc, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Description = desc.String
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}
