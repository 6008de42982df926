package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"jwtpizza.org/internal/auth"
	"jwtpizza.org/internal/ids"
)

var _ auth.UserStore = (*Store)(nil)

func (s *Store) FindByEmail(ctx context.Context, email string) (auth.User, error) {
	return s.findUser(ctx, `
		select id, name, email, password_hash, created_at, updated_at
		from users
		where lower(email) = lower($1)
	`, strings.TrimSpace(email))
}

func (s *Store) FindByID(ctx context.Context, id string) (auth.User, error) {
	return s.findUser(ctx, `
		select id, name, email, password_hash, created_at, updated_at
		from users
		where id = $1
	`, id)
}

func (s *Store) findUser(ctx context.Context, query string, arg string) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	var u auth.User
	err := s.db.QueryRowContext(ctx, query, arg).
		Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.User{}, err
	}
	roles, err := s.loadRoles(ctx, s.db, u.ID)
	if err != nil {
		return auth.User{}, err
	}
	u.Roles = roles
	return u, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) loadRoles(ctx context.Context, q querier, userID string) ([]auth.RoleAssignment, error) {
	rows, err := q.QueryContext(ctx, `
		select role, object_id
		from user_roles
		where user_id = $1
		order by role, object_id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []auth.RoleAssignment
	for rows.Next() {
		var raw, objectID string
		if err := rows.Scan(&raw, &objectID); err != nil {
			return nil, err
		}
		role, err := auth.ParseRole(raw)
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", userID, err)
		}
		roles = append(roles, auth.RoleAssignment{Role: role, ObjectID: objectID})
	}
	return roles, rows.Err()
}

func writeRoles(ctx context.Context, q querier, userID string, roles []auth.RoleAssignment) error {
	for _, r := range roles {
		if _, err := q.ExecContext(ctx, `
			insert into user_roles (user_id, role, object_id)
			values ($1, $2, $3)
			on conflict do nothing
		`, userID, string(r.Role), r.ObjectID); err != nil {
			return err
		}
	}
	return nil
}

// Insert creates the user and its roles in one transaction. Email uniqueness is enforced
// by the users_email_lower_idx unique index.
func (s *Store) Insert(ctx context.Context, u auth.User) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	u.ID = ids.New()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return auth.User{}, err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		insert into users (id, name, email, password_hash)
		values ($1, $2, $3, $4)
		returning created_at, updated_at
	`, u.ID, u.Name, u.Email, u.PasswordHash).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.User{}, auth.ErrDuplicateEmail
		}
		return auth.User{}, err
	}
	if err := writeRoles(ctx, tx, u.ID, u.Roles); err != nil {
		return auth.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return auth.User{}, err
	}
	return u, nil
}

// UpdateProfile replaces name, email and password hash. Role rows are left alone.
func (s *Store) UpdateProfile(ctx context.Context, u auth.User) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = time.Now().UTC()
	}

	err := s.db.QueryRowContext(ctx, `
		update users
		set name = $2, email = $3, password_hash = $4, updated_at = $5
		where id = $1
		returning created_at
	`, u.ID, u.Name, u.Email, u.PasswordHash, u.UpdatedAt).Scan(&u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	if err != nil {
		if isUniqueViolation(err) {
			return auth.User{}, auth.ErrDuplicateEmail
		}
		return auth.User{}, err
	}
	roles, err := s.loadRoles(ctx, s.db, u.ID)
	if err != nil {
		return auth.User{}, err
	}
	u.Roles = roles
	return u, nil
}

func (s *Store) GrantRole(ctx context.Context, userID string, role auth.RoleAssignment) error {
	if s.db == nil {
		return errNoDB
	}
	err := writeRoles(ctx, s.db, userID, []auth.RoleAssignment{role})
	if isForeignKeyViolation(err) {
		return auth.ErrNotFound
	}
	return err
}

func (s *Store) RevokeRole(ctx context.Context, userID string, role auth.RoleAssignment) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `
		delete from user_roles
		where user_id = $1 and role = $2 and object_id = $3
	`, userID, string(role.Role), role.ObjectID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `select exists(select 1 from users where id = $1)`, userID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return auth.ErrNotFound
	}
	return nil
}
