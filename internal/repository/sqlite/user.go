package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/xid"
	"github.com/sakif/bookclub/internal/apperror"
	"github.com/sakif/bookclub/internal/model"
	"github.com/sakif/bookclub/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, first_name, last_name, email, phone, birth_date, role,
	fav_authors, fav_genres, fav_books, discuss_books, created_at, updated_at`

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// CreateUser inserts a new user. A duplicate non-empty email is reported as
// apperror.ErrConflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	now := db.now()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = model.RoleUser
	}

	lists, err := encodeLists(user)
	if err != nil {
		return fmt.Errorf("sqlite: creating user: %w", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.FirstName,
		user.LastName,
		user.Email,
		user.Phone,
		user.BirthDate,
		string(user.Role),
		lists[0], lists[1], lists[2], lists[3],
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", "email already registered")
		}
		return fmt.Errorf("sqlite: creating user: %w", err)
	}
	return nil
}

// GetUserByID returns the user with the given internal ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, apperror.NotFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return user, nil
}

// GetUserByEmail looks a user up by exact email.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? AND email <> ''`, email)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, apperror.NotFound("user", email)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return user, nil
}

// GetUserByPhone looks a user up by exact phone. Phones are not unique, so
// the oldest matching account wins.
func (db *DB) GetUserByPhone(ctx context.Context, phone string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE phone = ? AND phone <> ''
		 ORDER BY created_at ASC, id ASC
		 LIMIT 1`, phone)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, apperror.NotFound("user", phone)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user by phone: %w", err)
	}
	return user, nil
}

// UpdateUser writes every profile field of user. Email and role are left
// alone: they change only through CreateUser and UpdateUserRole.
func (db *DB) UpdateUser(ctx context.Context, user *model.User) error {
	user.UpdatedAt = db.now()

	lists, err := encodeLists(user)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}

	result, err := db.conn.ExecContext(ctx,
		`UPDATE users
		 SET first_name = ?, last_name = ?, phone = ?, birth_date = ?,
		     fav_authors = ?, fav_genres = ?, fav_books = ?, discuss_books = ?,
		     updated_at = ?
		 WHERE id = ?`,
		user.FirstName,
		user.LastName,
		user.Phone,
		user.BirthDate,
		lists[0], lists[1], lists[2], lists[3],
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}
	return requireAffected(result, "user", user.ID)
}

// UpdateUserRole sets the role of a user.
func (db *DB) UpdateUserRole(ctx context.Context, id string, role model.Role) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET role = ?, updated_at = ? WHERE id = ?`,
		string(role), db.now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating role of user %s: %w", id, err)
	}
	return requireAffected(result, "user", id)
}

// ListUsers returns one page of users, newest first, and the total count.
func (db *DB) ListUsers(ctx context.Context, opts repository.ListOptions) ([]model.User, int, error) {
	var total int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting users: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0, opts.Limit)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating user rows: %w", err)
	}
	return users, total, nil
}

func scanUser(s scanner) (*model.User, error) {
	var (
		user  model.User
		role  string
		lists [4]string
	)
	err := s.Scan(
		&user.ID,
		&user.FirstName,
		&user.LastName,
		&user.Email,
		&user.Phone,
		&user.BirthDate,
		&role,
		&lists[0], &lists[1], &lists[2], &lists[3],
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	// The role is returned as stored. Normalising unknown values is the
	// auth flow's job, and it persists the correction.
	user.Role = model.Role(role)

	targets := []*[]string{&user.FavAuthors, &user.FavGenres, &user.FavBooks, &user.DiscussBooks}
	for i, raw := range lists {
		if err := decodeList(raw, targets[i]); err != nil {
			return nil, fmt.Errorf("decoding list column %d: %w", i, err)
		}
	}
	return &user, nil
}

// encodeLists serialises the four preference lists as JSON arrays, in
// column order.
func encodeLists(user *model.User) ([4]string, error) {
	var out [4]string
	for i, list := range [][]string{user.FavAuthors, user.FavGenres, user.FavBooks, user.DiscussBooks} {
		if list == nil {
			list = []string{}
		}
		b, err := json.Marshal(list)
		if err != nil {
			return out, err
		}
		out[i] = string(b)
	}
	return out, nil
}

func decodeList(raw string, dst *[]string) error {
	if raw == "" {
		*dst = []string{}
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

// requireAffected turns a zero-row UPDATE or DELETE into a NotFound error.
func requireAffected(result sql.Result, resource, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
