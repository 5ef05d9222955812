package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/bookclub/internal/apperror"
	"github.com/sakif/bookclub/internal/model"
	"github.com/sakif/bookclub/internal/repository"
)

var (
	_ repository.AuthCodeRepository  = (*DB)(nil)
	_ repository.AuthTokenRepository = (*DB)(nil)
)

// CreateAuthCode stores a pending code. CreatedAt is kept if the caller set
// it so the auth flow's clock stays authoritative.
func (db *DB) CreateAuthCode(ctx context.Context, code *model.AuthCode) error {
	code.ID = xid.New().String()
	if code.CreatedAt.IsZero() {
		code.CreatedAt = db.now()
	}
	code.CreatedAt = code.CreatedAt.UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO auth_codes (id, identifier, code_hash, created_at, used)
		 VALUES (?, ?, ?, ?, ?)`,
		code.ID,
		code.Identifier,
		code.CodeHash,
		code.CreatedAt,
		boolToInt(code.Used),
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating auth code: %w", err)
	}
	return nil
}

// FindUnusedAuthCode returns the newest unused code matching identifier and
// digest.
func (db *DB) FindUnusedAuthCode(ctx context.Context, identifier, codeHash string) (*model.AuthCode, error) {
	var (
		code model.AuthCode
		used int
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, identifier, code_hash, created_at, used
		 FROM auth_codes
		 WHERE identifier = ? AND code_hash = ? AND used = 0
		 ORDER BY created_at DESC
		 LIMIT 1`,
		identifier, codeHash,
	).Scan(&code.ID, &code.Identifier, &code.CodeHash, &code.CreatedAt, &used)
	if err == sql.ErrNoRows {
		return nil, apperror.NotFound("auth code", identifier)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: finding auth code: %w", err)
	}
	code.Used = used == 1
	return &code, nil
}

// MarkAuthCodeUsed flips the used flag. The used = 0 guard makes this the
// single point where two concurrent verifications are serialised: only one
// of them sees a row affected.
func (db *DB) MarkAuthCodeUsed(ctx context.Context, id string) (bool, error) {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE auth_codes SET used = 1 WHERE id = ? AND used = 0`, id)
	if err != nil {
		return false, fmt.Errorf("sqlite: marking auth code %s used: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n == 1, nil
}

// DeleteAuthCodesBefore removes every code created before cutoff, used or
// not, and returns how many were removed.
func (db *DB) DeleteAuthCodesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM auth_codes WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting stale auth codes: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}

// CreateAuthToken records an issued token.
func (db *DB) CreateAuthToken(ctx context.Context, token *model.AuthToken) error {
	token.ID = xid.New().String()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO auth_tokens (id, user_id, token_hash, issued_at, expires_at, active)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.IssuedAt.UTC(),
		token.ExpiresAt.UTC(),
		boolToInt(token.Active),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("user", token.UserID)
		}
		return fmt.Errorf("sqlite: creating auth token: %w", err)
	}
	return nil
}

// ListAuthTokens returns the token records of a user, newest first.
func (db *DB) ListAuthTokens(ctx context.Context, userID string) ([]model.AuthToken, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, token_hash, issued_at, expires_at, active
		 FROM auth_tokens
		 WHERE user_id = ?
		 ORDER BY issued_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing auth tokens: %w", err)
	}
	defer rows.Close()

	var tokens []model.AuthToken
	for rows.Next() {
		var (
			t      model.AuthToken
			active int
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.IssuedAt, &t.ExpiresAt, &active); err != nil {
			return nil, fmt.Errorf("sqlite: scanning auth token row: %w", err)
		}
		t.Active = active == 1
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating auth token rows: %w", err)
	}
	return tokens, nil
}
