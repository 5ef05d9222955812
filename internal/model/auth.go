package model

import "time"

// AuthCode is a pending one-time login code. Only a keyed digest of the code
// is stored.
type AuthCode struct {
	ID         string    `db:"id"`
	Identifier string    `db:"identifier"` // email or phone the code was sent to
	CodeHash   string    `db:"code_hash"`
	CreatedAt  time.Time `db:"created_at"`
	Used       bool      `db:"used"`
}

// AuthToken records one issued access token. It is an audit row only:
// token verification never consults it.
type AuthToken struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	TokenHash string    `db:"token_hash"`
	IssuedAt  time.Time `db:"issued_at"`
	ExpiresAt time.Time `db:"expires_at"`
	Active    bool      `db:"active"`
}
