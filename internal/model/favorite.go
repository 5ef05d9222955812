package model

import "time"

// Favorite marks a book a member wants to keep track of.
// (UserID, BookID) is unique.
type Favorite struct {
	ID        string    `json:"id"         db:"id"`
	UserID    string    `json:"user_id"    db:"user_id"`
	BookID    string    `json:"book_id"    db:"book_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	Book      *Book     `json:"book,omitempty"`
}

// Review is a member's rating of a book. A member may review a book more
// than once.
type Review struct {
	ID        string    `json:"id"         db:"id"`
	UserID    string    `json:"user_id"    db:"user_id"`
	BookID    string    `json:"book_id"    db:"book_id"`
	Rating    int       `json:"rating"     db:"rating"`
	Comment   string    `json:"comment"    db:"comment"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

const (
	MinRating = 1
	MaxRating = 5
)
