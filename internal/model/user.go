// Package model defines the data structures used throughout the application.
package model

import "time"

// User is a club member.
//
// Email and Phone are both optional at the storage level, but every account
// created through the one-time-code login carries the identifier it signed in
// with. A non-empty Email is unique across users.
//
// BirthDate stays a "YYYY-MM-DD" string (or empty) because members often skip
// it and the value is only ever displayed and validated, never computed on.
type User struct {
	ID           string    `json:"id"            db:"id"`
	FirstName    string    `json:"first_name"    db:"first_name"`
	LastName     string    `json:"last_name"     db:"last_name"`
	Email        string    `json:"email"         db:"email"`
	Phone        string    `json:"phone"         db:"phone"`
	BirthDate    string    `json:"birth_date"    db:"birth_date"`
	Role         Role      `json:"role"          db:"role"`
	FavAuthors   []string  `json:"fav_authors"   db:"fav_authors"`
	FavGenres    []string  `json:"fav_genres"    db:"fav_genres"`
	FavBooks     []string  `json:"fav_books"     db:"fav_books"`
	DiscussBooks []string  `json:"discuss_books" db:"discuss_books"`
	CreatedAt    time.Time `json:"created_at"    db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"    db:"updated_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// UserUpdate is a partial profile update. Nil fields are left untouched;
// a non-nil empty list clears the list. Email and Role are absent: members
// cannot change either.
type UserUpdate struct {
	FirstName    *string  `json:"first_name"    validate:"omitempty,max=100"`
	LastName     *string  `json:"last_name"     validate:"omitempty,max=100"`
	Phone        *string  `json:"phone"         validate:"omitempty,phone"`
	BirthDate    *string  `json:"birth_date"    validate:"omitempty,birthdate"`
	FavAuthors   []string `json:"fav_authors"   validate:"omitempty,max=50,dive,max=200"`
	FavGenres    []string `json:"fav_genres"    validate:"omitempty,max=50,dive,max=200"`
	FavBooks     []string `json:"fav_books"     validate:"omitempty,max=50,dive,max=200"`
	DiscussBooks []string `json:"discuss_books" validate:"omitempty,max=50,dive,max=200"`
}

// Apply copies the set fields of upd onto u.
func (u *User) Apply(upd UserUpdate) {
	if upd.FirstName != nil {
		u.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		u.LastName = *upd.LastName
	}
	if upd.Phone != nil {
		u.Phone = *upd.Phone
	}
	if upd.BirthDate != nil {
		u.BirthDate = *upd.BirthDate
	}
	if upd.FavAuthors != nil {
		u.FavAuthors = upd.FavAuthors
	}
	if upd.FavGenres != nil {
		u.FavGenres = upd.FavGenres
	}
	if upd.FavBooks != nil {
		u.FavBooks = upd.FavBooks
	}
	if upd.DiscussBooks != nil {
		u.DiscussBooks = upd.DiscussBooks
	}
}
