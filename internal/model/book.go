package model

import "time"

// Book is a "book of the month": the title the club reads and meets about.
//
// Date is the scheduled meeting date as the organisers typed it ("15 March,
// 19:00"); it is shown verbatim and never parsed. At most one book has
// IsCurrent set at any time.
type Book struct {
	ID          string    `json:"id"          db:"id"`
	Title       string    `json:"title"       db:"title"`
	Author      string    `json:"author"      db:"author"`
	Date        string    `json:"date"        db:"date"`
	Location    string    `json:"location"    db:"location"`
	Description string    `json:"description" db:"description"`
	IsCurrent   bool      `json:"is_current"  db:"is_current"`
	CreatedAt   time.Time `json:"created_at"  db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"  db:"updated_at"`
}

// BookWithRating adds review aggregates to a Book. AvgRating is nil when
// the book has no reviews.
type BookWithRating struct {
	Book
	AvgRating   *float64 `json:"avg_rating"`
	ReviewCount int      `json:"review_count"`
}
