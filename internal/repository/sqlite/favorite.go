package sqlite

import (
	"context"
	"fmt"

	"github.com/rs/xid"
	"github.com/sakif/bookclub/internal/apperror"
	"github.com/sakif/bookclub/internal/model"
	"github.com/sakif/bookclub/internal/repository"
)

var (
	_ repository.FavoriteRepository = (*DB)(nil)
	_ repository.ReviewRepository   = (*DB)(nil)
)

// CreateFavorite adds a book to a user's favorites. Adding the same book
// twice is a conflict; a missing book or user is NotFound.
func (db *DB) CreateFavorite(ctx context.Context, fav *model.Favorite) error {
	fav.ID = xid.New().String()
	fav.CreatedAt = db.now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO favorites (id, user_id, book_id, created_at) VALUES (?, ?, ?, ?)`,
		fav.ID, fav.UserID, fav.BookID, fav.CreatedAt,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return apperror.Conflict("favorite", "book is already in favorites")
		case isForeignKeyViolation(err):
			return apperror.NotFound("book", fav.BookID)
		}
		return fmt.Errorf("sqlite: creating favorite: %w", err)
	}
	return nil
}

// ListFavorites returns one page of a user's favorites with the book
// embedded, newest first.
func (db *DB) ListFavorites(ctx context.Context, userID string, opts repository.ListOptions) ([]model.Favorite, int, error) {
	var total int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM favorites WHERE user_id = ?`, userID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting favorites: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT f.id, f.user_id, f.book_id, f.created_at,
		        b.id, b.title, b.author, b.date, b.location, b.description,
		        b.is_current, b.created_at, b.updated_at
		 FROM favorites f
		 JOIN books b ON b.id = f.book_id
		 WHERE f.user_id = ?
		 ORDER BY f.created_at DESC, f.id DESC
		 LIMIT ? OFFSET ?`,
		userID, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing favorites: %w", err)
	}
	defer rows.Close()

	favs := make([]model.Favorite, 0, opts.Limit)
	for rows.Next() {
		var (
			f       model.Favorite
			b       model.Book
			current int
		)
		err := rows.Scan(
			&f.ID, &f.UserID, &f.BookID, &f.CreatedAt,
			&b.ID, &b.Title, &b.Author, &b.Date, &b.Location, &b.Description,
			&current, &b.CreatedAt, &b.UpdatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning favorite row: %w", err)
		}
		b.IsCurrent = current == 1
		f.Book = &b
		favs = append(favs, f)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating favorite rows: %w", err)
	}
	return favs, total, nil
}

// DeleteFavorite removes a book from a user's favorites.
func (db *DB) DeleteFavorite(ctx context.Context, userID, bookID string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM favorites WHERE user_id = ? AND book_id = ?`, userID, bookID)
	if err != nil {
		return fmt.Errorf("sqlite: deleting favorite: %w", err)
	}
	return requireAffected(result, "favorite", bookID)
}

// CreateReview stores a review. The rating range is also enforced by a
// CHECK constraint.
func (db *DB) CreateReview(ctx context.Context, review *model.Review) error {
	review.ID = xid.New().String()
	review.CreatedAt = db.now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO reviews (id, user_id, book_id, rating, comment, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		review.ID, review.UserID, review.BookID, review.Rating, review.Comment, review.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("book", review.BookID)
		}
		return fmt.Errorf("sqlite: creating review: %w", err)
	}
	return nil
}

// ListReviews returns one page of reviews for a book, newest first.
func (db *DB) ListReviews(ctx context.Context, bookID string, opts repository.ListOptions) ([]model.Review, int, error) {
	var total int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reviews WHERE book_id = ?`, bookID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting reviews: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, book_id, rating, comment, created_at
		 FROM reviews
		 WHERE book_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		bookID, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing reviews: %w", err)
	}
	defer rows.Close()

	reviews := make([]model.Review, 0, opts.Limit)
	for rows.Next() {
		var r model.Review
		if err := rows.Scan(&r.ID, &r.UserID, &r.BookID, &r.Rating, &r.Comment, &r.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning review row: %w", err)
		}
		reviews = append(reviews, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating review rows: %w", err)
	}
	return reviews, total, nil
}
