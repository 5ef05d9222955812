package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/xid"
	"github.com/sakif/bookclub/internal/apperror"
	"github.com/sakif/bookclub/internal/model"
	"github.com/sakif/bookclub/internal/repository"
)

var _ repository.BookRepository = (*DB)(nil)

// bookSelect projects a book with its review aggregates. Correlated
// subqueries keep it a single statement per row set, which matters with a
// one-connection pool.
const bookSelect = `
	SELECT b.id, b.title, b.author, b.date, b.location, b.description,
	       b.is_current, b.created_at, b.updated_at,
	       (SELECT AVG(r.rating) FROM reviews r WHERE r.book_id = b.id),
	       (SELECT COUNT(*) FROM reviews r WHERE r.book_id = b.id)
	FROM books b`

// CreateBook inserts a book. If book.IsCurrent is set, every other book
// loses the flag in the same transaction.
func (db *DB) CreateBook(ctx context.Context, book *model.Book) error {
	book.ID = xid.New().String()
	now := db.now()
	book.CreatedAt = now
	book.UpdatedAt = now

	return db.withTx(ctx, func(tx *sql.Tx) error {
		if book.IsCurrent {
			if err := clearCurrent(ctx, tx); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO books (id, title, author, date, location, description,
			                    is_current, search_key, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			book.ID,
			book.Title,
			book.Author,
			book.Date,
			book.Location,
			book.Description,
			boolToInt(book.IsCurrent),
			searchKey(book),
			book.CreatedAt,
			book.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("sqlite: creating book: %w", err)
		}
		return nil
	})
}

// GetBook returns a book with its average rating and review count.
func (db *DB) GetBook(ctx context.Context, id string) (*model.BookWithRating, error) {
	row := db.conn.QueryRowContext(ctx, bookSelect+` WHERE b.id = ?`, id)
	book, err := scanBook(row)
	if err == sql.ErrNoRows {
		return nil, apperror.NotFound("book", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting book %s: %w", id, err)
	}
	return book, nil
}

// GetCurrentBook returns the book flagged as current. When no book carries
// the flag, the most recently created book stands in.
func (db *DB) GetCurrentBook(ctx context.Context) (*model.BookWithRating, error) {
	row := db.conn.QueryRowContext(ctx,
		bookSelect+` ORDER BY b.is_current DESC, b.created_at DESC, b.id DESC LIMIT 1`)
	book, err := scanBook(row)
	if err == sql.ErrNoRows {
		return nil, &apperror.AppError{Err: apperror.ErrNotFound, Message: "no book of the month yet"}
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting current book: %w", err)
	}
	return book, nil
}

// ListBooks returns one page of books, newest first, and the total number
// of books matching the filter.
func (db *DB) ListBooks(ctx context.Context, filter repository.BookFilter) ([]model.BookWithRating, int, error) {
	where := ""
	var args []any
	if q := strings.TrimSpace(filter.Search); q != "" {
		where = ` WHERE b.search_key LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(strings.ToLower(q))+"%")
	}

	var total int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM books b`+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting books: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		bookSelect+where+` ORDER BY b.created_at DESC, b.id DESC LIMIT ? OFFSET ?`,
		append(args, filter.Limit, filter.Offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing books: %w", err)
	}
	defer rows.Close()

	books := make([]model.BookWithRating, 0, filter.Limit)
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning book row: %w", err)
		}
		books = append(books, *book)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating book rows: %w", err)
	}
	return books, total, nil
}

// UpdateBook replaces the editable fields of a book. Setting IsCurrent
// clears the flag elsewhere; clearing it only affects this book.
func (db *DB) UpdateBook(ctx context.Context, book *model.Book) error {
	book.UpdatedAt = db.now()

	return db.withTx(ctx, func(tx *sql.Tx) error {
		if book.IsCurrent {
			if err := clearCurrent(ctx, tx); err != nil {
				return err
			}
		}
		result, err := tx.ExecContext(ctx,
			`UPDATE books
			 SET title = ?, author = ?, date = ?, location = ?, description = ?,
			     is_current = ?, search_key = ?, updated_at = ?
			 WHERE id = ?`,
			book.Title,
			book.Author,
			book.Date,
			book.Location,
			book.Description,
			boolToInt(book.IsCurrent),
			searchKey(book),
			book.UpdatedAt,
			book.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating book %s: %w", book.ID, err)
		}
		return requireAffected(result, "book", book.ID)
	})
}

// SetCurrentBook makes id the only current book.
func (db *DB) SetCurrentBook(ctx context.Context, id string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := clearCurrent(ctx, tx); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx,
			`UPDATE books SET is_current = 1, updated_at = ? WHERE id = ?`,
			db.now(), id,
		)
		if err != nil {
			return fmt.Errorf("sqlite: setting current book %s: %w", id, err)
		}
		return requireAffected(result, "book", id)
	})
}

// DeleteBook removes a book. Favorites, reviews and registrations for it
// go with it (ON DELETE CASCADE).
func (db *DB) DeleteBook(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting book %s: %w", id, err)
	}
	return requireAffected(result, "book", id)
}

func clearCurrent(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE books SET is_current = 0 WHERE is_current = 1`); err != nil {
		return fmt.Errorf("sqlite: clearing current book: %w", err)
	}
	return nil
}

func scanBook(s scanner) (*model.BookWithRating, error) {
	var (
		book    model.BookWithRating
		current int
		avg     sql.NullFloat64
	)
	err := s.Scan(
		&book.ID,
		&book.Title,
		&book.Author,
		&book.Date,
		&book.Location,
		&book.Description,
		&current,
		&book.CreatedAt,
		&book.UpdatedAt,
		&avg,
		&book.ReviewCount,
	)
	if err != nil {
		return nil, err
	}
	book.IsCurrent = current == 1
	if avg.Valid {
		v := avg.Float64
		book.AvgRating = &v
	}
	return &book, nil
}

func searchKey(book *model.Book) string {
	return strings.ToLower(book.Title + "\n" + book.Author)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes user input match literally inside a LIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
