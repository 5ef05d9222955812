package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/xid"
	"github.com/sakif/bookclub/internal/apperror"
	"github.com/sakif/bookclub/internal/model"
	"github.com/sakif/bookclub/internal/repository"
)

var _ repository.MeetingRepository = (*DB)(nil)

// CreateRegistration registers a user for a book's meeting. A second active
// registration for the same pair violates idx_meeting_active and is
// reported as a conflict. Cancelled rows do not count.
func (db *DB) CreateRegistration(ctx context.Context, reg *model.MeetingRegistration) error {
	reg.ID = xid.New().String()
	reg.RegisteredAt = db.now()
	reg.Status = model.StatusRegistered

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO meeting_registrations (id, user_id, book_id, registered_at, status)
		 VALUES (?, ?, ?, ?, ?)`,
		reg.ID, reg.UserID, reg.BookID, reg.RegisteredAt, string(reg.Status),
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return apperror.Conflict("meeting registration", "already registered for this meeting")
		case isForeignKeyViolation(err):
			return apperror.NotFound("book", reg.BookID)
		}
		return fmt.Errorf("sqlite: creating meeting registration: %w", err)
	}
	return nil
}

// CancelRegistration marks the active registration as cancelled.
func (db *DB) CancelRegistration(ctx context.Context, userID, bookID string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE meeting_registrations SET status = ?
		 WHERE user_id = ? AND book_id = ? AND status = ?`,
		string(model.StatusCancelled), userID, bookID, string(model.StatusRegistered),
	)
	if err != nil {
		return fmt.Errorf("sqlite: cancelling meeting registration: %w", err)
	}
	return requireAffected(result, "meeting registration", bookID)
}

// ListUserRegistrations returns a user's active registrations with the book
// embedded, most recent first.
func (db *DB) ListUserRegistrations(ctx context.Context, userID string) ([]model.MeetingRegistration, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT m.id, m.user_id, m.book_id, m.registered_at, m.status,
		        b.id, b.title, b.author, b.date, b.location, b.description,
		        b.is_current, b.created_at, b.updated_at
		 FROM meeting_registrations m
		 JOIN books b ON b.id = m.book_id
		 WHERE m.user_id = ? AND m.status = ?
		 ORDER BY m.registered_at DESC, m.id DESC`,
		userID, string(model.StatusRegistered),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing meeting registrations: %w", err)
	}
	defer rows.Close()

	regs := []model.MeetingRegistration{}
	for rows.Next() {
		var (
			m       model.MeetingRegistration
			b       model.Book
			status  string
			current int
		)
		err := rows.Scan(
			&m.ID, &m.UserID, &m.BookID, &m.RegisteredAt, &status,
			&b.ID, &b.Title, &b.Author, &b.Date, &b.Location, &b.Description,
			&current, &b.CreatedAt, &b.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning meeting registration row: %w", err)
		}
		m.Status = model.RegistrationStatus(status)
		b.IsCurrent = current == 1
		m.Book = &b
		regs = append(regs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating meeting registration rows: %w", err)
	}
	return regs, nil
}

// ListParticipants returns the active registrations for a book joined with
// the registered users, in registration order.
func (db *DB) ListParticipants(ctx context.Context, bookID string) ([]model.Participant, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT m.id, u.id, u.first_name, u.last_name, u.email, u.phone, m.registered_at
		 FROM meeting_registrations m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.book_id = ? AND m.status = ?
		 ORDER BY m.registered_at ASC, m.id ASC`,
		bookID, string(model.StatusRegistered),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing participants: %w", err)
	}
	defer rows.Close()

	participants := []model.Participant{}
	for rows.Next() {
		var (
			p           model.Participant
			first, last string
		)
		if err := rows.Scan(&p.RegistrationID, &p.UserID, &first, &last, &p.Email, &p.Phone, &p.RegisteredAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning participant row: %w", err)
		}
		p.UserName = strings.TrimSpace(first + " " + last)
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating participant rows: %w", err)
	}
	return participants, nil
}
