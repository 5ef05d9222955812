package model

import "time"

// RegistrationStatus is the state of a meeting registration. Cancelling sets
// the status instead of deleting the row so attendance history survives.
type RegistrationStatus string

const (
	StatusRegistered RegistrationStatus = "registered"
	StatusCancelled  RegistrationStatus = "cancelled"
)

// MeetingRegistration records a member's intent to attend the meeting for a
// book. At most one row per (UserID, BookID) is in StatusRegistered.
type MeetingRegistration struct {
	ID           string             `json:"id"            db:"id"`
	UserID       string             `json:"user_id"       db:"user_id"`
	BookID       string             `json:"book_id"       db:"book_id"`
	RegisteredAt time.Time          `json:"registered_at" db:"registered_at"`
	Status       RegistrationStatus `json:"status"        db:"status"`
	Book         *Book              `json:"book,omitempty"`
}

// Participant is one row of an admin attendance list.
type Participant struct {
	RegistrationID string    `json:"registration_id"`
	UserID         string    `json:"user_id"`
	UserName       string    `json:"user_name"`
	Email          string    `json:"user_email"`
	Phone          string    `json:"user_phone"`
	RegisteredAt   time.Time `json:"registered_at"`
}
