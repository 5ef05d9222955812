// Package repository declares the storage contracts the service layer
// depends on. The sqlite subpackage is the only implementation; services
// tests use in-memory fakes or an in-memory SQLite database.
package repository

import (
	"context"
	"time"

	"github.com/sakif/bookclub/internal/model"
)

// ListOptions is an already-validated LIMIT/OFFSET window.
type ListOptions struct {
	Limit  int
	Offset int
}

// BookFilter narrows a book listing. Search is a case-insensitive substring
// matched against title and author.
type BookFilter struct {
	ListOptions
	Search string
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByPhone(ctx context.Context, phone string) (*model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error
	UpdateUserRole(ctx context.Context, id string, role model.Role) error
	ListUsers(ctx context.Context, opts ListOptions) ([]model.User, int, error)
}

type BookRepository interface {
	CreateBook(ctx context.Context, book *model.Book) error
	GetBook(ctx context.Context, id string) (*model.BookWithRating, error)
	GetCurrentBook(ctx context.Context) (*model.BookWithRating, error)
	ListBooks(ctx context.Context, filter BookFilter) ([]model.BookWithRating, int, error)
	UpdateBook(ctx context.Context, book *model.Book) error
	SetCurrentBook(ctx context.Context, id string) error
	DeleteBook(ctx context.Context, id string) error
}

type AuthCodeRepository interface {
	CreateAuthCode(ctx context.Context, code *model.AuthCode) error
	FindUnusedAuthCode(ctx context.Context, identifier, codeHash string) (*model.AuthCode, error)
	// MarkAuthCodeUsed reports false when the code was already consumed.
	MarkAuthCodeUsed(ctx context.Context, id string) (bool, error)
	DeleteAuthCodesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type AuthTokenRepository interface {
	CreateAuthToken(ctx context.Context, token *model.AuthToken) error
	ListAuthTokens(ctx context.Context, userID string) ([]model.AuthToken, error)
}

type FavoriteRepository interface {
	CreateFavorite(ctx context.Context, fav *model.Favorite) error
	ListFavorites(ctx context.Context, userID string, opts ListOptions) ([]model.Favorite, int, error)
	DeleteFavorite(ctx context.Context, userID, bookID string) error
}

type ReviewRepository interface {
	CreateReview(ctx context.Context, review *model.Review) error
	ListReviews(ctx context.Context, bookID string, opts ListOptions) ([]model.Review, int, error)
}

type MeetingRepository interface {
	CreateRegistration(ctx context.Context, reg *model.MeetingRegistration) error
	CancelRegistration(ctx context.Context, userID, bookID string) error
	ListUserRegistrations(ctx context.Context, userID string) ([]model.MeetingRegistration, error)
	ListParticipants(ctx context.Context, bookID string) ([]model.Participant, error)
}
