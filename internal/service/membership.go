package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/bookclub/internal/apperror"
	"github.com/sakif/bookclub/internal/model"
	"github.com/sakif/bookclub/internal/repository"
)

// FavoriteStore is the storage FavoriteService needs.
type FavoriteStore interface {
	repository.FavoriteRepository
	GetBook(ctx context.Context, id string) (*model.BookWithRating, error)
}

// FavoriteService manages a member's favorite books.
type FavoriteService struct {
	store  FavoriteStore
	logger *slog.Logger
}

func NewFavoriteService(store FavoriteStore, logger *slog.Logger) *FavoriteService {
	return &FavoriteService{store: store, logger: logger}
}

// Add marks an existing book as a favorite of userID. Adding it twice is a
// conflict.
func (s *FavoriteService) Add(ctx context.Context, userID, bookID string) (*model.Favorite, error) {
	bookID, err := requireID("book_id", bookID)
	if err != nil {
		return nil, err
	}
	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	fav := &model.Favorite{UserID: userID, BookID: bookID}
	if err := s.store.CreateFavorite(ctx, fav); err != nil {
		if errors.Is(err, apperror.ErrConflict) || errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("adding favorite: %w", err)
	}
	fav.Book = &book.Book

	s.logger.Info("favorite added", slog.String("user_id", userID), slog.String("book_id", bookID))
	return fav, nil
}

// List returns one page of the member's favorites, newest first.
func (s *FavoriteService) List(ctx context.Context, userID string, p Pagination) (model.Page[model.Favorite], error) {
	if err := p.check(); err != nil {
		return model.Page[model.Favorite]{}, err
	}
	favs, total, err := s.store.ListFavorites(ctx, userID, p.options())
	if err != nil {
		return model.Page[model.Favorite]{}, fmt.Errorf("listing favorites: %w", err)
	}
	return model.NewPage(favs, p.Page, p.Limit, total), nil
}

// Remove deletes a favorite. A book that is not a favorite is NotFound.
func (s *FavoriteService) Remove(ctx context.Context, userID, bookID string) error {
	bookID, err := requireID("book_id", bookID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteFavorite(ctx, userID, bookID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.NotFound("favorite", bookID)
		}
		return fmt.Errorf("removing favorite: %w", err)
	}
	s.logger.Info("favorite removed", slog.String("user_id", userID), slog.String("book_id", bookID))
	return nil
}

// MeetingStore is the storage MeetingService needs.
type MeetingStore interface {
	repository.MeetingRepository
	GetBook(ctx context.Context, id string) (*model.BookWithRating, error)
}

// MeetingService tracks who attends which book's meeting.
type MeetingService struct {
	store  MeetingStore
	logger *slog.Logger
}

func NewMeetingService(store MeetingStore, logger *slog.Logger) *MeetingService {
	return &MeetingService{store: store, logger: logger}
}

// ParticipantList is the attendance sheet of one meeting.
type ParticipantList struct {
	BookID            string              `json:"book_id"`
	BookTitle         string              `json:"book_title"`
	BookDate          string              `json:"book_date"`
	BookLocation      string              `json:"book_location"`
	TotalParticipants int                 `json:"total_participants"`
	Participants      []model.Participant `json:"participants"`
}

// Register signs userID up for a book's meeting. An active registration
// for the same book is a conflict; a cancelled one does not count.
func (s *MeetingService) Register(ctx context.Context, userID, bookID string) (*model.MeetingRegistration, error) {
	bookID, err := requireID("book_id", bookID)
	if err != nil {
		return nil, err
	}
	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	reg := &model.MeetingRegistration{UserID: userID, BookID: bookID}
	if err := s.store.CreateRegistration(ctx, reg); err != nil {
		if errors.Is(err, apperror.ErrConflict) || errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("registering for meeting: %w", err)
	}
	reg.Book = &book.Book

	s.logger.Info("meeting registration",
		slog.String("user_id", userID),
		slog.String("book_id", bookID),
	)
	return reg, nil
}

// Cancel withdraws the caller's active registration.
func (s *MeetingService) Cancel(ctx context.Context, userID, bookID string) error {
	bookID, err := requireID("book_id", bookID)
	if err != nil {
		return err
	}
	if err := s.store.CancelRegistration(ctx, userID, bookID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.NotFound("meeting registration", bookID)
		}
		return fmt.Errorf("cancelling registration: %w", err)
	}
	s.logger.Info("meeting registration cancelled",
		slog.String("user_id", userID),
		slog.String("book_id", bookID),
	)
	return nil
}

// Mine lists the caller's active registrations with their books.
func (s *MeetingService) Mine(ctx context.Context, userID string) ([]model.MeetingRegistration, error) {
	regs, err := s.store.ListUserRegistrations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing registrations: %w", err)
	}
	return regs, nil
}

// Participants returns the active attendees of a book's meeting, oldest
// registration first.
func (s *MeetingService) Participants(ctx context.Context, bookID string) (*ParticipantList, error) {
	bookID, err := requireID("book_id", bookID)
	if err != nil {
		return nil, err
	}
	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	participants, err := s.store.ListParticipants(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("listing participants: %w", err)
	}
	return &ParticipantList{
		BookID:            book.ID,
		BookTitle:         book.Title,
		BookDate:          book.Date,
		BookLocation:      book.Location,
		TotalParticipants: len(participants),
		Participants:      participants,
	}, nil
}
