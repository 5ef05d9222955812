package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/bookclub/internal/apperror"
	"github.com/sakif/bookclub/internal/model"
	"github.com/sakif/bookclub/internal/repository"
)

// MaxSearchLength bounds the book search query.
const MaxSearchLength = 200

// BookStore is the storage BookService needs: books and their reviews.
type BookStore interface {
	repository.BookRepository
	repository.ReviewRepository
}

// BookService manages the book-of-the-month catalogue and reviews.
type BookService struct {
	store  BookStore
	logger *slog.Logger
}

func NewBookService(store BookStore, logger *slog.Logger) *BookService {
	return &BookService{store: store, logger: logger}
}

// BookInput is the editable part of a book, used for create and full
// replace.
type BookInput struct {
	Title       string `json:"title"       validate:"required,max=300"`
	Author      string `json:"author"      validate:"required,max=200"`
	Date        string `json:"date"        validate:"required,max=100"`
	Location    string `json:"location"    validate:"required,max=300"`
	Description string `json:"description" validate:"max=5000"`
	IsCurrent   bool   `json:"is_current"`
}

func (in *BookInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.Date = strings.TrimSpace(in.Date)
	in.Location = strings.TrimSpace(in.Location)
	in.Description = strings.TrimSpace(in.Description)
}

// ReviewInput is a member's rating of a book.
type ReviewInput struct {
	Rating  int    `json:"rating"  validate:"min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

// Create adds a book. With IsCurrent set it becomes the only current book.
func (s *BookService) Create(ctx context.Context, in BookInput) (*model.Book, error) {
	in.normalize()
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	book := &model.Book{
		Title:       in.Title,
		Author:      in.Author,
		Date:        in.Date,
		Location:    in.Location,
		Description: in.Description,
		IsCurrent:   in.IsCurrent,
	}
	if err := s.store.CreateBook(ctx, book); err != nil {
		return nil, fmt.Errorf("creating book: %w", err)
	}

	s.logger.Info("book created",
		slog.String("id", book.ID),
		slog.String("title", book.Title),
		slog.Bool("current", book.IsCurrent),
	)
	return book, nil
}

// Get returns a book with its rating aggregates.
func (s *BookService) Get(ctx context.Context, id string) (*model.BookWithRating, error) {
	id, err := requireID("id", id)
	if err != nil {
		return nil, err
	}
	return s.store.GetBook(ctx, id)
}

// Current returns the book of the month.
func (s *BookService) Current(ctx context.Context) (*model.BookWithRating, error) {
	return s.store.GetCurrentBook(ctx)
}

// List returns one page of books, newest first, optionally filtered by a
// case-insensitive title/author substring.
func (s *BookService) List(ctx context.Context, search string, p Pagination) (model.Page[model.BookWithRating], error) {
	if err := p.check(); err != nil {
		return model.Page[model.BookWithRating]{}, err
	}
	search = strings.TrimSpace(search)
	if len([]rune(search)) > MaxSearchLength {
		return model.Page[model.BookWithRating]{}, apperror.ValidationFailed("search",
			fmt.Sprintf("search must be %d characters or less", MaxSearchLength))
	}

	books, total, err := s.store.ListBooks(ctx, repository.BookFilter{
		ListOptions: p.options(),
		Search:      search,
	})
	if err != nil {
		return model.Page[model.BookWithRating]{}, fmt.Errorf("listing books: %w", err)
	}
	return model.NewPage(books, p.Page, p.Limit, total), nil
}

// Update replaces the editable fields of a book.
func (s *BookService) Update(ctx context.Context, id string, in BookInput) (*model.BookWithRating, error) {
	id, err := requireID("id", id)
	if err != nil {
		return nil, err
	}
	in.normalize()
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	existing, err := s.store.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}
	book := existing.Book
	book.Title = in.Title
	book.Author = in.Author
	book.Date = in.Date
	book.Location = in.Location
	book.Description = in.Description
	book.IsCurrent = in.IsCurrent

	if err := s.store.UpdateBook(ctx, &book); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("updating book: %w", err)
	}
	s.logger.Info("book updated", slog.String("id", id))

	existing.Book = book
	return existing, nil
}

// SetCurrent makes id the book of the month, clearing the flag elsewhere.
func (s *BookService) SetCurrent(ctx context.Context, id string) (*model.BookWithRating, error) {
	id, err := requireID("id", id)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetCurrentBook(ctx, id); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("setting current book: %w", err)
	}
	s.logger.Info("current book changed", slog.String("id", id))
	return s.store.GetBook(ctx, id)
}

// Delete removes a book together with its favorites, reviews and
// registrations.
func (s *BookService) Delete(ctx context.Context, id string) error {
	id, err := requireID("id", id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteBook(ctx, id); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		return fmt.Errorf("deleting book: %w", err)
	}
	s.logger.Info("book deleted", slog.String("id", id))
	return nil
}

// AddReview records a rating by userID for an existing book.
func (s *BookService) AddReview(ctx context.Context, userID, bookID string, in ReviewInput) (*model.Review, error) {
	bookID, err := requireID("book_id", bookID)
	if err != nil {
		return nil, err
	}
	in.Comment = strings.TrimSpace(in.Comment)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if _, err := s.store.GetBook(ctx, bookID); err != nil {
		return nil, err
	}

	review := &model.Review{
		UserID:  userID,
		BookID:  bookID,
		Rating:  in.Rating,
		Comment: in.Comment,
	}
	if err := s.store.CreateReview(ctx, review); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("creating review: %w", err)
	}

	s.logger.Info("review added",
		slog.String("book_id", bookID),
		slog.Int("rating", review.Rating),
	)
	return review, nil
}

// ListReviews returns one page of a book's reviews, newest first.
func (s *BookService) ListReviews(ctx context.Context, bookID string, p Pagination) (model.Page[model.Review], error) {
	bookID, err := requireID("book_id", bookID)
	if err != nil {
		return model.Page[model.Review]{}, err
	}
	if err := p.check(); err != nil {
		return model.Page[model.Review]{}, err
	}
	if _, err := s.store.GetBook(ctx, bookID); err != nil {
		return model.Page[model.Review]{}, err
	}

	reviews, total, err := s.store.ListReviews(ctx, bookID, p.options())
	if err != nil {
		return model.Page[model.Review]{}, fmt.Errorf("listing reviews: %w", err)
	}
	return model.NewPage(reviews, p.Page, p.Limit, total), nil
}
