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

// UserService manages member profiles and roles.
type UserService struct {
	users  repository.UserRepository
	logger *slog.Logger
}

func NewUserService(users repository.UserRepository, logger *slog.Logger) *UserService {
	return &UserService{users: users, logger: logger}
}

// RegisterRequest is an explicit sign-up with a full profile.
type RegisterRequest struct {
	FirstName    string   `json:"first_name"    validate:"required,max=100"`
	LastName     string   `json:"last_name"     validate:"required,max=100"`
	Email        string   `json:"email"         validate:"required,email"`
	Phone        string   `json:"phone"         validate:"omitempty,phone"`
	BirthDate    string   `json:"birth_date"    validate:"omitempty,birthdate"`
	FavAuthors   []string `json:"fav_authors"   validate:"max=50,dive,max=200"`
	FavGenres    []string `json:"fav_genres"    validate:"max=50,dive,max=200"`
	FavBooks     []string `json:"fav_books"     validate:"max=50,dive,max=200"`
	DiscussBooks []string `json:"discuss_books" validate:"max=50,dive,max=200"`
}

// Register creates a member with role user. A taken email is a conflict.
func (s *UserService) Register(ctx context.Context, req RegisterRequest) (*model.User, error) {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = normalizeEmail(req.Email)
	req.Phone = normalizePhone(req.Phone)
	req.BirthDate = strings.TrimSpace(req.BirthDate)
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	user := &model.User{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		Phone:        req.Phone,
		BirthDate:    req.BirthDate,
		Role:         model.RoleUser,
		FavAuthors:   cleanList(req.FavAuthors),
		FavGenres:    cleanList(req.FavGenres),
		FavBooks:     cleanList(req.FavBooks),
		DiscussBooks: cleanList(req.DiscussBooks),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("registering user: %w", err)
	}

	s.logger.Info("user registered", slog.String("user_id", user.ID))
	return user, nil
}

// Get returns a member by id.
func (s *UserService) Get(ctx context.Context, id string) (*model.User, error) {
	id, err := requireID("id", id)
	if err != nil {
		return nil, err
	}
	return s.users.GetUserByID(ctx, id)
}

// UpdateProfile applies a partial update to the caller's own profile.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, upd model.UserUpdate) (*model.User, error) {
	trimPtr(upd.FirstName)
	trimPtr(upd.LastName)
	if upd.Phone != nil {
		*upd.Phone = normalizePhone(*upd.Phone)
	}
	trimPtr(upd.BirthDate)
	if err := validateStruct(upd); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	upd.FavAuthors = cleanListKeepNil(upd.FavAuthors)
	upd.FavGenres = cleanListKeepNil(upd.FavGenres)
	upd.FavBooks = cleanListKeepNil(upd.FavBooks)
	upd.DiscussBooks = cleanListKeepNil(upd.DiscussBooks)
	user.Apply(upd)

	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	s.logger.Info("profile updated", slog.String("user_id", user.ID))
	return user, nil
}

// List returns one page of members, newest first.
func (s *UserService) List(ctx context.Context, p Pagination) (model.Page[model.User], error) {
	if err := p.check(); err != nil {
		return model.Page[model.User]{}, err
	}
	users, total, err := s.users.ListUsers(ctx, p.options())
	if err != nil {
		return model.Page[model.User]{}, fmt.Errorf("listing users: %w", err)
	}
	return model.NewPage(users, p.Page, p.Limit, total), nil
}

// UpdateRole sets a member's role. Only "user" and "admin" are accepted.
func (s *UserService) UpdateRole(ctx context.Context, id, role string) (*model.User, error) {
	id, err := requireID("id", id)
	if err != nil {
		return nil, err
	}
	r, ok := model.ParseRole(role)
	if !ok {
		return nil, apperror.ValidationFailed("role", "role must be one of: user, admin")
	}

	if err := s.users.UpdateUserRole(ctx, id, r); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("updating role: %w", err)
	}

	s.logger.Info("user role changed", slog.String("user_id", id), slog.String("role", string(r)))
	return s.users.GetUserByID(ctx, id)
}

func trimPtr(s *string) {
	if s != nil {
		*s = strings.TrimSpace(*s)
	}
}

// cleanList trims entries and drops blanks. The result is never nil.
func cleanList(list []string) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// cleanListKeepNil is cleanList that keeps nil as nil, so an absent list in
// a partial update stays "unchanged".
func cleanListKeepNil(list []string) []string {
	if list == nil {
		return nil
	}
	return cleanList(list)
}
