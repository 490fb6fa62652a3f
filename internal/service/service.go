// Package service implements the use cases of the shortener: account
// registration and login, slug allocation, listing and deleting owned URLs,
// and public slug resolution. It translates storage failures into the error
// kinds the handlers branch on.
package service

import (
	"context"
	"errors"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/thoas/go-funk"

	"github.com/vkarpenko/shrturl/internal/models"
)

type userKeeper interface {
	CreateUser(ctx context.Context, username, passwordHash string, activated bool) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

type urlKeeper interface {
	FindBySlug(ctx context.Context, slug string) (*models.URLMapping, error)
	FindByOwner(ctx context.Context, ownerID int64) ([]models.URLMapping, error)
	DeleteBySlugIfOwner(ctx context.Context, slug string, ownerID int64) (bool, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type storage interface {
	userKeeper
	urlKeeper
	pinger
}

type slugAllocator interface {
	Allocate(ctx context.Context, target string, ownerID int64) (*models.URLMapping, error)
}

type passwordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// ErrUsernameTaken is returned when registering a username that already exists.
var ErrUsernameTaken = errors.New("this username has already been taken")

// ErrWrongCredentials is returned on any login failure. It deliberately does
// not say which of username, password or activation was the cause.
var ErrWrongCredentials = errors.New("wrong credentials")

// ErrValidation wraps field-level validation failures of submitted forms.
var ErrValidation = errors.New("validation failed")

// Service wires storage, the slug allocator and the credential service into
// the application's use cases.
type Service struct {
	db           storage
	allocator    slugAllocator
	hasher       passwordHasher
	validate     *validator.Validate
	shortURLBase string
}

// New creates a Service.
func New(
	db storage,
	allocator slugAllocator,
	hasher passwordHasher,
	shortURLBase string,
) *Service {
	return &Service{
		db:           db,
		allocator:    allocator,
		hasher:       hasher,
		validate:     validator.New(),
		shortURLBase: shortURLBase,
	}
}

// RegisterUser validates the form, hashes the password and creates the user.
// A duplicate username yields ErrUsernameTaken.
func (s *Service) RegisterUser(ctx context.Context, request models.RegisterRequest) (*models.User, error) {
	if err := s.validate.Struct(request); err != nil {
		return nil, errors.Join(ErrValidation, err)
	}

	passwordHash, err := s.hasher.Hash(request.Password)
	if err != nil {
		return nil, err
	}

	usr, err := s.db.CreateUser(ctx, request.Username, passwordHash, true)
	if err != nil {
		if errors.Is(err, models.ErrUniqueViolation) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}

	return usr, nil
}

// Authenticate verifies the credentials and returns the user.
// Unknown username, inactive account and wrong password all collapse into
// ErrWrongCredentials.
func (s *Service) Authenticate(ctx context.Context, request models.LoginRequest) (*models.User, error) {
	if err := s.validate.Struct(request); err != nil {
		return nil, ErrWrongCredentials
	}

	usr, err := s.db.GetUserByUsername(ctx, request.Username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrWrongCredentials
		}
		return nil, err
	}

	if !usr.Activated {
		return nil, ErrWrongCredentials
	}

	if !s.hasher.Verify(request.Password, usr.PasswordHash) {
		return nil, ErrWrongCredentials
	}

	return usr, nil
}

// ShortenURL allocates a slug for the target on behalf of the owner and
// returns the full short link.
func (s *Service) ShortenURL(ctx context.Context, target string, ownerID int64) (string, error) {
	mapping, err := s.allocator.Allocate(ctx, target, ownerID)
	if err != nil {
		return "", err
	}

	return s.GetShortURL(mapping.Slug), nil
}

// AsUserURLs converts stored mappings into "my URLs" view rows, preserving
// the given order.
func (s *Service) AsUserURLs(mappings []models.URLMapping) models.UserUrls {
	result := funk.Map(mappings, func(mapping models.URLMapping) models.UserURL {
		return models.UserURL{
			Slug:        mapping.Slug,
			ShortURL:    s.GetShortURL(mapping.Slug),
			OriginalURL: mapping.Target,
			CreatedAt:   mapping.CreatedAt,
		}
	}).([]models.UserURL)

	return models.UserUrls(result)
}

// DeleteUserURL removes the mapping when the caller owns it, reporting
// whether a row was removed.
func (s *Service) DeleteUserURL(ctx context.Context, slug string, ownerID int64) (bool, error) {
	return s.db.DeleteBySlugIfOwner(ctx, slug, ownerID)
}

// ResolveSlug returns the stored target for the slug.
// Returns models.ErrNotFound for an unknown slug.
func (s *Service) ResolveSlug(ctx context.Context, slug string) (string, error) {
	mapping, err := s.db.FindBySlug(ctx, slug)
	if err != nil {
		return "", err
	}

	return mapping.Target, nil
}

// Ping checks the health of the database/storage layer.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// GetShortURL formats the public short link for a slug.
func (s *Service) GetShortURL(slug string) string {
	return strings.TrimRight(s.shortURLBase, "/") + "/" + slug
}
