// Package storage declares the persistence contract shared by all
// storage backends.
package storage

import (
	"context"

	"github.com/vkarpenko/shrturl/internal/models"
)

// Storage is the full persistence surface of the service.
//
// Creation methods return models.ErrUniqueViolation when an insert hits a
// unique constraint; lookups return models.ErrNotFound when no record
// matches. Callers dispatch on these kinds with errors.Is, never on
// driver-specific error text.
type Storage interface {
	CreateUser(ctx context.Context, username, passwordHash string, activated bool) (*models.User, error)

	GetUserByID(ctx context.Context, userID int64) (*models.User, error)

	GetUserByUsername(ctx context.Context, username string) (*models.User, error)

	CreateURLMapping(ctx context.Context, mapping *models.URLMapping) error

	FindBySlug(ctx context.Context, slug string) (*models.URLMapping, error)

	// FindByOwner returns the owner's mappings ordered newest first.
	FindByOwner(ctx context.Context, ownerID int64) ([]models.URLMapping, error)

	// DeleteBySlugIfOwner removes the mapping only when it exists and is
	// owned by ownerID, reporting whether a row was removed.
	DeleteBySlugIfOwner(ctx context.Context, slug string, ownerID int64) (bool, error)

	Ping(ctx context.Context) error

	Close() error
}
