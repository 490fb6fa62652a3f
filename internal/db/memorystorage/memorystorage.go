// Package memorystorage provides an in-memory implementation of the storage
// interface. It backs the service when no database DSN is configured and is
// the storage of choice in tests. It enforces the same uniqueness semantics
// as the PostgreSQL backend.
package memorystorage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vkarpenko/shrturl/internal/models"
)

type urlRecord struct {
	mapping models.URLMapping
	seq     int64
}

// MemoryStorage is a mutex-guarded map-based storage backend.
type MemoryStorage struct {
	mu         sync.RWMutex
	nextUserID int64
	nextSeq    int64
	users      map[int64]models.User
	byUsername map[string]int64
	urls       map[string]urlRecord
}

// New returns an empty MemoryStorage.
func New() (*MemoryStorage, error) {
	return &MemoryStorage{
		users:      map[int64]models.User{},
		byUsername: map[string]int64{},
		urls:       map[string]urlRecord{},
	}, nil
}

// CreateUser inserts a new user, enforcing username uniqueness.
func (db *MemoryStorage) CreateUser(
	ctx context.Context,
	username,
	passwordHash string,
	activated bool,
) (*models.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.byUsername[username]; exists {
		return nil, fmt.Errorf("%w: users_username_key", models.ErrUniqueViolation)
	}

	db.nextUserID++
	usr := models.User{
		ID:           db.nextUserID,
		Username:     username,
		PasswordHash: passwordHash,
		Activated:    activated,
	}
	db.users[usr.ID] = usr
	db.byUsername[username] = usr.ID

	return &usr, nil
}

// GetUserByID fetches a user by id.
func (db *MemoryStorage) GetUserByID(ctx context.Context, userID int64) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	usr, found := db.users[userID]
	if !found {
		return nil, models.ErrNotFound
	}

	return &usr, nil
}

// GetUserByUsername fetches a user by the unique username.
func (db *MemoryStorage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	userID, found := db.byUsername[username]
	if !found {
		return nil, models.ErrNotFound
	}
	usr := db.users[userID]

	return &usr, nil
}

// CreateURLMapping inserts a mapping, enforcing slug uniqueness.
func (db *MemoryStorage) CreateURLMapping(ctx context.Context, mapping *models.URLMapping) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.urls[mapping.Slug]; exists {
		return fmt.Errorf("%w: urls_pkey", models.ErrUniqueViolation)
	}

	mapping.CreatedAt = time.Now()
	db.nextSeq++
	db.urls[mapping.Slug] = urlRecord{
		mapping: *mapping,
		seq:     db.nextSeq,
	}

	return nil
}

// FindBySlug retrieves the mapping for the given slug.
func (db *MemoryStorage) FindBySlug(ctx context.Context, slug string) (*models.URLMapping, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	record, found := db.urls[slug]
	if !found {
		return nil, models.ErrNotFound
	}
	mapping := record.mapping

	return &mapping, nil
}

// FindByOwner retrieves all mappings owned by the user, newest first.
func (db *MemoryStorage) FindByOwner(ctx context.Context, ownerID int64) ([]models.URLMapping, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var records []urlRecord
	for _, record := range db.urls {
		if record.mapping.OwnerID == ownerID {
			records = append(records, record)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].seq > records[j].seq
	})

	result := make([]models.URLMapping, 0, len(records))
	for _, record := range records {
		result = append(result, record.mapping)
	}

	return result, nil
}

// DeleteBySlugIfOwner removes the mapping only when it is owned by ownerID.
func (db *MemoryStorage) DeleteBySlugIfOwner(ctx context.Context, slug string, ownerID int64) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	record, found := db.urls[slug]
	if !found || record.mapping.OwnerID != ownerID {
		return false, nil
	}

	delete(db.urls, slug)

	return true, nil
}

// Ping always succeeds for the in-memory backend.
func (db *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the in-memory backend.
func (db *MemoryStorage) Close() error {
	return nil
}
