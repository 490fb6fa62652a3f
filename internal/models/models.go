// Package models contains the domain entities and shared request/view
// structures used across the storage, service and router layers.
package models

import (
	"errors"
	"time"
)

// User is a registered account that may own short URL mappings.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Activated    bool
}

// URLMapping binds a short slug to its forward target. A mapping always
// belongs to exactly one user and its target never changes after creation.
type URLMapping struct {
	Slug      string
	OwnerID   int64
	Target    string
	CreatedAt time.Time
}

// RegisterRequest carries the register form fields.
type RegisterRequest struct {
	Username string `validate:"required,min=5"`
	Password string `validate:"required,min=8"`
}

// LoginRequest carries the login form fields.
type LoginRequest struct {
	Username string `validate:"required"`
	Password string `validate:"required"`
}

// UserURL is a single row of the "my URLs" view.
type UserURL struct {
	Slug        string
	ShortURL    string
	OriginalURL string
	CreatedAt   time.Time
}

// UserUrls is the owned mappings of one user, newest first.
type UserUrls []UserURL

// ErrUniqueViolation is returned by storage when an insert hits a unique
// constraint (duplicate username or slug).
var ErrUniqueViolation = errors.New("unique constraint violation")

// ErrNotFound is returned by storage when the requested record does not exist.
var ErrNotFound = errors.New("record not found")

const (
	StorageTypeUnknown = iota
	StorageTypePostgresql
	StorageTypeMemory
)
