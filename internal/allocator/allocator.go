// Package allocator generates short slugs and allocates them against the
// store. Slug uniqueness is never assumed: the store's unique constraint is
// the source of truth and a collision is handled by retrying with a fresh
// candidate.
package allocator

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"

	"github.com/vkarpenko/shrturl/internal/models"
)

const (
	defaultAlphabet    = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	defaultSlugLength  = 6
	defaultMaxAttempts = 5
)

// ErrInvalidURL is returned when the submitted string cannot be normalized
// into an absolute http(s) URL.
var ErrInvalidURL = errors.New("there is no valid URL in the request")

// ErrTriesExceeded is returned when the bounded retry budget is exhausted
// without finding a free slug.
var ErrTriesExceeded = errors.New("the number of attempts to allocate a unique slug has been exceeded")

type urlCreator interface {
	CreateURLMapping(ctx context.Context, mapping *models.URLMapping) error
}

// Allocator creates URL mappings with random slugs.
type Allocator struct {
	db          urlCreator
	alphabet    string
	slugLength  int
	maxAttempts int
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithAlphabet overrides the slug alphabet. Tests narrow it to force
// collisions deterministically.
func WithAlphabet(alphabet string) Option {
	return func(a *Allocator) {
		a.alphabet = alphabet
	}
}

// WithSlugLength overrides the slug length.
func WithSlugLength(length int) Option {
	return func(a *Allocator) {
		a.slugLength = length
	}
}

// WithMaxAttempts overrides the collision retry budget.
func WithMaxAttempts(attempts int) Option {
	return func(a *Allocator) {
		a.maxAttempts = attempts
	}
}

// New returns an Allocator backed by the given store.
func New(db urlCreator, options ...Option) *Allocator {
	allocator := &Allocator{
		db:          db,
		alphabet:    defaultAlphabet,
		slugLength:  defaultSlugLength,
		maxAttempts: defaultMaxAttempts,
	}
	for _, option := range options {
		option(allocator)
	}

	return allocator
}

// Allocate normalizes the target, then inserts a mapping under a fresh random
// slug, retrying on slug collisions up to the configured budget.
func (a *Allocator) Allocate(ctx context.Context, target string, ownerID int64) (*models.URLMapping, error) {
	normalized, err := NormalizeTarget(target)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		slug, err := a.randomSlug()
		if err != nil {
			return nil, err
		}

		mapping := &models.URLMapping{
			Slug:    slug,
			OwnerID: ownerID,
			Target:  normalized,
		}

		err = a.db.CreateURLMapping(ctx, mapping)
		if err == nil {
			return mapping, nil
		}
		if errors.Is(err, models.ErrUniqueViolation) {
			continue
		}

		return nil, err
	}

	return nil, ErrTriesExceeded
}

// NormalizeTarget parses the raw user input into a canonical absolute URL.
// A missing scheme is defaulted to http; anything that still does not parse
// into an http(s) URL with a host is rejected.
func NormalizeTarget(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidURL
	}

	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", ErrInvalidURL
	}
	if parsed.Host == "" {
		return "", ErrInvalidURL
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)

	return parsed.String(), nil
}

func (a *Allocator) randomSlug() (string, error) {
	var builder strings.Builder
	builder.Grow(a.slugLength)

	for i := 0; i < a.slugLength; i++ {
		randomIndex, err := rand.Int(rand.Reader, big.NewInt(int64(len(a.alphabet))))
		if err != nil {
			return "", fmt.Errorf("error while the random slug symbol generation: %w", err)
		}
		builder.WriteByte(a.alphabet[randomIndex.Int64()])
	}

	return builder.String(), nil
}
