// Package postgresdb provides a PostgreSQL-based implementation of the storage
// interface for persisting and retrieving users and URL mappings.
// It runs schema migrations on startup and maps constraint violations to the
// shared storage error kinds.
package postgresdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vkarpenko/shrturl/internal/models"
)

// PostgresDB is a PostgreSQL-backed implementation of the storage interface.
// It handles all persistence operations via a PostgreSQL database connection.
type PostgresDB struct {
	database          *sql.DB
	connectionTimeout time.Duration
}

type initOptions struct {
	DBPreReset bool
}

// InitOption defines a functional option for configuring database initialization.
type InitOption func(*initOptions)

// WithDBPreReset enables or disables resetting the database schema before migration.
// It can be used for test setups or development purposes.
func WithDBPreReset(value bool) InitOption {
	return func(options *initOptions) {
		options.DBPreReset = value
	}
}

// New establishes a connection to the PostgreSQL database,
// runs schema migrations, and returns a configured PostgresDB instance.
// Optionally accepts initialization options, such as WithDBPreReset.
func New(
	ctx context.Context,
	databaseDSN string,
	connectionTimeout time.Duration,
	migrationsDir string,
	optionsProto ...InitOption,
) (*PostgresDB, error) {
	options := &initOptions{
		DBPreReset: false,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	database, err := sql.Open("pgx", databaseDSN)
	if err != nil {
		return nil, err
	}

	result := &PostgresDB{
		database:          database,
		connectionTimeout: connectionTimeout,
	}

	if options.DBPreReset {
		if err := result.resetDB(ctx); err != nil {
			return nil, fmt.Errorf("error while `result.resetDB()` calling: %w", err)
		}
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("error while `goose.SetDialect()` calling: %w", err)
	}

	if err := goose.Up(result.database, migrationsDir); err != nil {
		return nil, fmt.Errorf("error while `goose.Up()` calling: %w", err)
	}

	return result, nil
}

// CreateUser inserts a new user record and returns it with the generated id.
// A duplicate username yields models.ErrUniqueViolation.
func (db *PostgresDB) CreateUser(
	ctx context.Context,
	username,
	passwordHash string,
	activated bool,
) (*models.User, error) {
	row := db.database.QueryRowContext(
		ctx,
		`INSERT INTO users (username, password_hash, activated)
			VALUES ($1, $2, $3)
			RETURNING id`,
		username,
		passwordHash,
		activated,
	)

	usr := &models.User{
		Username:     username,
		PasswordHash: passwordHash,
		Activated:    activated,
	}
	if err := row.Scan(&usr.ID); err != nil {
		return nil, translateConstraintError(err)
	}

	return usr, nil
}

// GetUserByID fetches a user by id. Returns models.ErrNotFound when absent.
func (db *PostgresDB) GetUserByID(ctx context.Context, userID int64) (*models.User, error) {
	row := db.database.QueryRowContext(
		ctx,
		`SELECT id, username, password_hash, activated FROM users WHERE id = $1`,
		userID,
	)

	return scanUser(row)
}

// GetUserByUsername fetches a user by the unique username.
// Returns models.ErrNotFound when absent.
func (db *PostgresDB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	row := db.database.QueryRowContext(
		ctx,
		`SELECT id, username, password_hash, activated FROM users WHERE username = $1`,
		username,
	)

	return scanUser(row)
}

// CreateURLMapping inserts a slug-to-target mapping.
// A slug collision yields models.ErrUniqueViolation.
func (db *PostgresDB) CreateURLMapping(ctx context.Context, mapping *models.URLMapping) error {
	row := db.database.QueryRowContext(
		ctx,
		`INSERT INTO urls (slug, user_id, target)
			VALUES ($1, $2, $3)
			RETURNING created_at`,
		mapping.Slug,
		mapping.OwnerID,
		mapping.Target,
	)
	if err := row.Scan(&mapping.CreatedAt); err != nil {
		return translateConstraintError(err)
	}

	return nil
}

// FindBySlug retrieves the mapping for the given slug.
// It is the only storage call on the public redirect path.
func (db *PostgresDB) FindBySlug(ctx context.Context, slug string) (*models.URLMapping, error) {
	row := db.database.QueryRowContext(
		ctx,
		`SELECT slug, user_id, target, created_at FROM urls WHERE slug = $1`,
		slug,
	)

	mapping := &models.URLMapping{}
	err := row.Scan(&mapping.Slug, &mapping.OwnerID, &mapping.Target, &mapping.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}

	return mapping, nil
}

// FindByOwner retrieves all mappings owned by the user, newest first.
func (db *PostgresDB) FindByOwner(ctx context.Context, ownerID int64) ([]models.URLMapping, error) {
	rows, err := db.database.QueryContext(
		ctx,
		`SELECT slug, user_id, target, created_at
			FROM urls
			WHERE user_id = $1
			ORDER BY created_at DESC, slug DESC`,
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.URLMapping
	for rows.Next() {
		var mapping models.URLMapping
		err = rows.Scan(&mapping.Slug, &mapping.OwnerID, &mapping.Target, &mapping.CreatedAt)
		if err != nil {
			return nil, err
		}

		result = append(result, mapping)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// DeleteBySlugIfOwner re-reads the mapping, compares the owner and deletes it
// within a single transaction. Returns false when the slug is unknown or the
// caller is not the owner.
func (db *PostgresDB) DeleteBySlugIfOwner(ctx context.Context, slug string, ownerID int64) (bool, error) {
	transaction, err := db.database.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = transaction.Rollback()
	}()

	row := transaction.QueryRowContext(
		ctx,
		`SELECT user_id FROM urls WHERE slug = $1 FOR UPDATE`,
		slug,
	)
	var storedOwnerID int64
	if err := row.Scan(&storedOwnerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	if storedOwnerID != ownerID {
		return false, nil
	}

	_, err = transaction.ExecContext(
		ctx,
		`DELETE FROM urls WHERE slug = $1`,
		slug,
	)
	if err != nil {
		return false, err
	}

	if err := transaction.Commit(); err != nil {
		return false, err
	}

	return true, nil
}

// Ping verifies connectivity with the PostgreSQL database within the configured timeout.
func (db *PostgresDB) Ping(ctx context.Context) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, db.connectionTimeout)
	defer cancel()

	return db.database.PingContext(ctxWithTimeout)
}

// Close closes the database connection and releases any associated resources.
func (db *PostgresDB) Close() error {
	return db.database.Close()
}

func (db *PostgresDB) resetDB(ctx context.Context) error {
	_, err := db.database.ExecContext(
		ctx,
		`
			DO $$
			DECLARE
				r RECORD;
			BEGIN
				FOR r IN (SELECT tablename FROM pg_tables WHERE schemaname = 'public') LOOP
					EXECUTE 'DROP TABLE IF EXISTS ' || quote_ident(r.tablename) || ' CASCADE';
				END LOOP;
			END $$;
		`,
	)
	if err != nil {
		return fmt.Errorf("error while `db.database.ExecContext()` calling: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	usr := &models.User{}
	err := row.Scan(&usr.ID, &usr.Username, &usr.PasswordHash, &usr.Activated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}

	return usr, nil
}

func translateConstraintError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return fmt.Errorf("%w: %s", models.ErrUniqueViolation, pgErr.ConstraintName)
	}

	return err
}
