// Package database is the relational side of the hosted backend: RSVP
// responses, guests, and the social feed tables.
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"wedding-site/internal/models"
)

const connectTries = 5

// Store wraps a gorm handle on the hosted database.
type Store struct {
	db *gorm.DB
}

// Open connects to the Postgres database at dsn, retrying with backoff
// while the server comes up.
func Open(ctx context.Context, dsn string) (*Store, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 10 * time.Second

	g, err := backoff.Retry(ctx, func() (*gorm.DB, error) {
		return gorm.Open(postgres.Open(dsn), GormConfig())
	}, backoff.WithBackOff(b), backoff.WithMaxTries(connectTries))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := g.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return &Store{db: g}, nil
}

// GormConfig is the gorm configuration shared by every dialect. Timestamps
// are generated in UTC so cursor comparisons agree across drivers.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}
}

// New wraps an already opened gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying gorm handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Migrate creates or updates every table the site uses.
func (s *Store) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&models.Response{},
		&models.Guest{},
		&models.Post{},
		&models.Comment{},
		&models.Reaction{},
		&models.Story{},
		&models.StoryReaction{},
		&models.StoryView{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// IsDuplicate reports whether err is a unique-constraint violation.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
}

func newID() string {
	return uuid.NewString()
}
