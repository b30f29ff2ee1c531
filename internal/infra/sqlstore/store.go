// Package sqlstore persists transactions, merchant rules, processed messages and
// user refresh bookkeeping in a relational database through gorm.
package sqlstore

import (
	"context"
	"fmt"

	"github.com/dvloznov/mailledger/internal/rules"
	"github.com/dvloznov/mailledger/internal/watermark"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Store is the gorm-backed store.
type Store struct {
	db *gorm.DB
}

// New opens a Postgres connection for dsn.
func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt: true,
		Logger:      gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("New: open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("New: get sql.DB: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("New: ping postgres: %w", err)
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an already opened gorm handle. It is useful for testing.
func NewWithDB(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the tables from the models. Production
// databases are migrated with the SQL files instead.
func (s *Store) AutoMigrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(
		&TransactionModel{},
		&RuleModel{},
		&ProcessedMessageModel{},
		&UserDataModel{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// Ensure Store implements the store interfaces.
var (
	_ rules.Store     = (*Store)(nil)
	_ watermark.Store = (*Store)(nil)
)
