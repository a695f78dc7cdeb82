package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"resumepay/models"
)

// GormStore writes attempts to Postgres.
type GormStore struct {
	db *gorm.DB
}

// OpenGorm connects to dsn. Migration failures are logged and ignored so a
// restricted database user can still run against a prepared schema.
func OpenGorm(dsn string, autoMigrate bool, log *zap.SugaredLogger) (*GormStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres store requires a DSN (--db-dsn)")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewGormStore(db, autoMigrate, log), nil
}

// NewGormStore wraps an existing connection.
func NewGormStore(db *gorm.DB, autoMigrate bool, log *zap.SugaredLogger) *GormStore {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if autoMigrate {
		if err := Migrate(db); err != nil {
			log.Warnw("migration warning", "table", "verification_attempts", "error", err)
		}
	}
	return &GormStore{db: db}
}

// Migrate creates or updates the attempts table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.VerificationAttempt{}); err != nil {
		return fmt.Errorf("migrate verification_attempts: %w", err)
	}
	return nil
}

// MigrateGorm connects to dsn, migrates and disconnects. Unlike OpenGorm it
// fails when the migration does.
func MigrateGorm(dsn string) error {
	if dsn == "" {
		return fmt.Errorf("postgres store requires a DSN (--db-dsn)")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}()
	return Migrate(db)
}

func (s *GormStore) SaveAttempt(ctx context.Context, a *models.VerificationAttempt) error {
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("save attempt: %w", err)
	}
	return nil
}

func (s *GormStore) ListAttempts(ctx context.Context, limit int) ([]models.VerificationAttempt, error) {
	var out []models.VerificationAttempt
	err := s.db.WithContext(ctx).Order("id desc").Limit(clampLimit(limit)).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return out, nil
}

func (s *GormStore) ListBetween(ctx context.Context, start, end time.Time) ([]models.VerificationAttempt, error) {
	var out []models.VerificationAttempt
	err := s.db.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", start, end).
		Order("id asc").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list attempts between %s and %s: %w", start.Format(time.RFC3339), end.Format(time.RFC3339), err)
	}
	return out, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
