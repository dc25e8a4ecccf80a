package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// GormStorage is the relational backend
type GormStorage struct {
	db   *gorm.DB
	opts Options
}

func NewGorm(dialect Dialect, dsn string, opts Options) (*GormStorage, error) {
	var dialector gorm.Dialector
	switch dialect {
	case SQLite:
		dialector = sqlite.Open(dsn)
	case Postgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: dialect %q", ErrUnsupportedDSN, dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		slog.Error("storage: Failed to connect to database", "error", err, "dialect", dialect)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if dialect == SQLite {
		// sqlite allows a single writer, queue writers in the pool instead of failing with SQLITE_BUSY
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	s := &GormStorage{db: db, opts: opts.withDefaults()}
	if err := s.migrate(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *GormStorage) migrate() error {
	err := s.db.AutoMigrate(&ChatSettings{}, &ChatStats{})
	if err != nil {
		slog.Error("storage: Failed to migrate database", "error", err)
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

// GetOrCreate implements SettingsStore
func (s *GormStorage) GetOrCreate(ctx context.Context, chatID int64) (*ChatSettings, error) {
	var settings ChatSettings
	result := s.db.WithContext(ctx).Where("chat_id = ?", chatID).Limit(1).Find(&settings)
	if result.Error != nil {
		slog.Error("storage: Failed to get settings", "error", result.Error, "chat_id", chatID)
		return nil, fmt.Errorf("failed to get settings: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return &settings, nil
	}

	slog.Debug("storage: Settings not found, creating default", "chat_id", chatID)

	// A concurrent caller may insert first, the conflict is ignored and the winner's row is read back
	def := DefaultSettings(chatID, s.opts.DefaultButtonURL)
	result = s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(def)
	if result.Error != nil {
		slog.Error("storage: Failed to create settings", "error", result.Error, "chat_id", chatID)
		return nil, fmt.Errorf("failed to create settings: %w", result.Error)
	}

	settings = ChatSettings{}
	result = s.db.WithContext(ctx).Where("chat_id = ?", chatID).First(&settings)
	if result.Error != nil {
		slog.Error("storage: Failed to read created settings", "error", result.Error, "chat_id", chatID)
		return nil, fmt.Errorf("failed to get settings: %w", result.Error)
	}

	return &settings, nil
}

// UpdateField implements SettingsStore
func (s *GormStorage) UpdateField(ctx context.Context, chatID int64, field Field, value any) error {
	v, err := field.normalize(value)
	if err != nil {
		return err
	}

	result := s.db.WithContext(ctx).Model(&ChatSettings{}).Where("chat_id = ?", chatID).Update(string(field), v)
	if result.Error != nil {
		slog.Error("storage: Failed to update settings", "error", result.Error, "chat_id", chatID, "field", field)
		return fmt.Errorf("failed to update settings: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		slog.Debug("storage: Settings update skipped, no record", "chat_id", chatID, "field", field)
	}

	return nil
}

// RecordJoin implements StatsStore with a single upsert statement
func (s *GormStorage) RecordJoin(ctx context.Context, chatID int64) error {
	row := ChatStats{ChatID: chatID, Total: 1, Today: 1, Date: s.opts.today()}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "chat_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"total":     gorm.Expr("chat_stats.total + 1"),
			"today":     gorm.Expr("CASE WHEN chat_stats.stat_date = excluded.stat_date THEN chat_stats.today + 1 ELSE 1 END"),
			"stat_date": gorm.Expr("excluded.stat_date"),
		}),
	}).Create(&row)
	if result.Error != nil {
		slog.Error("storage: Failed to record join", "error", result.Error, "chat_id", chatID)
		return fmt.Errorf("failed to record join: %w", result.Error)
	}

	return nil
}

// Read implements StatsStore
func (s *GormStorage) Read(ctx context.Context, chatID int64) (*ChatStats, error) {
	var stats ChatStats
	result := s.db.WithContext(ctx).Where("chat_id = ?", chatID).First(&stats)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return &ChatStats{ChatID: chatID}, nil
	}
	if result.Error != nil {
		slog.Error("storage: Failed to read stats", "error", result.Error, "chat_id", chatID)
		return nil, fmt.Errorf("failed to read stats: %w", result.Error)
	}

	return stats.asOf(s.opts.today()), nil
}

func (s *GormStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	return sqlDB.Close()
}
