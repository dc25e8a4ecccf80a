package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	bolt "go.etcd.io/bbolt"
)

var (
	settingsBucket = []byte("settings")
	statsBucket    = []byte("stats")
)

// BoltStorage is the single-file backend. bbolt serializes write
// transactions, so read-modify-write inside Update is atomic.
type BoltStorage struct {
	db   *bolt.DB
	opts Options
}

func NewBolt(path string, opts Options) (*BoltStorage, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		slog.Error("storage: Failed to open bolt file", "error", err, "path", path)
		return nil, fmt.Errorf("failed to open bolt file: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{settingsBucket, statsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltStorage{db: db, opts: opts.withDefaults()}, nil
}

func chatKey(chatID int64) []byte {
	return []byte(strconv.FormatInt(chatID, 10))
}

// GetOrCreate implements SettingsStore
func (s *BoltStorage) GetOrCreate(ctx context.Context, chatID int64) (*ChatSettings, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var settings *ChatSettings
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(settingsBucket)
		key := chatKey(chatID)

		if data := b.Get(key); data != nil {
			settings = &ChatSettings{}
			return json.Unmarshal(data, settings)
		}

		settings = DefaultSettings(chatID, s.opts.DefaultButtonURL)
		data, err := json.Marshal(settings)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
	if err != nil {
		slog.Error("storage: Failed to get or create settings", "error", err, "chat_id", chatID)
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	return settings, nil
}

// UpdateField implements SettingsStore
func (s *BoltStorage) UpdateField(ctx context.Context, chatID int64, field Field, value any) error {
	v, err := field.normalize(value)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(settingsBucket)
		key := chatKey(chatID)

		data := b.Get(key)
		if data == nil {
			slog.Debug("storage: Settings update skipped, no record", "chat_id", chatID, "field", field)
			return nil
		}

		settings := &ChatSettings{}
		if err := json.Unmarshal(data, settings); err != nil {
			return err
		}
		settings.set(field, v)

		data, err := json.Marshal(settings)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
	if err != nil {
		slog.Error("storage: Failed to update settings", "error", err, "chat_id", chatID, "field", field)
		return fmt.Errorf("failed to update settings: %w", err)
	}

	return nil
}

// RecordJoin implements StatsStore
func (s *BoltStorage) RecordJoin(ctx context.Context, chatID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	day := s.opts.today()
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(statsBucket)
		key := chatKey(chatID)

		stats := &ChatStats{ChatID: chatID}
		if data := b.Get(key); data != nil {
			if err := json.Unmarshal(data, stats); err != nil {
				return err
			}
		}
		stats.recordJoin(day)

		data, err := json.Marshal(stats)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
	if err != nil {
		slog.Error("storage: Failed to record join", "error", err, "chat_id", chatID)
		return fmt.Errorf("failed to record join: %w", err)
	}

	return nil
}

// Read implements StatsStore
func (s *BoltStorage) Read(ctx context.Context, chatID int64) (*ChatStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats := &ChatStats{ChatID: chatID}
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(statsBucket).Get(chatKey(chatID))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, stats)
	})
	if err != nil {
		slog.Error("storage: Failed to read stats", "error", err, "chat_id", chatID)
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}

	if stats.Date == "" {
		return stats, nil
	}
	return stats.asOf(s.opts.today()), nil
}

func (s *BoltStorage) Close() error {
	return s.db.Close()
}
