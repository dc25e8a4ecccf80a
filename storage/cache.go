package storage

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/coocood/freecache"
	json "github.com/goccy/go-json"
)

// CachedSettings is a read-through cache in front of a SettingsStore.
// Entries are dropped on every update of the same chat.
type CachedSettings struct {
	next  SettingsStore
	cache *freecache.Cache
	ttl   int
}

func NewCachedSettings(next SettingsStore, sizeMB int, ttl time.Duration) *CachedSettings {
	if sizeMB <= 0 {
		sizeMB = 1
	}

	return &CachedSettings{
		next:  next,
		cache: freecache.NewCache(sizeMB * 1024 * 1024),
		ttl:   max(int(ttl.Seconds()), 1),
	}
}

func cacheKey(chatID int64) []byte {
	return strconv.AppendInt([]byte("settings:"), chatID, 10)
}

// GetOrCreate implements SettingsStore
func (c *CachedSettings) GetOrCreate(ctx context.Context, chatID int64) (*ChatSettings, error) {
	key := cacheKey(chatID)

	if data, err := c.cache.Get(key); err == nil {
		settings := &ChatSettings{}
		if err := json.Unmarshal(data, settings); err == nil {
			return settings, nil
		}
		c.cache.Del(key)
	}

	settings, err := c.next.GetOrCreate(ctx, chatID)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(settings)
	if err != nil {
		slog.Warn("storage: Failed to encode settings for cache", "error", err, "chat_id", chatID)
		return settings, nil
	}
	_ = c.cache.Set(key, data, c.ttl)

	return settings, nil
}

// UpdateField implements SettingsStore
func (c *CachedSettings) UpdateField(ctx context.Context, chatID int64, field Field, value any) error {
	defer c.cache.Del(cacheKey(chatID))

	return c.next.UpdateField(ctx, chatID, field, value)
}

func (c *CachedSettings) HitCount() int64 {
	return c.cache.HitCount()
}
