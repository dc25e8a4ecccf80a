package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testOptions(c *clock) Options {
	return Options{
		DefaultButtonURL: "https://t.me/bookclub",
		Location:         time.UTC,
		Now:              c.Now,
	}
}

type backendFactory func(t *testing.T, opts Options) Storage

func backends(t *testing.T) map[string]backendFactory {
	b := map[string]backendFactory{
		"sqlite": func(t *testing.T, opts Options) Storage {
			s, err := NewGorm(SQLite, filepath.Join(t.TempDir(), "test.sqlite"), opts)
			require.NoError(t, err)
			return s
		},
		"bolt": func(t *testing.T, opts Options) Storage {
			s, err := NewBolt(filepath.Join(t.TempDir(), "test.db"), opts)
			require.NoError(t, err)
			return s
		},
	}

	if uri := os.Getenv("MONGO_TEST_URI"); uri != "" {
		b["mongo"] = func(t *testing.T, opts Options) Storage {
			s, err := NewMongo(context.Background(), uri, opts)
			require.NoError(t, err)
			ctx := context.Background()
			require.NoError(t, s.settings.Drop(ctx))
			require.NoError(t, s.stats.Drop(ctx))
			return s
		}
	}

	return b
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s Storage, c *clock)) {
	for name, factory := range backends(t) {
		t.Run(name, func(t *testing.T) {
			c := &clock{now: time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)}
			s := factory(t, testOptions(c))
			t.Cleanup(func() { _ = s.Close() })
			fn(t, s, c)
		})
	}
}

func TestGetOrCreate_CreatesDefault(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage, _ *clock) {
		settings, err := s.GetOrCreate(context.Background(), 100)
		require.NoError(t, err)

		assert.Equal(t, int64(100), settings.ChatID)
		assert.Equal(t, DefaultWelcomeText, settings.WelcomeText)
		assert.Empty(t, settings.PhotoRef)
		assert.True(t, settings.Enabled)
		assert.Equal(t, ButtonRows{{{Label: "Our Channel", URL: "https://t.me/bookclub"}}}, settings.Buttons)
	})
}

func TestGetOrCreate_Idempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage, _ *clock) {
		ctx := context.Background()

		first, err := s.GetOrCreate(ctx, 100)
		require.NoError(t, err)
		require.NoError(t, s.UpdateField(ctx, 100, FieldWelcomeText, "Hi {name}"))

		second, err := s.GetOrCreate(ctx, 100)
		require.NoError(t, err)

		assert.Equal(t, first.ChatID, second.ChatID)
		assert.Equal(t, "Hi {name}", second.WelcomeText)
	})
}

func TestGetOrCreate_NoDuplicateRows(t *testing.T) {
	c := &clock{now: time.Now()}
	s, err := NewGorm(SQLite, filepath.Join(t.TempDir(), "dup.sqlite"), testOptions(c))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.GetOrCreate(ctx, 42)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var count int64
	require.NoError(t, s.db.Model(&ChatSettings{}).Where("chat_id = ?", 42).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUpdateField_AllFields(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage, _ *clock) {
		ctx := context.Background()
		_, err := s.GetOrCreate(ctx, 5)
		require.NoError(t, err)

		rows := ButtonRows{
			{{Label: "A", URL: "https://a.example"}, {Label: "B", URL: "https://b.example"}},
			{{Label: "C", URL: "https://c.example"}},
		}
		require.NoError(t, s.UpdateField(ctx, 5, FieldWelcomeText, "Welcome, {name}"))
		require.NoError(t, s.UpdateField(ctx, 5, FieldPhotoRef, "photo-id"))
		require.NoError(t, s.UpdateField(ctx, 5, FieldVideoRef, "video-id"))
		require.NoError(t, s.UpdateField(ctx, 5, FieldVoiceRef, "voice-id"))
		require.NoError(t, s.UpdateField(ctx, 5, FieldButtons, rows))
		require.NoError(t, s.UpdateField(ctx, 5, FieldEnabled, false))

		got, err := s.GetOrCreate(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, &ChatSettings{
			ChatID:      5,
			WelcomeText: "Welcome, {name}",
			PhotoRef:    "photo-id",
			VideoRef:    "video-id",
			VoiceRef:    "voice-id",
			Buttons:     rows,
			Enabled:     false,
		}, got)
	})
}

func TestUpdateField_ClearButtons(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage, _ *clock) {
		ctx := context.Background()
		_, err := s.GetOrCreate(ctx, 6)
		require.NoError(t, err)

		require.NoError(t, s.UpdateField(ctx, 6, FieldButtons, ButtonRows(nil)))

		got, err := s.GetOrCreate(ctx, 6)
		require.NoError(t, err)
		assert.Empty(t, got.Buttons)
	})
}

func TestUpdateField_MissingRecordIsNoop(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage, _ *clock) {
		ctx := context.Background()

		require.NoError(t, s.UpdateField(ctx, 777, FieldWelcomeText, "ignored"))

		got, err := s.GetOrCreate(ctx, 777)
		require.NoError(t, err)
		assert.Equal(t, DefaultWelcomeText, got.WelcomeText)
	})
}

func TestUpdateField_RejectsBadValues(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage, _ *clock) {
		ctx := context.Background()
		_, err := s.GetOrCreate(ctx, 8)
		require.NoError(t, err)

		assert.ErrorIs(t, s.UpdateField(ctx, 8, FieldEnabled, "yes"), ErrInvalidValue)
		assert.ErrorIs(t, s.UpdateField(ctx, 8, FieldButtons, "[]"), ErrInvalidValue)
		assert.ErrorIs(t, s.UpdateField(ctx, 8, Field("owner"), "x"), ErrUnknownField)
	})
}

func TestRecordJoin_SameDayAndNextDay(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage, c *clock) {
		ctx := context.Background()
		const n = 5

		for i := 0; i < n; i++ {
			require.NoError(t, s.RecordJoin(ctx, 100))
		}

		stats, err := s.Read(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(n), stats.Total)
		assert.Equal(t, int64(n), stats.Today)
		assert.Equal(t, "2026-10-18", stats.Date)

		c.advance(24 * time.Hour)
		require.NoError(t, s.RecordJoin(ctx, 100))

		stats, err = s.Read(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(n+1), stats.Total)
		assert.Equal(t, int64(1), stats.Today)
		assert.Equal(t, "2026-10-19", stats.Date)
	})
}

func TestRecordJoin_ChatsAreIndependent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage, _ *clock) {
		ctx := context.Background()

		require.NoError(t, s.RecordJoin(ctx, 1))
		require.NoError(t, s.RecordJoin(ctx, 1))
		require.NoError(t, s.RecordJoin(ctx, 2))

		one, err := s.Read(ctx, 1)
		require.NoError(t, err)
		two, err := s.Read(ctx, 2)
		require.NoError(t, err)

		assert.Equal(t, int64(2), one.Total)
		assert.Equal(t, int64(1), two.Total)
	})
}

func TestRecordJoin_ConcurrentNoLostUpdates(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage, _ *clock) {
		ctx := context.Background()
		const workers, perWorker = 8, 25

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < perWorker; j++ {
					assert.NoError(t, s.RecordJoin(ctx, 100))
				}
			}()
		}
		wg.Wait()

		stats, err := s.Read(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(workers*perWorker), stats.Total)
		assert.Equal(t, int64(workers*perWorker), stats.Today)
	})
}

func TestRead_Missing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage, _ *clock) {
		stats, err := s.Read(context.Background(), 404)
		require.NoError(t, err)
		assert.Equal(t, &ChatStats{ChatID: 404}, stats)
	})
}

func TestRead_StaleDayShowsZeroToday(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage, c *clock) {
		ctx := context.Background()
		require.NoError(t, s.RecordJoin(ctx, 3))
		require.NoError(t, s.RecordJoin(ctx, 3))

		c.advance(48 * time.Hour)

		stats, err := s.Read(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, int64(2), stats.Total)
		assert.Equal(t, int64(0), stats.Today)
	})
}

func TestOpen_Schemes(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(ctx, "sqlite://"+filepath.Join(dir, "a.sqlite"), Options{})
	require.NoError(t, err)
	assert.IsType(t, &GormStorage{}, s)
	require.NoError(t, s.Close())

	s, err = Open(ctx, filepath.Join(dir, "b.sqlite"), Options{})
	require.NoError(t, err)
	assert.IsType(t, &GormStorage{}, s)
	require.NoError(t, s.Close())

	s, err = Open(ctx, "bolt://"+filepath.Join(dir, "c.db"), Options{})
	require.NoError(t, err)
	assert.IsType(t, &BoltStorage{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, "redis://localhost", Options{})
	assert.ErrorIs(t, err, ErrUnsupportedDSN)
}

func TestMongoDatabaseName(t *testing.T) {
	assert.Equal(t, "bot", mongoDatabaseName("mongodb://localhost:27017/bot"))
	assert.Equal(t, defaultMongoDatabase, mongoDatabaseName("mongodb://localhost:27017"))
	assert.Equal(t, "prod", mongoDatabaseName("mongodb+srv://user:pw@cluster.example.net/prod?retryWrites=true"))
}
