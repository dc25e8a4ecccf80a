package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSettings struct {
	records map[int64]*ChatSettings
	gets    int
	fail    bool
}

func (c *countingSettings) GetOrCreate(_ context.Context, chatID int64) (*ChatSettings, error) {
	c.gets++
	if c.fail {
		return nil, errors.New("backend down")
	}
	s, ok := c.records[chatID]
	if !ok {
		s = DefaultSettings(chatID, "")
		c.records[chatID] = s
	}
	out := *s
	return &out, nil
}

func (c *countingSettings) UpdateField(_ context.Context, chatID int64, field Field, value any) error {
	v, err := field.normalize(value)
	if err != nil {
		return err
	}
	if s, ok := c.records[chatID]; ok {
		s.set(field, v)
	}
	return nil
}

func TestCachedSettings_ServesFromCache(t *testing.T) {
	backend := &countingSettings{records: map[int64]*ChatSettings{}}
	c := NewCachedSettings(backend, 1, time.Minute)
	ctx := context.Background()

	first, err := c.GetOrCreate(ctx, 1)
	require.NoError(t, err)
	second, err := c.GetOrCreate(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, backend.gets)
	assert.Equal(t, int64(1), c.HitCount())
}

func TestCachedSettings_UpdateInvalidates(t *testing.T) {
	backend := &countingSettings{records: map[int64]*ChatSettings{}}
	c := NewCachedSettings(backend, 1, time.Minute)
	ctx := context.Background()

	_, err := c.GetOrCreate(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, c.UpdateField(ctx, 1, FieldEnabled, false))

	got, err := c.GetOrCreate(ctx, 1)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Equal(t, 2, backend.gets)
}

func TestCachedSettings_ErrorsAreNotCached(t *testing.T) {
	backend := &countingSettings{records: map[int64]*ChatSettings{}, fail: true}
	c := NewCachedSettings(backend, 1, time.Minute)
	ctx := context.Background()

	_, err := c.GetOrCreate(ctx, 1)
	assert.Error(t, err)

	backend.fail = false
	got, err := c.GetOrCreate(ctx, 1)
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.Equal(t, 2, backend.gets)
}

func TestCachedSettings_InvalidUpdatePassesError(t *testing.T) {
	backend := &countingSettings{records: map[int64]*ChatSettings{}}
	c := NewCachedSettings(backend, 1, time.Minute)

	err := c.UpdateField(context.Background(), 1, FieldEnabled, 1)
	assert.ErrorIs(t, err, ErrInvalidValue)
}
