package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultMongoDatabase = "joinbot"

// MongoStorage is the remote document store backend. Every write is a
// single-document atomic update.
type MongoStorage struct {
	client   *mongo.Client
	settings *mongo.Collection
	stats    *mongo.Collection
	opts     Options
}

func NewMongo(ctx context.Context, uri string, opts Options) (*MongoStorage, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		slog.Error("storage: Failed to connect to mongo", "error", err)
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		slog.Error("storage: Failed to ping mongo", "error", err)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	db := client.Database(mongoDatabaseName(uri))
	return &MongoStorage{
		client:   client,
		settings: db.Collection("chat_settings"),
		stats:    db.Collection("chat_stats"),
		opts:     opts.withDefaults(),
	}, nil
}

func mongoDatabaseName(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return defaultMongoDatabase
	}
	if name := strings.Trim(u.Path, "/"); name != "" {
		return name
	}
	return defaultMongoDatabase
}

// GetOrCreate implements SettingsStore
func (s *MongoStorage) GetOrCreate(ctx context.Context, chatID int64) (*ChatSettings, error) {
	def := DefaultSettings(chatID, s.opts.DefaultButtonURL)
	update := bson.M{"$setOnInsert": bson.M{
		"welcome_text": def.WelcomeText,
		"photo_ref":    def.PhotoRef,
		"video_ref":    def.VideoRef,
		"voice_ref":    def.VoiceRef,
		"buttons":      [][]Button(def.Buttons),
		"enabled":      def.Enabled,
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	settings := &ChatSettings{}
	err := s.settings.FindOneAndUpdate(ctx, bson.M{"_id": chatID}, update, opts).Decode(settings)
	if mongo.IsDuplicateKeyError(err) {
		// lost an upsert race, the record exists now
		settings = &ChatSettings{}
		err = s.settings.FindOne(ctx, bson.M{"_id": chatID}).Decode(settings)
	}
	if err != nil {
		slog.Error("storage: Failed to get or create settings", "error", err, "chat_id", chatID)
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	if settings.Buttons == nil {
		settings.Buttons = ButtonRows{}
	}

	return settings, nil
}

// UpdateField implements SettingsStore
func (s *MongoStorage) UpdateField(ctx context.Context, chatID int64, field Field, value any) error {
	v, err := field.normalize(value)
	if err != nil {
		return err
	}
	if rows, ok := v.(ButtonRows); ok {
		v = [][]Button(rows)
	}

	_, err = s.settings.UpdateOne(ctx, bson.M{"_id": chatID}, bson.M{"$set": bson.M{string(field): v}})
	if err != nil {
		slog.Error("storage: Failed to update settings", "error", err, "chat_id", chatID, "field", field)
		return fmt.Errorf("failed to update settings: %w", err)
	}

	return nil
}

// RecordJoin implements StatsStore with one pipeline update, the $set
// stage evaluates every expression against the stored document.
func (s *MongoStorage) RecordJoin(ctx context.Context, chatID int64) error {
	day := s.opts.today()
	inc := func(field string) bson.D {
		return bson.D{{Key: "$add", Value: bson.A{
			bson.D{{Key: "$ifNull", Value: bson.A{"$" + field, 0}}},
			1,
		}}}
	}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "total", Value: inc("total")},
			{Key: "today", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$eq", Value: bson.A{"$date", day}}},
				inc("today"),
				1,
			}}}},
			{Key: "date", Value: day},
		}}},
	}
	opts := options.Update().SetUpsert(true)

	_, err := s.stats.UpdateOne(ctx, bson.M{"_id": chatID}, pipeline, opts)
	if mongo.IsDuplicateKeyError(err) {
		_, err = s.stats.UpdateOne(ctx, bson.M{"_id": chatID}, pipeline, opts)
	}
	if err != nil {
		slog.Error("storage: Failed to record join", "error", err, "chat_id", chatID)
		return fmt.Errorf("failed to record join: %w", err)
	}

	return nil
}

// Read implements StatsStore
func (s *MongoStorage) Read(ctx context.Context, chatID int64) (*ChatStats, error) {
	stats := &ChatStats{}
	err := s.stats.FindOne(ctx, bson.M{"_id": chatID}).Decode(stats)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &ChatStats{ChatID: chatID}, nil
	}
	if err != nil {
		slog.Error("storage: Failed to read stats", "error", err, "chat_id", chatID)
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}

	return stats.asOf(s.opts.today()), nil
}

func (s *MongoStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
