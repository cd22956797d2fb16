package writer

import (
	"context"
	"errors"
	"fmt"

	"github.com/SteelMorgan/telemetry-ingest/internal/domain"
	"github.com/SteelMorgan/telemetry-ingest/internal/retry"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoDB server error codes tolerated while dropping the identity index
const (
	mongoNamespaceNotFound = 26
	mongoIndexNotFound     = 27
)

// MongoStore writes telemetry into one MongoDB collection per category
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore connects to MongoDB and pings the primary with retry
func NewMongoStore(ctx context.Context, uri, database string, retryCfg retry.Config) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := retry.Do(ctx, retryCfg, func() error {
		return client.Ping(ctx, readpref.Primary())
	}); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	log.Info().
		Str("database", database).
		Msg("Connected to MongoDB")

	return &MongoStore{client: client, db: client.Database(database)}, nil
}

// EnsureIndexes drops and recreates the partial unique identity index on every
// collection so that an outdated definition never survives a restart
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	var errs []error
	for _, name := range domain.Collections() {
		if err := s.ensureIndex(ctx, name); err != nil {
			log.Error().Err(err).Str("collection", name).Msg("Failed to ensure identity index")
			errs = append(errs, err)
			continue
		}
		log.Info().
			Str("collection", name).
			Str("index", IndexName).
			Msg("Ensured identity index")
	}
	return errors.Join(errs...)
}

func (s *MongoStore) ensureIndex(ctx context.Context, name string) error {
	indexes := s.db.Collection(name).Indexes()

	if _, err := indexes.DropOne(ctx, IndexName); err != nil && !isMissingIndex(err) {
		return fmt.Errorf("failed to drop index on %s: %w", name, err)
	}
	if _, err := indexes.CreateOne(ctx, identityIndexModel()); err != nil {
		return fmt.Errorf("failed to create index on %s: %w", name, err)
	}
	return nil
}

// Upsert applies one UpdateOne-with-upsert per record in a single unordered bulk write
func (s *MongoStore) Upsert(ctx context.Context, collection string, records []domain.TelemetryRecord) (UpsertResult, error) {
	if err := checkCollection(collection); err != nil {
		return UpsertResult{}, err
	}
	if len(records) == 0 {
		return UpsertResult{}, nil
	}

	res, err := s.db.Collection(collection).BulkWrite(ctx, upsertModels(records),
		options.BulkWrite().SetOrdered(false))

	var result UpsertResult
	if res != nil {
		result = UpsertResult{
			Inserted: res.UpsertedCount,
			Modified: res.ModifiedCount,
			Matched:  res.MatchedCount,
		}
	}
	if err != nil {
		return result, fmt.Errorf("failed to bulk write %d records to %s: %w", len(records), collection, err)
	}
	return result, nil
}

// Close disconnects the client
func (s *MongoStore) Close() error {
	log.Info().Msg("Closing MongoDB connection")
	return s.client.Disconnect(context.Background())
}

// identityIndexModel is unique on the record identity, restricted to documents
// whose tm_id is numeric and parameter is a string
func identityIndexModel() mongo.IndexModel {
	return mongo.IndexModel{
		Keys: bson.D{
			{Key: "tm_received_time", Value: 1},
			{Key: "tm_id", Value: 1},
			{Key: "parameter", Value: 1},
		},
		Options: options.Index().
			SetName(IndexName).
			SetUnique(true).
			SetPartialFilterExpression(bson.M{
				"tm_id":     bson.M{"$type": "number"},
				"parameter": bson.M{"$type": "string"},
			}),
	}
}

func upsertModels(records []domain.TelemetryRecord) []mongo.WriteModel {
	models := make([]mongo.WriteModel, 0, len(records))
	for _, r := range records {
		filter := bson.M{
			"tm_received_time": r.Timestamp,
			"tm_id":            r.TMID,
			"parameter":        r.Parameter,
		}
		update := bson.M{
			"$set": bson.M{
				"tm_received_time": r.Timestamp,
				"tm_id":            r.TMID,
				"parameter":        r.Parameter,
				"value":            r.Value,
			},
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(filter).
			SetUpdate(update).
			SetUpsert(true))
	}
	return models
}

func isMissingIndex(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code == mongoNamespaceNotFound || cmdErr.Code == mongoIndexNotFound
	}
	return false
}
