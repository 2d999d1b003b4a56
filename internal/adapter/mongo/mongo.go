// Package mongo stores users and project containers in MongoDB. Every container
// mutation is a single-document update so it is atomic per owner.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pscheid92/taskboard/internal/platform/retry"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	usersCollection      = "users"
	containersCollection = "projects"

	indexOptionsConflict  = 85
	indexKeySpecsConflict = 86
)

func Connect(ctx context.Context, uri, database string) (*mongo.Database, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	slog.Info("MongoDB connected", "database", database)
	return client.Database(database), nil
}

// EnsureIndexes creates the unique indexes that back email uniqueness and the
// one-container-per-owner rule.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	unique := options.Index().SetUnique(true)

	if _, err := db.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: unique,
	}); err != nil {
		return fmt.Errorf("failed to create users index: %w", err)
	}

	if _, err := db.Collection(containersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "owner", Value: 1}},
		Options: unique,
	}); err != nil {
		return fmt.Errorf("failed to create projects index: %w", err)
	}

	return nil
}

// ClassifyIndexError treats an index that clashes with an existing definition,
// or a unique index over duplicate data, as final.
func ClassifyIndexError(err error) retry.Action {
	if mongo.IsDuplicateKeyError(err) {
		return retry.Stop
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && (cmdErr.Code == indexOptionsConflict || cmdErr.Code == indexKeySpecsConflict) {
		return retry.Stop
	}
	return retry.Retry
}

// Ping reports whether the primary is reachable.
func Ping(ctx context.Context, db *mongo.Database) error {
	return db.Client().Ping(ctx, readpref.Primary())
}
