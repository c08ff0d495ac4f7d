package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

func Connect(uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

	defer cancel()

	opts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(5)

	client, err := mongo.Connect(ctx, opts)

	if err != nil {
		return nil, err
	}

	err = client.Ping(ctx, readpref.Primary())

	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return client, nil
}

// EnsureUserIndexes creates the unique indexes on roll_no and email_id.
// These are the authoritative guard against duplicate registrations; the
// handler-level existence check is only a fast path.
func EnsureUserIndexes(ctx context.Context, users *mongo.Collection) error {
	_, err := users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "roll_no", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "email_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})

	return err
}
