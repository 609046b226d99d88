// Package mongo is the MongoDB rendition of the account and invoice stores.
// Transactions need a replica set; on a standalone server TxManager runs
// callbacks without one.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"ideaforge-billing/internal/config"
)

const (
	colAccounts = "accounts"
	colInvoices = "invoices"

	connectAttempts = 3
	retryInterval   = 2 * time.Second
)

var ErrFailedToConnect = errors.New("failed to connect to mongo")

// Connect dials cfg.URL with a few retries and returns the client and the
// configured database.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*mongo.Client, *mongo.Database, error) {
	var lastErr error
	for range connectAttempts {
		client, err := mongo.Connect(
			options.Client().
				ApplyURI(cfg.URL).
				SetConnectTimeout(5 * time.Second).
				SetMaxPoolSize(uint64(max(cfg.MaxConns, 1))).
				SetMaxConnIdleTime(5 * time.Minute).
				SetRetryWrites(true).
				SetRetryReads(true),
		)
		if err == nil {
			if err = client.Ping(ctx, nil); err == nil {
				return client, client.Database(cfg.Name), nil
			}
			_ = client.Disconnect(ctx)
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, nil, errors.Join(ErrFailedToConnect, ctx.Err())
		case <-time.After(retryInterval):
		}
	}
	return nil, nil, errors.Join(ErrFailedToConnect, lastErr)
}

// EnsureIndexes creates the indexes the stores rely on. Unique indexes on
// email and invoice number back the ErrAlreadyExists contract.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	for col, models := range indexModels() {
		if _, err := db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("mongo: create %s indexes: %w", col, err)
		}
	}
	return nil
}

func indexModels() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colAccounts: {
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "tier", Value: 1}, {Key: "_id", Value: 1}}},
		},
		colInvoices: {
			{
				Keys:    bson.D{{Key: "invoice_number", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "issued_at", Value: -1}}},
			{Keys: bson.D{{Key: "provider_subscription_id", Value: 1}}},
		},
	}
}

// Healthcheck returns a ping probe for readiness endpoints.
func Healthcheck(client *mongo.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		return client.Ping(ctx, nil)
	}
}
