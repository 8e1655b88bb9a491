package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const mongoAppName = "storefront"

// MongoStore owns the client shared by the cart store and the product catalog.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database

	Carts    CartRepository
	Products ProductRepository
}

// OpenMongoStore connects, verifies the primary is reachable and installs the
// cart indexes before any repository is handed out.
func OpenMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetAppName(mongoAppName).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100).
		SetMinPoolSize(10).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	store := &MongoStore{client: client, db: client.Database(database)}
	if err := store.Ping(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	carts := &mongoRepository{collection: store.db.Collection(cartsCollection)}
	if err := carts.CreateIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	store.Carts = carts
	store.Products = NewMongoProductRepository(store.db)
	return store, nil
}

// Ping checks the primary, which every cart write goes to.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Database() *mongo.Database {
	return s.db
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
