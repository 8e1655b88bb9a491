package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type productDocument struct {
	ID        primitive.ObjectID `bson:"_id"`
	SKU       string             `bson:"sku"`
	Name      string             `bson:"name"`
	Price     int64              `bson:"price"`
	Category  string             `bson:"category"`
	ImageURL  string             `bson:"image_url"`
	CreatedAt time.Time          `bson:"createdAt"`
}

func (d productDocument) toDomain() *domain.Product {
	return &domain.Product{
		ID:        d.ID.Hex(),
		SKU:       d.SKU,
		Name:      d.Name,
		Price:     d.Price,
		Category:  d.Category,
		ImageURL:  d.ImageURL,
		CreatedAt: d.CreatedAt,
	}
}

type mongoProductRepository struct {
	collection *mongo.Collection
}

// NewMongoProductRepository reads the catalog owned by the product admin tooling.
func NewMongoProductRepository(db *mongo.Database) ProductRepository {
	return &mongoProductRepository{
		collection: db.Collection("products"),
	}
}

func (r *mongoProductRepository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrProductNotFound
	}

	var doc productDocument
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return doc.toDomain(), nil
}

func (r *mongoProductRepository) GetProducts(ctx context.Context, ids []string) (map[string]*domain.Product, error) {
	products := make(map[string]*domain.Product, len(ids))

	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			continue
		}
		oids = append(oids, oid)
	}
	if len(oids) == 0 {
		return products, nil
	}

	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": oids}})
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc productDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode product: %w", err)
		}
		p := doc.toDomain()
		products[p.ID] = p
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor iteration error: %w", err)
	}

	return products, nil
}
