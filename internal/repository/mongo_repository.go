package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// maxAddAttempts bounds the increment/push loop in AddItem.
const maxAddAttempts = 3

const cartsCollection = "carts"

type mongoRepository struct {
	collection *mongo.Collection
}

func (m *mongoRepository) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	var cart domain.Cart

	filter := bson.M{"user_id": userID}
	err := m.collection.FindOne(ctx, filter).Decode(&cart)

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return &cart, nil
}

func (m *mongoRepository) UpsertCart(ctx context.Context, cart *domain.Cart) (*domain.Cart, error) {
	now := time.Now().UTC()

	items := cart.Items
	if items == nil {
		items = []domain.CartItem{}
	}
	for i := range items {
		if items[i].AddedAt.IsZero() {
			items[i].AddedAt = now
		}
	}

	filter := bson.M{"user_id": cart.UserID}
	update := bson.M{
		"$set": bson.M{
			"user_id":    cart.UserID,
			"items":      items,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{"created_at": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var stored domain.Cart
	if err := m.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored); err != nil {
		return nil, fmt.Errorf("failed to upsert cart: %w", err)
	}

	return &stored, nil
}

// AddItem never reads the cart before writing. An existing line is bumped with
// $inc; otherwise the item is pushed under a filter that only matches carts
// without the product, upserting the cart when it does not exist yet. Losing a
// race to a concurrent insert surfaces as a duplicate key on user_id and the
// loop starts over with the increment.
func (m *mongoRepository) AddItem(ctx context.Context, userID string, item domain.CartItem) (bool, error) {
	now := time.Now().UTC()
	item.AddedAt = now

	for attempt := 0; attempt < maxAddAttempts; attempt++ {
		incFilter := bson.M{
			"user_id":          userID,
			"items.product_id": item.ProductID,
		}
		incUpdate := bson.M{
			"$inc": bson.M{"items.$.quantity": item.Quantity},
			"$set": bson.M{"updated_at": now},
		}

		result, err := m.collection.UpdateOne(ctx, incFilter, incUpdate)
		if err != nil {
			return false, fmt.Errorf("failed to increment item quantity: %w", err)
		}
		if result.MatchedCount > 0 {
			return false, nil
		}

		pushFilter := bson.M{
			"user_id":          userID,
			"items.product_id": bson.M{"$ne": item.ProductID},
		}
		pushUpdate := bson.M{
			"$push":        bson.M{"items": item},
			"$set":         bson.M{"updated_at": now},
			"$setOnInsert": bson.M{"created_at": now},
		}

		result, err = m.collection.UpdateOne(ctx, pushFilter, pushUpdate, options.Update().SetUpsert(true))
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			return false, fmt.Errorf("failed to add new item: %w", err)
		}

		return result.UpsertedCount > 0, nil
	}

	return false, ErrConcurrentCartAdd
}

func (m *mongoRepository) UpdateItemQuantity(ctx context.Context, userID string, productID string, quantity int) error {
	filter := bson.M{
		"user_id":          userID,
		"items.product_id": productID,
	}

	update := bson.M{
		"$set": bson.M{
			"items.$[elem].quantity": quantity,
			"updated_at":             time.Now().UTC(),
		},
	}

	arrayFilters := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{
			bson.M{"elem.product_id": productID},
		},
	})

	result, err := m.collection.UpdateOne(ctx, filter, update, arrayFilters)
	if err != nil {
		return fmt.Errorf("failed to update item quantity: %w", err)
	}

	if result.MatchedCount == 0 {
		count, err := m.collection.CountDocuments(ctx, bson.M{"user_id": userID})
		if err != nil {
			return fmt.Errorf("failed to check cart: %w", err)
		}
		if count == 0 {
			return ErrCartNotFound
		}
		return ErrItemNotFound
	}
	return nil
}

func (m *mongoRepository) RemoveItem(ctx context.Context, userID string, productID string) error {
	filter := bson.M{"user_id": userID}
	update := bson.M{
		"$pull": bson.M{
			"items": bson.M{"product_id": productID},
		},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to remove item: %w", err)
	}

	if result.MatchedCount == 0 {
		return ErrCartNotFound
	}

	return nil
}

func (m *mongoRepository) DeleteCart(ctx context.Context, userID string) (*domain.Cart, error) {
	filter := bson.M{"user_id": userID}

	var deleted domain.Cart
	err := m.collection.FindOneAndDelete(ctx, filter).Decode(&deleted)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to delete cart: %w", err)
	}

	return &deleted, nil
}

// CreateIndexes installs the one-cart-per-user constraint that AddItem relies on.
func (m *mongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60), // 90 days TTL
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
