package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync/atomic"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	cacheOpTimeout = time.Second

	// generationStripes bounds the memory used to track cart mutations.
	// Users sharing a stripe only cost each other a skipped cache fill.
	generationStripes = 256
)

type CartService struct {
	repo     repository.CartRepository
	products repository.ProductRepository
	cache    cache.CartCache
	sfg      singleflight.Group // Prevents cache stampede
	log      *zap.Logger

	// generations counts mutations per user stripe. A cache fill whose
	// generation moved while it read the repository is withdrawn.
	generations [generationStripes]atomic.Uint64
}

func NewCartService(
	repo repository.CartRepository,
	products repository.ProductRepository,
	cache cache.CartCache,
	log *zap.Logger) *CartService {
	if log == nil {
		log = zap.NewNop()
	}
	return &CartService{
		repo:     repo,
		products: products,
		cache:    cache,
		log:      log,
	}
}

// GetOrCreate returns the user's cart, or an empty unsaved cart when the user has none.
func (s *CartService) GetOrCreate(ctx context.Context, userID string) (*PopulatedCart, error) {
	if !domain.ValidID(userID) {
		return nil, fmt.Errorf("%w: user id %q", ErrInvalidID, userID)
	}

	cart, err := s.loadCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.populate(ctx, cart)
}

// loadCart reads the cart references through the cache.
func (s *CartService) loadCart(ctx context.Context, userID string) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger(ctx).Warn("cart cache get failed", zap.String("user_id", userID), zap.Error(err))
		}

		gen := s.generation(userID).Load()
		cart, err = s.repo.GetCart(ctx, userID)
		if errors.Is(err, repository.ErrCartNotFound) {
			now := time.Now().UTC()
			return &domain.Cart{
				UserID:    userID,
				Items:     []domain.CartItem{},
				CreatedAt: now,
				UpdatedAt: now,
			}, nil
		}
		if err != nil {
			return nil, err
		}

		setCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheOpTimeout)
		defer cancel()
		if err := s.cache.Set(setCtx, userID, cart); err != nil {
			s.logger(ctx).Warn("cart cache set failed", zap.String("user_id", userID), zap.Error(err))
		}
		// a mutation that landed after our read may have deleted the key
		// before the Set above; drop what we wrote
		if s.generation(userID).Load() != gen {
			if err := s.cache.Delete(setCtx, userID); err != nil {
				s.logger(ctx).Warn("cart cache withdraw failed", zap.String("user_id", userID), zap.Error(err))
			}
		}
		return cart, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart), nil
}

// AddItem increments the quantity when the product is already in the cart.
// created reports whether the cart did not exist before.
func (s *CartService) AddItem(ctx context.Context, userID, productID string, quantity int) (*PopulatedCart, bool, error) {
	if err := s.checkIDs(userID, productID); err != nil {
		return nil, false, err
	}
	if quantity < 1 {
		return nil, false, ErrInvalidQuantity
	}
	if err := s.checkProduct(ctx, productID); err != nil {
		return nil, false, err
	}

	created, err := s.repo.AddItem(ctx, userID, domain.CartItem{ProductID: productID, Quantity: quantity})
	if err != nil {
		s.logger(ctx).Error("repo add item failed", zap.String("user_id", userID), zap.String("product_id", productID), zap.Error(err))
		return nil, false, err
	}
	s.invalidate(ctx, userID)

	cart, err := s.freshCart(ctx, userID)
	return cart, created, err
}

func (s *CartService) SetItemQuantity(ctx context.Context, userID, productID string, quantity int) (*PopulatedCart, error) {
	if err := s.checkIDs(userID, productID); err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	if err := s.repo.UpdateItemQuantity(ctx, userID, productID, quantity); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger(ctx).Error("repo update item quantity failed", zap.String("user_id", userID), zap.Error(err))
		}
		return nil, err
	}
	s.invalidate(ctx, userID)

	return s.freshCart(ctx, userID)
}

// RemoveItem is a no-op for a product that is not in the cart.
func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) (*PopulatedCart, error) {
	if err := s.checkIDs(userID, productID); err != nil {
		return nil, err
	}

	if err := s.repo.RemoveItem(ctx, userID, productID); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger(ctx).Error("repo remove item failed", zap.String("user_id", userID), zap.Error(err))
		}
		return nil, err
	}
	s.invalidate(ctx, userID)

	return s.freshCart(ctx, userID)
}

// ReplaceAll overwrites the cart contents, creating the cart if needed.
// Repeated products are merged so each product appears once.
func (s *CartService) ReplaceAll(ctx context.Context, userID string, items []domain.CartItem) (*PopulatedCart, error) {
	if !domain.ValidID(userID) {
		return nil, fmt.Errorf("%w: user id %q", ErrInvalidID, userID)
	}
	for i, item := range items {
		if !domain.ValidID(item.ProductID) {
			return nil, fmt.Errorf("%w: items[%d].product %q", ErrInvalidID, i, item.ProductID)
		}
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: items[%d]", ErrInvalidQuantity, i)
		}
	}
	merged := domain.MergeItems(items)

	products, err := s.products.GetProducts(ctx, productIDs(merged))
	if err != nil {
		return nil, err
	}
	for _, item := range merged {
		if _, ok := products[item.ProductID]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidReference, item.ProductID)
		}
	}

	stored, err := s.repo.UpsertCart(ctx, &domain.Cart{UserID: userID, Items: merged})
	if err != nil {
		s.logger(ctx).Error("repo upsert cart failed", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	s.invalidate(ctx, userID)

	return populateCart(stored, products), nil
}

// DeleteCart removes the cart and returns what it held.
func (s *CartService) DeleteCart(ctx context.Context, userID string) (*PopulatedCart, error) {
	if !domain.ValidID(userID) {
		return nil, fmt.Errorf("%w: user id %q", ErrInvalidID, userID)
	}

	deleted, err := s.repo.DeleteCart(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger(ctx).Error("repo delete cart failed", zap.String("user_id", userID), zap.Error(err))
		}
		return nil, err
	}
	s.invalidate(ctx, userID)

	return s.populate(ctx, deleted)
}

// Clear empties the user's cart after checkout. A missing cart is not an error.
func (s *CartService) Clear(ctx context.Context, userID string) error {
	if _, err := s.repo.DeleteCart(ctx, userID); err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

func (s *CartService) freshCart(ctx context.Context, userID string) (*PopulatedCart, error) {
	cart, err := s.repo.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.populate(ctx, cart)
}

func (s *CartService) populate(ctx context.Context, cart *domain.Cart) (*PopulatedCart, error) {
	products, err := s.products.GetProducts(ctx, cart.ProductIDs())
	if err != nil {
		return nil, err
	}
	return populateCart(cart, products), nil
}

func (s *CartService) checkIDs(userID, productID string) error {
	if !domain.ValidID(userID) {
		return fmt.Errorf("%w: user id %q", ErrInvalidID, userID)
	}
	if !domain.ValidID(productID) {
		return fmt.Errorf("%w: product id %q", ErrInvalidID, productID)
	}
	return nil
}

func (s *CartService) checkProduct(ctx context.Context, productID string) error {
	_, err := s.products.GetProduct(ctx, productID)
	if errors.Is(err, repository.ErrProductNotFound) {
		return fmt.Errorf("%w: %s", ErrInvalidReference, productID)
	}
	return err
}

func (s *CartService) generation(userID string) *atomic.Uint64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &s.generations[h.Sum32()%generationStripes]
}

// invalidate must run after the repository write it follows.
func (s *CartService) invalidate(ctx context.Context, userID string) {
	s.generation(userID).Add(1)
	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheOpTimeout)
	defer cancel()
	if err := s.cache.Delete(delCtx, userID); err != nil {
		s.logger(ctx).Warn("cart cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *CartService) logger(ctx context.Context) *zap.Logger {
	return logger.FromContext(ctx, s.log)
}

func productIDs(items []domain.CartItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	return ids
}
