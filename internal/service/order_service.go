package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/events"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/fjod/go_cart/storefront/internal/payment"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const sideEffectTimeout = 5 * time.Second

// CartClearer empties the cart an order was placed from.
type CartClearer interface {
	Clear(ctx context.Context, userID string) error
}

type CreateOrderInput struct {
	OrderNumber string
	UserID      string
	Items       []domain.OrderItem
	// TotalPrice is nil when the caller did not send one.
	TotalPrice *int64
	Shipping   domain.Shipping
	Payment    domain.Payment
	// OrderStatus is optional. When set it must match the status the order is created in.
	OrderStatus domain.OrderStatus
	// PaymentClaim is the provider payment id (imp_uid) backing a paid order.
	PaymentClaim string
}

type OrderService struct {
	orders   repository.OrderRepository
	products repository.ProductRepository
	carts    CartClearer
	verifier payment.Verifier
	events   events.Publisher
	log      *zap.Logger
}

func NewOrderService(
	orders repository.OrderRepository,
	products repository.ProductRepository,
	carts CartClearer,
	verifier payment.Verifier,
	publisher events.Publisher,
	log *zap.Logger) *OrderService {
	if log == nil {
		log = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.Noop()
	}
	return &OrderService{
		orders:   orders,
		products: products,
		carts:    carts,
		verifier: verifier,
		events:   publisher,
		log:      log,
	}
}

// CreateOrder records an order at most once per order number. A payment claim
// is verified with the provider before anything is written.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*PopulatedOrder, error) {
	in.OrderNumber = strings.TrimSpace(in.OrderNumber)
	in.PaymentClaim = strings.TrimSpace(in.PaymentClaim)

	status, paymentStatus := initialStatus(in.PaymentClaim)
	if err := validateOrder(in, status, paymentStatus); err != nil {
		return nil, err
	}
	log := s.logger(ctx).With(zap.String("order_number", in.OrderNumber), zap.String("user_id", in.UserID))

	_, err := s.orders.GetOrderByNumber(ctx, in.OrderNumber)
	if err == nil {
		return nil, repository.ErrDuplicateOrder
	}
	if !errors.Is(err, repository.ErrOrderNotFound) {
		log.Error("order duplicate check failed", zap.Error(err))
		return nil, err
	}

	if in.PaymentClaim != "" {
		if _, err := s.verifier.Verify(ctx, in.PaymentClaim, *in.TotalPrice); err != nil {
			log.Warn("payment claim rejected", zap.String("claim_id", in.PaymentClaim), zap.Error(err))
			return nil, err
		}
	}

	order := &domain.Order{
		ID:          uuid.New(),
		OrderNumber: in.OrderNumber,
		UserID:      in.UserID,
		Items:       in.Items,
		TotalPrice:  *in.TotalPrice,
		Shipping: domain.Shipping{
			PhoneNumber: strings.TrimSpace(in.Shipping.PhoneNumber),
			Address:     strings.TrimSpace(in.Shipping.Address),
		},
		Payment: domain.Payment{
			Provider: strings.TrimSpace(in.Payment.Provider),
			Status:   paymentStatus,
			ClaimID:  in.PaymentClaim,
		},
		Status: status,
	}

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		if errors.Is(err, repository.ErrDuplicateOrder) {
			log.Warn("concurrent order submission lost the race")
		} else {
			log.Error("persist order failed", zap.Error(err))
		}
		return nil, err
	}
	log.Info("order created", zap.String("order_id", order.ID.String()), zap.String("order_status", order.Status.String()))

	s.afterCreate(ctx, order)
	return s.viewOrBare(ctx, order), nil
}

// initialStatus derives the creation status. A verified payment claim makes
// the order paid straight away.
func initialStatus(claim string) (domain.OrderStatus, domain.PaymentStatus) {
	if claim != "" {
		return domain.OrderStatusPaid, domain.PaymentStatusPaid
	}
	return domain.OrderStatusCreated, domain.PaymentStatusPending
}

func validateOrder(in CreateOrderInput, status domain.OrderStatus, paymentStatus domain.PaymentStatus) error {
	if in.OrderNumber == "" || in.UserID == "" {
		return validationError("order_number and user are required")
	}
	if !domain.ValidID(in.UserID) {
		return fmt.Errorf("%w: user id %q", ErrInvalidID, in.UserID)
	}
	if len(in.Items) == 0 {
		return validationError("order has no items")
	}
	for i, item := range in.Items {
		if !domain.ValidID(item.ProductID) {
			return validationError("items[%d].product is not a valid product id", i)
		}
		if item.Quantity < 1 {
			return validationError("items[%d].quantity must be at least 1", i)
		}
		if item.Price < 0 {
			return validationError("items[%d].price must not be negative", i)
		}
	}
	if strings.TrimSpace(in.Shipping.PhoneNumber) == "" || strings.TrimSpace(in.Shipping.Address) == "" {
		return validationError("shipping phone_number and address are required")
	}
	if strings.TrimSpace(in.Payment.Provider) == "" {
		return validationError("payment provider is required")
	}
	if in.TotalPrice == nil || *in.TotalPrice < 0 {
		return validationError("total_price must be a non-negative amount")
	}

	order := domain.Order{Items: in.Items}
	sum, ok := order.ItemsTotal()
	if !ok {
		return validationError("item total exceeds the supported amount")
	}
	if sum != *in.TotalPrice {
		return validationError("total_price %d does not match the item total %d", *in.TotalPrice, sum)
	}
	if in.OrderStatus != "" && in.OrderStatus != status {
		return validationError("order_status %q cannot be set on creation, expected %q", in.OrderStatus, status)
	}
	if in.Payment.Status != "" && in.Payment.Status != paymentStatus {
		return validationError("payment status %q cannot be set on creation, expected %q", in.Payment.Status, paymentStatus)
	}
	return nil
}

// afterCreate runs the side effects of a committed order. They never fail the
// order; failures are logged.
func (s *OrderService) afterCreate(ctx context.Context, order *domain.Order) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if s.carts != nil {
		if err := s.carts.Clear(ctx, order.UserID); err != nil {
			s.logger(ctx).Warn("clear cart after order failed",
				zap.String("order_number", order.OrderNumber),
				zap.String("user_id", order.UserID),
				zap.Error(err))
		}
	}
	s.publish(ctx, order, true)
}

func (s *OrderService) publish(ctx context.Context, order *domain.Order, created bool) {
	event := events.NewOrderEvent(order, created)
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger(ctx).Warn("publish order event failed",
			zap.String("event_type", event.Type),
			zap.String("order_id", event.OrderID),
			zap.Error(err))
	}
}

func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (*PopulatedOrder, error) {
	order, err := s.orders.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	products, err := s.products.GetProducts(ctx, order.ProductIDs())
	if err != nil {
		return nil, err
	}
	return populateOrder(order, products), nil
}

// ListOrders returns the user's orders newest first. An empty userID lists every order.
func (s *OrderService) ListOrders(ctx context.Context, userID string) ([]*PopulatedOrder, error) {
	orders, err := s.orders.ListOrders(ctx, userID)
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	ids := []string{}
	for _, order := range orders {
		for _, id := range order.ProductIDs() {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	products, err := s.products.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*PopulatedOrder, 0, len(orders))
	for _, order := range orders {
		out = append(out, populateOrder(order, products))
	}
	return out, nil
}

func (s *OrderService) StartShipping(ctx context.Context, id uuid.UUID) (*PopulatedOrder, error) {
	return s.transition(ctx, id, domain.OrderStatusShipped)
}

func (s *OrderService) CancelOrder(ctx context.Context, id uuid.UUID) (*PopulatedOrder, error) {
	return s.transition(ctx, id, domain.OrderStatusCancelled)
}

func (s *OrderService) MarkDelivered(ctx context.Context, id uuid.UUID) (*PopulatedOrder, error) {
	return s.transition(ctx, id, domain.OrderStatusDelivered)
}

// transition moves an order along the status table. Asking for the status the
// order already has succeeds without a write.
func (s *OrderService) transition(ctx context.Context, id uuid.UUID, to domain.OrderStatus) (*PopulatedOrder, error) {
	order, err := s.orders.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status == to {
		return s.viewOrBare(ctx, order), nil
	}
	if !domain.CanTransitionTo(order.Status, to) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, order.Status, to)
	}

	paymentStatus := order.Payment.Status
	if to == domain.OrderStatusPaid {
		paymentStatus = domain.PaymentStatusPaid
	}

	updated, err := s.orders.UpdateStatus(ctx, id, order.Status, to, paymentStatus)
	if errors.Is(err, repository.ErrStatusConflict) {
		current, getErr := s.orders.GetOrderByID(ctx, id)
		if getErr == nil && current.Status == to {
			return s.viewOrBare(ctx, current), nil
		}
		return nil, fmt.Errorf("%w: order changed concurrently", ErrInvalidTransition)
	}
	if err != nil {
		s.logger(ctx).Error("update order status failed",
			zap.String("order_id", id.String()),
			zap.String("to", to.String()),
			zap.Error(err))
		return nil, err
	}

	s.logger(ctx).Info("order status changed",
		zap.String("order_id", id.String()),
		zap.String("from", order.Status.String()),
		zap.String("to", to.String()))
	s.publish(ctx, updated, false)
	return s.viewOrBare(ctx, updated), nil
}

// viewOrBare populates product details for an order that is already committed.
// A catalog failure must not turn a successful write into an error, so the
// order is returned with bare references instead.
func (s *OrderService) viewOrBare(ctx context.Context, order *domain.Order) *PopulatedOrder {
	products, err := s.products.GetProducts(ctx, order.ProductIDs())
	if err != nil {
		s.logger(ctx).Warn("populate order products failed", zap.String("order_id", order.ID.String()), zap.Error(err))
		products = nil
	}
	return populateOrder(order, products)
}

func (s *OrderService) logger(ctx context.Context) *zap.Logger {
	return logger.FromContext(ctx, s.log)
}
