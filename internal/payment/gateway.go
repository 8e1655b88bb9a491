// Package payment verifies client-side payment claims against the payment
// provider before an order is recorded as paid.
package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"go.uber.org/zap"
)

const ProviderIamport = "iamport"

// Every error returned by a Verifier wraps domain.ErrGateway.
var (
	ErrGatewayNotConfigured = fmt.Errorf("%w: payment gateway is not configured", domain.ErrGateway)
	ErrGatewayAuth          = fmt.Errorf("%w: payment gateway authentication failed", domain.ErrGateway)
	ErrGatewayUnavailable   = fmt.Errorf("%w: payment gateway unavailable", domain.ErrGateway)
	ErrPaymentNotFound      = fmt.Errorf("%w: payment not found", domain.ErrGateway)
	ErrAmountMismatch       = fmt.Errorf("%w: payment amount mismatch", domain.ErrGateway)
	ErrPaymentNotCompleted  = fmt.Errorf("%w: payment is not completed", domain.ErrGateway)
)

// ProviderRecord is the provider's view of a payment.
type ProviderRecord struct {
	ClaimID     string
	MerchantUID string
	Amount      int64
	Status      string
	PaidAt      time.Time
}

type Verifier interface {
	// Verify succeeds only when the provider reports the claim as paid for
	// exactly expectedAmount.
	Verify(ctx context.Context, claimID string, expectedAmount int64) (*ProviderRecord, error)
}

type notConfigured struct{}

// NotConfigured rejects every claim. It is used when no provider credentials are set.
func NotConfigured() Verifier {
	return notConfigured{}
}

func (notConfigured) Verify(context.Context, string, int64) (*ProviderRecord, error) {
	return nil, ErrGatewayNotConfigured
}

// SkipVerifier accepts any non-empty claim without asking the provider.
// Only for local development.
type SkipVerifier struct {
	logger *zap.Logger
}

func NewSkipVerifier(logger *zap.Logger) *SkipVerifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Warn("payment verification is disabled, every payment claim will be accepted")
	return &SkipVerifier{logger: logger}
}

func (s *SkipVerifier) Verify(_ context.Context, claimID string, expectedAmount int64) (*ProviderRecord, error) {
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return nil, fmt.Errorf("%w: empty claim id", ErrPaymentNotFound)
	}
	s.logger.Warn("payment claim accepted without verification",
		zap.String("claim_id", claimID),
		zap.Int64("amount", expectedAmount))
	return &ProviderRecord{
		ClaimID: claimID,
		Amount:  expectedAmount,
		Status:  statusPaid,
	}, nil
}
