package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/summitcamp/booking-backend/internal/models"
)

// RetryingGateway wraps a PaymentGateway and retries unreachable-gateway
// failures a bounded number of times before surfacing them. Rejections,
// unknown orders and cancelled contexts pass through untouched: only a
// transient blip is worth another attempt.
type RetryingGateway struct {
	next     PaymentGateway
	attempts int
	backoff  time.Duration
	logger   *logrus.Logger
}

// NewRetryingGateway creates a new RetryingGateway. attempts is the total
// call budget per operation, backoff the pause before each re-attempt.
func NewRetryingGateway(next PaymentGateway, attempts int, backoff time.Duration, logger *logrus.Logger) *RetryingGateway {
	if attempts < 1 {
		attempts = 1
	}
	return &RetryingGateway{
		next:     next,
		attempts: attempts,
		backoff:  backoff,
		logger:   logger,
	}
}

func (g *RetryingGateway) CreateTransaction(ctx context.Context, orderID string, amount int64, description string) (*GatewayTransaction, error) {
	var txn *GatewayTransaction
	err := g.do(ctx, orderID, "create_transaction", func() error {
		var callErr error
		txn, callErr = g.next.CreateTransaction(ctx, orderID, amount, description)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func (g *RetryingGateway) QueryStatus(ctx context.Context, orderID string) (*GatewayCharge, error) {
	var charge *GatewayCharge
	err := g.do(ctx, orderID, "query_status", func() error {
		var callErr error
		charge, callErr = g.next.QueryStatus(ctx, orderID)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return charge, nil
}

func (g *RetryingGateway) ValidateSignature(notification *models.GatewayNotification) bool {
	return g.next.ValidateSignature(notification)
}

// do runs call up to g.attempts times, backing off linearly between tries.
// The last error is returned unwrapped so callers keep their errors.Is
// classification.
func (g *RetryingGateway) do(ctx context.Context, orderID, operation string, call func() error) error {
	var err error
	for attempt := 1; attempt <= g.attempts; attempt++ {
		err = call()
		if err == nil || !errors.Is(err, models.ErrGatewayUnavailable) {
			return err
		}
		if attempt == g.attempts {
			break
		}

		g.logger.WithError(err).WithFields(logrus.Fields{
			"order_id":  orderID,
			"operation": operation,
			"attempt":   attempt,
		}).Warn("Gateway unreachable, retrying")

		select {
		case <-ctx.Done():
			return err
		case <-time.After(g.backoff * time.Duration(attempt)):
		}
	}
	return err
}
