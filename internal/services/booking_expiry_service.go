package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/summitcamp/booking-backend/internal/models"
)

// BookingExpiryService sweeps bookings that have sat in pending past the
// payment window. Each candidate goes through the reconciler rather than
// being expired directly: the gateway may know the payment actually
// settled, in which case the booking confirms instead.
type BookingExpiryService struct {
	bookingStore  BookingStore
	reconciler    *ReconcileService
	logger        *logrus.Logger
	stopCh        chan struct{}
	paymentWindow time.Duration
	interval      time.Duration
}

// NewBookingExpiryService creates a new booking expiry service
func NewBookingExpiryService(
	bookingStore BookingStore,
	reconciler *ReconcileService,
	paymentWindow time.Duration,
	interval time.Duration,
	logger *logrus.Logger,
) *BookingExpiryService {
	return &BookingExpiryService{
		bookingStore:  bookingStore,
		reconciler:    reconciler,
		logger:        logger,
		stopCh:        make(chan struct{}),
		paymentWindow: paymentWindow,
		interval:      interval,
	}
}

// Start begins the background sweep job
func (s *BookingExpiryService) Start() {
	s.logger.WithField("interval", s.interval).Info("Starting booking expiry sweeper")
	go s.run()
}

// Stop stops the background sweep job
func (s *BookingExpiryService) Stop() {
	s.logger.Info("Stopping booking expiry sweeper")
	close(s.stopCh)
}

func (s *BookingExpiryService) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-s.stopCh:
			s.logger.Info("Booking expiry sweeper stopped")
			return
		}
	}
}

// RunOnce runs a single sweep cycle (exposed for testing and manual trigger).
func (s *BookingExpiryService) RunOnce(ctx context.Context) {
	cutoff := time.Now().Add(-s.paymentWindow)
	orderIDs, err := s.bookingStore.ListPendingPastWindow(ctx, cutoff, 100)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list overdue pending bookings")
		return
	}
	if len(orderIDs) == 0 {
		return
	}

	s.logger.WithField("count", len(orderIDs)).Info("Sweeping overdue pending bookings")

	for _, orderID := range orderIDs {
		signal := models.ReconcileSignal{
			OrderID: orderID,
			Source:  models.SignalSourceExpirySweep,
		}
		status, err := s.reconciler.Reconcile(ctx, signal)
		switch {
		case err == nil:
			s.logger.WithFields(logrus.Fields{
				"order_id": orderID,
				"status":   status,
			}).Info("Overdue booking reconciled")
		case errors.Is(err, models.ErrGatewayUnavailable), errors.Is(err, models.ErrContention):
			// Transient; the next sweep picks it up again.
			s.logger.WithError(err).WithField("order_id", orderID).Warn("Sweep attempt deferred")
		default:
			s.logger.WithError(err).WithField("order_id", orderID).Error("Failed to reconcile overdue booking")
		}
	}
}
