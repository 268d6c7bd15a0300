package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/summitcamp/booking-backend/internal/models"
)

// ReconcileService converges a booking to its authoritative state. The
// browser return redirect, the gateway notification, the user-triggered
// status check and the expiry sweeper all feed the same Reconcile entry
// point, so there is exactly one place that decides transitions.
//
// The decision never trusts the signal's own status: the gateway is
// re-queried on every attempt, and the transition is applied with a
// compare-and-set on the booking version so duplicate and out-of-order
// signals are safe.
type ReconcileService struct {
	bookingStore BookingStore
	tripStore    TripStore
	gateway      PaymentGateway
	dispatcher   NotificationDispatcher
	audits       AuditStore
	casRetries   int
	logger       *logrus.Logger
}

// NewReconcileService creates a new ReconcileService
func NewReconcileService(
	bookingStore BookingStore,
	tripStore TripStore,
	gateway PaymentGateway,
	dispatcher NotificationDispatcher,
	audits AuditStore,
	casRetries int,
	logger *logrus.Logger,
) *ReconcileService {
	if casRetries < 1 {
		casRetries = 1
	}
	return &ReconcileService{
		bookingStore: bookingStore,
		tripStore:    tripStore,
		gateway:      gateway,
		dispatcher:   dispatcher,
		audits:       audits,
		casRetries:   casRetries,
		logger:       logger,
	}
}

// transition maps an authoritative gateway status to the booking status a
// pending booking moves to. Missing entries mean no-op.
var transition = map[models.PaymentStatus]models.BookingStatus{
	models.PaymentStatusSettlement: models.BookingStatusConfirmed,
	models.PaymentStatusFailed:     models.BookingStatusCancelled,
	models.PaymentStatusExpired:    models.BookingStatusExpired,
}

// Reconcile processes one convergence signal and returns the resulting
// booking status. Discarded signals (unknown order, bad signature) and
// transient failures (gateway unreachable, version contention) surface as
// typed errors; duplicates and not-yet-decided payments are clean no-ops.
func (s *ReconcileService) Reconcile(ctx context.Context, signal models.ReconcileSignal) (models.BookingStatus, error) {
	start := time.Now()
	audit := models.NewReconcileAudit(signal)
	defer s.appendAudit(ctx, audit, start)

	booking, payment, err := s.bookingStore.GetBookingByOrderID(ctx, signal.OrderID)
	if err != nil {
		audit.Outcome = models.OutcomeTransientFailure
		audit.SetError(err)
		return "", fmt.Errorf("failed to resolve order %s: %w", signal.OrderID, err)
	}
	if booking == nil {
		// Stale or foreign signal. Logged and dropped, never acted on.
		audit.Outcome = models.OutcomeDiscarded
		audit.SetError(models.ErrUnknownOrder)
		s.logger.WithFields(logrus.Fields{
			"order_id": signal.OrderID,
			"source":   signal.Source,
		}).Warn("Discarding signal for unknown order")
		return "", models.ErrUnknownOrder
	}
	audit.SetBooking(booking.ID)

	if signal.Notification != nil && !s.gateway.ValidateSignature(signal.Notification) {
		audit.Outcome = models.OutcomeDiscarded
		audit.SetError(models.ErrInvalidSignature)
		s.logger.WithFields(logrus.Fields{
			"order_id": signal.OrderID,
			"source":   signal.Source,
		}).Warn("Discarding signal with invalid signature")
		return "", models.ErrInvalidSignature
	}

	if booking.Status.IsTerminal() {
		// Late duplicate after finalization. Always a safe no-op.
		audit.SetResult(models.OutcomeNoop, booking.Status)
		return booking.Status, nil
	}

	charge, err := s.gateway.QueryStatus(ctx, signal.OrderID)
	if err != nil {
		audit.Outcome = models.OutcomeTransientFailure
		audit.SetError(err)
		if errors.Is(err, models.ErrUnknownOrder) {
			return "", models.ErrUnknownOrder
		}
		// Unreachable gateway means the charge is unknown: leave the
		// booking pending, tell the caller to retry.
		return booking.Status, fmt.Errorf("gateway query for %s: %w", signal.OrderID, models.ErrGatewayUnavailable)
	}
	audit.SetGatewayStatus(charge.Status)

	if charge.Status == models.PaymentStatusSettlement {
		if !audit.SetAmounts(payment.Amount, charge.Amount) {
			audit.Outcome = models.OutcomeDiscarded
			audit.SetError(models.ErrAmountMismatch)
			s.logger.WithFields(logrus.Fields{
				"order_id":        signal.OrderID,
				"expected_amount": payment.Amount,
				"received_amount": charge.Amount,
			}).Error("Gateway settlement amount mismatch, refusing to confirm")
			return booking.Status, models.ErrAmountMismatch
		}
	}

	target, decided := transition[charge.Status]
	if !decided {
		// Gateway still says pending (or unknown). Nothing to do yet.
		audit.SetResult(models.OutcomeNoop, booking.Status)
		return booking.Status, nil
	}

	previous, applied, err := s.applyTransition(ctx, booking, target, charge)
	if err != nil {
		audit.Outcome = models.OutcomeTransientFailure
		audit.SetError(err)
		return booking.Status, err
	}
	if !applied {
		// A concurrent signal finalized the booking first.
		audit.SetResult(models.OutcomeNoop, previous)
		return previous, nil
	}
	audit.SetResult(models.OutcomeTransitioned, target)

	if target == models.BookingStatusCancelled || target == models.BookingStatusExpired {
		if err := s.tripStore.ReleaseSeat(ctx, booking.TripID, booking.SeatReservationID); err != nil {
			s.logger.WithError(err).WithField("booking_id", booking.ID).Error("Failed to release seat after terminal transition")
		}
	}

	event := models.BookingEvent{
		BookingID:      booking.ID,
		TripID:         booking.TripID,
		UserID:         booking.UserID,
		OrderID:        signal.OrderID,
		PreviousStatus: previous,
		NewStatus:      target,
		OccurredAt:     time.Now(),
	}
	if err := s.dispatcher.DispatchStateChange(ctx, event); err != nil {
		// Notification delivery never affects booking state.
		s.logger.WithError(err).WithField("booking_id", booking.ID).Warn("Failed to dispatch booking event")
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"order_id":   signal.OrderID,
		"source":     signal.Source,
		"from":       previous,
		"to":         target,
	}).Info("Booking reconciled")

	return target, nil
}

// applyTransition runs the bounded read-decide-write loop. Returns the
// status the booking had before the write, and whether this call performed
// the transition (false when another writer finalized it first).
func (s *ReconcileService) applyTransition(
	ctx context.Context,
	booking *models.Booking,
	target models.BookingStatus,
	charge *GatewayCharge,
) (models.BookingStatus, bool, error) {
	paymentStatus := charge.Status
	paidAt := charge.PaidAt
	if target == models.BookingStatusConfirmed && paidAt == nil {
		now := time.Now()
		paidAt = &now
	}

	current := booking
	for attempt := 0; attempt < s.casRetries; attempt++ {
		ok, err := s.bookingStore.CompareAndSetStatus(ctx, current.ID, current.Version, target, paymentStatus, paidAt)
		if err != nil {
			return current.Status, false, fmt.Errorf("failed to apply transition: %w", err)
		}
		if ok {
			return current.Status, true, nil
		}

		// Version moved under us; re-read and decide again.
		fresh, err := s.bookingStore.GetBookingByID(ctx, current.ID)
		if err != nil {
			return current.Status, false, fmt.Errorf("failed to re-read booking: %w", err)
		}
		if fresh == nil {
			return current.Status, false, models.ErrBookingNotFound
		}
		if fresh.Status.IsTerminal() {
			return fresh.Status, false, nil
		}
		current = fresh
	}

	return current.Status, false, models.ErrContention
}

func (s *ReconcileService) appendAudit(ctx context.Context, audit *models.ReconcileAudit, start time.Time) {
	audit.SetProcessingTime(start)
	if err := s.audits.Append(ctx, audit); err != nil {
		s.logger.WithError(err).WithField("order_id", audit.OrderID).Error("Failed to append reconcile audit")
	}
}
