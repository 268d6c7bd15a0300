package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/summitcamp/booking-backend/internal/models"
)

// BookingService issues bookings: it reserves a seat, creates the pending
// Booking/Payment pair, and obtains the gateway redirect. Repeated requests
// for the same (trip, user) return the existing record instead of creating
// a duplicate.
type BookingService struct {
	bookingStore BookingStore
	tripStore    TripStore
	gateway      PaymentGateway
	logger       *logrus.Logger
}

// NewBookingService creates a new BookingService
func NewBookingService(
	bookingStore BookingStore,
	tripStore TripStore,
	gateway PaymentGateway,
	logger *logrus.Logger,
) *BookingService {
	return &BookingService{
		bookingStore: bookingStore,
		tripStore:    tripStore,
		gateway:      gateway,
		logger:       logger,
	}
}

// RequestBooking books one seat on the trip for the user and returns the
// booking with its payment redirect. Re-entry before the payment completes
// returns the same booking and redirect (idempotent).
func (s *BookingService) RequestBooking(ctx context.Context, tripID, userID uuid.UUID) (*models.BookingResponse, error) {
	trip, err := s.tripStore.GetTripByID(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up trip: %w", err)
	}
	if trip == nil {
		return nil, models.ErrTripNotFound
	}
	if !trip.IsBookable(time.Now()) {
		return nil, models.ErrTripNotBookable
	}

	// Idempotent re-entry: an existing non-terminal booking is returned
	// instead of creating a duplicate.
	existing, err := s.bookingStore.GetActiveBookingByTripAndUser(ctx, tripID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up existing booking: %w", err)
	}
	if existing != nil {
		return s.resumeBooking(ctx, trip, existing)
	}

	seatToken, err := s.tripStore.ReserveSeat(ctx, tripID)
	if err != nil {
		if errors.Is(err, models.ErrCapacityExceeded) {
			s.logger.WithFields(logrus.Fields{
				"trip_id": tripID,
				"user_id": userID,
			}).Info("Booking rejected, trip full")
			return nil, models.ErrCapacityExceeded
		}
		return nil, fmt.Errorf("failed to reserve seat: %w", err)
	}

	booking := &models.Booking{
		ID:                uuid.New(),
		TripID:            tripID,
		UserID:            userID,
		Status:            models.BookingStatusPending,
		SeatReservationID: seatToken,
		Version:           1,
	}
	payment := &models.Payment{
		ID:        uuid.New(),
		BookingID: booking.ID,
		OrderID:   newOrderID(),
		Status:    models.PaymentStatusPending,
		// Price captured at booking time; a mismatched gateway report can
		// never confirm this booking.
		Amount: trip.Price,
	}

	if err := s.bookingStore.CreateBookingWithPayment(ctx, booking, payment); err != nil {
		s.releaseSeat(ctx, tripID, seatToken)
		if errors.Is(err, models.ErrAlreadyBooked) {
			// Lost the race to a concurrent request from the same user.
			existing, lookupErr := s.bookingStore.GetActiveBookingByTripAndUser(ctx, tripID, userID)
			if lookupErr == nil && existing != nil {
				return s.buildResponse(ctx, existing)
			}
			return nil, models.ErrAlreadyBooked
		}
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	txn, err := s.gateway.CreateTransaction(ctx, payment.OrderID, payment.Amount, tripDescription(trip))
	if err != nil {
		// The seat and the pending booking are rolled back; the caller
		// retries from scratch.
		if rollbackErr := s.bookingStore.DeleteBookingWithPayment(ctx, booking.ID); rollbackErr != nil {
			s.logger.WithError(rollbackErr).WithField("booking_id", booking.ID).Error("Failed to roll back booking after gateway failure")
		}
		s.releaseSeat(ctx, tripID, seatToken)

		s.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": booking.ID,
			"order_id":   payment.OrderID,
		}).Warn("Gateway transaction creation failed, booking rolled back")

		if errors.Is(err, models.ErrGatewayRejected) {
			return nil, err
		}
		return nil, models.ErrGatewayUnavailable
	}

	if err := s.bookingStore.SetPaymentRedirect(ctx, payment.OrderID, txn.RedirectURL); err != nil {
		// Non-fatal: re-entry recovers a fresh redirect from the gateway.
		s.logger.WithError(err).WithField("order_id", payment.OrderID).Warn("Failed to persist redirect url")
	}
	payment.RedirectURL = txn.RedirectURL

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"trip_id":    tripID,
		"user_id":    userID,
		"order_id":   payment.OrderID,
		"amount":     payment.Amount,
	}).Info("Booking created, awaiting payment")

	return &models.BookingResponse{
		BookingID:     booking.ID,
		TripID:        booking.TripID,
		OrderID:       payment.OrderID,
		Status:        booking.Status,
		PaymentStatus: payment.Status,
		Amount:        payment.Amount,
		RedirectURL:   payment.RedirectURL,
		CreatedAt:     booking.CreatedAt,
	}, nil
}

// GetBookingStatus returns the current booking and payment state for the
// owning user.
func (s *BookingService) GetBookingStatus(ctx context.Context, bookingID, userID uuid.UUID) (*models.BookingResponse, error) {
	booking, err := s.bookingStore.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	if booking == nil || booking.UserID != userID {
		// Foreign bookings are indistinguishable from missing ones.
		return nil, models.ErrBookingNotFound
	}
	return s.buildResponse(ctx, booking)
}

// resumeBooking serves an idempotent re-entry. A pending booking whose
// redirect was never persisted gets a fresh one from the gateway so the user
// is not stranded without a payment page.
func (s *BookingService) resumeBooking(ctx context.Context, trip *models.Trip, booking *models.Booking) (*models.BookingResponse, error) {
	payment, err := s.getPayment(ctx, booking)
	if err != nil {
		return nil, err
	}

	if booking.Status == models.BookingStatusPending && payment.RedirectURL == "" {
		txn, err := s.gateway.CreateTransaction(ctx, payment.OrderID, payment.Amount, tripDescription(trip))
		if err != nil {
			s.logger.WithError(err).WithField("order_id", payment.OrderID).Warn("Failed to recover payment redirect, returning booking without one")
		} else {
			if err := s.bookingStore.SetPaymentRedirect(ctx, payment.OrderID, txn.RedirectURL); err != nil {
				s.logger.WithError(err).WithField("order_id", payment.OrderID).Warn("Failed to persist recovered redirect url")
			}
			payment.RedirectURL = txn.RedirectURL
		}
	}

	return responseFrom(booking, payment), nil
}

func (s *BookingService) buildResponse(ctx context.Context, booking *models.Booking) (*models.BookingResponse, error) {
	payment, err := s.getPayment(ctx, booking)
	if err != nil {
		return nil, err
	}
	return responseFrom(booking, payment), nil
}

func (s *BookingService) getPayment(ctx context.Context, booking *models.Booking) (*models.Payment, error) {
	payment, err := s.bookingStore.GetPaymentByBookingID(ctx, booking.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	if payment == nil {
		return nil, fmt.Errorf("booking %s has no payment record", booking.ID)
	}
	return payment, nil
}

func responseFrom(booking *models.Booking, payment *models.Payment) *models.BookingResponse {
	resp := &models.BookingResponse{
		BookingID:     booking.ID,
		TripID:        booking.TripID,
		OrderID:       payment.OrderID,
		Status:        booking.Status,
		PaymentStatus: payment.Status,
		Amount:        payment.Amount,
		PaidAt:        payment.PaidAt,
		CreatedAt:     booking.CreatedAt,
	}
	if booking.Status == models.BookingStatusPending {
		resp.RedirectURL = payment.RedirectURL
	}
	return resp
}

// tripDescription is the line-item label shown on the gateway payment page.
func tripDescription(trip *models.Trip) string {
	return fmt.Sprintf("%s - %s", trip.MountainName, trip.Title)
}

func (s *BookingService) releaseSeat(ctx context.Context, tripID, token uuid.UUID) {
	if err := s.tripStore.ReleaseSeat(ctx, tripID, token); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"trip_id":    tripID,
			"seat_token": token,
		}).Error("Failed to release seat")
	}
}

// newOrderID generates the opaque order identifier shared with the gateway.
func newOrderID() string {
	return "ORD-" + strings.ToUpper(uuid.NewString()[:18])
}
