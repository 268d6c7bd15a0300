package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/summitcamp/booking-backend/internal/models"
)

// BookingStore is the durable store for Booking and Payment records.
// CompareAndSetStatus is the only status mutation path; no component
// performs unconditional status writes.
type BookingStore interface {
	CreateBookingWithPayment(ctx context.Context, booking *models.Booking, payment *models.Payment) error
	GetBookingByID(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error)
	GetActiveBookingByTripAndUser(ctx context.Context, tripID, userID uuid.UUID) (*models.Booking, error)
	GetPaymentByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error)
	GetBookingByOrderID(ctx context.Context, orderID string) (*models.Booking, *models.Payment, error)
	SetPaymentRedirect(ctx context.Context, orderID, redirectURL string) error
	CompareAndSetStatus(ctx context.Context, bookingID uuid.UUID, expectedVersion int,
		bookingStatus models.BookingStatus, paymentStatus models.PaymentStatus, paidAt *time.Time) (bool, error)
	DeleteBookingWithPayment(ctx context.Context, bookingID uuid.UUID) error
	ListPendingPastWindow(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// TripStore reads trips and guards their capacity. ReserveSeat is atomic
// with respect to concurrent reservations on the same trip; ReleaseSeat is
// idempotent.
type TripStore interface {
	GetTripByID(ctx context.Context, tripID uuid.UUID) (*models.Trip, error)
	ReserveSeat(ctx context.Context, tripID uuid.UUID) (uuid.UUID, error)
	ReleaseSeat(ctx context.Context, tripID, token uuid.UUID) error
}

// AuditStore appends immutable reconciliation audit entries.
type AuditStore interface {
	Append(ctx context.Context, audit *models.ReconcileAudit) error
}

// NotificationDispatcher receives terminal state transitions to inform the
// user and trigger downstream ledgering. Delivery failures must not affect
// booking state.
type NotificationDispatcher interface {
	DispatchStateChange(ctx context.Context, event models.BookingEvent) error
}
