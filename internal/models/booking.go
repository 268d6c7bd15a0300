package models

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatus represents the lifecycle status of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusExpired   BookingStatus = "expired"
)

// IsTerminal reports whether no further transition is permitted out of the status.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusConfirmed || s == BookingStatusCancelled || s == BookingStatusExpired
}

// Booking represents a seat booked on a guided trip. A booking is created in
// pending and moved to exactly one terminal status by the reconciler.
// Version is a monotonic counter used for optimistic concurrency: every
// status write is conditional on the version read.
type Booking struct {
	ID     uuid.UUID     `json:"id" db:"id"`
	TripID uuid.UUID     `json:"trip_id" db:"trip_id"`
	UserID uuid.UUID     `json:"user_id" db:"user_id"`
	Status BookingStatus `json:"status" db:"status"`
	// SeatReservationID is the capacity token handed out when the seat was
	// reserved; released when the booking reaches cancelled or expired.
	SeatReservationID uuid.UUID `json:"-" db:"seat_reservation_id"`
	Version           int       `json:"version" db:"version"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// BookingEvent is emitted to the notification dispatcher whenever a booking
// reaches a terminal status. No-op reconciliations emit nothing.
type BookingEvent struct {
	BookingID      uuid.UUID     `json:"booking_id"`
	TripID         uuid.UUID     `json:"trip_id"`
	UserID         uuid.UUID     `json:"user_id"`
	OrderID        string        `json:"order_id"`
	PreviousStatus BookingStatus `json:"previous_status"`
	NewStatus      BookingStatus `json:"new_status"`
	OccurredAt     time.Time     `json:"occurred_at"`
}

// CreateBookingRequest is the request body of POST /bookings.
type CreateBookingRequest struct {
	TripID string `json:"trip_id" binding:"required,uuid"`
}

// BookingResponse is returned for booking creation and status reads.
type BookingResponse struct {
	BookingID     uuid.UUID     `json:"booking_id"`
	TripID        uuid.UUID     `json:"trip_id"`
	OrderID       string        `json:"order_id"`
	Status        BookingStatus `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Amount        int64         `json:"amount"`
	RedirectURL   string        `json:"redirect_url,omitempty"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}
