package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/summitcamp/booking-backend/internal/models"
)

// BookingRepository owns Booking and Payment rows. CompareAndSetStatus is
// the only mutation path for status fields; every other component builds on
// it. A partial unique index on (trip_id, user_id) for non-terminal statuses
// backs the one-active-booking invariant.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// CreateBookingWithPayment inserts a pending booking and its payment in one
// transaction. Returns ErrAlreadyBooked when the active-booking index fires,
// so racing duplicate requests can fall back to the existing record.
func (r *BookingRepository) CreateBookingWithPayment(ctx context.Context, booking *models.Booking, payment *models.Payment) error {
	now := time.Now()
	booking.CreatedAt = now
	booking.UpdatedAt = now
	payment.CreatedAt = now
	payment.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bookings (id, trip_id, user_id, status, seat_reservation_id, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, booking.ID, booking.TripID, booking.UserID, booking.Status,
		booking.SeatReservationID, booking.Version, booking.CreatedAt, booking.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return models.ErrAlreadyBooked
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (id, booking_id, order_id, status, amount, redirect_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, payment.ID, payment.BookingID, payment.OrderID, payment.Status,
		payment.Amount, payment.RedirectURL, payment.CreatedAt, payment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return tx.Commit()
}

// GetBookingByID retrieves a booking by ID. Returns nil when not found.
func (r *BookingRepository) GetBookingByID(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	query := `
		SELECT id, trip_id, user_id, status, seat_reservation_id, version, created_at, updated_at
		FROM bookings
		WHERE id = $1`

	err := r.db.GetContext(ctx, &booking, query, bookingID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

// GetActiveBookingByTripAndUser returns the pending or confirmed booking of
// a (trip, user) pair, or nil. At most one can exist.
func (r *BookingRepository) GetActiveBookingByTripAndUser(ctx context.Context, tripID, userID uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	query := `
		SELECT id, trip_id, user_id, status, seat_reservation_id, version, created_at, updated_at
		FROM bookings
		WHERE trip_id = $1 AND user_id = $2 AND status IN ('pending', 'confirmed')`

	err := r.db.GetContext(ctx, &booking, query, tripID, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active booking: %w", err)
	}
	return &booking, nil
}

// GetPaymentByBookingID retrieves the payment of a booking. Returns nil when
// not found.
func (r *BookingRepository) GetPaymentByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	query := `
		SELECT id, booking_id, order_id, status, amount, redirect_url, paid_at, created_at, updated_at
		FROM payments
		WHERE booking_id = $1`

	err := r.db.GetContext(ctx, &payment, query, bookingID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &payment, nil
}

// GetBookingByOrderID resolves a gateway order id to its booking and
// payment. Both are nil for unknown orders.
func (r *BookingRepository) GetBookingByOrderID(ctx context.Context, orderID string) (*models.Booking, *models.Payment, error) {
	var payment models.Payment
	err := r.db.GetContext(ctx, &payment, `
		SELECT id, booking_id, order_id, status, amount, redirect_url, paid_at, created_at, updated_at
		FROM payments
		WHERE order_id = $1`, orderID)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get payment by order id: %w", err)
	}

	booking, err := r.GetBookingByID(ctx, payment.BookingID)
	if err != nil {
		return nil, nil, err
	}
	if booking == nil {
		return nil, nil, fmt.Errorf("payment %s references missing booking %s", payment.ID, payment.BookingID)
	}
	return booking, &payment, nil
}

// SetPaymentRedirect stores the gateway redirect target so an idempotent
// re-entry can hand back the same URL.
func (r *BookingRepository) SetPaymentRedirect(ctx context.Context, orderID, redirectURL string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET redirect_url = $2, updated_at = NOW()
		WHERE order_id = $1`, orderID, redirectURL)
	if err != nil {
		return fmt.Errorf("failed to set payment redirect: %w", err)
	}
	return nil
}

// CompareAndSetStatus transitions a booking and its payment in one
// transaction, conditional on the booking version being unchanged since the
// caller read it. Returns false on version mismatch; the caller re-reads
// and decides again. The version guard is what makes concurrent duplicate
// signals for the same booking safe.
func (r *BookingRepository) CompareAndSetStatus(
	ctx context.Context,
	bookingID uuid.UUID,
	expectedVersion int,
	bookingStatus models.BookingStatus,
	paymentStatus models.PaymentStatus,
	paidAt *time.Time,
) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE bookings
		SET status = $3, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
	`, bookingID, expectedVersion, bookingStatus)
	if err != nil {
		return false, fmt.Errorf("failed to update booking status: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE payments
		SET status = $2, paid_at = COALESCE($3, paid_at), updated_at = NOW()
		WHERE booking_id = $1
	`, bookingID, paymentStatus, paidAt)
	if err != nil {
		return false, fmt.Errorf("failed to update payment status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transition: %w", err)
	}
	return true, nil
}

// DeleteBookingWithPayment removes a booking and its payment. Used only to
// roll back a just-created pending booking when the gateway create call
// fails; finalized bookings are never deleted.
func (r *BookingRepository) DeleteBookingWithPayment(ctx context.Context, bookingID uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM payments WHERE booking_id = $1`, bookingID); err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM bookings WHERE id = $1 AND status = 'pending'`, bookingID); err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	return tx.Commit()
}

// ListPendingPastWindow returns order ids of pending bookings created before
// the cutoff, for the expiry sweeper.
func (r *BookingRepository) ListPendingPastWindow(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	query := `
		SELECT p.order_id
		FROM payments p
		JOIN bookings b ON b.id = p.booking_id
		WHERE b.status = 'pending' AND b.created_at < $1
		ORDER BY b.created_at
		LIMIT $2`

	orderIDs := make([]string, 0)
	if err := r.db.SelectContext(ctx, &orderIDs, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("failed to list pending bookings: %w", err)
	}
	return orderIDs, nil
}
