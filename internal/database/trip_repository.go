package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/summitcamp/booking-backend/internal/models"
)

// TripRepository reads trips and guards their capacity. Seat reservation is
// a single atomic increment-with-ceiling on the trip row, so N concurrent
// requests against capacity K admit at most K reservations; the token row
// makes release idempotent.
type TripRepository struct {
	db *sqlx.DB
}

// NewTripRepository creates a new TripRepository
func NewTripRepository(db *sqlx.DB) *TripRepository {
	return &TripRepository{db: db}
}

// GetTripByID retrieves a trip by ID. Returns nil when not found.
func (r *TripRepository) GetTripByID(ctx context.Context, tripID uuid.UUID) (*models.Trip, error) {
	var trip models.Trip
	query := `
		SELECT id, mountain_id, guide_id, title, mountain_name,
		       capacity, seats_reserved, price, status,
		       start_date, end_date, created_at, updated_at
		FROM trips
		WHERE id = $1`

	err := r.db.GetContext(ctx, &trip, query, tripID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}
	return &trip, nil
}

// ListOpenTrips returns open, not-yet-departed trips ordered by start date.
func (r *TripRepository) ListOpenTrips(ctx context.Context, limit, offset int) ([]models.Trip, error) {
	query := `
		SELECT id, mountain_id, guide_id, title, mountain_name,
		       capacity, seats_reserved, price, status,
		       start_date, end_date, created_at, updated_at
		FROM trips
		WHERE status = 'open' AND start_date > NOW()
		ORDER BY start_date
		LIMIT $1 OFFSET $2`

	trips := make([]models.Trip, 0)
	if err := r.db.SelectContext(ctx, &trips, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	return trips, nil
}

// ReserveSeat atomically claims one seat on the trip and returns a
// reservation token. The increment only succeeds while seats_reserved is
// below capacity, which is what enforces the capacity invariant under
// concurrent requests.
func (r *TripRepository) ReserveSeat(ctx context.Context, tripID uuid.UUID) (uuid.UUID, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to begin reservation: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE trips
		SET seats_reserved = seats_reserved + 1, updated_at = NOW()
		WHERE id = $1 AND status = 'open' AND seats_reserved < capacity
	`, tripID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to reserve seat: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return uuid.Nil, models.ErrCapacityExceeded
	}

	token := uuid.New()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO trip_seat_reservations (id, trip_id, created_at)
		VALUES ($1, $2, NOW())
	`, token, tripID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to record seat reservation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("failed to commit reservation: %w", err)
	}
	return token, nil
}

// ReleaseSeat returns a reserved seat to the trip. Releasing an
// already-released or unknown token is a no-op: cancellation and expiry
// paths may race and both must be allowed to release safely.
func (r *TripRepository) ReleaseSeat(ctx context.Context, tripID, token uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin release: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		DELETE FROM trip_seat_reservations
		WHERE id = $1 AND trip_id = $2
	`, token, tripID)
	if err != nil {
		return fmt.Errorf("failed to delete seat reservation: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		// Token already released. The counter was decremented then.
		return nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE trips
		SET seats_reserved = seats_reserved - 1, updated_at = NOW()
		WHERE id = $1 AND seats_reserved > 0
	`, tripID)
	if err != nil {
		return fmt.Errorf("failed to release seat: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit release: %w", err)
	}
	return nil
}
