package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/summitcamp/booking-backend/internal/models"
)

// ReconcileAuditRepository appends immutable audit rows for reconciliation
// signals. The table is append-only; rows are never updated or deleted.
type ReconcileAuditRepository struct {
	db *sqlx.DB
}

// NewReconcileAuditRepository creates a new ReconcileAuditRepository
func NewReconcileAuditRepository(db *sqlx.DB) *ReconcileAuditRepository {
	return &ReconcileAuditRepository{db: db}
}

// Append writes one audit entry.
func (r *ReconcileAuditRepository) Append(ctx context.Context, audit *models.ReconcileAudit) error {
	query := `
		INSERT INTO reconcile_audits (
			id, order_id, booking_id, source, advisory_status, gateway_status,
			expected_amount, received_amount, amounts_match,
			outcome, result_status, error_message, processing_time_ms, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)`

	_, err := r.db.ExecContext(ctx, query,
		audit.ID, audit.OrderID, audit.BookingID, audit.Source, audit.AdvisoryStatus, audit.GatewayStatus,
		audit.ExpectedAmount, audit.ReceivedAmount, audit.AmountsMatch,
		audit.Outcome, audit.ResultStatus, audit.ErrorMessage, audit.ProcessingTime, audit.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append reconcile audit: %w", err)
	}
	return nil
}

// ListByOrderID returns the audit trail of an order, oldest first.
func (r *ReconcileAuditRepository) ListByOrderID(ctx context.Context, orderID string, limit int) ([]models.ReconcileAudit, error) {
	query := `
		SELECT id, order_id, booking_id, source, advisory_status, gateway_status,
		       expected_amount, received_amount, amounts_match,
		       outcome, result_status, error_message, processing_time_ms, created_at
		FROM reconcile_audits
		WHERE order_id = $1
		ORDER BY created_at
		LIMIT $2`

	audits := make([]models.ReconcileAudit, 0)
	if err := r.db.SelectContext(ctx, &audits, query, orderID, limit); err != nil {
		return nil, fmt.Errorf("failed to list reconcile audits: %w", err)
	}
	return audits, nil
}
