package models

import (
	"time"

	"github.com/google/uuid"
)

// ReconcileOutcome classifies what a reconciliation attempt did.
type ReconcileOutcome string

const (
	OutcomeTransitioned     ReconcileOutcome = "transitioned"
	OutcomeNoop             ReconcileOutcome = "noop"
	OutcomeDiscarded        ReconcileOutcome = "discarded"
	OutcomeTransientFailure ReconcileOutcome = "transient_failure"
)

// ReconcileAudit is an immutable log entry written for every reconciliation
// signal, including duplicates and discarded ones. Amounts are recorded in
// minor units so mismatched gateway reports can be investigated later.
type ReconcileAudit struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	OrderID   string     `json:"order_id" db:"order_id"`
	BookingID *uuid.UUID `json:"booking_id,omitempty" db:"booking_id"`

	Source         SignalSource `json:"source" db:"source"`
	AdvisoryStatus *string      `json:"advisory_status,omitempty" db:"advisory_status"`
	GatewayStatus  *string      `json:"gateway_status,omitempty" db:"gateway_status"`

	ExpectedAmount *int64 `json:"expected_amount,omitempty" db:"expected_amount"`
	ReceivedAmount *int64 `json:"received_amount,omitempty" db:"received_amount"`
	AmountsMatch   *bool  `json:"amounts_match,omitempty" db:"amounts_match"`

	Outcome        ReconcileOutcome `json:"outcome" db:"outcome"`
	ResultStatus   *string          `json:"result_status,omitempty" db:"result_status"`
	ErrorMessage   *string          `json:"error_message,omitempty" db:"error_message"`
	ProcessingTime int              `json:"processing_time_ms" db:"processing_time_ms"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewReconcileAudit creates an audit entry for a signal.
func NewReconcileAudit(signal ReconcileSignal) *ReconcileAudit {
	audit := &ReconcileAudit{
		ID:        uuid.New(),
		OrderID:   signal.OrderID,
		Source:    signal.Source,
		Outcome:   OutcomeNoop,
		CreatedAt: time.Now(),
	}
	if signal.AdvisoryStatus != "" {
		advisory := signal.AdvisoryStatus
		audit.AdvisoryStatus = &advisory
	}
	return audit
}

// SetBooking records which booking the signal resolved to.
func (a *ReconcileAudit) SetBooking(bookingID uuid.UUID) *ReconcileAudit {
	a.BookingID = &bookingID
	return a
}

// SetGatewayStatus records the authoritative status returned by the gateway.
func (a *ReconcileAudit) SetGatewayStatus(status PaymentStatus) *ReconcileAudit {
	s := string(status)
	a.GatewayStatus = &s
	return a
}

// SetAmounts records both sides of the amount check and returns whether they match.
func (a *ReconcileAudit) SetAmounts(expected, received int64) bool {
	a.ExpectedAmount = &expected
	a.ReceivedAmount = &received
	match := expected == received
	a.AmountsMatch = &match
	return match
}

// SetResult records the outcome and the booking status after the attempt.
func (a *ReconcileAudit) SetResult(outcome ReconcileOutcome, status BookingStatus) *ReconcileAudit {
	a.Outcome = outcome
	s := string(status)
	a.ResultStatus = &s
	return a
}

// SetError records a failure message alongside the outcome.
func (a *ReconcileAudit) SetError(err error) *ReconcileAudit {
	msg := err.Error()
	a.ErrorMessage = &msg
	return a
}

// SetProcessingTime stamps how long the reconciliation attempt took.
func (a *ReconcileAudit) SetProcessingTime(start time.Time) *ReconcileAudit {
	a.ProcessingTime = int(time.Since(start).Milliseconds())
	return a
}
