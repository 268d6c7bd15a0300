package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus represents the gateway-derived status of a payment
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusSettlement PaymentStatus = "settlement"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusExpired    PaymentStatus = "expired"
	// PaymentStatusUnknown is a transient classification used when the
	// gateway cannot be reached. It is never persisted.
	PaymentStatusUnknown PaymentStatus = "unknown"
)

// IsTerminal reports whether the payment status may never change again.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusSettlement || s == PaymentStatusFailed || s == PaymentStatusExpired
}

// Payment is the 1:1 payment record of a booking. OrderID is the opaque
// identifier shared with the gateway; Amount is the trip price captured at
// booking time and must match what the gateway reports before a settlement
// is accepted.
type Payment struct {
	ID          uuid.UUID     `json:"id" db:"id"`
	BookingID   uuid.UUID     `json:"booking_id" db:"booking_id"`
	OrderID     string        `json:"order_id" db:"order_id"`
	Status      PaymentStatus `json:"status" db:"status"`
	Amount      int64         `json:"amount" db:"amount"`
	RedirectURL string        `json:"redirect_url" db:"redirect_url"`
	PaidAt      *time.Time    `json:"paid_at,omitempty" db:"paid_at"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" db:"updated_at"`
}

// SignalSource identifies which of the independent entry points triggered a
// reconciliation.
type SignalSource string

const (
	SignalSourceRedirect     SignalSource = "redirect"
	SignalSourceNotification SignalSource = "notification"
	SignalSourceStatusCheck  SignalSource = "status_check"
	SignalSourceExpirySweep  SignalSource = "expiry_sweep"
)

// ReconcileSignal is any event that prompts re-evaluation of a booking's
// payment state. AdvisoryStatus is whatever the caller claims the gateway
// said; it is never used for the transition decision, only logged.
type ReconcileSignal struct {
	OrderID        string
	Source         SignalSource
	AdvisoryStatus string
	// Notification carries the gateway-issued integrity proof for
	// notification-sourced signals; nil for the other sources.
	Notification *GatewayNotification
}

// GatewayNotification is the payload posted by the gateway to the
// notification receiver. SignatureKey is SHA-512 over
// orderID + statusCode + grossAmount + serverKey.
type GatewayNotification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	TransactionStatus string `json:"transaction_status"`
	TransactionID     string `json:"transaction_id"`
	SignatureKey      string `json:"signature_key"`
}
