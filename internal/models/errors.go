package models

import "errors"

// Domain errors. Handlers map these to HTTP status codes with errors.Is;
// everything transient is safe to retry because all mutations are
// compare-and-set or atomic.
var (
	// ErrTripNotFound is returned when the referenced trip does not exist.
	ErrTripNotFound = errors.New("trip not found")

	// ErrTripNotBookable is returned for closed or already-departed trips.
	ErrTripNotBookable = errors.New("trip is not open for booking")

	// ErrCapacityExceeded is returned when a trip has no seats left. It is
	// rejected synchronously, before any booking row is created.
	ErrCapacityExceeded = errors.New("trip capacity exceeded")

	// ErrGatewayUnavailable is returned on gateway network failures and
	// timeouts. The booking state is untouched and the call is retryable.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrGatewayRejected is returned when the gateway refuses a
	// well-delivered but malformed transaction request.
	ErrGatewayRejected = errors.New("payment gateway rejected the request")

	// ErrBookingNotFound is returned when a booking id resolves to nothing.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrAlreadyBooked signals the unique active-booking constraint fired:
	// the (trip, user) pair already has a pending or confirmed booking.
	ErrAlreadyBooked = errors.New("an active booking already exists for this trip")

	// ErrUnknownOrder marks a signal whose order id matches no payment.
	// Stale or foreign signals are discarded, not treated as defects.
	ErrUnknownOrder = errors.New("unknown order id")

	// ErrInvalidSignature marks a notification that failed gateway
	// signature validation. It is logged and discarded.
	ErrInvalidSignature = errors.New("invalid gateway signature")

	// ErrAmountMismatch is returned when the gateway reports a settlement
	// whose amount differs from the amount captured at booking time.
	ErrAmountMismatch = errors.New("gateway amount does not match booking amount")

	// ErrContention is returned after bounded compare-and-set retries all
	// lost to concurrent writers. The booking is untouched; retry later.
	ErrContention = errors.New("booking version contention, retry")
)
