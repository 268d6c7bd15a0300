package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/summitcamp/booking-backend/internal/models"
)

type bookingFixture struct {
	store   *mockBookingStore
	trips   *mockTripStore
	gateway *mockGateway
	svc     *BookingService

	trip *models.Trip
	user uuid.UUID
}

func newBookingFixture(t *testing.T, capacity int) *bookingFixture {
	t.Helper()

	f := &bookingFixture{
		store:   newMockBookingStore(),
		trips:   newMockTripStore(),
		gateway: newMockGateway(),
		user:    uuid.New(),
	}
	f.svc = NewBookingService(f.store, f.trips, NewRetryingGateway(f.gateway, 2, 0, testLogger()), testLogger())

	f.trip = &models.Trip{
		ID:           uuid.New(),
		Title:        "Crater Rim Trek",
		MountainName: "Mount Bromo",
		Capacity:     capacity,
		Price:        180000,
		Status:       models.TripStatusOpen,
		StartDate:    time.Now().Add(7 * 24 * time.Hour),
	}
	f.trips.add(f.trip)

	return f
}

func TestRequestBookingCreatesPendingBooking(t *testing.T) {
	f := newBookingFixture(t, 4)

	resp, err := f.svc.RequestBooking(context.Background(), f.trip.ID, f.user)

	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, resp.Status)
	assert.Equal(t, models.PaymentStatusPending, resp.PaymentStatus)
	assert.Equal(t, f.trip.Price, resp.Amount)
	assert.Equal(t, f.gateway.RedirectURL, resp.RedirectURL)
	assert.True(t, strings.HasPrefix(resp.OrderID, "ORD-"))

	assert.Equal(t, 1, f.trips.seatsReserved(f.trip.ID))

	stored := f.store.booking(resp.BookingID)
	require.NotNil(t, stored)
	assert.Equal(t, 1, stored.Version)
	assert.NotEqual(t, uuid.Nil, stored.SeatReservationID)
}

func TestRequestBookingIsIdempotent(t *testing.T) {
	f := newBookingFixture(t, 4)

	first, err := f.svc.RequestBooking(context.Background(), f.trip.ID, f.user)
	require.NoError(t, err)

	second, err := f.svc.RequestBooking(context.Background(), f.trip.ID, f.user)
	require.NoError(t, err)

	assert.Equal(t, first.BookingID, second.BookingID)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, first.RedirectURL, second.RedirectURL)

	// Re-entry must not touch capacity or the gateway again.
	assert.Equal(t, 1, f.trips.seatsReserved(f.trip.ID))
	assert.Equal(t, 1, f.trips.ReserveCalls)
	assert.Equal(t, 1, f.gateway.CreateCalls)
}

func TestRequestBookingRecoversMissingRedirect(t *testing.T) {
	f := newBookingFixture(t, 4)

	first, err := f.svc.RequestBooking(context.Background(), f.trip.ID, f.user)
	require.NoError(t, err)

	// The redirect write was lost after the gateway call succeeded.
	f.store.payment(first.BookingID).RedirectURL = ""

	second, err := f.svc.RequestBooking(context.Background(), f.trip.ID, f.user)
	require.NoError(t, err)
	assert.Equal(t, first.BookingID, second.BookingID)
	assert.Equal(t, f.gateway.RedirectURL, second.RedirectURL)
	assert.Equal(t, 2, f.gateway.CreateCalls)

	// The recovered redirect is persisted; further re-entries serve it
	// without another gateway call.
	assert.Equal(t, f.gateway.RedirectURL, f.store.payment(first.BookingID).RedirectURL)
	third, err := f.svc.RequestBooking(context.Background(), f.trip.ID, f.user)
	require.NoError(t, err)
	assert.Equal(t, f.gateway.RedirectURL, third.RedirectURL)
	assert.Equal(t, 2, f.gateway.CreateCalls)
}

func TestRequestBookingRedirectRecoveryFailureIsNonFatal(t *testing.T) {
	f := newBookingFixture(t, 4)

	first, err := f.svc.RequestBooking(context.Background(), f.trip.ID, f.user)
	require.NoError(t, err)

	f.store.payment(first.BookingID).RedirectURL = ""
	f.gateway.CreateErr = models.ErrGatewayUnavailable

	second, err := f.svc.RequestBooking(context.Background(), f.trip.ID, f.user)

	// The booking itself survives; only the redirect stays missing until
	// a later retry reaches the gateway.
	require.NoError(t, err)
	assert.Equal(t, first.BookingID, second.BookingID)
	assert.Empty(t, second.RedirectURL)
}

func TestRequestBookingTripNotFound(t *testing.T) {
	f := newBookingFixture(t, 4)

	_, err := f.svc.RequestBooking(context.Background(), uuid.New(), f.user)

	assert.ErrorIs(t, err, models.ErrTripNotFound)
}

func TestRequestBookingTripNotBookable(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(trip *models.Trip)
	}{
		{"closed trip", func(trip *models.Trip) { trip.Status = models.TripStatusClosed }},
		{"already departed", func(trip *models.Trip) { trip.StartDate = time.Now().Add(-24 * time.Hour) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newBookingFixture(t, 4)
			tt.mutate(f.trip)

			_, err := f.svc.RequestBooking(context.Background(), f.trip.ID, f.user)

			assert.ErrorIs(t, err, models.ErrTripNotBookable)
			assert.Zero(t, f.trips.ReserveCalls)
		})
	}
}

func TestRequestBookingLastSeatGoesToOneUser(t *testing.T) {
	f := newBookingFixture(t, 1)
	otherUser := uuid.New()

	first, err := f.svc.RequestBooking(context.Background(), f.trip.ID, f.user)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, first.Status)

	_, err = f.svc.RequestBooking(context.Background(), f.trip.ID, otherUser)
	assert.ErrorIs(t, err, models.ErrCapacityExceeded)

	// The ceiling holds: one seat, one booking.
	assert.Equal(t, 1, f.trips.seatsReserved(f.trip.ID))
	assert.Equal(t, 1, f.gateway.CreateCalls)
}

func TestRequestBookingGatewayFailureRollsBack(t *testing.T) {
	f := newBookingFixture(t, 4)
	f.gateway.CreateErr = models.ErrGatewayUnavailable

	_, err := f.svc.RequestBooking(context.Background(), f.trip.ID, f.user)

	assert.ErrorIs(t, err, models.ErrGatewayUnavailable)
	// No half-open booking survives: seat released, records deleted.
	assert.Equal(t, 0, f.trips.seatsReserved(f.trip.ID))
	assert.Equal(t, 1, f.store.DeleteCalls)

	// The trip is bookable again afterwards.
	f.gateway.CreateErr = nil
	resp, err := f.svc.RequestBooking(context.Background(), f.trip.ID, f.user)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, resp.Status)
}

func TestRequestBookingAbsorbsTransientGatewayFailure(t *testing.T) {
	f := newBookingFixture(t, 4)
	f.gateway.CreateFailures = 1

	resp, err := f.svc.RequestBooking(context.Background(), f.trip.ID, f.user)

	// One blip, one retry, no rollback.
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, resp.Status)
	assert.NotEmpty(t, resp.RedirectURL)
	assert.Equal(t, 2, f.gateway.CreateCalls)
	assert.Equal(t, 0, f.store.DeleteCalls)
	assert.Equal(t, 1, f.trips.seatsReserved(f.trip.ID))
}

func TestRequestBookingGatewayRejectionSurfaces(t *testing.T) {
	f := newBookingFixture(t, 4)
	f.gateway.CreateErr = models.ErrGatewayRejected

	_, err := f.svc.RequestBooking(context.Background(), f.trip.ID, f.user)

	assert.ErrorIs(t, err, models.ErrGatewayRejected)
	assert.Equal(t, 0, f.trips.seatsReserved(f.trip.ID))
}

func TestGetBookingStatusOwnershipIsEnforced(t *testing.T) {
	f := newBookingFixture(t, 4)

	resp, err := f.svc.RequestBooking(context.Background(), f.trip.ID, f.user)
	require.NoError(t, err)

	_, err = f.svc.GetBookingStatus(context.Background(), resp.BookingID, uuid.New())
	assert.ErrorIs(t, err, models.ErrBookingNotFound)

	owned, err := f.svc.GetBookingStatus(context.Background(), resp.BookingID, f.user)
	require.NoError(t, err)
	assert.Equal(t, resp.BookingID, owned.BookingID)
}

func TestGetBookingStatusHidesRedirectOnceTerminal(t *testing.T) {
	f := newBookingFixture(t, 4)

	resp, err := f.svc.RequestBooking(context.Background(), f.trip.ID, f.user)
	require.NoError(t, err)

	pending, err := f.svc.GetBookingStatus(context.Background(), resp.BookingID, f.user)
	require.NoError(t, err)
	assert.NotEmpty(t, pending.RedirectURL)

	now := time.Now()
	ok, err := f.store.CompareAndSetStatus(context.Background(), resp.BookingID, 1,
		models.BookingStatusConfirmed, models.PaymentStatusSettlement, &now)
	require.NoError(t, err)
	require.True(t, ok)

	confirmed, err := f.svc.GetBookingStatus(context.Background(), resp.BookingID, f.user)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, confirmed.Status)
	assert.Empty(t, confirmed.RedirectURL)
	assert.NotNil(t, confirmed.PaidAt)
}
