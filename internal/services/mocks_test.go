package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/summitcamp/booking-backend/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// ──────────────────────────────────────────────
// MOCK BOOKING STORE
// ──────────────────────────────────────────────

type mockBookingStore struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*models.Booking
	payments map[uuid.UUID]*models.Payment // keyed by booking ID

	// Counters for verification
	CASCalls    int
	DeleteCalls int

	// Error injection
	CreateErr error
	GetErr    error
	CASErr    error

	// CASConflicts makes the first N CompareAndSetStatus calls fail as if
	// a concurrent writer bumped the version.
	CASConflicts int

	// AfterConflict, when set, runs after a simulated conflict with the
	// store lock held, so tests can act as the competing writer.
	AfterConflict func(bookings map[uuid.UUID]*models.Booking)
}

func newMockBookingStore() *mockBookingStore {
	return &mockBookingStore{
		bookings: make(map[uuid.UUID]*models.Booking),
		payments: make(map[uuid.UUID]*models.Payment),
	}
}

func (m *mockBookingStore) add(booking *models.Booking, payment *models.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[booking.ID] = booking
	m.payments[booking.ID] = payment
}

func (m *mockBookingStore) CreateBookingWithPayment(_ context.Context, booking *models.Booking, payment *models.Payment) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.TripID == booking.TripID && b.UserID == booking.UserID && !b.Status.IsTerminal() {
			return models.ErrAlreadyBooked
		}
	}
	booking.CreatedAt = time.Now()
	m.bookings[booking.ID] = booking
	m.payments[booking.ID] = payment
	return nil
}

func (m *mockBookingStore) GetBookingByID(_ context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	booking, ok := m.bookings[bookingID]
	if !ok {
		return nil, nil
	}
	cp := *booking
	return &cp, nil
}

func (m *mockBookingStore) GetActiveBookingByTripAndUser(_ context.Context, tripID, userID uuid.UUID) (*models.Booking, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.TripID == tripID && b.UserID == userID && !b.Status.IsTerminal() {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockBookingStore) GetPaymentByBookingID(_ context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payment, ok := m.payments[bookingID]
	if !ok {
		return nil, nil
	}
	cp := *payment
	return &cp, nil
}

func (m *mockBookingStore) GetBookingByOrderID(_ context.Context, orderID string) (*models.Booking, *models.Payment, error) {
	if m.GetErr != nil {
		return nil, nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for bookingID, p := range m.payments {
		if p.OrderID == orderID {
			b := *m.bookings[bookingID]
			cp := *p
			return &b, &cp, nil
		}
	}
	return nil, nil, nil
}

func (m *mockBookingStore) SetPaymentRedirect(_ context.Context, orderID, redirectURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.OrderID == orderID {
			p.RedirectURL = redirectURL
			return nil
		}
	}
	return nil
}

func (m *mockBookingStore) CompareAndSetStatus(
	_ context.Context,
	bookingID uuid.UUID,
	expectedVersion int,
	bookingStatus models.BookingStatus,
	paymentStatus models.PaymentStatus,
	paidAt *time.Time,
) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CASCalls++
	if m.CASErr != nil {
		return false, m.CASErr
	}
	if m.CASConflicts > 0 {
		m.CASConflicts--
		if m.AfterConflict != nil {
			m.AfterConflict(m.bookings)
		}
		return false, nil
	}
	booking, ok := m.bookings[bookingID]
	if !ok || booking.Version != expectedVersion {
		return false, nil
	}
	booking.Status = bookingStatus
	booking.Version++
	booking.UpdatedAt = time.Now()
	if payment, ok := m.payments[bookingID]; ok {
		payment.Status = paymentStatus
		if paidAt != nil {
			payment.PaidAt = paidAt
		}
	}
	return true, nil
}

func (m *mockBookingStore) DeleteBookingWithPayment(_ context.Context, bookingID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls++
	delete(m.bookings, bookingID)
	delete(m.payments, bookingID)
	return nil
}

func (m *mockBookingStore) ListPendingPastWindow(_ context.Context, cutoff time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var orderIDs []string
	for bookingID, b := range m.bookings {
		if b.Status == models.BookingStatusPending && b.CreatedAt.Before(cutoff) {
			orderIDs = append(orderIDs, m.payments[bookingID].OrderID)
			if len(orderIDs) == limit {
				break
			}
		}
	}
	return orderIDs, nil
}

// booking returns the stored booking for test assertions.
func (m *mockBookingStore) booking(id uuid.UUID) *models.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bookings[id]
}

// payment returns the stored payment for test assertions.
func (m *mockBookingStore) payment(bookingID uuid.UUID) *models.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payments[bookingID]
}

// ──────────────────────────────────────────────
// MOCK TRIP STORE
// ──────────────────────────────────────────────

type mockTripStore struct {
	mu     sync.Mutex
	trips  map[uuid.UUID]*models.Trip
	tokens map[uuid.UUID]uuid.UUID // token -> trip

	ReserveCalls int
	ReleaseCalls int

	ReserveErr error
}

func newMockTripStore() *mockTripStore {
	return &mockTripStore{
		trips:  make(map[uuid.UUID]*models.Trip),
		tokens: make(map[uuid.UUID]uuid.UUID),
	}
}

func (m *mockTripStore) add(trip *models.Trip) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trips[trip.ID] = trip
}

func (m *mockTripStore) GetTripByID(_ context.Context, tripID uuid.UUID) (*models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	trip, ok := m.trips[tripID]
	if !ok {
		return nil, nil
	}
	cp := *trip
	return &cp, nil
}

func (m *mockTripStore) ReserveSeat(_ context.Context, tripID uuid.UUID) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReserveCalls++
	if m.ReserveErr != nil {
		return uuid.Nil, m.ReserveErr
	}
	trip, ok := m.trips[tripID]
	if !ok {
		return uuid.Nil, models.ErrTripNotFound
	}
	if trip.SeatsReserved >= trip.Capacity {
		return uuid.Nil, models.ErrCapacityExceeded
	}
	trip.SeatsReserved++
	token := uuid.New()
	m.tokens[token] = tripID
	return token, nil
}

func (m *mockTripStore) ReleaseSeat(_ context.Context, tripID, token uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReleaseCalls++
	if _, ok := m.tokens[token]; !ok {
		// Idempotent: unknown or already released token is a no-op.
		return nil
	}
	delete(m.tokens, token)
	if trip, ok := m.trips[tripID]; ok && trip.SeatsReserved > 0 {
		trip.SeatsReserved--
	}
	return nil
}

func (m *mockTripStore) seatsReserved(tripID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trips[tripID].SeatsReserved
}

// ──────────────────────────────────────────────
// MOCK PAYMENT GATEWAY
// ──────────────────────────────────────────────

type mockGateway struct {
	mu      sync.Mutex
	charges map[string]*GatewayCharge // keyed by order ID

	QueryCalls  int
	CreateCalls int

	CreateErr        error
	QueryErr         error
	RejectSignatures bool

	// CreateFailures and QueryFailures make the first N calls fail as if
	// the gateway were unreachable, then recover.
	CreateFailures int
	QueryFailures  int

	RedirectURL string
}

func newMockGateway() *mockGateway {
	return &mockGateway{
		charges:     make(map[string]*GatewayCharge),
		RedirectURL: "https://pay.sandbox.example.com/redirect/abc",
	}
}

// setCharge sets the authoritative status the gateway reports for an order.
func (m *mockGateway) setCharge(orderID string, status models.PaymentStatus, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	charge := &GatewayCharge{Status: status, Amount: amount}
	if status == models.PaymentStatusSettlement {
		now := time.Now()
		charge.PaidAt = &now
	}
	m.charges[orderID] = charge
}

func (m *mockGateway) CreateTransaction(_ context.Context, orderID string, amount int64, _ string) (*GatewayTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls++
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	if m.CreateFailures > 0 {
		m.CreateFailures--
		return nil, models.ErrGatewayUnavailable
	}
	if _, ok := m.charges[orderID]; !ok {
		m.charges[orderID] = &GatewayCharge{Status: models.PaymentStatusPending, Amount: amount}
	}
	return &GatewayTransaction{Token: "snap-token", RedirectURL: m.RedirectURL}, nil
}

func (m *mockGateway) QueryStatus(_ context.Context, orderID string) (*GatewayCharge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueryCalls++
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	if m.QueryFailures > 0 {
		m.QueryFailures--
		return nil, models.ErrGatewayUnavailable
	}
	charge, ok := m.charges[orderID]
	if !ok {
		return nil, models.ErrUnknownOrder
	}
	cp := *charge
	return &cp, nil
}

func (m *mockGateway) ValidateSignature(_ *models.GatewayNotification) bool {
	return !m.RejectSignatures
}

// ──────────────────────────────────────────────
// MOCK AUDIT STORE AND DISPATCHER
// ──────────────────────────────────────────────

type mockAuditStore struct {
	mu      sync.Mutex
	entries []*models.ReconcileAudit
}

func newMockAuditStore() *mockAuditStore {
	return &mockAuditStore{}
}

func (m *mockAuditStore) Append(_ context.Context, audit *models.ReconcileAudit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, audit)
	return nil
}

func (m *mockAuditStore) last() *models.ReconcileAudit {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == 0 {
		return nil
	}
	return m.entries[len(m.entries)-1]
}

type mockDispatcher struct {
	mu     sync.Mutex
	events []models.BookingEvent

	Err error
}

func newMockDispatcher() *mockDispatcher {
	return &mockDispatcher{}
}

func (m *mockDispatcher) DispatchStateChange(_ context.Context, event models.BookingEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.events = append(m.events, event)
	return nil
}

func (m *mockDispatcher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}
