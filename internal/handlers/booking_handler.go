package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/summitcamp/booking-backend/internal/middleware"
	"github.com/summitcamp/booking-backend/internal/models"
	"github.com/summitcamp/booking-backend/internal/services"
)

// BookingHandler handles booking creation and status endpoints
type BookingHandler struct {
	bookingService *services.BookingService
	reconciler     *services.ReconcileService
	logger         *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(
	bookingService *services.BookingService,
	reconciler *services.ReconcileService,
	logger *logrus.Logger,
) *BookingHandler {
	return &BookingHandler{
		bookingService: bookingService,
		reconciler:     reconciler,
		logger:         logger,
	}
}

// ============================================================================
// CREATE BOOKING - POST /api/v1/bookings
// ============================================================================

// CreateBooking reserves a seat on a trip and opens a payment transaction
// @Summary Create a booking
// @Description Reserves a seat, creates a pending booking and returns the payment redirect URL
// @Tags Bookings
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param request body models.CreateBookingRequest true "Booking request"
// @Success 201 {object} models.BookingResponse
// @Failure 400 {object} map[string]interface{} "Validation error or trip not bookable"
// @Failure 401 {object} map[string]interface{} "Unauthorized"
// @Failure 404 {object} map[string]interface{} "Trip not found"
// @Failure 409 {object} map[string]interface{} "Trip fully booked"
// @Failure 502 {object} map[string]interface{} "Payment gateway failure"
// @Router /bookings [post]
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	tripID, err := uuid.Parse(req.TripID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid trip_id"})
		return
	}

	response, err := h.bookingService.RequestBooking(c.Request.Context(), tripID, userCtx.UserID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrTripNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "trip not found"})
		case errors.Is(err, models.ErrTripNotBookable):
			c.JSON(http.StatusBadRequest, gin.H{"error": "trip is not open for booking"})
		case errors.Is(err, models.ErrCapacityExceeded):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "trip_full",
				"message": "All seats for this trip are taken",
			})
		case errors.Is(err, models.ErrGatewayUnavailable), errors.Is(err, models.ErrGatewayRejected):
			c.JSON(http.StatusBadGateway, gin.H{
				"error":   "payment_gateway_error",
				"message": "Could not open a payment transaction, please try again",
			})
		default:
			h.logger.WithError(err).Error("Failed to create booking")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create booking"})
		}
		return
	}

	c.JSON(http.StatusCreated, response)
}

// ============================================================================
// GET BOOKING STATUS - GET /api/v1/bookings/:booking_id/status
// ============================================================================

// GetBookingStatus returns the booking's current state, reconciling first if pending
// @Summary Get booking status
// @Description Returns the booking state; a pending booking is reconciled against the gateway before answering
// @Tags Bookings
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param booking_id path string true "Booking ID"
// @Success 200 {object} models.BookingResponse
// @Failure 401 {object} map[string]interface{} "Unauthorized"
// @Failure 404 {object} map[string]interface{} "Booking not found"
// @Router /bookings/{booking_id}/status [get]
func (h *BookingHandler) GetBookingStatus(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	bookingID, err := uuid.Parse(c.Param("booking_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking_id"})
		return
	}

	response, err := h.bookingService.GetBookingStatus(c.Request.Context(), bookingID, userCtx.UserID)
	if err != nil {
		if errors.Is(err, models.ErrBookingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
			return
		}
		h.logger.WithError(err).Error("Failed to get booking status")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get booking status"})
		return
	}

	// A pending booking may have been decided at the gateway since we last
	// heard from it. Reconcile now so the user sees the settled state
	// without waiting for the notification callback.
	if response.Status == models.BookingStatusPending {
		signal := models.ReconcileSignal{
			OrderID: response.OrderID,
			Source:  models.SignalSourceStatusCheck,
		}
		if status, rErr := h.reconciler.Reconcile(c.Request.Context(), signal); rErr != nil {
			// Transient gateway trouble; answer with the stored state.
			h.logger.WithError(rErr).WithField("order_id", response.OrderID).Warn("Status check reconciliation deferred")
		} else if status != response.Status {
			response, err = h.bookingService.GetBookingStatus(c.Request.Context(), bookingID, userCtx.UserID)
			if err != nil {
				h.logger.WithError(err).Error("Failed to re-read booking after reconciliation")
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get booking status"})
				return
			}
		}
	}

	c.JSON(http.StatusOK, response)
}
