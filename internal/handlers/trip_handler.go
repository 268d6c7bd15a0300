package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/summitcamp/booking-backend/internal/models"
	"github.com/summitcamp/booking-backend/internal/services"
)

// TripHandler handles the read-only trip catalog endpoints
type TripHandler struct {
	tripService *services.TripService
	logger      *logrus.Logger
}

// NewTripHandler creates a new TripHandler
func NewTripHandler(tripService *services.TripService, logger *logrus.Logger) *TripHandler {
	return &TripHandler{tripService: tripService, logger: logger}
}

// ListTrips returns all trips currently open for booking
// @Summary List open trips
// @Tags Trips
// @Produce json
// @Param limit query int false "Limit results (default 20)"
// @Param offset query int false "Offset for pagination"
// @Success 200 {object} map[string]interface{}
// @Router /trips [get]
func (h *TripHandler) ListTrips(c *gin.Context) {
	limit := 20
	offset := 0
	if l := c.Query("limit"); l != "" {
		if _, err := fmt.Sscanf(l, "%d", &limit); err != nil || limit < 1 {
			limit = 20
		}
		if limit > 100 {
			limit = 100
		}
	}
	if o := c.Query("offset"); o != "" {
		fmt.Sscanf(o, "%d", &offset)
	}

	trips, err := h.tripService.ListOpenTrips(c.Request.Context(), limit, offset)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list trips")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list trips"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trips": trips,
		"count": len(trips),
	})
}

// GetTrip returns a single trip with its seat availability
// @Summary Get trip details
// @Tags Trips
// @Produce json
// @Param trip_id path string true "Trip ID"
// @Success 200 {object} models.Trip
// @Failure 404 {object} map[string]interface{} "Trip not found"
// @Router /trips/{trip_id} [get]
func (h *TripHandler) GetTrip(c *gin.Context) {
	tripID, err := uuid.Parse(c.Param("trip_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid trip_id"})
		return
	}

	trip, err := h.tripService.GetTrip(c.Request.Context(), tripID)
	if err != nil {
		if errors.Is(err, models.ErrTripNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "trip not found"})
			return
		}
		h.logger.WithError(err).Error("Failed to get trip")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get trip"})
		return
	}

	c.JSON(http.StatusOK, trip)
}
