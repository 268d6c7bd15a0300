package services

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/summitcamp/booking-backend/internal/models"
)

// LogDispatcher writes booking state changes to the structured log. Used
// when no message queue is configured, and as the fallback sink in tests.
type LogDispatcher struct {
	logger *logrus.Logger
}

// NewLogDispatcher creates a new LogDispatcher
func NewLogDispatcher(logger *logrus.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) DispatchStateChange(_ context.Context, event models.BookingEvent) error {
	d.logger.WithFields(logrus.Fields{
		"booking_id": event.BookingID,
		"trip_id":    event.TripID,
		"user_id":    event.UserID,
		"order_id":   event.OrderID,
		"from":       event.PreviousStatus,
		"to":         event.NewStatus,
	}).Info("Booking state changed")
	return nil
}
