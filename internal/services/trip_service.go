package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/summitcamp/booking-backend/internal/database"
	"github.com/summitcamp/booking-backend/internal/models"
)

// TripService exposes the trip catalog read surface.
type TripService struct {
	tripRepo *database.TripRepository
	logger   *logrus.Logger
}

// NewTripService creates a new TripService
func NewTripService(tripRepo *database.TripRepository, logger *logrus.Logger) *TripService {
	return &TripService{tripRepo: tripRepo, logger: logger}
}

// ListOpenTrips returns trips currently open for booking.
func (s *TripService) ListOpenTrips(ctx context.Context, limit, offset int) ([]models.Trip, error) {
	trips, err := s.tripRepo.ListOpenTrips(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list open trips: %w", err)
	}
	return trips, nil
}

// GetTrip returns a single trip by ID.
func (s *TripService) GetTrip(ctx context.Context, tripID uuid.UUID) (*models.Trip, error) {
	trip, err := s.tripRepo.GetTripByID(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}
	if trip == nil {
		return nil, models.ErrTripNotFound
	}
	return trip, nil
}
