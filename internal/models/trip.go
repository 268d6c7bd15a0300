package models

import (
	"time"

	"github.com/google/uuid"
)

// TripStatus represents the publication status of a guided trip
type TripStatus string

const (
	TripStatusOpen   TripStatus = "open"
	TripStatusClosed TripStatus = "closed"
)

// Trip represents a capacity-bounded guided trip on a mountain.
// Trips are owned by the content-management system; this core only reads
// them and maintains the seats_reserved counter.
type Trip struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	MountainID    uuid.UUID  `json:"mountain_id" db:"mountain_id"`
	GuideID       uuid.UUID  `json:"guide_id" db:"guide_id"`
	Title         string     `json:"title" db:"title"`
	MountainName  string     `json:"mountain_name" db:"mountain_name"`
	Capacity      int        `json:"capacity" db:"capacity"`
	SeatsReserved int        `json:"seats_reserved" db:"seats_reserved"`
	// Price is in minor currency units, captured onto the Payment at booking time.
	Price     int64      `json:"price" db:"price"`
	Status    TripStatus `json:"status" db:"status"`
	StartDate time.Time  `json:"start_date" db:"start_date"`
	EndDate   time.Time  `json:"end_date" db:"end_date"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// SeatsAvailable returns the number of seats still bookable.
func (t *Trip) SeatsAvailable() int {
	available := t.Capacity - t.SeatsReserved
	if available < 0 {
		return 0
	}
	return available
}

// IsBookable reports whether new bookings may be issued against the trip.
func (t *Trip) IsBookable(now time.Time) bool {
	return t.Status == TripStatusOpen && t.StartDate.After(now)
}
