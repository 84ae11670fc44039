package entities

import (
	"encoding/json"
	"time"
)

// Booking statuses returned by the backend.
const (
	BookingPending   = "pending"
	BookingConfirmed = "confirmed"
	BookingActive    = "active"
	BookingCompleted = "completed"
	BookingCancelled = "cancelled"
)

// BookingRequest is the POST /bookings payload. Times are RFC 3339 UTC strings.
type BookingRequest struct {
	SlotID        string  `json:"slotId"`
	ParkingLotID  string  `json:"parkingLotId"`
	StartTime     string  `json:"startTime"`
	EndTime       string  `json:"endTime"`
	VehicleNumber *string `json:"vehicleNumber"`
	VehicleType   string  `json:"vehicleType"`
	Notes         *string `json:"notes"`
}

type BookingLot struct {
	ID      string `json:"_id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

type BookingSlot struct {
	ID         string `json:"_id"`
	Identifier string `json:"identifier"`
}

// UnmarshalJSON accepts either a populated lot or its bare id.
func (l *BookingLot) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*l = BookingLot{ID: id}
		return nil
	}
	type plain BookingLot
	return json.Unmarshal(data, (*plain)(l))
}

// UnmarshalJSON accepts either a populated slot or its bare id.
func (s *BookingSlot) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*s = BookingSlot{ID: id}
		return nil
	}
	type plain BookingSlot
	return json.Unmarshal(data, (*plain)(s))
}

type Booking struct {
	ID            string      `json:"_id"`
	Status        string      `json:"status"`
	ParkingLot    BookingLot  `json:"parkingLot"`
	Slot          BookingSlot `json:"slot"`
	StartTime     time.Time   `json:"startTime"`
	EndTime       time.Time   `json:"endTime"`
	VehicleNumber string      `json:"vehicleNumber,omitempty"`
	VehicleType   string      `json:"vehicleType,omitempty"`
	TotalPrice    int64       `json:"totalPrice,omitempty"`
	HasReview     bool        `json:"hasReview,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// CanCancel reports whether the booking may still be cancelled at now.
// Only pending or confirmed bookings starting more than an hour later qualify.
func (b Booking) CanCancel(now time.Time) bool {
	if b.Status != BookingPending && b.Status != BookingConfirmed {
		return false
	}
	return b.StartTime.After(now.Add(time.Hour))
}

// CanReview reports whether the booking is eligible for a review.
func (b Booking) CanReview() bool {
	return b.Status == BookingCompleted && !b.HasReview
}

// BookingEmailData feeds the confirmation email template.
type BookingEmailData struct {
	UserName           string
	BookingID          string
	LotName            string
	SlotIdentifier     string
	VehiclePlate       string
	StartTimeFormatted string
	EndTimeFormatted   string
	TotalFormatted     string
	CurrentYear        int
	Language           string
}
