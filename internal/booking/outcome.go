package booking

import (
	"net/http"
	"strings"
	"time"

	"parkwise/internal/entities"
	apperrors "parkwise/internal/errors"
)

// FailureReason classifies a rejected submission.
type FailureReason string

const (
	FailureSlotTaken       FailureReason = "slot_taken"
	FailureVehicleRejected FailureReason = "vehicle_rejected"
	FailureGeneric         FailureReason = "booking_failed"
)

// Backend message fragments that identify domain failures on a 400.
const (
	slotTakenMarker       = "đã bị chiếm"
	vehicleRejectedMarker = "chỉ dành cho"
)

// Failure is a submission failure with its user-facing message.
type Failure struct {
	Reason         FailureReason `json:"reason"`
	Status         int           `json:"status,omitempty"`
	BackendMessage string        `json:"backendMessage,omitempty"`
	Message        string        `json:"message"`
}

// Classify maps a booking-creation error to a failure reason and localized message.
func Classify(err error, slotIdentifier, lang string) Failure {
	f := Failure{Reason: FailureGeneric}

	if status := apperrors.StatusOf(err); status != 0 {
		f.Status = status
		f.BackendMessage = apperrors.As(err).Message
	}

	switch {
	case f.Status == http.StatusConflict,
		f.Status == http.StatusBadRequest && strings.Contains(f.BackendMessage, slotTakenMarker):
		f.Reason = FailureSlotTaken
		f.Message = Translate(lang, string(FailureSlotTaken), slotIdentifier)
	case f.Status == http.StatusBadRequest && strings.Contains(f.BackendMessage, vehicleRejectedMarker):
		f.Reason = FailureVehicleRejected
		f.Message = Translate(lang, string(FailureVehicleRejected), f.BackendMessage)
	case f.BackendMessage != "":
		f.Message = f.BackendMessage
	default:
		f.Message = Translate(lang, string(FailureGeneric))
	}
	return f
}

// Outcome is the result handed back to the page after Submit.
type Outcome struct {
	Succeeded     bool              `json:"succeeded"`
	BookingID     string            `json:"bookingId,omitempty"`
	Booking       *entities.Booking `json:"booking,omitempty"`
	Message       string            `json:"message"`
	Redirect      string            `json:"redirect,omitempty"`
	RedirectAfter time.Duration     `json:"-"`
	RedirectAt    *time.Time        `json:"redirectAt,omitempty"`
	Failure       *Failure          `json:"failure,omitempty"`
}
