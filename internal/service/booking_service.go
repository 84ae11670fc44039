package service

import (
	"context"
	"time"

	"parkwise/internal/auth"
	"parkwise/internal/entities"
	apperrors "parkwise/internal/errors"
	"parkwise/internal/logger"
	"parkwise/internal/repository"
)

// BookingService lists and cancels the user's existing bookings.
type BookingService struct {
	bookings repository.BookingRepository
	log      *logger.Logger
	now      func() time.Time
}

func NewBookingService(bookings repository.BookingRepository, log *logger.Logger) *BookingService {
	return &BookingService{bookings: bookings, log: log, now: time.Now}
}

// BookingItem is a booking with the actions currently open to the user.
type BookingItem struct {
	entities.Booking
	CanCancel bool `json:"canCancel"`
	CanReview bool `json:"canReview"`
}

func (s *BookingService) ListMine(ctx context.Context, session *auth.Session) ([]BookingItem, error) {
	token, err := session.Token()
	if err != nil {
		return nil, err
	}
	bookings, err := s.bookings.ListMine(ctx, token)
	if err != nil {
		return nil, err
	}

	now := s.now()
	items := make([]BookingItem, len(bookings))
	for i, b := range bookings {
		items[i] = BookingItem{Booking: b, CanCancel: b.CanCancel(now), CanReview: b.CanReview()}
	}
	return items, nil
}

// Cancel cancels one of the user's bookings. Only pending or confirmed
// bookings starting more than an hour from now qualify.
func (s *BookingService) Cancel(ctx context.Context, session *auth.Session, bookingID string) (*entities.Booking, error) {
	token, err := session.Token()
	if err != nil {
		return nil, err
	}
	bookings, err := s.bookings.ListMine(ctx, token)
	if err != nil {
		return nil, err
	}

	var target *entities.Booking
	for i := range bookings {
		if bookings[i].ID == bookingID {
			target = &bookings[i]
			break
		}
	}
	if target == nil {
		return nil, apperrors.ErrNotFound("booking not found")
	}
	if !target.CanCancel(s.now()) {
		return nil, apperrors.ErrConflict(cancelRefusal(session.Language()))
	}

	cancelled, err := s.bookings.Cancel(ctx, token, bookingID)
	if err != nil {
		return nil, err
	}
	s.log.Info("booking cancelled", "booking_id", bookingID)
	return cancelled, nil
}

func cancelRefusal(lang string) string {
	if lang == "en" {
		return "Only pending or confirmed bookings can be cancelled, at least 1 hour before the start time."
	}
	return "Chỉ có thể hủy đặt chỗ đang chờ hoặc đã xác nhận, trước giờ bắt đầu ít nhất 1 tiếng."
}
