package repository

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"parkwise/internal/entities"
)

type BookingRepository interface {
	Create(ctx context.Context, token string, req entities.BookingRequest) (*entities.Booking, error)
	ListMine(ctx context.Context, token string) ([]entities.Booking, error)
	Cancel(ctx context.Context, token, bookingID string) (*entities.Booking, error)
}

type bookingRepository struct {
	client *BackendClient
}

func NewBookingRepository(client *BackendClient) BookingRepository {
	return &bookingRepository{client: client}
}

func (r *bookingRepository) Create(ctx context.Context, token string, req entities.BookingRequest) (*entities.Booking, error) {
	var created entities.Booking
	if err := r.client.Do(ctx, http.MethodPost, "/bookings", token, req, &created); err != nil {
		return nil, fmt.Errorf("error creating booking: %w", err)
	}
	return &created, nil
}

// ListMine returns the user's bookings, newest first.
func (r *bookingRepository) ListMine(ctx context.Context, token string) ([]entities.Booking, error) {
	var bookings []entities.Booking
	if err := r.client.Do(ctx, http.MethodGet, "/bookings/mybookings", token, nil, &bookings); err != nil {
		return nil, fmt.Errorf("error listing bookings: %w", err)
	}
	sort.SliceStable(bookings, func(i, j int) bool {
		return bookings[i].CreatedAt.After(bookings[j].CreatedAt)
	})
	return bookings, nil
}

func (r *bookingRepository) Cancel(ctx context.Context, token, bookingID string) (*entities.Booking, error) {
	var cancelled entities.Booking
	path := "/bookings/" + url.PathEscape(bookingID) + "/cancel"
	if err := r.client.Do(ctx, http.MethodPut, path, token, nil, &cancelled); err != nil {
		return nil, fmt.Errorf("error cancelling booking %s: %w", bookingID, err)
	}
	return &cancelled, nil
}
