package repository

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"parkwise/internal/entities"
)

type LotRepository interface {
	GetLot(ctx context.Context, token, lotID string) (*entities.Lot, error)
	SearchLots(ctx context.Context, token string, q entities.LotSearch) ([]entities.Lot, error)
}

type lotRepository struct {
	client *BackendClient
}

func NewLotRepository(client *BackendClient) LotRepository {
	return &lotRepository{client: client}
}

func (r *lotRepository) GetLot(ctx context.Context, token, lotID string) (*entities.Lot, error) {
	var lot entities.Lot
	path := "/parking-lots/" + url.PathEscape(lotID)
	if err := r.client.Do(ctx, http.MethodGet, path, token, nil, &lot); err != nil {
		return nil, fmt.Errorf("error fetching parking lot %s: %w", lotID, err)
	}
	for i := range lot.Slots {
		if lot.Slots[i].ParkingLotID == "" {
			lot.Slots[i].ParkingLotID = lot.ID
		}
	}
	return &lot, nil
}

func (r *lotRepository) SearchLots(ctx context.Context, token string, q entities.LotSearch) ([]entities.Lot, error) {
	var lots []entities.Lot
	path := "/parking-lots"
	if params := searchParams(q); len(params) > 0 {
		path += "?" + params.Encode()
	}
	if err := r.client.Do(ctx, http.MethodGet, path, token, nil, &lots); err != nil {
		return nil, fmt.Errorf("error searching parking lots: %w", err)
	}
	return lots, nil
}

func searchParams(q entities.LotSearch) url.Values {
	params := url.Values{}
	if kw := strings.TrimSpace(q.Keyword); kw != "" {
		params.Set("keyword", kw)
	}
	if q.MaxPrice > 0 {
		params.Set("maxPrice", strconv.FormatInt(q.MaxPrice, 10))
	}
	if q.MinRating > 0 {
		params.Set("minRating", strconv.FormatFloat(q.MinRating, 'f', -1, 64))
	}
	if q.Lat != nil && q.Lng != nil {
		params.Set("lat", strconv.FormatFloat(*q.Lat, 'f', -1, 64))
		params.Set("lng", strconv.FormatFloat(*q.Lng, 'f', -1, 64))
		radius := q.Radius
		if radius <= 0 {
			radius = 10
		}
		params.Set("radius", strconv.FormatFloat(radius, 'f', -1, 64))
	}
	if len(q.Amenities) > 0 {
		params.Set("amenities", strings.Join(q.Amenities, ","))
	}
	return params
}
