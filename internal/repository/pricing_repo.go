package repository

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"parkwise/internal/entities"
)

type PricingRepository interface {
	Estimate(ctx context.Context, token string, q entities.PriceQuery) (*entities.PriceEstimate, error)
}

type pricingRepository struct {
	client *BackendClient
}

func NewPricingRepository(client *BackendClient) PricingRepository {
	return &pricingRepository{client: client}
}

func (r *pricingRepository) Estimate(ctx context.Context, token string, q entities.PriceQuery) (*entities.PriceEstimate, error) {
	params := url.Values{}
	params.Set("parkingLotId", q.LotID)
	params.Set("startTime", q.StartTime)
	params.Set("endTime", q.EndTime)
	params.Set("vehicleType", q.VehicleType)

	var est entities.PriceEstimate
	if err := r.client.Do(ctx, http.MethodGet, "/pricing/estimate?"+params.Encode(), token, nil, &est); err != nil {
		return nil, fmt.Errorf("error estimating price: %w", err)
	}
	return &est, nil
}
