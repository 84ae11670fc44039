package entities

// Slot statuses as pushed by the backend.
const (
	SlotAvailable   = "available"
	SlotOccupied    = "occupied"
	SlotReserved    = "reserved"
	SlotMaintenance = "maintenance"
)

type Slot struct {
	ID           string `json:"_id"`
	Identifier   string `json:"identifier"`
	VehicleType  string `json:"vehicleType"`
	Status       string `json:"status"`
	ParkingLotID string `json:"parkingLotId,omitempty"`
}

type PricingTier struct {
	BasePricePerHour int64 `json:"basePricePerHour"`
}

type Lot struct {
	ID           string                 `json:"_id"`
	Name         string                 `json:"name"`
	Address      string                 `json:"address"`
	PricingTiers map[string]PricingTier `json:"pricingTiers"`
	Slots        []Slot                 `json:"slots"`
	Amenities    []string               `json:"amenities,omitempty"`
	Rating       float64                `json:"rating,omitempty"`
	NumReviews   int                    `json:"numReviews,omitempty"`
}

// Tier returns the pricing tier for a vehicle type and whether the lot defines one.
func (l *Lot) Tier(vehicleType string) (PricingTier, bool) {
	if l == nil || l.PricingTiers == nil {
		return PricingTier{}, false
	}
	tier, ok := l.PricingTiers[vehicleType]
	return tier, ok
}

type LotSearch struct {
	Keyword   string   `json:"keyword,omitempty"`
	MaxPrice  int64    `json:"maxPrice,omitempty"`
	MinRating float64  `json:"minRating,omitempty"`
	Lat       *float64 `json:"lat,omitempty"`
	Lng       *float64 `json:"lng,omitempty"`
	Radius    float64  `json:"radius,omitempty"`
	Amenities []string `json:"amenities,omitempty"`
}
