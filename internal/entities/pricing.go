package entities

// PriceEstimate is the backend's dynamic price for a time window.
type PriceEstimate struct {
	EstimatedPrice int64    `json:"estimatedPrice"`
	BasePrice      int64    `json:"basePrice"`
	Factors        []string `json:"factors"`
}

// PriceQuery identifies one estimate request.
type PriceQuery struct {
	LotID       string
	StartTime   string
	EndTime     string
	VehicleType string
}
