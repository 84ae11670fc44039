package booking

import "time"

// DurationHours is the billable duration: whole hours, rounded up. It is 0 when end is not after start.
func DurationHours(start, end time.Time) int64 {
	if !end.After(start) {
		return 0
	}
	d := end.Sub(start)
	hours := int64(d / time.Hour)
	if d%time.Hour != 0 {
		hours++
	}
	return hours
}

// Price is the client-side estimate shown before submission. The backend recomputes it at booking time.
type Price struct {
	Hours      int64    `json:"hours"`
	BaseFee    int64    `json:"baseFee"`
	Dynamic    *int64   `json:"dynamicPrice,omitempty"`
	Factors    []string `json:"factors,omitempty"`
	ServiceFee int64    `json:"serviceFee"`
	Total      int64    `json:"total"`
}

// Quote computes the displayed price. The dynamic estimate replaces the base fee when present.
func Quote(hours, basePerHour int64, dynamic *int64, serviceFee int64) Price {
	p := Price{
		Hours:      hours,
		BaseFee:    hours * basePerHour,
		ServiceFee: serviceFee,
	}
	parking := p.BaseFee
	if dynamic != nil {
		v := *dynamic
		p.Dynamic = &v
		parking = v
	}
	p.Total = parking + serviceFee
	return p
}
