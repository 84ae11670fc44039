// Package booking turns a selected slot plus user input into a validated booking request.
package booking

import (
	"time"

	"parkwise/internal/entities"
	"parkwise/internal/utils"
)

// IssueCode names a validation finding. Codes double as message keys.
type IssueCode string

const (
	IssueTimeRequired    IssueCode = "time_required"
	IssueEndBeforeStart  IssueCode = "end_before_start"
	IssueMinDuration     IssueCode = "min_duration"
	IssueStartInPast     IssueCode = "start_in_past"
	IssueVehicleRequired IssueCode = "vehicle_required"
	IssueVehicleMismatch IssueCode = "vehicle_mismatch"
	IssueNoPricingTier   IssueCode = "no_pricing_tier"
)

// Issue fields
const (
	FieldTime    = "time"
	FieldVehicle = "vehicle"
)

// Rules are the configurable validation thresholds.
type Rules struct {
	MinDuration time.Duration
	PastGrace   time.Duration
}

// DefaultRules returns a 30 minute minimum with a 5 minute grace for past start times.
func DefaultRules() Rules {
	return Rules{MinDuration: 30 * time.Minute, PastGrace: 5 * time.Minute}
}

// Input is everything Validate looks at.
type Input struct {
	Start           *time.Time
	End             *time.Time
	VehicleType     string
	SlotIdentifier  string
	SlotVehicleType string
	Tiers           map[string]entities.PricingTier
}

// Issue is one validation finding. Blocking issues prevent submission; the rest are warnings.
type Issue struct {
	Field    string    `json:"field"`
	Code     IssueCode `json:"code"`
	Blocking bool      `json:"blocking"`
	Args     []any     `json:"-"`
}

// Result is the outcome of Validate.
type Result struct {
	Issues        []Issue
	DurationHours int64
}

// Blocking reports whether any issue prevents submission.
func (r Result) Blocking() bool {
	for _, is := range r.Issues {
		if is.Blocking {
			return true
		}
	}
	return false
}

// Has reports whether an issue with code is present.
func (r Result) Has(code IssueCode) bool {
	for _, is := range r.Issues {
		if is.Code == code {
			return true
		}
	}
	return false
}

// Validate applies the booking rules to in. It never fails; findings are returned as issues.
func Validate(in Input, now time.Time, rules Rules) Result {
	var res Result

	switch {
	case in.Start == nil || in.End == nil:
		res.Issues = append(res.Issues, Issue{Field: FieldTime, Code: IssueTimeRequired, Blocking: true})
	case !in.End.After(*in.Start):
		res.Issues = append(res.Issues, Issue{Field: FieldTime, Code: IssueEndBeforeStart, Blocking: true})
	case in.End.Sub(*in.Start) < rules.MinDuration:
		res.Issues = append(res.Issues, Issue{
			Field:    FieldTime,
			Code:     IssueMinDuration,
			Blocking: true,
			Args:     []any{int(rules.MinDuration / time.Minute)},
		})
	default:
		res.DurationHours = DurationHours(*in.Start, *in.End)
	}

	if in.Start != nil && in.End != nil && in.Start.Before(now.Add(-rules.PastGrace)) {
		res.Issues = append(res.Issues, Issue{Field: FieldTime, Code: IssueStartInPast})
	}

	switch {
	case in.VehicleType == "":
		res.Issues = append(res.Issues, Issue{Field: FieldVehicle, Code: IssueVehicleRequired, Blocking: true})
	case !utils.AcceptsVehicle(in.SlotVehicleType, in.VehicleType):
		res.Issues = append(res.Issues, Issue{
			Field:    FieldVehicle,
			Code:     IssueVehicleMismatch,
			Blocking: true,
			Args: []any{
				in.SlotIdentifier,
				utils.HumanizeVehicleType(in.SlotVehicleType),
				utils.HumanizeVehicleType(in.VehicleType),
			},
		})
	default:
		if _, ok := in.Tiers[in.VehicleType]; !ok {
			res.Issues = append(res.Issues, Issue{
				Field:    FieldVehicle,
				Code:     IssueNoPricingTier,
				Blocking: true,
				Args:     []any{utils.HumanizeVehicleType(in.VehicleType)},
			})
		}
	}

	return res
}
