package booking

import (
	"fmt"
	"strings"
)

// Supported message languages.
const (
	LangEN = "en"
	LangVI = "vi"
)

// Message keys not covered by IssueCode or FailureReason.
const (
	MsgPricingUnavailable = "pricing_unavailable"
	MsgInvalidDuration    = "invalid_duration"
	MsgBookingSucceeded   = "booking_succeeded"
)

var catalogEN = map[string]string{
	string(IssueTimeRequired):    "Please choose both a start and an end time.",
	string(IssueEndBeforeStart):  "End time must be after start time.",
	string(IssueMinDuration):     "Bookings must last at least %d minutes.",
	string(IssueStartInPast):     "The start time is already in the past.",
	string(IssueVehicleRequired): "Please choose a vehicle type.",
	string(IssueVehicleMismatch): "Slot %s only accepts %q vehicles. You selected %q.",
	string(IssueNoPricingTier):   "This lot has no price for %q vehicles yet.",

	string(FailureSlotTaken):       "Sorry, slot %s was just booked by someone else. Please choose another slot.",
	string(FailureVehicleRejected): "Vehicle type error: %s",
	string(FailureGeneric):         "Booking failed. Please try again.",

	MsgPricingUnavailable: "Could not fetch the price estimate: %s",
	MsgInvalidDuration:    "The booking time is invalid or too short.",
	MsgBookingSucceeded:   "Slot %s booked! Booking code: %s",

	"factor_weekend_surcharge":   "Weekend",
	"factor_peak_hour_surcharge": "Peak hours",
}

var catalogVI = map[string]string{
	string(IssueTimeRequired):    "Vui lòng chọn thời gian bắt đầu và kết thúc.",
	string(IssueEndBeforeStart):  "Giờ kết thúc phải sau giờ bắt đầu.",
	string(IssueMinDuration):     "Thời gian đặt tối thiểu là %d phút.",
	string(IssueStartInPast):     "Thời gian bắt đầu đã ở trong quá khứ.",
	string(IssueVehicleRequired): "Vui lòng chọn loại xe.",
	string(IssueVehicleMismatch): "Ô %s chỉ dành cho loại xe %q. Xe bạn chọn là %q.",
	string(IssueNoPricingTier):   "Bãi xe này chưa hỗ trợ giá cho loại xe %q.",

	string(FailureSlotTaken):       "Rất tiếc, ô %s vừa được người khác đặt. Vui lòng chọn ô khác.",
	string(FailureVehicleRejected): "Lỗi loại xe: %s",
	string(FailureGeneric):         "Đặt chỗ thất bại. Vui lòng thử lại.",

	MsgPricingUnavailable: "Lỗi lấy giá: %s",
	MsgInvalidDuration:    "Thời gian đặt không hợp lệ hoặc quá ngắn.",
	MsgBookingSucceeded:   "Đặt chỗ thành công cho ô %s! Mã: %s",

	"factor_weekend_surcharge":   "Cuối tuần",
	"factor_peak_hour_surcharge": "Giờ cao điểm",
}

// Translate renders the message for key in lang, falling back to Vietnamese.
// Unknown keys are returned as is.
func Translate(lang, key string, args ...any) string {
	var catalog map[string]string
	switch lang {
	case LangEN:
		catalog = catalogEN
	default:
		catalog = catalogVI
	}

	format, ok := catalog[key]
	if !ok {
		return key
	}
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

// Message renders the issue in lang.
func (is Issue) Message(lang string) string {
	return Translate(lang, string(is.Code), is.Args...)
}

const factorBasePrice = "base_price"

// FactorReason explains a dynamic price: "Weekend, Peak hours". It is empty when the estimate
// is the plain base price.
func FactorReason(lang string, factors []string) string {
	if len(factors) == 0 {
		return ""
	}
	names := make([]string, 0, len(factors))
	for _, f := range factors {
		if f == factorBasePrice {
			return ""
		}
		key := "factor_" + f
		if name := Translate(lang, key); name != key {
			names = append(names, name)
			continue
		}
		names = append(names, strings.ReplaceAll(f, "_", " "))
	}
	return strings.Join(names, ", ")
}
