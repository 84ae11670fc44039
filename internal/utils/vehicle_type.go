package utils

import "strings"

// Vehicle categories understood by the parking backend.
const (
	VehicleAny       = "any"
	VehicleMotorbike = "motorbike"
	VehicleCar4Seats = "car_4_seats"
	VehicleCar7Seats = "car_7_seats"
	VehicleSUV       = "suv"
	VehicleEVCar     = "ev_car"
)

var vehicleTypes = []string{VehicleMotorbike, VehicleCar4Seats, VehicleCar7Seats, VehicleSUV, VehicleEVCar}

// VehicleTypes returns the concrete categories (without the wildcard).
func VehicleTypes() []string {
	out := make([]string, len(vehicleTypes))
	copy(out, vehicleTypes)
	return out
}

// IsVehicleType reports whether name is a concrete vehicle category.
func IsVehicleType(name string) bool {
	for _, vt := range vehicleTypes {
		if vt == name {
			return true
		}
	}
	return false
}

// AcceptsVehicle reports whether a slot restricted to slotType accepts vehicleType.
// Only "any" is a wildcard; a slot with no category matches nothing.
func AcceptsVehicle(slotType, vehicleType string) bool {
	if slotType == VehicleAny {
		return true
	}
	return slotType != "" && slotType == vehicleType
}

// HumanizeVehicleType turns "car_4_seats" into "car 4 seats".
func HumanizeVehicleType(name string) string {
	if name == "" {
		return VehicleAny
	}
	return strings.ReplaceAll(name, "_", " ")
}

// DefaultVehicleTypeForSlot picks the category to preselect when the user has no vehicle.
func DefaultVehicleTypeForSlot(slotType string) string {
	if slotType == "" || slotType == VehicleAny {
		return VehicleCar4Seats
	}
	return slotType
}
