package booking

import (
	"parkwise/internal/entities"
	"parkwise/internal/utils"
)

// PreselectVehicle picks the vehicle the draft starts with: the user's default vehicle, else the
// first one the slot accepts, else the first one. ok is false when the user has no vehicles, in which
// case vehicleType falls back to the slot's category.
func PreselectVehicle(vehicles []entities.Vehicle, slotType string) (vehicle entities.Vehicle, vehicleType string, ok bool) {
	if len(vehicles) == 0 {
		return entities.Vehicle{}, utils.DefaultVehicleTypeForSlot(slotType), false
	}

	for _, v := range vehicles {
		if v.IsDefault {
			return v, v.Type, true
		}
	}
	for _, v := range vehicles {
		if utils.AcceptsVehicle(slotType, v.Type) {
			return v, v.Type, true
		}
	}
	return vehicles[0], vehicles[0].Type, true
}
