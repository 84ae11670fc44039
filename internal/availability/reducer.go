// Package availability keeps a live, per-lot view of slot occupancy.
package availability

import (
	"sort"

	"parkwise/internal/entities"
	"parkwise/internal/push"
	"parkwise/internal/utils"
)

// StatusCounts aggregates a slot list by status.
type StatusCounts struct {
	Available   int `json:"available"`
	Occupied    int `json:"occupied"`
	Reserved    int `json:"reserved"`
	Maintenance int `json:"maintenance"`
	Total       int `json:"total"`
}

// Apply merges one slot event into slots. Only the status of the slot with the matching id
// changes; an unknown id leaves the list untouched. The input slice is never modified.
func Apply(slots []entities.Slot, ev push.SlotChanged) ([]entities.Slot, bool) {
	for i := range slots {
		if slots[i].ID != ev.SlotID {
			continue
		}
		if slots[i].Status == ev.Status {
			return slots, false
		}
		next := make([]entities.Slot, len(slots))
		copy(next, slots)
		next[i].Status = ev.Status
		return next, true
	}
	return slots, false
}

// Counts derives status totals from slots.
func Counts(slots []entities.Slot) StatusCounts {
	c := StatusCounts{Total: len(slots)}
	for _, s := range slots {
		switch s.Status {
		case entities.SlotAvailable:
			c.Available++
		case entities.SlotOccupied:
			c.Occupied++
		case entities.SlotReserved:
			c.Reserved++
		case entities.SlotMaintenance:
			c.Maintenance++
		}
	}
	return c
}

// CanSelect reports whether slot may be picked by a user driving a vehicle of category hint.
// An empty hint accepts any category.
func CanSelect(slot entities.Slot, hint string) bool {
	if slot.Status != entities.SlotAvailable {
		return false
	}
	return hint == "" || utils.AcceptsVehicle(slot.VehicleType, hint)
}

// Sorted returns a copy of slots in natural identifier order.
func Sorted(slots []entities.Slot) []entities.Slot {
	out := make([]entities.Slot, len(slots))
	copy(out, slots)
	sort.SliceStable(out, func(i, j int) bool {
		return utils.CompareIdentifiers(out[i].Identifier, out[j].Identifier) < 0
	})
	return out
}
