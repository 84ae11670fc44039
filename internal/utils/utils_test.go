package utils

import (
	"sort"
	"testing"
	"time"
)

func TestAcceptsVehicle(t *testing.T) {
	tests := []struct {
		name     string
		slotType string
		vehicle  string
		want     bool
	}{
		{"wildcard accepts anything", VehicleAny, VehicleMotorbike, true},
		{"empty slot type is not a wildcard", "", VehicleSUV, false},
		{"empty slot type with empty vehicle", "", "", false},
		{"same type", VehicleMotorbike, VehicleMotorbike, true},
		{"mismatch", VehicleMotorbike, VehicleCar4Seats, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AcceptsVehicle(tt.slotType, tt.vehicle); got != tt.want {
				t.Errorf("AcceptsVehicle(%q, %q) = %v, want %v", tt.slotType, tt.vehicle, got, tt.want)
			}
		})
	}
}

func TestIsVehicleType(t *testing.T) {
	if !IsVehicleType(VehicleEVCar) {
		t.Errorf("ev_car should be a vehicle type")
	}
	if IsVehicleType(VehicleAny) {
		t.Errorf("wildcard is not a concrete vehicle type")
	}
	if HumanizeVehicleType(VehicleCar4Seats) != "car 4 seats" {
		t.Errorf("unexpected humanized name %q", HumanizeVehicleType(VehicleCar4Seats))
	}
	if DefaultVehicleTypeForSlot(VehicleAny) != VehicleCar4Seats {
		t.Errorf("wildcard slot should default to car_4_seats")
	}
}

func TestCompareIdentifiers_NumericAware(t *testing.T) {
	ids := []string{"A-10", "B-1", "A-2", "A-1", "a-3", "A-02"}
	sort.SliceStable(ids, func(i, j int) bool { return CompareIdentifiers(ids[i], ids[j]) < 0 })

	want := []string{"A-1", "A-2", "A-02", "a-3", "A-10", "B-1"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("sorted = %v, want %v", ids, want)
		}
	}
}

func TestParseInstant(t *testing.T) {
	loc := time.FixedZone("ICT", 7*60*60)

	local, err := ParseInstant("2025-01-01T10:00", loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := FormatISO(local); got != "2025-01-01T03:00:00.000Z" {
		t.Errorf("FormatISO(local) = %q", got)
	}

	abs, err := ParseInstant("2025-01-01T10:00:00Z", loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := FormatISO(abs); got != "2025-01-01T10:00:00.000Z" {
		t.Errorf("FormatISO(abs) = %q", got)
	}

	if _, err := ParseInstant("tomorrow", loc); err == nil {
		t.Errorf("expected an error for garbage input")
	}
	if _, err := ParseInstant("  ", loc); err == nil {
		t.Errorf("expected an error for empty input")
	}
}

func TestFormatVND(t *testing.T) {
	tests := map[int64]string{
		0:       "0 ₫",
		5000:    "5.000 ₫",
		65000:   "65.000 ₫",
		1234567: "1.234.567 ₫",
		-20000:  "-20.000 ₫",
	}
	for in, want := range tests {
		if got := FormatVND(in); got != want {
			t.Errorf("FormatVND(%d) = %q, want %q", in, got, want)
		}
	}
}
