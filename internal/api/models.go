package api

import (
	"time"

	"parkwise/internal/booking"
	"parkwise/internal/entities"
	"parkwise/internal/service"
)

// Auth
type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required,min=6"`
	Language   string `json:"language" validate:"omitempty,oneof=vi en"`
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Phone    string `json:"phone" validate:"required,min=8,max=15"`
	Password string `json:"password" validate:"required,min=6"`
	Language string `json:"language" validate:"omitempty,oneof=vi en"`
}

type SessionResponse struct {
	SessionID string        `json:"sessionId"`
	ExpiresAt time.Time     `json:"expiresAt"`
	Language  string        `json:"language"`
	User      entities.User `json:"user"`
}

type MeResponse struct {
	User      entities.User      `json:"user"`
	Vehicles  []entities.Vehicle `json:"vehicles"`
	Language  string             `json:"language"`
	ExpiresAt time.Time          `json:"expiresAt"`
}

// Pages
type OpenPageRequest struct {
	LotID           string `json:"lotId" validate:"required"`
	VehicleTypeHint string `json:"vehicleTypeHint" validate:"omitempty,vehicle_type"`
}

type SelectSlotRequest struct {
	SlotID string `json:"slotId" validate:"required"`
}

type SubmitResponse struct {
	Outcome booking.Outcome      `json:"outcome"`
	Page    service.PageSnapshot `json:"page"`
}

// Account
type VehicleRequest struct {
	NumberPlate string `json:"numberPlate" validate:"required,min=4,max=15"`
	Type        string `json:"type" validate:"required,vehicle_type"`
	Nickname    string `json:"nickname" validate:"max=50"`
	IsDefault   bool   `json:"isDefault"`
}

func (r VehicleRequest) vehicle() entities.Vehicle {
	return entities.Vehicle{
		NumberPlate: r.NumberPlate,
		Type:        r.Type,
		Nickname:    r.Nickname,
		IsDefault:   r.IsDefault,
	}
}

type VehiclesResponse struct {
	Vehicles []entities.Vehicle `json:"vehicles"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
