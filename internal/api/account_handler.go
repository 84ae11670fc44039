package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"parkwise/internal/auth"
	"parkwise/internal/entities"
	"parkwise/internal/service"
)

type BookingHandler struct {
	bookings   *service.BookingService
	writeError func(http.ResponseWriter, error)
}

func NewBookingHandler(bookings *service.BookingService, writeError func(http.ResponseWriter, error)) *BookingHandler {
	return &BookingHandler{bookings: bookings, writeError: writeError}
}

func (h *BookingHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	s, _ := auth.FromContext(r.Context())
	items, err := h.bookings.ListMine(r.Context(), s)
	if err != nil {
		h.writeError(w, err)
		return
	}
	WriteSuccess(w, items)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	s, _ := auth.FromContext(r.Context())
	b, err := h.bookings.Cancel(r.Context(), s, mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	WriteSuccess(w, b)
}

type VehicleHandler struct {
	sessions   *service.SessionService
	validator  *RequestValidator
	writeError func(http.ResponseWriter, error)
}

func NewVehicleHandler(sessions *service.SessionService, validator *RequestValidator, writeError func(http.ResponseWriter, error)) *VehicleHandler {
	return &VehicleHandler{sessions: sessions, validator: validator, writeError: writeError}
}

func (h *VehicleHandler) List(w http.ResponseWriter, r *http.Request) {
	s, _ := auth.FromContext(r.Context())
	h.respond(w, http.StatusOK)(h.sessions.Vehicles(r.Context(), s))
}

func (h *VehicleHandler) Create(w http.ResponseWriter, r *http.Request) {
	s, _ := auth.FromContext(r.Context())
	var req VehicleRequest
	if err := h.validator.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, http.StatusCreated)(h.sessions.AddVehicle(r.Context(), s, req.vehicle()))
}

func (h *VehicleHandler) Update(w http.ResponseWriter, r *http.Request) {
	s, _ := auth.FromContext(r.Context())
	var req VehicleRequest
	if err := h.validator.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, http.StatusOK)(h.sessions.UpdateVehicle(r.Context(), s, mux.Vars(r)["id"], req.vehicle()))
}

func (h *VehicleHandler) SetDefault(w http.ResponseWriter, r *http.Request) {
	s, _ := auth.FromContext(r.Context())
	h.respond(w, http.StatusOK)(h.sessions.SetDefaultVehicle(r.Context(), s, mux.Vars(r)["id"]))
}

func (h *VehicleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	s, _ := auth.FromContext(r.Context())
	h.respond(w, http.StatusOK)(h.sessions.DeleteVehicle(r.Context(), s, mux.Vars(r)["id"]))
}

func (h *VehicleHandler) respond(w http.ResponseWriter, status int) func([]entities.Vehicle, error) {
	return func(list []entities.Vehicle, err error) {
		if err != nil {
			h.writeError(w, err)
			return
		}
		if list == nil {
			list = []entities.Vehicle{}
		}
		WriteJSON(w, status, VehiclesResponse{Vehicles: list})
	}
}
