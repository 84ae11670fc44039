package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"parkwise/internal/auth"
	"parkwise/internal/logger"
	"parkwise/internal/service"
)

// HealthReporter exposes the live state shown by /api/health.
type HealthReporter interface {
	Connected() bool
}

type RouterDeps struct {
	Sessions       *auth.Manager
	SessionService *service.SessionService
	Pages          *service.PageService
	Bookings       *service.BookingService
	Push           HealthReporter
	AllowedOrigins []string
	SecureCookie   bool
	Log            *logger.Logger
}

func NewRouter(d RouterDeps) *mux.Router {
	writeError := errorWriter(d.Log)
	validator := NewRequestValidator(d.Log)

	authHandler := NewAuthHandler(d.SessionService, validator, d.SecureCookie, writeError)
	pageHandler := NewPageHandler(d.Pages, validator, NewLiveStreamer(d.AllowedOrigins, d.Log), writeError)
	bookingHandler := NewBookingHandler(d.Bookings, writeError)
	vehicleHandler := NewVehicleHandler(d.SessionService, validator, writeError)

	r := mux.NewRouter()
	r.Use(Recovery(d.Log), RequestLogging(d.Log))

	// Public endpoints
	r.HandleFunc("/api/health", health(d)).Methods("GET")
	r.HandleFunc("/api/auth/login", authHandler.Login).Methods("POST")
	r.HandleFunc("/api/auth/register", authHandler.Register).Methods("POST")

	// Session endpoints
	api := r.PathPrefix("/api").Subrouter()
	api.Use(auth.Middleware(d.Sessions, writeError))
	api.HandleFunc("/auth/logout", authHandler.Logout).Methods("POST")
	api.HandleFunc("/me", authHandler.Me).Methods("GET")

	api.HandleFunc("/lots", pageHandler.SearchLots).Methods("GET")
	api.HandleFunc("/pages", pageHandler.Open).Methods("POST")
	api.HandleFunc("/pages/{id}", pageHandler.Get).Methods("GET")
	api.HandleFunc("/pages/{id}", pageHandler.Close).Methods("DELETE")
	api.HandleFunc("/pages/{id}/live", pageHandler.Live).Methods("GET")
	api.HandleFunc("/pages/{id}/select", pageHandler.Select).Methods("POST")
	api.HandleFunc("/pages/{id}/draft", pageHandler.UpdateDraft).Methods("PATCH")
	api.HandleFunc("/pages/{id}/submit", pageHandler.Submit).Methods("POST")

	api.HandleFunc("/bookings", bookingHandler.ListMine).Methods("GET")
	api.HandleFunc("/bookings/{id}/cancel", bookingHandler.Cancel).Methods("PUT")

	api.HandleFunc("/vehicles", vehicleHandler.List).Methods("GET")
	api.HandleFunc("/vehicles", vehicleHandler.Create).Methods("POST")
	api.HandleFunc("/vehicles/{id}", vehicleHandler.Update).Methods("PUT")
	api.HandleFunc("/vehicles/{id}", vehicleHandler.Delete).Methods("DELETE")
	api.HandleFunc("/vehicles/{id}/default", vehicleHandler.SetDefault).Methods("PUT")

	return r
}

func health(d RouterDeps) http.HandlerFunc {
	started := time.Now()
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"status":   "ok",
			"uptime":   time.Since(started).Round(time.Second).String(),
			"pages":    d.Pages.Count(),
			"sessions": d.Sessions.Live(),
		}
		if d.Push != nil {
			resp["pushConnected"] = d.Push.Connected()
		}
		WriteSuccess(w, resp)
	}
}
