package api

import (
	"net/http"

	"parkwise/internal/auth"
	"parkwise/internal/entities"
	"parkwise/internal/service"
)

type AuthHandler struct {
	service      *service.SessionService
	validator    *RequestValidator
	secureCookie bool
	writeError   func(http.ResponseWriter, error)
}

func NewAuthHandler(svc *service.SessionService, validator *RequestValidator, secureCookie bool, writeError func(http.ResponseWriter, error)) *AuthHandler {
	return &AuthHandler{service: svc, validator: validator, secureCookie: secureCookie, writeError: writeError}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := h.validator.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	s, err := h.service.Login(r.Context(), req.Identifier, req.Password, req.Language)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.startSession(w, s, http.StatusOK)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := h.validator.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	s, err := h.service.Register(r.Context(), req.Name, req.Phone, req.Password, req.Language)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.startSession(w, s, http.StatusCreated)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	s, _ := auth.FromContext(r.Context())
	h.service.Logout(r.Context(), s)

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	WriteNoContent(w)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	s, _ := auth.FromContext(r.Context())
	vehicles := s.Vehicles()
	if vehicles == nil {
		vehicles = []entities.Vehicle{}
	}
	WriteSuccess(w, MeResponse{
		User:      s.User(),
		Vehicles:  vehicles,
		Language:  s.Language(),
		ExpiresAt: s.ExpiresAt(),
	})
}

func (h *AuthHandler) startSession(w http.ResponseWriter, s *auth.Session, status int) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    s.ID(),
		Path:     "/",
		Expires:  s.ExpiresAt(),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	WriteJSON(w, status, SessionResponse{
		SessionID: s.ID(),
		ExpiresAt: s.ExpiresAt(),
		Language:  s.Language(),
		User:      s.User(),
	})
}
