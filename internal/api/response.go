package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"parkwise/internal/auth"
	"parkwise/internal/booking"
	apperrors "parkwise/internal/errors"
	"parkwise/internal/logger"
	"parkwise/internal/service"
)

type ErrorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func WriteSuccess(w http.ResponseWriter, data any) { WriteJSON(w, http.StatusOK, data) }
func WriteCreated(w http.ResponseWriter, data any) { WriteJSON(w, http.StatusCreated, data) }
func WriteNoContent(w http.ResponseWriter)         { w.WriteHeader(http.StatusNoContent) }

// WriteError renders err as an ErrorResponse with the status it maps to.
func WriteError(w http.ResponseWriter, err error) {
	httpErr := toHTTPError(err)
	WriteJSON(w, httpErr.Code, ErrorResponse{
		Error:   httpErr.Kind,
		Message: httpErr.Message,
		Details: httpErr.Details,
	})
}

// errorWriter logs server-side failures before writing them.
func errorWriter(log *logger.Logger) func(http.ResponseWriter, error) {
	return func(w http.ResponseWriter, err error) {
		if httpErr := toHTTPError(err); httpErr.Code >= http.StatusInternalServerError {
			log.Error("request failed", "status", httpErr.Code, "error", err)
		}
		WriteError(w, err)
	}
}

func toHTTPError(err error) *apperrors.HTTPError {
	var invalid *booking.InvalidError
	switch {
	case errors.As(err, &invalid):
		return apperrors.ErrValidation(invalid.Message, issueDetails(invalid.Result))

	case errors.Is(err, auth.ErrNoSession):
		return apperrors.ErrUnauthorized("Please sign in to continue")
	case errors.Is(err, auth.ErrSessionExpired):
		return apperrors.ErrUnauthorized("Your session has expired, please sign in again")
	case errors.Is(err, auth.ErrSessionInvalid), errors.Is(err, auth.ErrSessionClosed):
		return apperrors.ErrUnauthorized("Your session is no longer valid, please sign in again")

	case errors.Is(err, service.ErrPageNotFound):
		return apperrors.ErrNotFound(err.Error())
	case errors.Is(err, service.ErrPageClosed), errors.Is(err, booking.ErrClosed):
		return apperrors.NewHTTPError(http.StatusGone, err.Error())
	case errors.Is(err, service.ErrSlotNotSelectable),
		errors.Is(err, service.ErrNoSelection),
		errors.Is(err, booking.ErrNotEditable),
		errors.Is(err, booking.ErrSubmitInProgress),
		errors.Is(err, booking.ErrAlreadySubmitted),
		errors.Is(err, booking.ErrPricingInFlight):
		return apperrors.ErrConflict(err.Error())
	case errors.Is(err, booking.ErrInvalidTime), errors.Is(err, booking.ErrUnknownVehicle):
		return apperrors.ErrBadRequest(err.Error())
	}
	return apperrors.As(err)
}

func issueDetails(r booking.Result) map[string]any {
	details := make(map[string]any)
	for _, is := range r.Issues {
		if is.Blocking {
			details[is.Field] = is.Code
		}
	}
	return details
}
