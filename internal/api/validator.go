package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "parkwise/internal/errors"
	"parkwise/internal/logger"
	"parkwise/internal/utils"
)

const maxBodyBytes = 1 << 20

// RequestValidator checks decoded request bodies against their validate tags.
type RequestValidator struct {
	validate *validator.Validate
}

func NewRequestValidator(log *logger.Logger) *RequestValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	if err := v.RegisterValidation("vehicle_type", validateVehicleType); err != nil {
		log.Fatal("Failed to register 'vehicle_type' validator", "error", err)
	}

	return &RequestValidator{validate: v}
}

func validateVehicleType(fl validator.FieldLevel) bool {
	return utils.IsVehicleType(fl.Field().String())
}

func (v *RequestValidator) Validate(req any) error {
	if err := v.validate.Struct(req); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			details := make(map[string]any, len(validationErrs))
			for _, fe := range validationErrs {
				details[fe.Field()] = fieldMessage(fe)
			}
			return apperrors.ErrValidation("Invalid request", details)
		}
		return err
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "vehicle_type":
		return "must be one of: " + strings.Join(utils.VehicleTypes(), ", ")
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed on '%s'", fe.Tag())
	}
}

// decode reads a JSON body into dst and validates it.
func (v *RequestValidator) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.ErrBadRequest("Request body is required")
		}
		return apperrors.ErrBadRequest("Invalid request body")
	}
	return v.Validate(dst)
}
