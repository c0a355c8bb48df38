package common

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/jo-hoe/wallpaint/internal/paint"
)

// FieldError describes one rejected request field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationErrorResponse is the body returned for rejected requests.
type ValidationErrorResponse struct {
	Message string       `json:"message"`
	Fields  []FieldError `json:"fields"`
}

type GenericEchoValidator struct {
	Validator *validator.Validate
}

func NewGenericEchoValidator() *GenericEchoValidator {
	v := validator.New()
	v.RegisterTagNameFunc(formTagName)
	_ = v.RegisterValidation("hexcolor6", isHexColor6)
	return &GenericEchoValidator{Validator: v}
}

func (gv *GenericEchoValidator) Validate(i interface{}) error {
	if gv.Validator == nil {
		*gv = *NewGenericEchoValidator()
	}
	err := gv.Validator.Struct(i)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("received invalid request body: %v", err))
	}
	response := ValidationErrorResponse{Message: "received invalid request body"}
	for _, fieldErr := range validationErrors {
		response.Fields = append(response.Fields, FieldError{
			Field:  fieldName(fieldErr),
			Reason: reasonFor(fieldErr),
		})
	}
	return echo.NewHTTPError(http.StatusBadRequest, response)
}

// formTagName reports fields under their form or json name.
func formTagName(field reflect.StructField) string {
	for _, key := range []string{"form", "json"} {
		name, _, _ := strings.Cut(field.Tag.Get(key), ",")
		if name != "" && name != "-" {
			return name
		}
	}
	return field.Name
}

func fieldName(fe validator.FieldError) string {
	if name := fe.Field(); name != "" {
		return name
	}
	return fe.StructField()
}

func reasonFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "hexcolor6":
		return "must be a #rrggbb colour"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

func isHexColor6(fl validator.FieldLevel) bool {
	_, err := paint.ParseHexColor(fl.Field().String())
	return err == nil
}
