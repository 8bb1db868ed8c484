package common

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

// GenericEchoValidator validates bound request structs with `validate` tags.
type GenericEchoValidator struct {
	Validator *validator.Validate
}

func (gv *GenericEchoValidator) Validate(i interface{}) error {
	if gv.Validator == nil {
		gv.Validator = validator.New()
	}
	if err := gv.Validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("received invalid request body: %s", describe(err)))
	}
	return nil
}

// describe lists the failed fields and rules, e.g. "Email (required), Password (min)".
func describe(err error) string {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err.Error()
	}
	parts := make([]string, 0, len(fieldErrors))
	for _, fieldError := range fieldErrors {
		parts = append(parts, fmt.Sprintf("%s (%s)", fieldError.Field(), fieldError.Tag()))
	}
	return strings.Join(parts, ", ")
}
