package http

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	// Report wire field names (client_id) instead of Go names (ClientID).
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
}

// ReadAndValidateRequest binds path, query and body values into req, fills
// defaults for fields the caller left out, and validates the result. A nil
// return means req is ready to use.
func ReadAndValidateRequest(c echo.Context, req interface{}) []ValidationError {
	if err := c.Bind(req); err != nil {
		return toValidationErrors(err)
	}

	// Defaults go in before validation so an omitted lookback_days becomes
	// its documented value rather than a gte violation on zero.
	if err := defaults.Set(req); err != nil {
		return toValidationErrors(err)
	}

	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return toValidationErrors(err)
	}

	return nil
}

func toValidationErrors(err error) []ValidationError {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		out := make([]ValidationError, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msg, params := describe(fe)
			out = append(out, ValidationError{
				Code:    "ERR_" + strings.ToUpper(fe.Tag()),
				Field:   fe.Field(),
				Message: msg,
				Params:  params,
			})
		}
		return out
	}

	// Bind failures surface as echo errors with a human-readable message.
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return []ValidationError{{
			Code:    "ERR_UNKNOWN",
			Message: fmt.Sprintf("%v", he.Message),
		}}
	}

	return []ValidationError{{
		Code:    "ERR_UNKNOWN",
		Message: err.Error(),
	}}
}

// describe renders one field error as a message plus the bound that was
// violated, so API clients can show limits without parsing the text.
func describe(fe validator.FieldError) (string, map[string]interface{}) {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required", nil
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param()),
			map[string]interface{}{"min": fe.Param()}
	case "lte", "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param()),
			map[string]interface{}{"max": fe.Param()}
	case "oneof":
		opts := strings.Split(fe.Param(), " ")
		return fmt.Sprintf("%s must be one of: %s", field, strings.Join(opts, ", ")),
			map[string]interface{}{"options": opts}
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag()), nil
	}
}
