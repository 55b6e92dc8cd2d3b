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

var validate = newValidator()

// newValidator reports fields by their query or json name so clients see
// "tf" rather than "Timeframe".
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"query", "json"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return v
}

// ReadAndValidateRequest binds req from the request, fills `default` tags
// and validates it. It returns nil or a []ValidationError ready to be sent
// with BadRequestResponse.
func ReadAndValidateRequest(c echo.Context, req interface{}) interface{} {
	if err := c.Bind(req); err != nil {
		return toValidationErrors(err)
	}
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
			out = append(out, describeFieldError(fe))
		}
		return out
	}
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg = fmt.Sprint(he.Message)
	}
	return []ValidationError{{Code: "ERR_UNKNOWN", Message: msg}}
}

// bound phrases for the comparison tags; params key is what the client sees.
var comparisons = map[string]struct{ phrase, param string }{
	"gt":  {"greater than", "value"},
	"gte": {"at least", "min"},
	"min": {"at least", "min"},
	"lt":  {"less than", "value"},
	"lte": {"at most", "max"},
	"max": {"at most", "max"},
}

func describeFieldError(fe validator.FieldError) ValidationError {
	ve := ValidationError{
		Code:  "ERR_" + strings.ToUpper(fe.Tag()),
		Field: fe.Field(),
	}
	switch tag := fe.Tag(); tag {
	case "required":
		ve.Message = fe.Field() + " is required"
	case "oneof":
		opts := strings.Fields(fe.Param())
		ve.Message = fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.Join(opts, ", "))
		ve.Params = map[string]interface{}{"options": opts}
	default:
		cmp, ok := comparisons[tag]
		if !ok {
			ve.Message = fmt.Sprintf("%s failed validation: %s", fe.Field(), tag)
			break
		}
		unit := ""
		if fe.Kind() == reflect.String && (tag == "min" || tag == "max") {
			unit = " characters"
		}
		ve.Message = fmt.Sprintf("%s must be %s %s%s", fe.Field(), cmp.phrase, fe.Param(), unit)
		ve.Params = map[string]interface{}{cmp.param: fe.Param()}
	}
	return ve
}
