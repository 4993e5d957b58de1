package core

import (
	"errors"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	yearPattern      = regexp.MustCompile(`^\d{4}$`)
	yearMonthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)
	periodPattern    = regexp.MustCompile(`^\d{4}(-(0[1-9]|1[0-2]))?$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// "2024"
	_ = v.RegisterValidation("year", func(fl validator.FieldLevel) bool {
		return yearPattern.MatchString(fl.Field().String())
	})
	// "2024-12"
	_ = v.RegisterValidation("yearmonth", func(fl validator.FieldLevel) bool {
		return yearMonthPattern.MatchString(fl.Field().String())
	})
	// "2024" or "2024-12"
	_ = v.RegisterValidation("period", func(fl validator.FieldLevel) bool {
		return periodPattern.MatchString(fl.Field().String())
	})
	return v
}

type areaRequest struct {
	Area string `validate:"required"`
}

type yearRequest struct {
	Area string `validate:"required"`
	Year string `validate:"required,year"`
}

type monthRequest struct {
	Area  string `validate:"required"`
	Month string `validate:"required,yearmonth"`
}

type pointsRequest struct {
	Area      string `validate:"required"`
	Month     string `validate:"required,period"`
	CrimeType string `validate:"required"`
}

var fieldLabels = map[string]string{
	"Year":      "Year",
	"Month":     "Month",
	"CrimeType": "Crime type",
}

// validateRequest checks req and converts the first failure into a
// ValidationError: a missing area is a 404, everything else a 400.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return badRequest("Invalid request")
	}

	fe := fieldErrs[0]
	if fe.Field() == "Area" {
		return areaNotFound()
	}

	label, ok := fieldLabels[fe.Field()]
	if !ok {
		label = fe.Field()
	}
	if fe.Tag() == "required" {
		return badRequest(label + " is required")
	}
	return badRequest("Invalid " + lowerFirst(label))
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'A' && b[0] <= 'Z' {
		b[0] += 'a' - 'A'
	}
	return string(b)
}
