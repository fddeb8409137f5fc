package passwordless

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
)

// FormatValidationErrorToMap flattens ozzo field errors into field: message pairs.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	var fields validation.Errors
	if !errors.As(err, &fields) {
		if err != nil {
			out["form"] = err.Error()
		}
		return out
	}

	for field, fieldErr := range fields {
		if fieldErr != nil {
			out[field] = fieldErr.Error()
		}
	}
	return out
}

// RequiredWithout fails when both the value and other are empty.
func RequiredWithout(other string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s == "" && other == "" {
			return errors.New("email or mobile is required")
		}
		return nil
	}
}
