package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	// business (8 digits), local company (9 digits) or other entity (T/S/R prefix) UEN formats
	uenPattern      = regexp.MustCompile(`^(\d{8}[A-Z]|\d{9}[A-Z]|[TSR]\d{2}[A-Z]{2}\d{4}[A-Z])$`)
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
)

// ValidUEN reports whether s is a well-formed Singapore UEN
func ValidUEN(s string) bool {
	return uenPattern.MatchString(strings.ToUpper(strings.TrimSpace(s)))
}

// Register installs the custom tags on gin's validator
func Register() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
	}
	return RegisterOn(v)
}

func RegisterOn(v *validator.Validate) error {
	if err := v.RegisterValidation("uen", func(fl validator.FieldLevel) bool {
		return ValidUEN(fl.Field().String())
	}); err != nil {
		return err
	}
	return v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
		return currencyPattern.MatchString(fl.Field().String())
	})
}

// Details flattens binding errors into field -> rule for the error envelope
func Details(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		out[toSnake(fe.Field())] = rule
	}
	return out
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(s[i-1] >= 'A' && s[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
