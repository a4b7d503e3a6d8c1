package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator wraps go-playground/validator for request payloads.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

// Struct validates v and returns an error naming the first failing field.
func (v *Validator) Struct(val any) error {
	err := v.validate.Struct(val)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := strings.ToLower(fe.Field())
		if fe.Tag() == "required" {
			return fmt.Errorf("%s is required", field)
		}
		return fmt.Errorf("%s failed on %q validation", field, fe.Tag())
	}
	return err
}
