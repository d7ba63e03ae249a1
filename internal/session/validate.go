package session

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"bullwatch/internal/apierr"
	"bullwatch/internal/models"

	"github.com/go-playground/validator/v10"
)

func newValidator() *validator.Validate {
	v := validator.New()
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("upperdigit", func(fl validator.FieldLevel) bool {
		var upper, digit bool
		for _, r := range fl.Field().String() {
			upper = upper || unicode.IsUpper(r)
			digit = digit || unicode.IsDigit(r)
		}
		return upper && digit
	})
	return v
}

// checkCredentials rejects credentials the backend would refuse anyway.
func (s *Store) checkCredentials(op string, c models.Credentials) error {
	err := s.validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apierr.New(apierr.InvalidRequest, op, "invalid credentials", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return apierr.Invalid(op, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Field() + "." + fe.Tag() {
	case "Email.required":
		return "email is required"
	case "Email.contains":
		return "please enter a valid email"
	case "Password.required":
		return "password is required"
	case "Password.upperdigit":
		return "password must contain at least one uppercase letter and one number"
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
}
