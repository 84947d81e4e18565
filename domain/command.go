package domain

import (
	stderrors "errors"
	"strings"
	"unicode/utf8"

	"market-chat/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// SendCommand is the intent of Sender to write Content to Receiver.
type SendCommand struct {
	Sender   UserID `validate:"required"`
	Receiver UserID `validate:"required,nefield=Sender"`
	Content  string `validate:"required"`
	// ClientRef is echoed back to the sender, never persisted.
	ClientRef string
}

// Validate checks the command. A zero maxContentLength disables the length check.
func (c SendCommand) Validate(maxContentLength int) error {
	if err := validate.Struct(c); err != nil {
		var fieldErrors validator.ValidationErrors
		if stderrors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
			return toValidationError(fieldErrors[0])
		}
		return errors.Validation("%s", err.Error())
	}
	if !utf8.ValidString(c.Content) {
		return errors.Validation("content is not valid UTF-8")
	}
	if strings.TrimSpace(c.Content) == "" {
		return errors.Validation("content is empty")
	}
	if maxContentLength > 0 && utf8.RuneCountInString(c.Content) > maxContentLength {
		return errors.Validation("content exceeds %d characters", maxContentLength)
	}
	return nil
}

func toValidationError(fe validator.FieldError) error {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return errors.Validation("%s is required", field)
	case "nefield":
		return errors.Validation("%s must differ from sender", field)
	default:
		return errors.Validation("%s failed on %s", field, fe.Tag())
	}
}
