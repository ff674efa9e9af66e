package auth

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"lanshare/errors"
)

var validate = validator.New()

// LoginRequest is the single authentication input: a display name.
type LoginRequest struct {
	Identity string `validate:"required,min=1,max=64,excludesall= ,printascii"`
}

// SendRequest validates the wire shape of a send before it reaches the
// engine. A message needs content or a file, never neither.
type SendRequest struct {
	Destination string `validate:"required,max=128"`
	Content     string `validate:"max=4096"`
	FileID      string `validate:"max=128"`
}

func ValidateLogin(req LoginRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %s", errors.ErrInvalidInput, err.Error())
	}
	return nil
}

func ValidateSend(req SendRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %s", errors.ErrInvalidInput, err.Error())
	}
	if req.Content == "" && req.FileID == "" {
		return fmt.Errorf("%w: empty message", errors.ErrInvalidInput)
	}
	return nil
}
