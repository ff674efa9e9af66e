package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"lanshare/errors"
)

func TestValidateLogin(t *testing.T) {
	req := require.New(t)

	req.NoError(ValidateLogin(LoginRequest{Identity: "alice"}))
	req.NoError(ValidateLogin(LoginRequest{Identity: "bob_42"}))

	for _, identity := range []string{
		"",
		"has space",
		strings.Repeat("x", 65),
		"émile", // non printable ascii
	} {
		err := ValidateLogin(LoginRequest{Identity: identity})
		req.ErrorIs(err, errors.ErrInvalidInput, "identity %q should be rejected", identity)
	}
}

func TestValidateSend(t *testing.T) {
	req := require.New(t)

	req.NoError(ValidateSend(SendRequest{Destination: "all", Content: "hello"}))
	req.NoError(ValidateSend(SendRequest{Destination: "bob", FileID: "f-123"}))

	// Missing destination
	req.ErrorIs(ValidateSend(SendRequest{Content: "hello"}), errors.ErrInvalidInput)

	// Neither content nor file
	req.ErrorIs(ValidateSend(SendRequest{Destination: "all"}), errors.ErrInvalidInput)

	// Oversized content
	req.ErrorIs(ValidateSend(SendRequest{
		Destination: "all",
		Content:     strings.Repeat("a", 4097),
	}), errors.ErrInvalidInput)
}
