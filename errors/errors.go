package errors

import (
	"errors"
	"fmt"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no censored words loaded")

	// Refusals. All of them are side-effect free: nothing is persisted
	// and nothing is delivered when one of these is returned.
	ErrUnauthenticated    = fmt.Errorf("no authenticated identity")
	ErrAccessDenied       = fmt.Errorf("access denied")
	ErrNotAdmin           = fmt.Errorf("only group admins may do this")
	ErrAdminOnlyGroup     = fmt.Errorf("only admins can send messages in this group")
	ErrGroupNotFound      = fmt.Errorf("group not found")
	ErrMessageNotFound    = fmt.Errorf("message not found")
	ErrIdentityNotFound   = fmt.Errorf("identity not found")
	ErrNotAMember         = fmt.Errorf("not a member of this group")
	ErrAlreadyMember      = fmt.Errorf("already a member of this group")
	ErrLastAdmin          = fmt.Errorf("assign another admin before leaving")
	ErrInvalidInput       = fmt.Errorf("invalid input")
	ErrInvalidToken       = fmt.Errorf("invalid session token")
	ErrUnknownDestination = fmt.Errorf("unknown destination")
)

// Code maps an error to the stable wire code the transport layer puts on
// rejection events sent back to a caller. Anything unrecognized is treated
// as a storage failure, which is always surfaced and never retried.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrInvalidToken):
		return "unauthenticated"
	case errors.Is(err, ErrAdminOnlyGroup), errors.Is(err, ErrNotAdmin), errors.Is(err, ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, ErrGroupNotFound), errors.Is(err, ErrMessageNotFound),
		errors.Is(err, ErrIdentityNotFound), errors.Is(err, ErrNotAMember):
		return "not_found"
	case errors.Is(err, ErrLastAdmin):
		return "last_admin"
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUnknownDestination), errors.Is(err, ErrAlreadyMember):
		return "invalid_input"
	default:
		return "storage_failure"
	}
}
