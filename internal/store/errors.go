package store

import (
	"errors"
	"fmt"
)

var (
	// ErrInvariant marks programmer errors: bad paths, wrongly typed values,
	// ids that should never reach an internal code path.
	ErrInvariant = errors.New("store: invariant violation")

	// ErrUnknownTenant is returned for tenants that were never provisioned.
	ErrUnknownTenant = fmt.Errorf("%w: unknown tenant", ErrInvariant)
)

// Reason classifies an expected business-rule rejection.
type Reason string

const (
	ReasonNotOwner          Reason = "not-owner"
	ReasonDeceased          Reason = "deceased"
	ReasonTooSoon           Reason = "too-soon"
	ReasonInsufficientFunds Reason = "insufficient-funds"
	ReasonNotFound          Reason = "not-found"
	ReasonCapacityExceeded  Reason = "capacity-exceeded"
	ReasonDuplicateName     Reason = "duplicate-name"
	ReasonInvalidInput      Reason = "invalid-input"
	ReasonWrongCategory     Reason = "wrong-category"
)

// Rejection is a business-rule failure. Message is plain language, fit for display.
type Rejection struct {
	Reason  Reason
	Message string
}

func (r *Rejection) Error() string {
	return r.Message
}

// Reject builds a Rejection with a formatted message.
func Reject(reason Reason, format string, args ...any) *Rejection {
	return &Rejection{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// IsRejection reports whether err carries a business-rule rejection.
func IsRejection(err error) bool {
	var r *Rejection
	return errors.As(err, &r)
}

// ReasonOf extracts the rejection reason from err.
func ReasonOf(err error) (Reason, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Reason, true
	}
	return "", false
}
