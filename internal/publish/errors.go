package publish

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCertificate is returned when the configuration references a
	// certificate the hosted service does not have.
	ErrMissingCertificate = errors.New("certificate not uploaded to hosted service")

	// ErrLocationRequired is returned when a resource has to be created and
	// neither a location nor an affinity group was given.
	ErrLocationRequired = errors.New("a location or affinity group is required to create new resources")

	// ErrInvalidSlot is returned for a slot other than production or staging.
	ErrInvalidSlot = errors.New("invalid deployment slot")
)

// MutationError is a failed create, update, upgrade or upload call. Err is
// the provider error, usually a *mgmt.APIError.
type MutationError struct {
	Step string
	Err  error
}

func (e *MutationError) Error() string { return fmt.Sprintf("%s failed: %v", e.Step, e.Err) }

func (e *MutationError) Unwrap() error { return e.Err }
