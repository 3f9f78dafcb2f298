package mgmt

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound indicates that the requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates that the management endpoint refused the
	// subscription credentials.
	ErrForbidden = errors.New("forbidden")
)

// ForbiddenHelp is shown to the user when a call fails with ErrForbidden.
const ForbiddenHelp = `Communication could not be established with the management endpoint.
Check that the subscription in your profile is correct and that its
credentials are still valid (see "azsvc profile show").`

// APIError is a non-2xx response from the management API.
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	OperationID string `json:"-"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.OperationID == "" {
		return fmt.Sprintf("HTTP Status Code: %d - HTTP Error Message: %s", e.StatusCode, msg)
	}
	return fmt.Sprintf("HTTP Status Code: %d - HTTP Error Message: %s\nOperation ID: %s", e.StatusCode, msg, e.OperationID)
}

// Is lets errors.Is match ErrNotFound and ErrForbidden by status code.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	}
	return false
}

// IsNotFound reports whether err is, or wraps, a not-found response.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
