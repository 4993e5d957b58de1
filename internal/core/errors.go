package core

import (
	"errors"
	"fmt"
	"net/http"
)

// ListingPath is where clients are sent when they ask for an area without naming one.
const ListingPath = "/api/area/locations"

// ValidationError is a missing or malformed request parameter. It is raised
// before any store query runs.
type ValidationError struct {
	Status   int
	Message  string
	Redirect string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func badRequest(msg string) *ValidationError {
	return &ValidationError{Status: http.StatusBadRequest, Message: msg}
}

func areaNotFound() *ValidationError {
	return &ValidationError{
		Status:   http.StatusNotFound,
		Message:  "Area is required",
		Redirect: ListingPath,
	}
}

// UpstreamQueryError wraps a RecordStore failure. The underlying driver error
// stays reachable through errors.As.
type UpstreamQueryError struct {
	Op  string
	Err error
}

func (e *UpstreamQueryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamQueryError) Unwrap() error {
	return e.Err
}

func upstream(op string, err error) error {
	var uqe *UpstreamQueryError
	if errors.As(err, &uqe) {
		return err
	}
	return &UpstreamQueryError{Op: op, Err: err}
}

// ErrBoundsUnavailable is returned by AreaBounds when no locator is configured.
var ErrBoundsUnavailable = errors.New("area bounds lookup is not configured")

func IsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
