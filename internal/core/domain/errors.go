package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrPermission means a required capability has not been granted by the user.
	ErrPermission = errors.New("required capability not granted")
	// ErrEmptyInput means there was nothing to register.
	ErrEmptyInput = errors.New("no sites provided to register")
	// ErrNotAvailable means positioning is disabled or the device blocks monitoring.
	ErrNotAvailable = errors.New("region monitoring not available")
	// ErrTooManyRegions means the facility capacity ceiling was exceeded.
	ErrTooManyRegions = errors.New("too many regions")
	// ErrTooManyHandles means the facility ran out of registration handles.
	ErrTooManyHandles = errors.New("too many registration handles")
	// ErrFetch means the site source could not be reached.
	ErrFetch = errors.New("site source unavailable")
)

// StatusCode is a facility status code.
type StatusCode int

const (
	StatusNotAvailable   StatusCode = 1000
	StatusTooManyRegions StatusCode = 1001
	StatusTooManyHandles StatusCode = 1002
)

// FacilityError is a failure reported by the region-monitoring facility.
type FacilityError struct {
	Code    StatusCode
	Message string
}

func (e *FacilityError) Error() string {
	switch e.Code {
	case StatusNotAvailable:
		return "region monitoring not available (location disabled or device in low-power mode)"
	case StatusTooManyRegions:
		return fmt.Sprintf("too many regions (max %d)", CapacityCeiling)
	case StatusTooManyHandles:
		return fmt.Sprintf("too many registration handles (max %d)", MaxRegistrationHandles)
	}
	return fmt.Sprintf("registration failed: %s (code %d)", e.Message, e.Code)
}

// Is lets errors.Is match a FacilityError against the sentinel for its code.
func (e *FacilityError) Is(target error) bool {
	switch e.Code {
	case StatusNotAvailable:
		return target == ErrNotAvailable
	case StatusTooManyRegions:
		return target == ErrTooManyRegions
	case StatusTooManyHandles:
		return target == ErrTooManyHandles
	}
	return false
}

// ErrorKind groups failures by how callers should react to them.
type ErrorKind string

const (
	PermissionError        ErrorKind = "permission"
	CapacityError          ErrorKind = "capacity"
	TransientFacilityError ErrorKind = "transient"
	FetchError             ErrorKind = "fetch"
	InputError             ErrorKind = "input"
	UnknownError           ErrorKind = "unknown"
)

// Classify maps an error onto the failure taxonomy.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermission):
		return PermissionError
	case errors.Is(err, ErrTooManyRegions), errors.Is(err, ErrTooManyHandles):
		return CapacityError
	case errors.Is(err, ErrNotAvailable):
		return TransientFacilityError
	case errors.Is(err, ErrFetch):
		return FetchError
	case errors.Is(err, ErrEmptyInput):
		return InputError
	}
	return UnknownError
}

// Retryable reports whether a later sync cycle may succeed without user action.
func Retryable(err error) bool {
	switch Classify(err) {
	case TransientFacilityError, FetchError, UnknownError:
		return true
	}
	return false
}

// DeadlineViolation is raised (as a panic) when a dispatcher acknowledgment
// is issued after AckDeadline. It is never returned as an error value.
type DeadlineViolation struct {
	SiteID   string
	Elapsed  time.Duration
	Deadline time.Duration
}

func (d *DeadlineViolation) Error() string {
	return fmt.Sprintf("acknowledgment for site %s took %s, deadline %s", d.SiteID, d.Elapsed, d.Deadline)
}
