// Package model holds the data types shared across every layer of the
// resilient TDX access stack: credentials, tokens, stations, timetable
// entries, journeys, alerts, and the flat error taxonomy they all report
// through.
package model

import (
	"errors"
	"fmt"
)

// Code is the error taxonomy from the TDX client's error surface. Every
// layer of the stack reports failures tagged with one of these.
type Code string

const (
	CodeBadInput           Code = "BAD_INPUT"
	CodeStationNotFound    Code = "STATION_NOT_FOUND"
	CodeNotFound           Code = "NOT_FOUND"
	CodeAuthError          Code = "AUTH_ERROR"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeNoAvailableSlots   Code = "NO_AVAILABLE_SLOTS"
	CodeCircuitBreakerOpen Code = "CIRCUIT_BREAKER_OPEN"
	CodeAPIError           Code = "API_ERROR"
	CodeCancelled          Code = "CANCELLED"
)

// Error is the flat sum-type error every component in the stack returns.
// It carries an opaque wrapped cause instead of participating in an
// exception hierarchy.
type Error struct {
	Code    Code
	Message string
	Cause   error
	Context map[string]string

	// RetryAfterMs is set only for CodeCircuitBreakerOpen.
	RetryAfterMs int64
	// HTTPStatus is set when the failure originated from an HTTP response.
	HTTPStatus int
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// WithContext returns a copy of e with the given context key set.
func (e *Error) WithContext(key, value string) *Error {
	cp := *e
	ctx := make(map[string]string, len(e.Context)+1)
	for k, v := range e.Context {
		ctx[k] = v
	}
	ctx[key] = value
	cp.Context = ctx
	return &cp
}

// New builds an Error with no cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an Error around an existing cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the Code from err if it is (or wraps) a *Error, and
// returns ("", false) otherwise.
func CodeOf(err error) (Code, bool) {
	var me *Error
	if errors.As(err, &me) {
		return me.Code, true
	}
	return "", false
}
