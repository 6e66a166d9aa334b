// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is. Every failure returned by Send matches
// exactly one of the three.
var (
	// ErrTransport indicates the endpoint answered with a non-2xx status.
	ErrTransport = errors.New("transport failure")

	// ErrNetwork indicates no usable answer arrived: DNS, connect, TLS,
	// timeout or an interrupted body read.
	ErrNetwork = errors.New("network error")

	// ErrMalformedResponse indicates a 2xx answer whose body was not the
	// expected chat completion shape.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrNotConfigured indicates the client has no API key. Returned by
	// Validate, never by Send.
	ErrNotConfigured = errors.New("API key not configured")
)

// TransportError is returned when the endpoint answers with a non-success
// status code.
type TransportError struct {
	StatusCode int
	Status     string
	// Message is the server's error.message field, when it sent one.
	Message string
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API call failed: %d (%s)", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API call failed: %d", e.StatusCode)
}

// Is reports whether target is ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// NetworkError wraps a failure to complete the HTTP round trip.
type NetworkError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrNetwork.
func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

// MalformedResponseError is returned when a successful response body cannot
// be read as a chat completion.
type MalformedResponseError struct {
	Reason string
}

// Error implements the error interface.
func (e *MalformedResponseError) Error() string {
	return "malformed response: " + e.Reason
}

// Is reports whether target is ErrMalformedResponse.
func (e *MalformedResponseError) Is(target error) bool {
	return target == ErrMalformedResponse
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// FailureKind names the category of an exchange failure.
type FailureKind int

const (
	KindNone FailureKind = iota
	KindTransport
	KindNetwork
	KindMalformed
	KindUnknown
)

// String returns the kind's short name, as used in JSON output and logs.
func (k FailureKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTransport:
		return "transport"
	case KindNetwork:
		return "network"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Classify maps err to its FailureKind. A nil error is KindNone.
func Classify(err error) FailureKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrTransport):
		return KindTransport
	case errors.Is(err, ErrNetwork):
		return KindNetwork
	case errors.Is(err, ErrMalformedResponse):
		return KindMalformed
	default:
		return KindUnknown
	}
}

// StatusCode returns the HTTP status carried by a transport failure, or 0.
func StatusCode(err error) int {
	var te *TransportError
	if errors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}
