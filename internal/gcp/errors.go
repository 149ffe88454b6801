package gcp

import (
	"errors"
	"fmt"
)

// ErrorKind classifies control plane failures
type ErrorKind string

const (
	KindUnauthorized      ErrorKind = "unauthorized"       // token rejected or lacking permission
	KindNotFound          ErrorKind = "not_found"          // instance, project or zone does not exist
	KindMalformedResponse ErrorKind = "malformed_response" // body does not match the expected shape
	KindTransport         ErrorKind = "transport"          // network failure or timeout
	KindRejected          ErrorKind = "rejected"           // any other non-success status
)

// CredentialError is returned when no access token could be obtained from the metadata server
type CredentialError struct {
	StatusCode int
	Err        error
}

func (e *CredentialError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to fetch access token: metadata server returned %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("failed to fetch access token: %v", e.Err)
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}

// ControlPlaneError is returned for every failed compute API call
type ControlPlaneError struct {
	Kind       ErrorKind
	Operation  string
	StatusCode int
	Message    string
	Err        error
}

func (e *ControlPlaneError) Error() string {
	msg := fmt.Sprintf("compute %s failed (%s)", e.Operation, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ControlPlaneError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a ControlPlaneError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var cpErr *ControlPlaneError
	return errors.As(err, &cpErr) && cpErr.Kind == kind
}

// kindForStatus maps a non-success HTTP status onto the failure taxonomy
func kindForStatus(code int) ErrorKind {
	switch code {
	case 401, 403:
		return KindUnauthorized
	case 404:
		return KindNotFound
	default:
		return KindRejected
	}
}
