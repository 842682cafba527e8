package model

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is matching against the typed errors below.
var (
	ErrNetwork          = errors.New("network error")
	ErrMalformed        = errors.New("malformed response")
	ErrInvalidSelection = errors.New("invalid selection")
	ErrRemoteRejection  = errors.New("remote rejection")
)

// GenericNetworkMessage is shown when a failure carries no server detail.
const GenericNetworkMessage = "could not reach the analysis service"

// NetworkError is a transport failure: the service is unreachable, the
// connection dropped, or the request timed out.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, GenericNetworkMessage)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, GenericNetworkMessage, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// MalformedResponseError means the response shape violated expectations.
type MalformedResponseError struct {
	Op     string
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response: %s", e.Op, e.Reason)
}

func (e *MalformedResponseError) Is(target error) bool { return target == ErrMalformed }

// InvalidSelectionError is returned when a selector edit would violate the
// cascading invariants. The edit is not applied.
type InvalidSelectionError struct {
	Field string
	Value string
}

func (e *InvalidSelectionError) Error() string {
	return fmt.Sprintf("invalid %s selection %q", e.Field, e.Value)
}

func (e *InvalidSelectionError) Is(target error) bool { return target == ErrInvalidSelection }

// RemoteRejection is a non-2xx response. Detail is the server's `detail`
// message verbatim when one was sent.
type RemoteRejection struct {
	Op         string
	StatusCode int
	Detail     string
}

func (e *RemoteRejection) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, GenericNetworkMessage)
	}
	return e.Detail
}

func (e *RemoteRejection) Is(target error) bool { return target == ErrRemoteRejection }

// FailureReason returns the user-facing message for err: the server detail
// when present, otherwise a generic message.
func FailureReason(err error) string {
	if err == nil {
		return ""
	}
	var rej *RemoteRejection
	if errors.As(err, &rej) {
		if rej.Detail != "" {
			return rej.Detail
		}
		return GenericNetworkMessage
	}
	var sel *InvalidSelectionError
	if errors.As(err, &sel) {
		return sel.Error()
	}
	var bad *MalformedResponseError
	if errors.As(err, &bad) {
		return "unexpected response from the analysis service: " + bad.Reason
	}
	return GenericNetworkMessage
}
