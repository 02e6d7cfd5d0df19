package models

import (
	"errors"
	"fmt"
)

// ConnectionError is the root of the miner error family. Every failure that
// can be attributed to a device carries its (host, port) so callers can catch
// the whole family with AsConnectionError.
type ConnectionError struct {
	Host   string
	Port   int
	Reason string
	Err    error
}

func (e *ConnectionError) Error() string {
	msg := fmt.Sprintf("<%s:%d>: %s", e.Host, e.Port, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// base lets every family member surface its ConnectionError through errors.As.
func (e *ConnectionError) base() *ConnectionError { return e }

type familyMember interface{ base() *ConnectionError }

// AsConnectionError extracts the ConnectionError from any member of the
// family, however deep in the wrap chain.
func AsConnectionError(err error) (*ConnectionError, bool) {
	var m familyMember
	if errors.As(err, &m) {
		return m.base(), true
	}
	return nil, false
}

// TimeoutError is raised when a wire attempt budget is exhausted, including
// connection refusals and serialization failures folded into the retry loop.
type TimeoutError struct {
	ConnectionError
}

// SessionAlreadyActiveError means the device reported an open session
// (logon code 402). Never retried.
type SessionAlreadyActiveError struct {
	ConnectionError
}

// MessageMalformedError: STATUS/id missing, or a declared list field is not a list.
type MessageMalformedError struct {
	ConnectionError
	Reply []byte
}

// MessageError: the device rejected the command (STATUS[0].STATUS == "E").
type MessageError struct {
	ConnectionError
	Reply []byte
}

// MessageInvalidError: a declared field violates its cardinality bounds.
type MessageInvalidError struct {
	ConnectionError
	Field string
	Count int
	Min   int
	Max   int
	Reply []byte
}

// NewTimeout wraps cause as a TimeoutError for the given device.
func NewTimeout(host string, port int, reason string, cause error) *TimeoutError {
	return &TimeoutError{ConnectionError{Host: host, Port: port, Reason: reason, Err: cause}}
}

// NewSessionAlreadyActive builds the non-retriable duplicate-logon error.
func NewSessionAlreadyActive(host string, port int, reason string) *SessionAlreadyActiveError {
	return &SessionAlreadyActiveError{ConnectionError{Host: host, Port: port, Reason: reason}}
}

// NewMessageMalformed reports a reply missing its mandatory envelope shape.
func NewMessageMalformed(host string, port int, reason string, reply []byte) *MessageMalformedError {
	return &MessageMalformedError{
		ConnectionError: ConnectionError{Host: host, Port: port, Reason: reason},
		Reply:           reply,
	}
}

// NewMessageError reports a command the device rejected.
func NewMessageError(host string, port int, reason string, reply []byte) *MessageError {
	return &MessageError{
		ConnectionError: ConnectionError{Host: host, Port: port, Reason: reason},
		Reply:           reply,
	}
}

// NewMessageInvalid reports a cardinality violation for field.
func NewMessageInvalid(host string, port int, field string, count, min, max int, reply []byte) *MessageInvalidError {
	return &MessageInvalidError{
		ConnectionError: ConnectionError{
			Host: host, Port: port,
			Reason: fmt.Sprintf("found %d fields for %s invalid: want %d..%d", count, field, min, max),
		},
		Field: field,
		Count: count,
		Min:   min,
		Max:   max,
		Reply: reply,
	}
}
