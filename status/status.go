// Package status implements the structured outcome of an RPC: a code,
// a human-readable message, and optional trailing metadata. Every
// completed call produces exactly one Status, carried to the peer in the
// stream's trailers.
package status

import (
	"context"
	"errors"
	"fmt"

	"github.com/gwirelabs/gwire/codes"
	"github.com/gwirelabs/gwire/metadata"
)

// Status represents the terminal outcome of a call.
type Status struct {
	code codes.Code
	msg  string
	md   metadata.MD
}

// New returns a Status with the given code and message.
func New(c codes.Code, msg string) *Status {
	return &Status{code: c, msg: msg}
}

// Newf returns New(c, fmt.Sprintf(format, a...)).
func Newf(c codes.Code, format string, a ...any) *Status {
	return New(c, fmt.Sprintf(format, a...))
}

// Error returns an error representing c and msg. If c is OK, returns nil.
func Error(c codes.Code, msg string) error {
	return New(c, msg).Err()
}

// Errorf returns Error(c, fmt.Sprintf(format, a...)).
func Errorf(c codes.Code, format string, a ...any) error {
	return Error(c, fmt.Sprintf(format, a...))
}

// Code returns the status code.
func (s *Status) Code() codes.Code {
	if s == nil {
		return codes.OK
	}
	return s.code
}

// Message returns the human-readable message.
func (s *Status) Message() string {
	if s == nil {
		return ""
	}
	return s.msg
}

// Metadata returns the trailing metadata attached to the status, if any.
func (s *Status) Metadata() metadata.MD {
	if s == nil {
		return nil
	}
	return s.md
}

// WithMetadata returns a copy of s carrying md as additional trailer
// entries. md must not be modified after the call.
func (s *Status) WithMetadata(md metadata.MD) *Status {
	return &Status{code: s.Code(), msg: s.Message(), md: md}
}

// Err returns an error representing the status, or nil if the code is OK.
func (s *Status) Err() error {
	if s.Code() == codes.OK {
		return nil
	}
	return &statusError{s: s}
}

func (s *Status) String() string {
	return fmt.Sprintf("rpc error: code = %s desc = %s", s.Code(), s.Message())
}

// statusError wraps a Status so it can travel through error returns.
type statusError struct {
	s *Status
}

func (e *statusError) Error() string {
	return e.s.String()
}

func (e *statusError) Status() *Status {
	return e.s
}

// FromError returns the Status carried by err. ok is false if err is not
// a status error; in that case the returned Status has code Unknown and
// err's message, except that nil maps to OK and context errors map to
// their conventional codes.
func FromError(err error) (*Status, bool) {
	if err == nil {
		return nil, true
	}
	var se interface {
		Status() *Status
	}
	if errors.As(err, &se) {
		return se.Status(), true
	}
	return FromContextError(err), false
}

// Convert is a convenience for the Status of FromError, ignoring ok.
func Convert(err error) *Status {
	s, _ := FromError(err)
	return s
}

// Code returns the status code of err, or OK for nil.
func Code(err error) codes.Code {
	return Convert(err).Code()
}

// FromContextError maps context cancellation and expiry to their
// conventional codes; anything else is Unknown.
func FromContextError(err error) *Status {
	switch {
	case errors.Is(err, context.Canceled):
		return New(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return New(codes.DeadlineExceeded, err.Error())
	default:
		return New(codes.Unknown, err.Error())
	}
}
