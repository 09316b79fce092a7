// Package codes defines the canonical RPC status codes carried in the
// grpc-status trailer of every completed call.
package codes

import "strconv"

// Code is a status code for the outcome of an RPC.
type Code uint32

const (
	// OK means the call completed successfully.
	OK Code = 0

	// Canceled means the operation was canceled, typically by the caller.
	Canceled Code = 1

	// Unknown is used for errors with no better classification, including
	// handler errors that carry no explicit status and streams that close
	// without a status trailer.
	Unknown Code = 2

	// InvalidArgument means the client specified an invalid argument.
	InvalidArgument Code = 3

	// DeadlineExceeded means the operation expired before completion.
	DeadlineExceeded Code = 4

	// NotFound means a requested entity was not found.
	NotFound Code = 5

	// AlreadyExists means an entity the client attempted to create already
	// exists.
	AlreadyExists Code = 6

	// PermissionDenied means the caller lacks permission for the operation.
	PermissionDenied Code = 7

	// ResourceExhausted means a resource has been exhausted, such as a
	// message exceeding the configured maximum size.
	ResourceExhausted Code = 8

	// FailedPrecondition means the system is not in a state required for
	// the operation's execution.
	FailedPrecondition Code = 9

	// Aborted means the operation was aborted, typically due to a
	// concurrency conflict.
	Aborted Code = 10

	// OutOfRange means the operation was attempted past the valid range.
	OutOfRange Code = 11

	// Unimplemented means the method is not implemented or not registered
	// on the server.
	Unimplemented Code = 12

	// Internal means an invariant expected by the engine was broken, such
	// as undecodable message bytes or a cardinality violation.
	Internal Code = 13

	// Unavailable means the transport failed, typically a connection loss
	// or a stream reset by the peer.
	Unavailable Code = 14

	// DataLoss means unrecoverable data loss or corruption.
	DataLoss Code = 15

	// Unauthenticated means the request lacks valid credentials.
	Unauthenticated Code = 16

	maxCode = 17
)

var codeNames = [maxCode]string{
	"OK",
	"Canceled",
	"Unknown",
	"InvalidArgument",
	"DeadlineExceeded",
	"NotFound",
	"AlreadyExists",
	"PermissionDenied",
	"ResourceExhausted",
	"FailedPrecondition",
	"Aborted",
	"OutOfRange",
	"Unimplemented",
	"Internal",
	"Unavailable",
	"DataLoss",
	"Unauthenticated",
}

func (c Code) String() string {
	if c < maxCode {
		return codeNames[c]
	}
	return "Code(" + strconv.FormatUint(uint64(c), 10) + ")"
}

// Valid reports whether c is one of the defined status codes.
func (c Code) Valid() bool {
	return c < maxCode
}
