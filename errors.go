// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lockchat

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a failed operation so that callers can decide whether
// a retry is safe without inspecting message strings.
type ErrorCode int32

const (
	// ErrCodeEncryption indicates that the encryption gateway did not produce
	// a valid ciphertext/proof pair. No transaction was submitted; the caller
	// may retry freely.
	ErrCodeEncryption ErrorCode = iota + 1

	// ErrCodeRevert indicates that the ledger rejected execution. Retrying
	// with the same inputs will fail again.
	ErrCodeRevert

	// ErrCodeProtocolMismatch indicates that a transaction confirmed but the
	// expected event was absent from its receipt. This points at a
	// contract/client version skew and is fatal to the operation.
	ErrCodeProtocolMismatch

	// ErrCodeTimeout indicates that confirmation was not observed within the
	// configured bound. The transaction's fate is unknown; the caller must
	// re-query ledger state before retrying.
	ErrCodeTimeout

	// ErrCodeAuthorization indicates a ledger-enforced permission denial.
	ErrCodeAuthorization

	// ErrCodeAlreadyExists indicates a duplicate creation attempt, e.g. a
	// second user profile for the same address.
	ErrCodeAlreadyExists

	// ErrCodeRoomNotFound indicates the target room does not resolve on-chain.
	ErrCodeRoomNotFound

	// ErrCodeRoomInactive indicates the target room has been deactivated.
	ErrCodeRoomInactive
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeEncryption:
		return "encryption failure"
	case ErrCodeRevert:
		return "transaction revert"
	case ErrCodeProtocolMismatch:
		return "protocol mismatch"
	case ErrCodeTimeout:
		return "confirmation timeout"
	case ErrCodeAuthorization:
		return "authorization denied"
	case ErrCodeAlreadyExists:
		return "already exists"
	case ErrCodeRoomNotFound:
		return "room not found"
	case ErrCodeRoomInactive:
		return "room inactive"
	default:
		return fmt.Sprintf("unknown error code %d", int32(c))
	}
}

// Error is a classified lockchat error.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the classification of err, or 0 if err carries none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

// IsRejection reports whether err represents the ledger rejecting execution
// (as opposed to an infrastructure fault such as an unreachable endpoint).
// The transaction's outcome is known: it did not take effect.
func IsRejection(err error) bool {
	switch CodeOf(err) {
	case ErrCodeRevert, ErrCodeAuthorization, ErrCodeAlreadyExists, ErrCodeRoomNotFound, ErrCodeRoomInactive:
		return true
	default:
		return false
	}
}
