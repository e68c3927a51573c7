// Copyright (c) 2017-2020 The randchain developers
// Copyright (c) 2014-2016 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"
)

// AssertError identifies an error that indicates an internal code consistency
// issue and should be treated as a critical and unrecoverable error.
type AssertError string

// Error returns the assertion error as a human-readable string and satisfies
// the error interface.
func (e AssertError) Error() string {
	return "assertion failed: " + string(e)
}

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific RuleError.
const (
	// ErrDuplicateBlock indicates a block with the same hash already
	// exists.
	ErrDuplicateBlock ErrorCode = iota

	// ErrMissingParent indicates that the block was an orphan.
	ErrMissingParent

	// ErrInvalidAncestor indicates the block builds on a block that is
	// already known to be invalid.
	ErrInvalidAncestor

	// ErrBadHeader indicates the header failed the header-level checks of
	// the verification capability.
	ErrBadHeader

	// ErrBadBody indicates the block body failed the body-internal checks
	// of the verification capability.
	ErrBadBody

	// ErrBadTrustEdge indicates the configured verification edge hash is
	// malformed.
	ErrBadTrustEdge
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrDuplicateBlock:  "ErrDuplicateBlock",
	ErrMissingParent:   "ErrMissingParent",
	ErrInvalidAncestor: "ErrInvalidAncestor",
	ErrBadHeader:       "ErrBadHeader",
	ErrBadBody:         "ErrBadBody",
	ErrBadTrustEdge:    "ErrBadTrustEdge",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// RuleError identifies a rule violation.  It is used to indicate that
// processing of a block or header failed due to one of the many validation
// rules.  The caller can use type assertions to determine if a failure was
// specifically due to a rule violation and use the ErrorCode field to detect
// which rule was violated.
type RuleError struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	return e.Description
}

// ruleError creates a RuleError given a set of arguments.
func ruleError(c ErrorCode, desc string) RuleError {
	return RuleError{ErrorCode: c, Description: desc}
}

// IsRuleError reports whether err is a RuleError.  The sync coordinator uses
// it to distinguish peer-supplied garbage (penalize the peer) from internal
// failures (surface to the operator).
func IsRuleError(err error) bool {
	_, ok := err.(RuleError)
	return ok
}
