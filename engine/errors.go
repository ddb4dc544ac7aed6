// Copyright 2014-2017 The Zurichess Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package engine

import "errors"

var (
	// ErrMalformedFEN is returned by SetPositionFromFEN; the
	// previous position is preserved.
	ErrMalformedFEN = errors.New("malformed FEN")
	// ErrIllegalMove is returned when an externally supplied move
	// is not legal in the current position.
	ErrIllegalMove = errors.New("illegal move")
	// ErrInvalidOption is returned for an unknown option name or an
	// out of range value; the option is unchanged.
	ErrInvalidOption = errors.New("invalid option")
	// ErrResourceExhausted is returned when the hash table cannot be
	// resized; the previous table is retained.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrInvariantViolation reports a corrupted search state in
	// audit mode: Zobrist mismatch, undo stack underflow or an
	// illegal state detected post-move.
	ErrInvariantViolation = errors.New("internal invariant violation")
)
