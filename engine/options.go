// Copyright 2014-2017 The Zurichess Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// options.go keeps the engine's options. Options are a value
// constructed once and handed to the search by reference.

package engine

import (
	"fmt"
	"strconv"
	"strings"

	"bitbucket.org/lucernechess/lucerne/board"
)

// ParallelMode selects the multi-threaded search orchestration.
type ParallelMode int

const (
	// WorkStealing splits the root moves over the workers.
	WorkStealing ParallelMode = iota
	// LazySMP runs independent deepening workers over a shared
	// transposition table.
	LazySMP
)

// Options keeps the engine's options.
type Options struct {
	HashSizeMB int // transposition table size, MiB
	Threads    int

	// Search feature toggles.
	NullMove          bool
	Futility          bool
	Razoring          bool
	Aspiration        bool
	SingularExtension bool
	ProbCut           bool
	CheckExtension    bool
	LateMoveReduction bool

	Parallel            ParallelMode
	SplitDepth          int32 // work-stealing: minimum depth to split
	SplitMoves          int   // work-stealing: minimum legal moves to split
	LazyAspirationDelta int32 // LazySMP per-worker window offset

	Pext       board.PextMode
	AgingDepth int32 // entries deeper than this age at half rate

	// History pruning.
	HistoryMinQuietIndex int
	HistoryThreshold     int32
	HistoryMaxDepth      int32

	// SEE threshold at or above which a capture orders as good.
	SEEThreshold int32

	// AuditMode recomputes the Zobrist key after every make and
	// unmake and stops the search on a violation.
	AuditMode bool
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		HashSizeMB:           16,
		Threads:              1,
		NullMove:             true,
		Futility:             true,
		Razoring:             true,
		Aspiration:           true,
		SingularExtension:    true,
		ProbCut:              true,
		CheckExtension:       true,
		LateMoveReduction:    true,
		Parallel:             WorkStealing,
		SplitDepth:           5,
		SplitMoves:           4,
		LazyAspirationDelta:  25,
		Pext:                 board.PextDisable,
		AgingDepth:           8,
		HistoryMinQuietIndex: 4,
		HistoryThreshold:     -1500,
		HistoryMaxDepth:      3,
		SEEThreshold:         0,
	}
}

// Set updates one option by name. On error the option is unchanged.
func (o *Options) Set(name, value string) error {
	setInt := func(dst *int, lo, hi int) error {
		v, err := strconv.Atoi(value)
		if err != nil || v < lo || v > hi {
			return fmt.Errorf("%w: %s value %q outside [%d, %d]", ErrInvalidOption, name, value, lo, hi)
		}
		*dst = v
		return nil
	}
	setInt32 := func(dst *int32, lo, hi int) error {
		var v int
		if err := setInt(&v, lo, hi); err != nil {
			return err
		}
		*dst = int32(v)
		return nil
	}
	setBool := func(dst *bool) error {
		v, err := strconv.ParseBool(strings.ToLower(value))
		if err != nil {
			return fmt.Errorf("%w: %s value %q is not a boolean", ErrInvalidOption, name, value)
		}
		*dst = v
		return nil
	}

	switch strings.ToLower(name) {
	case "hash":
		return setInt(&o.HashSizeMB, 1, 32768)
	case "threads":
		return setInt(&o.Threads, 1, 512)
	case "nullmove":
		return setBool(&o.NullMove)
	case "futility":
		return setBool(&o.Futility)
	case "razoring":
		return setBool(&o.Razoring)
	case "aspiration":
		return setBool(&o.Aspiration)
	case "singularextension":
		return setBool(&o.SingularExtension)
	case "probcut":
		return setBool(&o.ProbCut)
	case "checkextension":
		return setBool(&o.CheckExtension)
	case "latemovereduction":
		return setBool(&o.LateMoveReduction)
	case "parallelmode":
		switch strings.ToLower(value) {
		case "workstealing":
			o.Parallel = WorkStealing
		case "lazysmp":
			o.Parallel = LazySMP
		default:
			return fmt.Errorf("%w: unknown parallel mode %q", ErrInvalidOption, value)
		}
		return nil
	case "splitdepth":
		return setInt32(&o.SplitDepth, 1, 32)
	case "splitmoves":
		return setInt(&o.SplitMoves, 1, 64)
	case "lazyaspirationdelta":
		return setInt32(&o.LazyAspirationDelta, 0, 400)
	case "pext":
		switch strings.ToLower(value) {
		case "auto":
			o.Pext = board.PextAuto
		case "force":
			o.Pext = board.PextForce
		case "disable":
			o.Pext = board.PextDisable
		default:
			return fmt.Errorf("%w: unknown pext mode %q", ErrInvalidOption, value)
		}
		return nil
	case "agingdepth":
		return setInt32(&o.AgingDepth, 1, 63)
	case "historyminquietindex":
		return setInt(&o.HistoryMinQuietIndex, 0, 64)
	case "historythreshold":
		return setInt32(&o.HistoryThreshold, -1<<20, 1<<20)
	case "historymaxdepth":
		return setInt32(&o.HistoryMaxDepth, 0, 32)
	case "seethreshold":
		return setInt32(&o.SEEThreshold, -2000, 2000)
	case "auditmode":
		return setBool(&o.AuditMode)
	}
	return fmt.Errorf("%w: unknown option %q", ErrInvalidOption, name)
}
