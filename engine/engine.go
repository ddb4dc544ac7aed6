// Copyright 2014-2017 The Zurichess Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package engine implements position searching.
//
// The package provides the core functionality of the lucerne chess
// engine: a parallel iterative-deepening alpha-beta search over the
// board package's bitboard position, coordinated through a shared
// transposition table. The textual protocol layer is a separate
// consumer of the narrow Engine API below.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/op/go-logging"

	"bitbucket.org/lucernechess/lucerne/board"
)

var log = logging.MustGetLogger("engine")

// Limits bounds one search request.
type Limits struct {
	MaxDepth  int32  // maximum iteration depth; 0 means no limit
	TimeMs    int64  // wall clock budget in milliseconds; 0 means no limit
	NodeLimit uint64 // node budget; 0 means no limit
	Infinite  bool   // search until Stop is called
	Ponder    bool   // search on the opponent's time until PonderHit
}

// Info is the structured record emitted after each completed depth,
// consumed by the protocol layer.
type Info struct {
	Depth    int32
	SelDepth int32
	Time     time.Duration
	Nodes    uint64
	NPS      uint64
	HashFull int // permille
	Score    int32
	PV       []board.Move
}

// Result is the outcome of a search.
type Result struct {
	BestMove   board.Move
	PonderMove board.Move // second PV move, NullMove if unknown
	Score      int32
	Depth      int32 // deepest fully completed iteration
	SelDepth   int32
	Nodes      uint64
	Time       time.Duration
	PV         []board.Move
}

// Logger consumes search progress.
type Logger interface {
	// BeginSearch signals a new search started.
	BeginSearch()
	// EndSearch signals the end of the search.
	EndSearch()
	// PrintInfo logs the principal variation after iterative
	// deepening completed one depth.
	PrintInfo(info Info)
}

// NulLogger is a logger that does nothing.
type NulLogger struct{}

func (nl *NulLogger) BeginSearch()   {}
func (nl *NulLogger) EndSearch()     {}
func (nl *NulLogger) PrintInfo(Info) {}

// Engine searches for the best move of a position.
type Engine struct {
	Options  Options
	Log      Logger
	Position *board.Position

	tt   *HashTable
	eval Evaluator

	stopFlag  atomic.Bool
	nodes     atomic.Uint64
	searching atomic.Bool

	tcMu sync.Mutex
	tc   *TimeControl // time control of the running search, if any
}

// NewEngine creates a new engine to search pos. If pos is nil the
// starting position is used; if eval is nil the classical material
// evaluator is used.
func NewEngine(pos *board.Position, eval Evaluator, log Logger, options Options) *Engine {
	if log == nil {
		log = &NulLogger{}
	}
	if eval == nil {
		eval = NewClassical()
	}
	if pos == nil {
		pos, _ = board.PositionFromFEN(board.FENStartPos)
	}
	board.SelectPextMode(options.Pext)
	tt := NewHashTable(options.HashSizeMB)
	tt.SetAgingDepth(options.AgingDepth)
	return &Engine{
		Options:  options,
		Log:      log,
		Position: pos,
		tt:       tt,
		eval:     eval,
	}
}

// SetPositionFromFEN parses a FEN string. On failure the previous
// position is left untouched.
func (e *Engine) SetPositionFromFEN(fen string) error {
	pos, err := board.PositionFromFEN(fen)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFEN, err)
	}
	e.Position = pos
	return nil
}

// ApplyUCIMove applies a move in UCI notation, e.g. "e2e4", "e1g1"
// (castling as the king's two-square move), "e7e8q" (promotion).
// Moves that are not legal in the current position are rejected.
func (e *Engine) ApplyUCIMove(s string) error {
	m, err := e.Position.UCIToMove(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	e.Position.DoMove(m)
	return nil
}

// SetOption updates a recognized option. Unknown names and out of
// range values leave the option unchanged.
func (e *Engine) SetOption(name, value string) error {
	old := e.Options
	if err := e.Options.Set(name, value); err != nil {
		return err
	}
	if e.Options.HashSizeMB != old.HashSizeMB {
		if err := e.ResizeHash(e.Options.HashSizeMB); err != nil {
			e.Options.HashSizeMB = old.HashSizeMB
			return err
		}
	}
	if e.Options.AgingDepth != old.AgingDepth {
		e.tt.SetAgingDepth(e.Options.AgingDepth)
	}
	if e.Options.Pext != old.Pext {
		// The indexing decision is one-shot; a later change has no
		// effect and is only recorded in the options.
		board.SelectPextMode(e.Options.Pext)
	}
	return nil
}

// ClearHash removes all entries from the transposition table.
func (e *Engine) ClearHash() {
	e.tt.Clear()
}

// ResizeHash reallocates the transposition table. If the allocation
// fails the previous table is retained.
func (e *Engine) ResizeHash(mb int) (err error) {
	if mb < 1 || mb > 32768 {
		return fmt.Errorf("%w: hash size %d MiB out of range", ErrInvalidOption, mb)
	}
	defer func() {
		if recover() != nil {
			err = fmt.Errorf("%w: cannot allocate %d MiB hash", ErrResourceExhausted, mb)
		}
	}()
	tt := NewHashTable(mb)
	tt.SetAgingDepth(e.Options.AgingDepth)
	e.tt = tt
	e.Options.HashSizeMB = mb
	return nil
}

// HashStats returns the transposition table probe statistics.
func (e *Engine) HashStats() HashStats {
	return e.tt.Stats()
}

// Stop raises the stop flag. Every in-flight search frame returns
// within a bounded number of nodes.
func (e *Engine) Stop() {
	e.stopFlag.Store(true)
}

// PonderHit switches a pondering search onto the engine's own time.
func (e *Engine) PonderHit() {
	e.tcMu.Lock()
	if e.tc != nil {
		e.tc.PonderHit()
	}
	e.tcMu.Unlock()
}

// Search runs an iterative-deepening search within limits and returns
// the deepest fully completed iteration's result.
func (e *Engine) Search(limits Limits) (Result, error) {
	if !e.searching.CompareAndSwap(false, true) {
		return Result{}, errors.New("search already running")
	}
	defer e.searching.Store(false)

	e.stopFlag.Store(false)
	e.nodes.Store(0)
	e.tt.NewGeneration()
	e.Log.BeginSearch()
	defer e.Log.EndSearch()

	tc := timeControlFromLimits(e.Position, limits)
	tc.Start(limits.Ponder)
	e.tcMu.Lock()
	e.tc = tc
	e.tcMu.Unlock()

	var res Result
	if e.Options.Threads > 1 && e.Options.Parallel == LazySMP {
		res = e.searchLazySMP(tc, limits)
	} else {
		res = e.searchWorkStealing(tc, limits)
	}

	if res.BestMove == board.NullMove {
		// Stopped before any iteration completed: fall back to the
		// first legal move, or the null move if the game is over.
		if legal := e.Position.LegalMoves(); len(legal) > 0 {
			res.BestMove = legal[0]
		}
	}
	return res, nil
}
