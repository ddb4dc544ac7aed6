// Copyright 2014-2017 The Zurichess Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package engine

import (
	"math"
	"sync/atomic"
	"time"

	"bitbucket.org/lucernechess/lucerne/board"
)

const (
	defaultMovesToGo    = 30 // number of remaining moves to plan for
	defaultBranchFactor = 2
)

// TimeControl splits the remaining time over the moves still to play.
// Exceeding a budget is a normal termination, not an error.
type TimeControl struct {
	WTime, WInc time.Duration // time and increment for white
	BTime, BInc time.Duration // time and increment for black
	Depth       int32         // maximum depth to search (inclusive)
	MovesToGo   int

	numPieces  int
	sideToMove board.Color
	infinite   bool
	stopped    atomic.Bool
	ponderhit  atomic.Bool

	searchTime     time.Duration
	searchDeadline time.Time
	ponderTime     time.Duration
	ponderDeadline time.Time
}

// NewTimeControl returns a new time control with no time limit,
// the maximum depth of 63, zero increment and defaultMovesToGo
// moves to go.
func NewTimeControl(pos *board.Position) *TimeControl {
	inf := time.Duration(math.MaxInt64)
	return &TimeControl{
		WTime:      inf,
		BTime:      inf,
		Depth:      63,
		MovesToGo:  defaultMovesToGo,
		numPieces:  (pos.ByColor[board.White] | pos.ByColor[board.Black]).Popcnt(),
		sideToMove: pos.SideToMove,
	}
}

// NewFixedDepthTimeControl searches exactly depth plies.
func NewFixedDepthTimeControl(pos *board.Position, depth int32) *TimeControl {
	tc := NewTimeControl(pos)
	tc.Depth = depth
	tc.MovesToGo = 1
	return tc
}

// NewDeadlineTimeControl treats deadline as the remaining time for
// this one move; Start stops the search at that time divided by the
// branch factor, so the search ends well before deadline.
func NewDeadlineTimeControl(pos *board.Position, deadline time.Duration) *TimeControl {
	tc := NewTimeControl(pos)
	tc.WTime = deadline
	tc.BTime = deadline
	tc.MovesToGo = 1
	return tc
}

// timeControlFromLimits builds the time control for a search request.
func timeControlFromLimits(pos *board.Position, limits Limits) *TimeControl {
	var tc *TimeControl
	switch {
	case limits.Infinite:
		tc = NewTimeControl(pos)
		tc.infinite = true
	case limits.TimeMs > 0:
		tc = NewDeadlineTimeControl(pos, time.Duration(limits.TimeMs)*time.Millisecond)
	default:
		tc = NewTimeControl(pos)
	}
	if limits.MaxDepth > 0 && limits.MaxDepth < tc.Depth {
		tc.Depth = limits.MaxDepth
	}
	return tc
}

// thinkingTime calculates how much time to think this move.
// t is the remaining time, i the increment.
func (tc *TimeControl) thinkingTime(t, i time.Duration) time.Duration {
	// The formula uses more time early on and relies more on the
	// increment later.
	tmp := time.Duration(tc.MovesToGo)
	if tt := (t + (tmp-1)*i) / tmp; tt < t {
		return tt
	}
	return t
}

// Start starts the timer. Should be called as soon as possible after
// the search request arrives.
func (tc *TimeControl) Start(ponder bool) {
	// Branch more when there are more pieces. With fewer pieces
	// there is less mobility and the hash table kicks in more often.
	branchFactor := time.Duration(defaultBranchFactor)
	for np := tc.numPieces - 2; np > 0; np /= 6 {
		branchFactor++
	}
	for i := 4; i > 0; i /= 2 {
		if tc.MovesToGo <= i {
			branchFactor++
		}
	}

	var otime, oinc time.Duration // our time and increment
	var ttime, tinc time.Duration // their time and increment
	if tc.sideToMove == board.White {
		otime, oinc = tc.WTime, tc.WInc
		ttime, tinc = tc.BTime, tc.BInc
	} else {
		otime, oinc = tc.BTime, tc.BInc
		ttime, tinc = tc.WTime, tc.WInc
	}

	tc.stopped.Store(false)
	tc.ponderhit.Store(!ponder)

	// The search stops such that the last iteration has enough time
	// to finish inside the allotted time.
	tc.searchTime = tc.thinkingTime(otime, oinc) / branchFactor
	// Pondering stops based on the opponent's time plus some of ours.
	tc.ponderTime = (tc.thinkingTime(ttime, tinc) + tc.searchTime/2) / branchFactor

	now := time.Now()
	tc.ponderDeadline = now.Add(tc.ponderTime)
	tc.searchDeadline = now.Add(tc.searchTime)
}

// NextDepth returns true if the search should start iterating depth.
// At least a few plies are always searched so a move can be returned.
func (tc *TimeControl) NextDepth(depth int32) bool {
	return depth <= tc.Depth && (depth <= 2 || !tc.Stopped())
}

// PonderHit switches to our own time.
func (tc *TimeControl) PonderHit() {
	tc.searchDeadline = time.Now().Add(tc.searchTime)
	tc.ponderhit.Store(true)
}

// Stop marks the search as stopped.
func (tc *TimeControl) Stop() {
	tc.stopped.Store(true)
}

// Stopped returns true if the budget is exhausted.
func (tc *TimeControl) Stopped() bool {
	if tc.stopped.Load() {
		return true
	}
	if tc.infinite {
		return false
	}
	if tc.ponderhit.Load() && time.Now().After(tc.searchDeadline) {
		tc.stopped.Store(true)
		return true
	}
	if !tc.ponderhit.Load() && time.Now().After(tc.ponderDeadline) {
		tc.stopped.Store(true)
		return true
	}
	return false
}
