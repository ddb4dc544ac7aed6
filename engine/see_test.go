// Copyright 2014-2017 The Zurichess Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"bitbucket.org/lucernechess/lucerne/board"
)

func mustMove(t *testing.T, pos *board.Position, uci string) board.Move {
	t.Helper()
	m, err := pos.UCIToMove(uci)
	if err != nil {
		t.Fatalf("UCIToMove(%q): %v", uci, err)
	}
	return m
}

func TestSeeSimpleWin(t *testing.T) {
	// A rook takes an undefended pawn.
	pos := testPosition(t, "4k3/8/8/3p4/8/8/8/3RK3 w - - 0 1")
	m := mustMove(t, pos, "d1d5")
	assert.Equal(t, seeValue[board.Pawn], see(pos, m))
	assert.True(t, seeAtLeast(pos, m, 0))
}

func TestSeeDefendedPawn(t *testing.T) {
	// Rook takes a pawn defended by a pawn: loses the exchange.
	pos := testPosition(t, "4k3/4p3/3p4/8/8/8/8/3RK3 w - - 0 1")
	m := mustMove(t, pos, "d1d6")
	assert.Equal(t, seeValue[board.Pawn]-seeValue[board.Rook], see(pos, m))
	assert.False(t, seeAtLeast(pos, m, 0))
}

func TestSeeEqualTrade(t *testing.T) {
	// Knight takes knight, recaptured: dead even.
	pos := testPosition(t, "4k3/8/2p5/3n4/8/4N3/8/4K3 w - - 0 1")
	m := mustMove(t, pos, "e3d5")
	assert.Equal(t, int32(0), see(pos, m))
	assert.True(t, seeAtLeast(pos, m, 0))
}

func TestSeeXRay(t *testing.T) {
	// Two rooks doubled against a defended pawn: the second rook
	// enters through the square vacated by the first.
	pos := testPosition(t, "3rk3/3r4/8/8/8/8/3P4/3RK3 b - - 0 1")
	m := mustMove(t, pos, "d7d2")
	// RxP RxR RxR KxR: the king recapture at the end decides the
	// exchange, which the x-rayed rook on d8 cannot see alone.
	assert.Equal(t, seeValue[board.Pawn]-seeValue[board.Rook], see(pos, m))
	assert.False(t, seeAtLeast(pos, m, 0))
}

func TestSeeQuietMove(t *testing.T) {
	// Moving a rook to an empty square no enemy piece attacks.
	pos := testPosition(t, "4k3/2p5/8/8/8/8/8/R3K3 w - - 0 1")
	m := mustMove(t, pos, "a1b1")
	assert.Equal(t, int32(0), see(pos, m))
	// Stepping onto a square guarded by a pawn hangs the rook.
	pos2 := testPosition(t, "4k3/2p5/1p6/8/8/8/8/R3K3 w - - 0 1")
	m2 := mustMove(t, pos2, "a1a5")
	assert.Equal(t, -seeValue[board.Rook], see(pos2, m2))
}

func TestSeePromotionPush(t *testing.T) {
	pos := testPosition(t, "8/4P3/8/8/8/7k/8/4K3 w - - 0 1")
	m := mustMove(t, pos, "e7e8q")
	assert.Equal(t, seeValue[board.Queen]-seeValue[board.Pawn], see(pos, m))
}

func TestSeeEnpassant(t *testing.T) {
	pos := testPosition(t, "8/3k4/8/8/3pP3/8/8/4K3 b - e3 0 1")
	m := mustMove(t, pos, "d4e3")
	assert.Equal(t, seeValue[board.Pawn], see(pos, m))
}

func TestMvvlvaOrdersCaptures(t *testing.T) {
	// A queen and a pawn both capturable by the same knight: the
	// queen capture must order first.
	pos := testPosition(t, "4k3/8/3q4/p7/2N5/8/8/4K3 w - - 0 1")
	st := stack{history: new(historyTable), counters: new(counterTable)}
	st.Reset(pos)
	nxq := mustMove(t, pos, "c4d6")
	nxp := mustMove(t, pos, "c4a5")
	assert.Greater(t, st.mvvlva(nxq), st.mvvlva(nxp))
}
