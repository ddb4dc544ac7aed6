// Copyright 2014-2017 The Zurichess Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/lucernechess/lucerne/board"
)

func TestLazySMPSmoke(t *testing.T) {
	opts := DefaultOptions()
	opts.Threads = 4
	opts.Parallel = LazySMP
	e := newTestEngine(t, board.FENStartPos, opts)
	res, err := e.Search(Limits{MaxDepth: 7})
	require.NoError(t, err)

	assert.NotEqual(t, board.NullMove, res.BestMove)
	assertLegal(t, e.Position, res.BestMove)
	assert.GreaterOrEqual(t, res.Depth, int32(4))
	assert.NotEmpty(t, res.PV)
	assert.Equal(t, res.BestMove, res.PV[0])
}

func TestWorkStealingSmoke(t *testing.T) {
	opts := DefaultOptions()
	opts.Threads = 4
	opts.Parallel = WorkStealing
	opts.SplitDepth = 3
	opts.SplitMoves = 2
	e := newTestEngine(t, "r4rk1/1ppqbppp/p1np1n2/4p3/2B1P1b1/2PP1N2/PP1N1PPP/R1BQR1K1 w - - 0 1", opts)
	res, err := e.Search(Limits{MaxDepth: 7})
	require.NoError(t, err)

	assert.NotEqual(t, board.NullMove, res.BestMove)
	assertLegal(t, e.Position, res.BestMove)
	assert.GreaterOrEqual(t, res.Depth, int32(4))
}

func TestParallelMateAgreement(t *testing.T) {
	// All modes must find the forced mate.
	for _, mode := range []ParallelMode{WorkStealing, LazySMP} {
		opts := DefaultOptions()
		opts.Threads = 2
		opts.Parallel = mode
		e := newTestEngine(t, "6k1/5ppp/8/8/8/8/5PPP/R5K1 w - - 0 1", opts)
		res, err := e.Search(Limits{MaxDepth: 6})
		require.NoError(t, err)
		assert.True(t, IsMateScore(res.Score), "mode %v missed the mate", mode)
		assert.Equal(t, "a1a8", res.BestMove.UCI())
	}
}

func TestSplitPointCutoff(t *testing.T) {
	moves := []board.Move{
		board.MakeMove(board.SquareA1, board.SquareB1, board.Quiet),
		board.MakeMove(board.SquareA1, board.SquareC1, board.Quiet),
		board.MakeMove(board.SquareA1, board.SquareD1, board.Quiet),
	}
	sp := newSplitPoint(moves, 5, 0, 100)

	m1, α, _, first, ok := sp.take()
	require.True(t, ok)
	assert.True(t, first)
	assert.Equal(t, int32(0), α)

	// Raising alpha narrows later null windows.
	sp.publish(m1, 40)
	_, α, _, first, ok = sp.take()
	require.True(t, ok)
	assert.False(t, first)
	assert.Equal(t, int32(40), α)

	// A fail high stops the queue.
	m2 := moves[1]
	sp.publish(m2, 120)
	_, _, _, _, ok = sp.take()
	assert.False(t, ok, "cutoff must stop handing out moves")
	assert.Equal(t, m2, sp.bestMove)
	assert.Equal(t, int32(120), sp.bestScore)
}

func TestBestResultKeepsDeepest(t *testing.T) {
	br := &bestResult{}
	m1 := board.MakeMove(board.SquareA1, board.SquareB1, board.Quiet)
	m2 := board.MakeMove(board.SquareA1, board.SquareC1, board.Quiet)

	assert.True(t, br.publish(3, 5, 10, m1, []board.Move{m1}))
	assert.False(t, br.publish(2, 9, 99, m2, []board.Move{m2}), "shallower result must not replace")
	assert.False(t, br.publish(4, 9, 99, board.NullMove, nil), "null move never published")
	assert.True(t, br.publish(4, 6, 20, m2, []board.Move{m2, m1}))

	res := br.result(1234, 0)
	assert.Equal(t, m2, res.BestMove)
	assert.Equal(t, int32(4), res.Depth)
	assert.Equal(t, m1, res.PonderMove)
	assert.Equal(t, uint64(1234), res.Nodes)
}

func TestWorkStealingMatchesSingleThreadMove(t *testing.T) {
	// Different thread counts may disagree on tie-breaks, but on a
	// position with a clear tactic they must agree.
	fen := "r1bqkb1r/pppp1ppp/2n2n2/4p2Q/2B1P3/8/PPPP1PPP/RNB1K1NR w KQkq - 0 1"
	want := "h5f7" // Scholar's mate

	for _, threads := range []int{1, 4} {
		opts := DefaultOptions()
		opts.Threads = threads
		e := newTestEngine(t, fen, opts)
		res, err := e.Search(Limits{MaxDepth: 5})
		require.NoError(t, err)
		assert.Equal(t, want, res.BestMove.UCI(), "threads=%d", threads)
	}
}
