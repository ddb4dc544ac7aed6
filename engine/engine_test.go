// Copyright 2014-2017 The Zurichess Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/lucernechess/lucerne/board"
)

func newTestEngine(t testing.TB, fen string, opts Options) *Engine {
	pos, err := board.PositionFromFEN(fen)
	if err != nil {
		t.Fatalf("PositionFromFEN(%q): %v", fen, err)
	}
	return NewEngine(pos, nil, nil, opts)
}

func TestMateInTwo(t *testing.T) {
	e := newTestEngine(t, "6k1/5ppp/8/8/8/8/5PPP/R5K1 w - - 0 1", DefaultOptions())
	res, err := e.Search(Limits{MaxDepth: 6})
	require.NoError(t, err)

	assert.True(t, IsMateScore(res.Score), "expected a mate score, got %d", res.Score)
	assert.Equal(t, int32(2), MateIn(res.Score), "expected mate in 2")
	assert.Equal(t, "a1a8", res.BestMove.UCI(), "Ra8+ begins the mating sequence")
}

func TestMateInOne(t *testing.T) {
	// Back rank: Ra8 is mate on the spot.
	e := newTestEngine(t, "6k1/5ppp/8/8/8/8/8/R5KR w - - 0 1", DefaultOptions())
	res, err := e.Search(Limits{MaxDepth: 4})
	require.NoError(t, err)
	assert.Equal(t, int32(1), MateIn(res.Score))
}

func TestTTCutoffWarm(t *testing.T) {
	e := newTestEngine(t, board.FENStartPos, DefaultOptions())
	first, err := e.Search(Limits{MaxDepth: 7})
	require.NoError(t, err)
	second, err := e.Search(Limits{MaxDepth: 7})
	require.NoError(t, err)

	assert.Equal(t, first.BestMove, second.BestMove)
	assert.Equal(t, first.Score, second.Score)
	assert.Less(t, second.Nodes, first.Nodes, "warmed hash must search strictly fewer nodes")
}

func TestSingleThreadDeterminism(t *testing.T) {
	run := func() Result {
		e := newTestEngine(t, "r4rk1/1ppqbppp/p1np1n2/4p3/2B1P1b1/2PP1N2/PP1N1PPP/R1BQR1K1 w - - 0 1", DefaultOptions())
		res, err := e.Search(Limits{MaxDepth: 6})
		require.NoError(t, err)
		return res
	}
	a, b := run(), run()
	assert.Equal(t, a.BestMove, b.BestMove)
	assert.Equal(t, a.Score, b.Score)
	assert.Equal(t, a.Nodes, b.Nodes, "single-threaded search must be reproducible")
}

func TestStopLiveness(t *testing.T) {
	e := newTestEngine(t, board.FENStartPos, DefaultOptions())
	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := e.Search(Limits{Infinite: true})
		done <- outcome{res, err}
	}()
	time.Sleep(100 * time.Millisecond)
	e.Stop()
	select {
	case out := <-done:
		require.NoError(t, out.err)
		if out.res.BestMove != board.NullMove {
			assertLegal(t, e.Position, out.res.BestMove)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("search did not stop")
	}
}

func assertLegal(t testing.TB, pos *board.Position, m board.Move) {
	t.Helper()
	for _, legal := range pos.LegalMoves() {
		if legal == m {
			return
		}
	}
	t.Fatalf("move %v is not legal in %v", m, pos)
}

func TestNodeLimit(t *testing.T) {
	e := newTestEngine(t, board.FENStartPos, DefaultOptions())
	res, err := e.Search(Limits{NodeLimit: 20000})
	require.NoError(t, err)
	// The limit is polled on a sampling interval, allow the slack.
	assert.Less(t, res.Nodes, uint64(20000+4*checkpointStep))
	if res.BestMove != board.NullMove {
		assertLegal(t, e.Position, res.BestMove)
	}
}

func TestMatedPositionReturnsNullMove(t *testing.T) {
	// Side to move is checkmated; there is nothing to play.
	e := newTestEngine(t, "R5k1/5ppp/8/8/8/8/5PPP/6K1 b - - 0 1", DefaultOptions())
	res, err := e.Search(Limits{MaxDepth: 3})
	require.NoError(t, err)
	assert.Equal(t, board.NullMove, res.BestMove)
}

// soundnessOptions disables every speculative cut so the search
// computes the plain minimax value of the quiescence-truncated tree.
func soundnessOptions() Options {
	opts := DefaultOptions()
	opts.NullMove = false
	opts.Futility = false
	opts.Razoring = false
	opts.Aspiration = false
	opts.SingularExtension = false
	opts.ProbCut = false
	opts.CheckExtension = false
	opts.LateMoveReduction = false
	return opts
}

// refNegamax is a straightforward full-width negamax over the same
// quiescence leaves, used as ground truth for search soundness.
func refNegamax(s *searcher, depth int32) int32 {
	if score, done := s.endPosition(); done && s.ply() > 0 {
		return score
	}
	if depth <= 0 {
		return s.searchQuiescence(-InfinityScore, InfinityScore)
	}

	pos := s.pos
	us := pos.Us()
	var buf [board.MaxMoves]board.Move
	moves := buf[:0]
	pos.GenerateMoves(board.GenAll, &moves)

	best := -InfinityScore
	numMoves := 0
	for _, m := range moves {
		pos.DoMove(m)
		if pos.IsChecked(us) {
			pos.UndoMove()
			continue
		}
		numMoves++
		score := -refNegamax(s, depth-1)
		pos.UndoMove()
		best = max(best, score)
	}
	if numMoves == 0 {
		if pos.IsChecked(us) {
			return MatedScore + s.ply()
		}
		return 0
	}
	return best
}

func TestSearchSoundness(t *testing.T) {
	fens := []string{
		"r4rk1/1ppqbppp/p1np1n2/4p3/2B1P1b1/2PP1N2/PP1N1PPP/R1BQR1K1 w - - 0 1",
		"8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1",
	}
	for _, fen := range fens {
		opts := soundnessOptions()
		e := newTestEngine(t, fen, opts)
		res, err := e.Search(Limits{MaxDepth: 3})
		require.NoError(t, err)

		ref := newSearcher(0, e.Position.Clone(), e.eval, NewHashTable(1), &opts,
			&e.stopFlag, &e.nodes)
		want := refNegamax(ref, 3)
		assert.Equal(t, want, res.Score, "%s: pruning-free search must equal minimax", fen)
	}
}

type collectLogger struct {
	infos []Info
}

func (cl *collectLogger) BeginSearch()      {}
func (cl *collectLogger) EndSearch()        {}
func (cl *collectLogger) PrintInfo(in Info) { cl.infos = append(cl.infos, in) }

func TestInfoRecords(t *testing.T) {
	cl := &collectLogger{}
	pos, _ := board.PositionFromFEN(board.FENStartPos)
	e := NewEngine(pos, nil, cl, DefaultOptions())
	res, err := e.Search(Limits{MaxDepth: 5})
	require.NoError(t, err)

	require.NotEmpty(t, cl.infos)
	prev := int32(0)
	for _, in := range cl.infos {
		assert.Greater(t, in.Depth, prev, "depth reports must increase")
		prev = in.Depth
		assert.NotEmpty(t, in.PV)
		assert.NotZero(t, in.Nodes)
		assert.GreaterOrEqual(t, in.SelDepth, in.Depth-1)
	}
	last := cl.infos[len(cl.infos)-1]
	assert.Equal(t, res.BestMove, last.PV[0])
	assert.Equal(t, res.Depth, last.Depth)
}

func TestSearchAfterApplyUCIMove(t *testing.T) {
	e := newTestEngine(t, board.FENStartPos, DefaultOptions())
	require.NoError(t, e.ApplyUCIMove("e2e4"))
	require.NoError(t, e.ApplyUCIMove("e7e5"))
	assert.ErrorIs(t, e.ApplyUCIMove("e1g1"), ErrIllegalMove)
	assert.ErrorIs(t, e.ApplyUCIMove("zzzz"), ErrIllegalMove)

	res, err := e.Search(Limits{MaxDepth: 4})
	require.NoError(t, err)
	assertLegal(t, e.Position, res.BestMove)
}

func TestSetPositionPreservedOnError(t *testing.T) {
	e := newTestEngine(t, board.FENStartPos, DefaultOptions())
	before := e.Position.Zobrist()
	err := e.SetPositionFromFEN("not a fen at all")
	assert.ErrorIs(t, err, ErrMalformedFEN)
	assert.Equal(t, before, e.Position.Zobrist(), "previous position must be preserved")
}

func TestOptionValidation(t *testing.T) {
	e := newTestEngine(t, board.FENStartPos, DefaultOptions())

	assert.NoError(t, e.SetOption("Threads", "4"))
	assert.Equal(t, 4, e.Options.Threads)

	assert.ErrorIs(t, e.SetOption("Threads", "0"), ErrInvalidOption)
	assert.Equal(t, 4, e.Options.Threads, "failed set must not change the option")

	assert.ErrorIs(t, e.SetOption("NoSuchOption", "1"), ErrInvalidOption)
	assert.ErrorIs(t, e.SetOption("Hash", "99999"), ErrInvalidOption)

	assert.NoError(t, e.SetOption("ParallelMode", "LazySMP"))
	assert.Equal(t, LazySMP, e.Options.Parallel)
	assert.NoError(t, e.SetOption("NullMove", "false"))
	assert.False(t, e.Options.NullMove)
	assert.NoError(t, e.SetOption("Pext", "auto"))
}

func TestResizeAndClearHash(t *testing.T) {
	e := newTestEngine(t, board.FENStartPos, DefaultOptions())
	require.NoError(t, e.ResizeHash(4))
	assert.Equal(t, 4, e.Options.HashSizeMB)
	assert.ErrorIs(t, e.ResizeHash(0), ErrInvalidOption)

	_, err := e.Search(Limits{MaxDepth: 4})
	require.NoError(t, err)
	assert.NotZero(t, e.HashStats().Stores)
	e.ClearHash()
}

func TestEvaluateSymmetry(t *testing.T) {
	// Mirrored positions must evaluate to the same score for the
	// side to move.
	eval := NewClassical()
	white := testPosition(t, "4k3/8/8/8/8/8/4P3/4K3 w - - 0 1")
	black := testPosition(t, "4k3/4p3/8/8/8/8/8/4K3 b - - 0 1")
	assert.Equal(t, eval.Evaluate(white), eval.Evaluate(black))
	assert.Positive(t, eval.Evaluate(white), "a pawn up should score positive")
}
