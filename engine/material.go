// Copyright 2014-2017 The Zurichess Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// material.go implements a classical material evaluator. The search
// only depends on the Evaluator capability so a neural network or a
// tablebase wrapper can be plugged in instead.
//
// The evaluation is basic: material, piece square tables for pawns
// and kings, a small mobility term, and pawn structure. Mid and end
// game scores are blended by game phase. Pawn structure is cached in
// a concurrent map shared by all workers.

package engine

import (
	"github.com/puzpuzpuz/xsync/v3"

	"bitbucket.org/lucernechess/lucerne/board"
)

// Evaluator scores a position in centipawns from the side to move's
// perspective.
type Evaluator interface {
	Evaluate(pos *board.Position) int32
}

// Score is a pair of mid and end game scores.
type Score struct {
	M, E int32
}

func (s *Score) add(o Score) {
	s.M += o.M
	s.E += o.E
}

func (s *Score) addN(o Score, n int32) {
	s.M += o.M * n
	s.E += o.E * n
}

// Material weights per figure.
var figureBonus = [board.FigureArraySize]Score{
	{0, 0},
	{100, 125},  // pawn
	{345, 330},  // knight
	{355, 350},  // bishop
	{525, 560},  // rook
	{1000, 990}, // queen
	{0, 0},      // king
}

// futilityFigureBonus approximates how much capturing a figure can
// raise the static evaluation; used by futility pruning.
var futilityFigureBonus = [board.FigureArraySize]int32{0, 125, 345, 355, 560, 1000, 0}

// Piece square tables from White's point of view, a1 first.
var pawnPSQT = [64]Score{
	{0, 0}, {0, 0}, {0, 0}, {0, 0}, {0, 0}, {0, 0}, {0, 0}, {0, 0},
	{-6, 2}, {2, 2}, {0, 4}, {-8, 0}, {-8, 0}, {0, 4}, {2, 2}, {-6, 2},
	{-5, 2}, {0, 2}, {2, 2}, {4, 0}, {4, 0}, {2, 2}, {0, 2}, {-5, 2},
	{-4, 4}, {0, 4}, {6, 0}, {16, -2}, {16, -2}, {6, 0}, {0, 4}, {-4, 4},
	{-2, 10}, {2, 8}, {8, 4}, {18, 2}, {18, 2}, {8, 4}, {2, 8}, {-2, 10},
	{4, 26}, {8, 24}, {14, 18}, {18, 14}, {18, 14}, {14, 18}, {8, 24}, {4, 26},
	{12, 52}, {16, 50}, {20, 44}, {22, 40}, {22, 40}, {20, 44}, {16, 50}, {12, 52},
	{0, 0}, {0, 0}, {0, 0}, {0, 0}, {0, 0}, {0, 0}, {0, 0}, {0, 0},
}

var kingPSQT = [64]Score{
	{24, -40}, {32, -26}, {12, -18}, {-2, -14}, {-2, -14}, {12, -18}, {32, -26}, {24, -40},
	{20, -24}, {24, -12}, {4, -4}, {-8, 2}, {-8, 2}, {4, -4}, {24, -12}, {20, -24},
	{-8, -18}, {-10, -4}, {-16, 6}, {-20, 12}, {-20, 12}, {-16, 6}, {-10, -4}, {-8, -18},
	{-18, -12}, {-22, 4}, {-26, 14}, {-32, 18}, {-32, 18}, {-26, 14}, {-22, 4}, {-18, -12},
	{-26, -10}, {-30, 8}, {-34, 18}, {-38, 22}, {-38, 22}, {-34, 18}, {-30, 8}, {-26, -10},
	{-32, -10}, {-36, 6}, {-40, 16}, {-44, 20}, {-44, 20}, {-40, 16}, {-36, 6}, {-32, -10},
	{-36, -14}, {-40, 2}, {-44, 10}, {-48, 14}, {-48, 14}, {-44, 10}, {-40, 2}, {-36, -14},
	{-40, -26}, {-44, -12}, {-48, -4}, {-52, 0}, {-52, 0}, {-48, -4}, {-44, -12}, {-40, -26},
}

var (
	bonusMobility     = Score{3, 4}
	bonusDoublePawn   = Score{-10, -22}
	bonusIsolatedPawn = Score{-9, -12}
	bonusPassedPawn   = [8]Score{{0, 0}, {4, 10}, {6, 14}, {12, 28}, {24, 48}, {48, 86}, {86, 130}, {0, 0}}
)

// mirror flips a square to Black's point of view.
func mirror(sq board.Square) board.Square {
	return sq ^ 0x38
}

// phase interpolates between mid game (0) and end game (256) based on
// the non-pawn material left on the board.
func phase(pos *board.Position) int32 {
	total := int32(16)
	curr := int32(pos.ByFigure[board.Knight].Popcnt()) +
		int32(pos.ByFigure[board.Bishop].Popcnt()) +
		2*int32(pos.ByFigure[board.Rook].Popcnt()) +
		4*int32(pos.ByFigure[board.Queen].Popcnt())
	if curr > total {
		curr = total
	}
	return (total - curr) * 256 / total
}

// Classical is the default material evaluator. Safe for concurrent
// use; the pawn structure cache is shared between workers.
type Classical struct {
	pawns *xsync.MapOf[uint64, Score]
}

// NewClassical returns a new classical evaluator.
func NewClassical() *Classical {
	return &Classical{
		pawns: xsync.NewMapOf[uint64, Score](),
	}
}

// Evaluate scores pos in centipawns from the side to move's
// perspective.
func (c *Classical) Evaluate(pos *board.Position) int32 {
	var eval Score
	for col := board.White; col <= board.Black; col++ {
		var side Score
		c.evaluateSide(pos, col, &side)
		if col == board.White {
			eval.add(side)
		} else {
			eval.M -= side.M
			eval.E -= side.E
		}
	}
	ph := phase(pos)
	score := (eval.M*(256-ph) + eval.E*ph) / 256
	return score * pos.Us().Multiplier()
}

func (c *Classical) evaluateSide(pos *board.Position, us board.Color, eval *Score) {
	all := pos.ByColor[board.White] | pos.ByColor[board.Black]

	for fig := board.Knight; fig <= board.Queen; fig++ {
		for bb := pos.ByPiece(us, fig); bb != 0; {
			sq := bb.Pop()
			eval.add(figureBonus[fig])
			var mob board.Bitboard
			switch fig {
			case board.Knight:
				mob = board.KnightAttacks(sq)
			case board.Bishop:
				mob = board.BishopAttacks(sq, all)
			case board.Rook:
				mob = board.RookAttacks(sq, all)
			case board.Queen:
				mob = board.QueenAttacks(sq, all)
			}
			eval.addN(bonusMobility, int32((mob &^ pos.ByColor[us]).Popcnt()))
		}
	}

	kingSq := pos.KingSquare(us)
	if us == board.Black {
		kingSq = mirror(kingSq)
	}
	eval.add(kingPSQT[kingSq])

	eval.add(c.evaluatePawnsCached(pos, us))
}

// pawnKey mixes the two pawn bitboards into a cache key.
func pawnKey(pos *board.Position, us board.Color) uint64 {
	ours := uint64(pos.ByPiece(us, board.Pawn))
	theirs := uint64(pos.ByPiece(us.Opposite(), board.Pawn))
	h := murmurMix(ours, murmurSeed[us])
	return murmurMix(theirs, h)
}

func (c *Classical) evaluatePawnsCached(pos *board.Position, us board.Color) Score {
	key := pawnKey(pos, us)
	if e, ok := c.pawns.Load(key); ok {
		return e
	}
	e := evaluatePawns(pos, us)
	c.pawns.Store(key, e)
	return e
}

func evaluatePawns(pos *board.Position, us board.Color) Score {
	var eval Score
	ours := pos.ByPiece(us, board.Pawn)
	theirs := pos.ByPiece(us.Opposite(), board.Pawn)

	for bb := ours; bb != 0; {
		sq := bb.Pop()
		eval.add(figureBonus[board.Pawn])

		psq := sq
		rank := sq.Rank()
		if us == board.Black {
			psq = mirror(sq)
			rank = 7 - rank
		}
		eval.add(pawnPSQT[psq])

		file := board.FileBb(sq.File())
		adjacent := board.West(file) | board.East(file)
		if ours&file&^sq.Bitboard() != 0 {
			eval.add(bonusDoublePawn)
		}
		if ours&adjacent == 0 {
			eval.add(bonusIsolatedPawn)
		}
		// Passed: no enemy pawn in front on this or an adjacent file.
		front := forwardSpan(us, sq.Bitboard())
		if theirs&(front|board.West(front)|board.East(front)) == 0 {
			eval.add(bonusPassedPawn[rank])
		}
	}
	return eval
}

// forwardSpan returns all squares in front of bb towards the
// opponent of col.
func forwardSpan(col board.Color, bb board.Bitboard) board.Bitboard {
	if col == board.White {
		bb = bb << 8
		bb |= bb << 8
		bb |= bb << 16
		bb |= bb << 32
		return bb
	}
	bb = bb >> 8
	bb |= bb >> 8
	bb |= bb >> 16
	bb |= bb >> 32
	return bb
}

var murmurSeed = [board.ColorArraySize]uint64{
	0x77a166129ab66e91,
	0x4f4863d5038ea3a3,
}

// murmurMix quickly mixes two integers; murmur-inspired.
func murmurMix(k, h uint64) uint64 {
	h ^= k
	h *= 0xc6a4a7935bd1e995
	return h ^ h>>33
}
