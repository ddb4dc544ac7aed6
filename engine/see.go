// Copyright 2014-2017 The Zurichess Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// see.go implements static exchange evaluation using the swap
// algorithm: both sides alternately recapture on the target square
// with their least valuable attacker, and the gain sequence is folded
// as a minimax. Removing each attacker from the occupancy before
// recomputing the attack sets brings x-ray attackers into play.
//
// https://chessprogramming.wikispaces.com/SEE+-+The+Swap+Algorithm

package engine

import (
	"bitbucket.org/lucernechess/lucerne/board"
)

// Fixed figure values for exchange evaluation, distinct from the
// evaluation weights.
var seeValue = [board.FigureArraySize]int32{0, 100, 325, 335, 500, 975, 20000}

// see returns the static exchange evaluation of m, which must be
// valid for the current position and not yet executed.
func see(pos *board.Position, m board.Move) int32 {
	var gain [33]int32
	sq := m.To()
	side := pos.Us().Opposite()
	occ := pos.ByColor[board.White] | pos.ByColor[board.Black]
	occ &^= m.From().Bitboard()

	// Value gained by the initial move.
	if m.Flag() == board.EnPassant {
		occ &^= m.CaptureSquare().Bitboard()
		gain[0] = seeValue[board.Pawn]
	} else if victim := pos.Get(sq); victim != board.NoPiece {
		gain[0] = seeValue[victim.Figure()]
	}
	// The piece that now sits on the target square.
	nextVictim := pos.Get(m.From()).Figure()
	if p := m.Promotion(); p != board.NoFigure {
		gain[0] += seeValue[p] - seeValue[board.Pawn]
		nextVictim = p
	}

	d := 0
	for d < len(gain)-1 {
		att := pos.Attackers(sq, side, occ)
		if att == 0 {
			break
		}
		// Least valuable attacker first.
		var fig board.Figure
		var from board.Bitboard
		for fig = board.Pawn; fig <= board.King; fig++ {
			if from = att & pos.ByFigure[fig]; from != 0 {
				break
			}
		}
		d++
		gain[d] = seeValue[nextVictim] - gain[d-1]
		if max(-gain[d-1], gain[d]) < 0 {
			break
		}
		occ &^= from.LSB()
		nextVictim = fig
		// A pawn recapturing on the last rank promotes.
		if fig == board.Pawn && (sq.Rank() == 0 || sq.Rank() == 7) {
			gain[d] += seeValue[board.Queen] - seeValue[board.Pawn]
			nextVictim = board.Queen
		}
		side = side.Opposite()
	}

	for ; d > 0; d-- {
		gain[d-1] = -max(-gain[d-1], gain[d])
	}
	return gain[0]
}

// seeAtLeast returns true if see(m) >= threshold. Used to split good
// from bad captures and to filter quiescence moves.
func seeAtLeast(pos *board.Position, m board.Move, threshold int32) bool {
	// Capturing a piece at least as valuable as the attacker can
	// never lose material.
	if victim := m.CaptureSquare(); m.IsCapture() && !m.IsPromotion() {
		if pos.Get(victim) != board.NoPiece &&
			seeValue[pos.Get(victim).Figure()] >= seeValue[pos.Get(m.From()).Figure()]+threshold {
			return true
		}
	}
	return see(pos, m) >= threshold
}
