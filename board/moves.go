// Copyright 2014-2017 The Zurichess Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// moves.go deals with move parsing.

package board

import (
	"errors"
	"fmt"
)

// ErrNoSuchMove is returned when a parsed move is not legal in the
// current position.
var ErrNoSuchMove = errors.New("no such move")

var symbolToFigure = map[byte]Figure{
	'n': Knight, 'b': Bishop, 'r': Rook, 'q': Queen,
	'N': Knight, 'B': Bishop, 'R': Rook, 'Q': Queen,
}

// LegalMoves returns all legal moves of the current position.
// Convenience for parsing and tests; the search filters legality
// itself through DoMove/UndoMove.
func (pos *Position) LegalMoves() []Move {
	var buf [MaxMoves]Move
	moves := buf[:0]
	pos.GenerateMoves(GenAll, &moves)
	var legal []Move
	us := pos.SideToMove
	for _, m := range moves {
		pos.DoMove(m)
		if !pos.IsChecked(us) {
			legal = append(legal, m)
		}
		pos.UndoMove()
	}
	return legal
}

// UCIToMove parses a move in UCI format: "e2e4", "e1g1" (castling as
// the king's two-square move), "e7e8q" (promotion). The move must be
// legal in the current position.
func (pos *Position) UCIToMove(s string) (Move, error) {
	if len(s) != 4 && len(s) != 5 {
		return NullMove, fmt.Errorf("%w: %q", ErrNoSuchMove, s)
	}
	from, err := SquareFromString(s[0:2])
	if err != nil {
		return NullMove, fmt.Errorf("%w: %q", ErrNoSuchMove, s)
	}
	to, err := SquareFromString(s[2:4])
	if err != nil {
		return NullMove, fmt.Errorf("%w: %q", ErrNoSuchMove, s)
	}
	promo := NoFigure
	if len(s) == 5 {
		if promo = symbolToFigure[s[4]]; promo == NoFigure {
			return NullMove, fmt.Errorf("%w: %q", ErrNoSuchMove, s)
		}
	}
	for _, m := range pos.LegalMoves() {
		if m.From() == from && m.To() == to && m.Promotion() == promo {
			return m, nil
		}
	}
	return NullMove, fmt.Errorf("%w: %q", ErrNoSuchMove, s)
}
