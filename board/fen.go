// Copyright 2014-2017 The Zurichess Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// fen.go parses and formats positions in Forsyth-Edwards Notation,
// http://en.wikipedia.org/wiki/Forsyth%E2%80%93Edwards_Notation

package board

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedFEN is returned when a FEN string does not follow the
// six-field grammar. No state is mutated on failure.
var ErrMalformedFEN = errors.New("malformed FEN")

var symbolToPiece = map[byte]Piece{
	'P': WhitePawn, 'N': WhiteKnight, 'B': WhiteBishop,
	'R': WhiteRook, 'Q': WhiteQueen, 'K': WhiteKing,
	'p': BlackPawn, 'n': BlackKnight, 'b': BlackBishop,
	'r': BlackRook, 'q': BlackQueen, 'k': BlackKing,
}

// PositionFromFEN parses fen and returns the position.
func PositionFromFEN(fen string) (*Position, error) {
	f := strings.Fields(fen)
	if len(f) != 6 {
		return nil, fmt.Errorf("%w: expected 6 fields, got %d", ErrMalformedFEN, len(f))
	}

	pos := NewPosition()
	if err := parsePiecePlacement(f[0], pos); err != nil {
		return nil, err
	}
	switch f[1] {
	case "w":
		pos.SetSideToMove(White)
	case "b":
		pos.SetSideToMove(Black)
	default:
		return nil, fmt.Errorf("%w: bad side to move %q", ErrMalformedFEN, f[1])
	}
	castle, err := parseCastlingAbility(f[2])
	if err != nil {
		return nil, err
	}
	pos.SetCastlingAbility(castle)
	if f[3] != "-" {
		sq, err := SquareFromString(f[3])
		if err != nil {
			return nil, fmt.Errorf("%w: bad en passant square %q", ErrMalformedFEN, f[3])
		}
		// The target sits behind the pushed pawn so only ranks 3
		// and 6 are meaningful.
		if sq.Rank() != 2 && sq.Rank() != 5 {
			return nil, fmt.Errorf("%w: en passant square %v outside ranks 3 and 6", ErrMalformedFEN, sq)
		}
		pos.SetEnpassantSquare(sq)
	}
	if pos.HalfMoveClock, err = strconv.Atoi(f[4]); err != nil || pos.HalfMoveClock < 0 {
		return nil, fmt.Errorf("%w: bad halfmove clock %q", ErrMalformedFEN, f[4])
	}
	if pos.FullMoveNumber, err = strconv.Atoi(f[5]); err != nil || pos.FullMoveNumber < 1 {
		return nil, fmt.Errorf("%w: bad fullmove number %q", ErrMalformedFEN, f[5])
	}
	pos.curr.halfMove = pos.HalfMoveClock

	for col := White; col <= Black; col++ {
		if pos.ByPiece(col, King).Popcnt() != 1 {
			return nil, fmt.Errorf("%w: %v must have exactly one king", ErrMalformedFEN, col)
		}
	}
	if pos.ByFigure[Pawn]&(BbRank1|BbRank8) != 0 {
		return nil, fmt.Errorf("%w: pawn on rank 1 or 8", ErrMalformedFEN)
	}
	return pos, nil
}

func parsePiecePlacement(s string, pos *Position) error {
	r, f := 7, 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '/':
			if f != 8 || r == 0 {
				return fmt.Errorf("%w: bad piece placement", ErrMalformedFEN)
			}
			r, f = r-1, 0
		case '1' <= c && c <= '8':
			f += int(c - '0')
		default:
			pi, ok := symbolToPiece[c]
			if !ok || f >= 8 {
				return fmt.Errorf("%w: bad piece placement", ErrMalformedFEN)
			}
			pos.Put(RankFile(r, f), pi)
			f++
		}
	}
	if r != 0 || f != 8 {
		return fmt.Errorf("%w: bad piece placement", ErrMalformedFEN)
	}
	return nil
}

func parseCastlingAbility(s string) (Castle, error) {
	if s == "-" {
		return NoCastle, nil
	}
	var castle Castle
	for i := 0; i < len(s); i++ {
		var c Castle
		switch s[i] {
		case 'K':
			c = WhiteOO
		case 'Q':
			c = WhiteOOO
		case 'k':
			c = BlackOO
		case 'q':
			c = BlackOOO
		default:
			return NoCastle, fmt.Errorf("%w: bad castling ability %q", ErrMalformedFEN, s)
		}
		if castle&c != 0 {
			return NoCastle, fmt.Errorf("%w: duplicated castling ability %q", ErrMalformedFEN, s)
		}
		castle |= c
	}
	return castle, nil
}

// String returns the position in FEN format.
func (pos *Position) String() string {
	var sb strings.Builder
	for r := 7; r >= 0; r-- {
		empty := 0
		for f := 0; f < 8; f++ {
			pi := pos.Board[RankFile(r, f)]
			if pi == NoPiece {
				empty++
				continue
			}
			if empty != 0 {
				sb.WriteByte(byte('0' + empty))
				empty = 0
			}
			sb.WriteByte(pieceToSymbol[pi])
		}
		if empty != 0 {
			sb.WriteByte(byte('0' + empty))
		}
		if r != 0 {
			sb.WriteByte('/')
		}
	}
	side := " w "
	if pos.SideToMove == Black {
		side = " b "
	}
	sb.WriteString(side)
	sb.WriteString(pos.curr.castle.String())
	sb.WriteByte(' ')
	sb.WriteString(pos.curr.enpassant.String())
	fmt.Fprintf(&sb, " %d %d", pos.HalfMoveClock, pos.FullMoveNumber)
	return sb.String()
}
