// Copyright 2014-2017 The Zurichess Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package engine

import (
	"bitbucket.org/lucernechess/lucerne/board"
)

const (
	pvTableSize = 1 << 13
	pvTableMask = pvTableSize - 1
)

type pvEntry struct {
	// lock is used to handle hash conflicts.
	// Normally set to the position's Zobrist key.
	lock uint64
	// move on the principal variation for this position.
	move board.Move
}

// pvTable is like the hash table, but only keeps the principal
// variation.
//
// The additional table to store the PV was suggested by Robert Hyatt. See
//
// * http://www.talkchess.com/forum/viewtopic.php?topic_view=threads&p=369163&t=35982
// * http://www.talkchess.com/forum/viewtopic.php?t=36099
//
// During alpha-beta search entries that are on the principal variation
// are exact nodes, i.e. their score lies exactly between alpha and beta.
type pvTable []pvEntry

func newPvTable() pvTable {
	return make(pvTable, pvTableSize)
}

// Put inserts a new entry. Ignores NullMove.
func (pv pvTable) Put(pos *board.Position, move board.Move) {
	if move == board.NullMove {
		return
	}
	zobrist := pos.Zobrist()
	pv[zobrist&pvTableMask] = pvEntry{
		lock: zobrist,
		move: move,
	}
}

func (pv pvTable) get(pos *board.Position) board.Move {
	zobrist := pos.Zobrist()
	if entry := &pv[zobrist&pvTableMask]; entry.lock == zobrist {
		return entry.move
	}
	return board.NullMove
}

// Get reconstructs the principal variation by walking the best-move
// chain, stopping at a null move, an illegal move, or a repetition of
// a visited key.
func (pv pvTable) Get(pos *board.Position) []board.Move {
	seen := make(map[uint64]bool)
	var moves []board.Move

	next := pv.get(pos)
	for next != board.NullMove && !seen[pos.Zobrist()] && pos.IsPseudoLegal(next) {
		seen[pos.Zobrist()] = true
		us := pos.SideToMove
		pos.DoMove(next)
		if pos.IsChecked(us) {
			pos.UndoMove()
			break
		}
		moves = append(moves, next)
		next = pv.get(pos)
	}

	// Undo all moves, back to the initial state.
	for range moves {
		pos.UndoMove()
	}
	return moves
}
