// Copyright 2014-2017 The Zurichess Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// move_ordering.go generates and orders moves for the search as a
// lazy sequence of phases: hash move, winning captures, killers and
// counter move, losing captures, then quiet moves by history. Many
// times later phases are never generated because a cutoff occurs.

package engine

import (
	"bitbucket.org/lucernechess/lucerne/board"
)

// MaxPly bounds the search depth including extensions.
const MaxPly = 128

const (
	// Move generation states.

	msHash          = iota // return the hash move
	msGenViolent           // generate captures and promotions
	msReturnGood           // return captures with SEE >= threshold
	msGenKiller            // queue killers and the counter move
	msReturnKiller         // return killer moves in order
	msReturnBad            // return captures with SEE < threshold
	msGenQuiet             // generate remaining quiet moves
	msReturnQuiet          // return quiet moves ordered by history
	msDone                 // all moves returned
)

// historyTable keeps how well quiet moves performed, indexed by the
// from and to squares.
type historyTable [64][64]int32

const historyMax = 1 << 14

func (ht *historyTable) get(m board.Move) int32 {
	return ht[m.From()][m.To()]
}

// add increments the history entry with clamping.
func (ht *historyTable) add(m board.Move, bonus int32) {
	v := ht[m.From()][m.To()] + bonus
	if v > historyMax {
		v = historyMax
	} else if v < -historyMax {
		v = -historyMax
	}
	ht[m.From()][m.To()] = v
}

// decay halves every entry. Called between iterations so old signal
// fades out.
func (ht *historyTable) decay() {
	for i := range ht {
		for j := range ht[i] {
			ht[i][j] >>= 1
		}
	}
}

// counterTable records the refutation of the opponent's previous move,
// indexed by that move's from and to squares.
type counterTable [64][64]board.Move

// moveStack holds the moves of one ply.
type moveStack struct {
	moves []board.Move // pending moves of the current phase
	order []int32      // weight of each move for comparison

	bad      []board.Move // losing captures deferred after killers
	badOrder []int32

	kind   int // All or Violent
	state  int
	hash   board.Move
	killer [3]board.Move // two killer moves and the counter move
}

// stack is a stack of plies.
type stack struct {
	position *board.Position
	moves    []moveStack

	history  *historyTable
	counters *counterTable

	seeThreshold int32 // captures below this SEE order late
}

// Reset clears the stack for a new position.
func (st *stack) Reset(pos *board.Position) {
	st.position = pos
	st.moves = st.moves[:0]
}

// get returns the moveStack for the current ply,
// allocating if necessary.
func (st *stack) get() *moveStack {
	for len(st.moves) <= st.position.Ply {
		st.moves = append(st.moves, moveStack{
			moves: make([]board.Move, 0, 16),
			order: make([]int32, 0, 16),
		})
	}
	return &st.moves[st.position.Ply]
}

// GenerateMoves begins a new phased generation for the current ply.
// kind is board.GenAll or board.GenViolent; hash is the move from
// transposition table, possibly NullMove.
func (st *stack) GenerateMoves(kind int, hash board.Move) {
	ms := st.get()
	ms.moves = ms.moves[:0] // keep the backing memory
	ms.order = ms.order[:0]
	ms.bad = ms.bad[:0]
	ms.badOrder = ms.badOrder[:0]
	ms.kind = kind
	ms.state = msHash
	ms.hash = hash
	ms.killer[2] = board.NullMove // killers persist, the counter is refreshed
}

// mvvlva orders captures by most valuable victim, least valuable
// aggressor.
func (st *stack) mvvlva(m board.Move) int32 {
	var victim board.Figure
	if m.Flag() == board.EnPassant {
		victim = board.Pawn
	} else if capt := st.position.Get(m.To()); capt != board.NoPiece {
		victim = capt.Figure()
	}
	attacker := st.position.Get(m.From()).Figure()
	score := seeValue[victim]*64 - seeValue[attacker]
	if p := m.Promotion(); p != board.NoFigure {
		score += seeValue[p] * 64
	}
	return score
}

// Gaps from Best Increments for the Average Case of Shellsort,
// Marcin Ciura.
var shellSortGaps = [...]int{132, 57, 23, 10, 4, 1}

// sort orders ms.moves ascending by ms.order so the best move pops
// off the back first.
func (ms *moveStack) sort() {
	for _, gap := range shellSortGaps {
		for i := gap; i < len(ms.order); i++ {
			j := i
			to, tm := ms.order[j], ms.moves[j]
			for ; j >= gap && ms.order[j-gap] > to; j -= gap {
				ms.order[j] = ms.order[j-gap]
				ms.moves[j] = ms.moves[j-gap]
			}
			ms.order[j], ms.moves[j] = to, tm
		}
	}
}

// popFront pops the highest ordered pending move.
func (ms *moveStack) popFront() board.Move {
	if len(ms.moves) == 0 {
		return board.NullMove
	}
	last := len(ms.moves) - 1
	move := ms.moves[last]
	ms.moves = ms.moves[:last]
	ms.order = ms.order[:last]
	return move
}

// PopMove returns the next move to search, NullMove when exhausted.
func (st *stack) PopMove() board.Move {
	ms := &st.moves[st.position.Ply]
	for {
		switch ms.state {
		case msHash:
			// Return the hash move directly, without generating
			// anything.
			ms.state = msGenViolent
			if ms.hash != board.NullMove && st.position.IsPseudoLegal(ms.hash) {
				return ms.hash
			}
			ms.hash = board.NullMove

		case msGenViolent:
			ms.state = msReturnGood
			st.position.GenerateMoves(board.GenViolent, &ms.moves)
			for _, m := range ms.moves {
				ms.order = append(ms.order, st.mvvlva(m))
			}
			ms.sort()

		case msReturnGood:
			m := ms.popFront()
			if m == board.NullMove {
				if ms.kind&board.GenQuiet == 0 {
					// Quiescence skips killers and quiets but
					// still tries the losing captures.
					ms.state = msReturnBad
				} else {
					ms.state = msGenKiller
				}
				break
			}
			if m == ms.hash {
				break
			}
			// Defer captures losing material until after the
			// killers.
			if !seeAtLeast(st.position, m, st.seeThreshold) {
				ms.bad = append(ms.bad, m)
				break
			}
			return m

		case msGenKiller:
			// Moves are pushed in reverse order; the stack pops
			// the primary killer first.
			ms.state = msReturnKiller
			prev := st.position.LastMove()
			if cm := st.counters[prev.From()][prev.To()]; cm != board.NullMove &&
				cm != ms.killer[0] && cm != ms.killer[1] {
				ms.killer[2] = cm
				ms.moves = append(ms.moves, cm)
				ms.order = append(ms.order, -2)
			}
			if m := ms.killer[1]; m != board.NullMove {
				ms.moves = append(ms.moves, m)
				ms.order = append(ms.order, -1)
			}
			if m := ms.killer[0]; m != board.NullMove {
				ms.moves = append(ms.moves, m)
				ms.order = append(ms.order, 0)
			}

		case msReturnKiller:
			m := ms.popFront()
			if m == board.NullMove {
				ms.state = msReturnBad
			} else if m != ms.hash && m.IsQuiet() && st.position.IsPseudoLegal(m) {
				return m
			}

		case msReturnBad:
			if len(ms.bad) == 0 {
				if ms.kind&board.GenQuiet == 0 {
					ms.state = msDone
				} else {
					ms.state = msGenQuiet
				}
				break
			}
			last := len(ms.bad) - 1
			m := ms.bad[last]
			ms.bad = ms.bad[:last]
			return m

		case msGenQuiet:
			ms.state = msReturnQuiet
			st.position.GenerateMoves(board.GenQuiet, &ms.moves)
			for _, m := range ms.moves {
				ms.order = append(ms.order, st.history.get(m))
			}
			ms.sort()

		case msReturnQuiet:
			m := ms.popFront()
			if m == board.NullMove {
				ms.state = msDone
			} else if m != ms.hash && !st.IsKiller(m) {
				return m
			}

		case msDone:
			// Just in case another move is requested.
			return board.NullMove
		}
	}
}

// IsKiller returns true if m is a killer or counter move for the
// current ply.
func (st *stack) IsKiller(m board.Move) bool {
	ms := &st.moves[st.position.Ply]
	return m == ms.killer[0] || m == ms.killer[1] || m == ms.killer[2]
}

// SaveKiller records a quiet move that caused a beta cutoff: it
// rotates into the killer slot and becomes the counter move of the
// opponent's previous move.
func (st *stack) SaveKiller(m board.Move) {
	ms := &st.moves[st.position.Ply]
	if !m.IsQuiet() {
		return
	}
	prev := st.position.LastMove()
	st.counters[prev.From()][prev.To()] = m
	if m != ms.killer[0] {
		ms.killer[1] = ms.killer[0]
		ms.killer[0] = m
	}
}
