// Copyright 2014-2017 The Zurichess Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// zobrist.go contains the magic numbers used for Zobrist hashing.
//
// More information on Zobrist hashing can be found in the paper:
// http://research.cs.wisc.edu/techreports/1970/TR88.pdf

package board

import (
	"math/rand"
)

var (
	// The zobrist* arrays contain the magic numbers used for hashing.
	// Generation is deterministic given the fixed seed so two runs
	// produce bitwise identical keys for the same position sequence.

	zobristPiece  [PieceArraySize][SquareArraySize]uint64
	zobristEpFile [8]uint64
	zobristCastle [CastleArraySize]uint64
	zobristSide   uint64
)

func rand64(r *rand.Rand) uint64 {
	return uint64(r.Int63())<<32 ^ uint64(r.Int63())
}

func init() {
	r := rand.New(rand.NewSource(1))
	for pi := 0; pi < PieceArraySize; pi++ {
		for sq := 0; sq < SquareArraySize; sq++ {
			zobristPiece[pi][sq] = rand64(r)
		}
	}
	for f := 0; f < 8; f++ {
		zobristEpFile[f] = rand64(r)
	}
	for c := 1; c < CastleArraySize; c++ {
		zobristCastle[c] = rand64(r)
	}
	zobristSide = rand64(r)
}

// recomputeZobrist computes the key of the position from scratch.
// The incremental key must always equal this value; the from-scratch
// version exists for audits and tests.
func (pos *Position) recomputeZobrist() uint64 {
	var key uint64
	for sq := SquareMinValue; sq <= SquareMaxValue; sq++ {
		if pi := pos.Board[sq]; pi != NoPiece {
			key ^= zobristPiece[pi][sq]
		}
	}
	key ^= zobristCastle[pos.curr.castle]
	if ep := pos.curr.enpassant; ep != NoSquare {
		key ^= zobristEpFile[ep.File()]
	}
	if pos.SideToMove == Black {
		key ^= zobristSide
	}
	return key
}
