// Copyright 2014-2017 The Zurichess Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Perft is a perft tool.
//
// Perft's main purpose is to test, debug and benchmark move
// generation. To do this we count the number of nodes, captures,
// en passant, castles and promotions for given depths, usually from
// well known positions.
//
// For more results and test descriptions see:
//
//	https://chessprogramming.wikispaces.com/Perft
//	https://chessprogramming.wikispaces.com/Perft+Results
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"bitbucket.org/lucernechess/lucerne/board"
)

var (
	fen      = flag.String("fen", "startpos", "position to search")
	minDepth = flag.Int("min_depth", 1, "minimum depth to search (inclusive)")
	maxDepth = flag.Int("max_depth", 5, "maximum depth to search (inclusive)")
)

var knownPositions = map[string]string{
	"startpos": board.FENStartPos,
	"kiwipete": "r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
	"duplain":  "8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1",
}

// counters counts the leafs after backtracking on a position up to a
// certain depth.
type counters struct {
	nodes      uint64
	captures   uint64
	enpassant  uint64
	castles    uint64
	promotions uint64
}

func (co *counters) add(ot counters) {
	co.nodes += ot.nodes
	co.captures += ot.captures
	co.enpassant += ot.enpassant
	co.castles += ot.castles
	co.promotions += ot.promotions
}

// perft counts the leaf positions at depth.
func perft(pos *board.Position, depth int) counters {
	if depth == 0 {
		return counters{nodes: 1}
	}

	var co counters
	var buf [board.MaxMoves]board.Move
	moves := buf[:0]
	pos.GenerateMoves(board.GenAll, &moves)
	us := pos.SideToMove
	for _, m := range moves {
		pos.DoMove(m)
		if pos.IsChecked(us) {
			pos.UndoMove()
			continue
		}
		if depth == 1 {
			co.nodes++
			switch m.Flag() {
			case board.EnPassant:
				co.enpassant++
				co.captures++
			case board.KingCastle, board.QueenCastle:
				co.castles++
			default:
				if m.IsCapture() {
					co.captures++
				}
				if m.IsPromotion() {
					co.promotions++
				}
			}
		} else {
			co.add(perft(pos, depth-1))
		}
		pos.UndoMove()
	}
	return co
}

func main() {
	flag.Parse()

	f := *fen
	if known, ok := knownPositions[f]; ok {
		f = known
	}
	pos, err := board.PositionFromFEN(f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid FEN:", err)
		os.Exit(1)
	}

	p := message.NewPrinter(language.English)
	p.Printf("searching FEN %q\n", f)
	p.Println("depth        nodes   captures enpassant castles   promotions KNps   elapsed")
	p.Println("-----+------------+----------+---------+---------+----------+------+-------")
	for d := *minDepth; d <= *maxDepth; d++ {
		start := time.Now()
		co := perft(pos, d)
		elapsed := time.Since(start)
		knps := uint64(0)
		if elapsed > 0 {
			knps = co.nodes * uint64(time.Second) / uint64(elapsed) / 1000
		}
		p.Printf("%5d %12d %10d %9d %9d %10d %6d %v\n",
			d, co.nodes, co.captures, co.enpassant, co.castles, co.promotions, knps, elapsed)
	}
}
