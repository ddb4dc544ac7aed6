// Copyright 2014-2017 The Zurichess Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// search.go implements the principal variation search of a single
// worker, with quiescence, transposition table cutoffs and the usual
// pruning and extension set:
//
//   * Aspiration window - https://chessprogramming.wikispaces.com/Aspiration+Windows
//   * Check extension - https://chessprogramming.wikispaces.com/Check+Extensions
//   * Futility Pruning - https://chessprogramming.wikispaces.com/Futility+pruning
//   * History leaf pruning - https://chessprogramming.wikispaces.com/History+Leaf+Pruning
//   * Killer move heuristic - https://chessprogramming.wikispaces.com/Killer+Heuristic
//   * Late move reduction (LMR) - https://chessprogramming.wikispaces.com/Late+Move+Reductions
//   * Mate distance pruning - https://chessprogramming.wikispaces.com/Mate+Distance+Pruning
//   * Null move pruning (NMP) - https://chessprogramming.wikispaces.com/Null+Move+Pruning
//   * Principal variation search (PVS) - https://chessprogramming.wikispaces.com/Principal+Variation+Search
//   * ProbCut - https://chessprogramming.wikispaces.com/ProbCut
//   * Quiescence search - https://chessprogramming.wikispaces.com/Quiescence+Search
//   * Razoring - https://chessprogramming.wikispaces.com/Razoring
//   * Singular extensions - https://chessprogramming.wikispaces.com/Singular+Extensions
//   * Static exchange evaluation - https://chessprogramming.wikispaces.com/Static+Exchange+Evaluation

package engine

import (
	"sync/atomic"

	"bitbucket.org/lucernechess/lucerne/board"
)

const (
	checkDepthExtension   int32 = 1 // how much to extend in case of checks
	checkExtensionCap     int32 = 3 // no check extension above rootDepth + cap
	nullMoveDepthLimit    int32 = 3 // disable null move below this depth
	nullMoveReduction     int32 = 3 // R
	lmrDepthLimit         int32 = 3 // no LMR below this depth
	lmrMoveLimit                = 4 // no LMR for the first moves
	futilityDepthLimit    int32 = 3
	razoringDepthLimit    int32 = 2
	probCutDepthLimit     int32 = 5
	probCutMargin         int32 = 100
	singularDepthLimit    int32 = 8
	singularTTDepthSlack  int32 = 3
	abdadaMinDepth        int32 = 4 // defer duplicated work only at depth and above
	initialAspirationSize int32 = 40

	// checkpointStep is how many nodes are searched between stop
	// flag polls and node counter flushes to the shared atomic.
	checkpointStep uint64 = 2048
)

// Depth-indexed pruning margins.
var (
	futilityMargin = [futilityDepthLimit + 1]int32{0, 150, 300, 450}
	razoringMargin = [razoringDepthLimit + 1]int32{0, 240, 400}
)

// Stats stores statistics about one worker's search.
type Stats struct {
	CacheHit  uint64 // positions found in the transposition table
	CacheMiss uint64 // positions not found
	Nodes     uint64 // nodes searched
	Depth     int32  // completed iteration depth
	SelDepth  int32  // maximum ply reached on the PV
}

// searcher runs the alpha-beta search of one worker. Everything in
// here is private to the worker except the transposition table, the
// evaluator, the stop flag and the shared node counter.
type searcher struct {
	id   int
	pos  *board.Position
	eval Evaluator
	tt   *HashTable
	opts *Options

	stop        *atomic.Bool
	sharedNodes *atomic.Uint64
	nodeLimit   uint64
	timeControl *TimeControl

	stack    stack
	history  historyTable
	counters counterTable
	pvTable  pvTable
	excluded [MaxPly + 8]board.Move // singular extension exclusions by ply

	Stats      Stats
	rootDepth  int32
	checkpoint uint64
	flushed    uint64 // nodes already flushed to the shared counter
	stopped    bool
	abdada     bool  // defer positions reserved by other workers
	violation  error // set in audit mode on a broken invariant
}

func newSearcher(id int, pos *board.Position, eval Evaluator, tt *HashTable, opts *Options,
	stop *atomic.Bool, sharedNodes *atomic.Uint64) *searcher {
	s := &searcher{
		id:          id,
		pos:         pos,
		eval:        eval,
		tt:          tt,
		opts:        opts,
		stop:        stop,
		sharedNodes: sharedNodes,
		pvTable:     newPvTable(),
	}
	s.stack.history = &s.history
	s.stack.counters = &s.counters
	s.stack.seeThreshold = opts.SEEThreshold
	s.stack.Reset(pos)
	return s
}

// ply returns the ply from the root of the search.
func (s *searcher) ply() int32 {
	return int32(s.pos.Ply)
}

// Score evaluates the current position from the side to move's POV.
func (s *searcher) Score() int32 {
	return s.eval.Evaluate(s.pos)
}

// DoMove executes a move, recomputing the Zobrist key from scratch in
// audit mode.
func (s *searcher) DoMove(m board.Move) {
	s.pos.DoMove(m)
	if s.opts.AuditMode && s.violation == nil {
		if err := s.pos.Verify(); err != nil {
			s.violation = err
			s.stop.Store(true)
		}
	}
}

// UndoMove undoes the last move.
func (s *searcher) UndoMove() {
	s.pos.UndoMove()
	if s.opts.AuditMode && s.violation == nil {
		if err := s.pos.Verify(); err != nil {
			s.violation = err
			s.stop.Store(true)
		}
	}
}

// countNode updates node accounting and polls the stop conditions on
// a sampling interval. Counters aggregate in a local scalar and flush
// to the shared atomic every checkpointStep nodes.
func (s *searcher) countNode() {
	s.Stats.Nodes++
	if s.stopped {
		return
	}
	if s.Stats.Nodes >= s.checkpoint {
		s.checkpoint = s.Stats.Nodes + checkpointStep
		total := s.sharedNodes.Add(s.Stats.Nodes - s.flushed)
		s.flushed = s.Stats.Nodes
		if s.stop.Load() ||
			s.timeControl != nil && s.timeControl.Stopped() ||
			s.nodeLimit > 0 && total >= s.nodeLimit {
			s.stopped = true
		}
	}
}

// flushNodes publishes the nodes not yet reflected in the shared
// counter. Called after each completed iteration and when the worker
// goes idle.
func (s *searcher) flushNodes() {
	if s.Stats.Nodes > s.flushed {
		s.sharedNodes.Add(s.Stats.Nodes - s.flushed)
		s.flushed = s.Stats.Nodes
	}
}

// endPosition determines whether the current position ends the game.
func (s *searcher) endPosition() (int32, bool) {
	pos := s.pos
	if pos.InsufficientMaterial() {
		return 0, true
	}
	if pos.FiftyMoveRule() {
		return 0, true
	}
	// At root we need to keep searching even on a repetition,
	// however deeper in the tree a single repetition prunes.
	if r := pos.RepetitionCount(); s.ply() > 0 && r >= 2 || r >= 3 {
		return 0, true
	}
	return 0, false
}

// retrieveHash gets the current position from the shared table.
func (s *searcher) retrieveHash() hashEntry {
	entry := s.tt.get(s.pos)
	if entry.kind == noEntry {
		s.Stats.CacheMiss++
		return hashEntry{}
	}
	if entry.move != board.NullMove && !s.pos.IsPseudoLegal(entry.move) {
		// A key collision produced a foreign move.
		s.Stats.CacheMiss++
		return hashEntry{}
	}

	// Mate scores are stored relative to the node; adjust them
	// relative to the root.
	if entry.score < int16(KnownLossScore) {
		entry.score += int16(s.ply())
	} else if entry.score > int16(KnownWinScore) {
		entry.score -= int16(s.ply())
	}
	s.Stats.CacheHit++
	return entry
}

// updateHash stores the current position in the shared table.
func (s *searcher) updateHash(α, β, depth, score int32, move board.Move) {
	kind := exact
	if score <= α {
		kind = failedLow
	} else if score >= β {
		kind = failedHigh
	}

	// Save mate scores relative to the current position.
	if score < KnownLossScore {
		if kind == failedHigh {
			return // a lower bound below a known loss carries no data
		}
		score -= s.ply()
	} else if score > KnownWinScore {
		if kind == failedLow {
			return
		}
		score += s.ply()
	}

	s.tt.put(s.pos, hashEntry{
		kind:  kind,
		score: int16(score),
		depth: int8(depth),
		move:  move,
	})
}

// searchQuiescence evaluates the position after solving all captures.
// Only violent moves are considered, and captures losing material are
// discarded by their exchange evaluation.
func (s *searcher) searchQuiescence(α, β int32) int32 {
	s.countNode()
	if s.stopped {
		return 0
	}
	if score, done := s.endPosition(); done {
		return score
	}

	pos := s.pos
	us := pos.Us()
	inCheck := pos.IsChecked(us)

	static := s.Score()
	if static >= β {
		return β
	}
	// Delta pruning: even winning a queen cannot raise alpha.
	if !inCheck && static < α-seeValue[board.Queen] {
		return α
	}
	localα := max(α, static)

	var bestMove board.Move
	s.stack.GenerateMoves(board.GenViolent, board.NullMove)
	for move := s.stack.PopMove(); move != board.NullMove; move = s.stack.PopMove() {
		// Discard captures losing material.
		if !inCheck && !seeAtLeast(pos, move, 0) {
			continue
		}
		s.DoMove(move)
		if pos.IsChecked(us) {
			s.UndoMove()
			continue
		}
		score := -s.searchQuiescence(-β, -localα)
		s.UndoMove()

		if score >= β {
			return β
		}
		if score > localα {
			localα = score
			bestMove = move
		}
	}

	if α < localα && localα < β {
		s.pvTable.Put(pos, bestMove)
	}
	return localα
}

// tryMove descends on the search tree for an already executed move
// and undoes it before returning.
//
// lmr is how much to reduce a late move; nullWindow scouts first when
// alpha was already improved.
func (s *searcher) tryMove(α, β, depth, lmr int32, nullWindow bool) int32 {
	depth--

	score := α + 1
	if lmr > 0 { // reduce late moves
		score = -s.searchTree(-α-1, -α, depth-lmr, true)
	}

	if score > α { // if the reduction is disabled or has failed
		if nullWindow {
			score = -s.searchTree(-α-1, -α, depth, true)
			if α < score && score < β {
				score = -s.searchTree(-β, -α, depth, true)
			}
		} else {
			score = -s.searchTree(-β, -α, depth, true)
		}
	}

	s.UndoMove()
	return score
}

// singular tests whether the hash move is uniquely best: every other
// move is searched at reduced depth with a narrow window below the
// hash score; if they all fail low the hash move deserves one extra
// ply. Only the hash move is ever extended.
func (s *searcher) singular(entry hashEntry, depth int32) bool {
	ply := s.ply()
	singularβ := int32(entry.score) - 2*depth
	s.excluded[ply] = entry.move
	score := s.searchTree(singularβ-1, singularβ, (depth-1)/2, false)
	s.excluded[ply] = board.NullMove
	return score < singularβ
}

// probCut tries to prove that a tactical capture at reduced depth
// already clears beta by a margin, then verifies one ply deeper.
func (s *searcher) probCut(β, depth int32) bool {
	pos := s.pos
	us := pos.Us()
	probCutβ := β + probCutMargin

	var buf [board.MaxMoves]board.Move
	moves := buf[:0]
	pos.GenerateCaptures(&moves)
	for _, m := range moves {
		if !seeAtLeast(pos, m, 1) {
			continue
		}
		s.DoMove(m)
		if pos.IsChecked(us) {
			s.UndoMove()
			continue
		}
		score := -s.searchTree(-probCutβ, -probCutβ+1, depth-3, true)
		if score >= probCutβ {
			// Confirm at higher depth before trusting the cut.
			score = -s.searchTree(-probCutβ, -probCutβ+1, depth-2, true)
		}
		s.UndoMove()
		if s.stopped {
			return false
		}
		if score >= probCutβ {
			return true
		}
	}
	return false
}

// searchTree implements the alpha-beta framework.
//
// α, β represent the lower and upper bounds; depth is the remaining
// search depth; allowNull permits a null move at this node. Returns
// the score of the current position up to depth (modulo reductions
// and extensions) from the current player's POV.
func (s *searcher) searchTree(α, β, depth int32, allowNull bool) int32 {
	ply := s.ply()
	pvNode := α+1 < β
	pos := s.pos
	us := pos.Us()

	s.countNode()
	if s.stopped {
		// The caller discards an incomplete score.
		return 0
	}
	if pvNode && ply > s.Stats.SelDepth {
		s.Stats.SelDepth = ply
	}
	if ply >= MaxPly {
		return s.Score()
	}

	if score, done := s.endPosition(); done {
		if ply != 0 || score != 0 {
			return score
		}
	}

	// Mate pruning: if an ancestor already has a mate in ply moves
	// then the search will always fail low.
	if MateScore-ply <= α {
		return KnownWinScore
	}

	excluded := s.excluded[ply]
	sideIsChecked := pos.IsChecked(us)

	// Check extension, capped so extensions cannot blow up the tree.
	if s.opts.CheckExtension && sideIsChecked &&
		depth < s.rootDepth+checkExtensionCap {
		depth += checkDepthExtension
	}

	// Check the transposition table. Exclusion searches probe for
	// the move but never cut, their window is artificial.
	entry := s.retrieveHash()
	hash := entry.move
	if hash == excluded {
		hash = board.NullMove
	}
	if excluded == board.NullMove && entry.kind != noEntry && depth <= int32(entry.depth) {
		score := int32(entry.score)
		if entry.kind == exact {
			if α < score && score < β {
				s.pvTable.Put(pos, hash)
			}
			return score
		}
		if entry.kind == failedHigh && score >= β {
			return β
		}
		if entry.kind == failedLow && score <= α {
			return α
		}
	}

	if depth <= 0 {
		// This is already won or lost and quiescence cannot
		// change that because it only looks at violent moves.
		if α >= KnownWinScore || β <= KnownLossScore {
			return s.Score()
		}
		score := s.searchQuiescence(α, β)
		if !s.stopped {
			s.updateHash(α, β, 0, score, board.NullMove)
		}
		return score
	}

	// Singular extension: the hash move is extended one ply when
	// every alternative fails low against a margin below its score.
	extendHash := int32(0)
	if s.opts.SingularExtension && depth >= singularDepthLimit &&
		ply > 0 && excluded == board.NullMove &&
		hash != board.NullMove && entry.kind != failedLow &&
		int32(entry.depth) >= depth-singularTTDepthSlack &&
		!IsMateScore(int32(entry.score)) &&
		s.singular(entry, depth) {
		extendHash = 1
	}

	// Null move pruning: if giving the opponent a free move still
	// fails high the position is too good to reach.
	if s.opts.NullMove && allowNull && ply > 0 &&
		depth >= nullMoveDepthLimit &&
		!sideIsChecked &&
		pos.MinorsAndMajors(us) != 0 && // zugzwang guard
		excluded == board.NullMove &&
		KnownLossScore < α && β < KnownWinScore {
		s.DoMove(board.NullMove)
		score := -s.searchTree(-β, -β+1, depth-1-nullMoveReduction, false)
		s.UndoMove()
		if score >= β && !IsMateScore(score) {
			return β
		}
	}

	// Razoring: close to the frontier a hopeless static evaluation
	// drops straight into quiescence.
	if s.opts.Razoring && !sideIsChecked && !pvNode && ply > 0 &&
		depth <= razoringDepthLimit &&
		excluded == board.NullMove &&
		KnownLossScore < α && β < KnownWinScore {
		if s.Score()+razoringMargin[depth] <= α {
			return s.searchQuiescence(α, β)
		}
	}

	// ProbCut.
	if s.opts.ProbCut && depth >= probCutDepthLimit &&
		!sideIsChecked && ply > 0 &&
		excluded == board.NullMove &&
		!IsMateScore(β) && s.probCut(β, depth) {
		return β
	}

	// Futility pruning setup at frontier nodes.
	static := int32(0)
	allowLeafsPruning := false
	if s.opts.Futility && depth <= futilityDepthLimit &&
		!sideIsChecked && !pvNode &&
		KnownLossScore < α && β < KnownWinScore {
		allowLeafsPruning = true
		static = s.Score()
	}

	allowLateMove := s.opts.LateMoveReduction && !sideIsChecked && depth >= lmrDepthLimit

	bestMove, bestScore := board.NullMove, -InfinityScore
	nullWindow := false
	dropped := false // true when not all moves were searched
	numMoves := 0
	numQuiets := 0
	localα := α
	var deferred []board.Move // moves another worker reserved first

	s.stack.GenerateMoves(board.GenAll, hash)
	for phase := 0; phase < 2; phase++ {
		nextMove := s.stack.PopMove
		if phase == 1 {
			// Duplicated work deferred earlier is searched last;
			// by then the reserving worker has usually filled the
			// transposition table.
			i := 0
			nextMove = func() board.Move {
				if i >= len(deferred) {
					return board.NullMove
				}
				i++
				return deferred[i-1]
			}
		}
		for move := nextMove(); move != board.NullMove; move = nextMove() {
			if move == excluded {
				dropped = true
				continue
			}
			critical := move == hash || s.stack.IsKiller(move)
			if phase == 0 && move.IsQuiet() {
				numQuiets++
			}

			// History pruning: quiet moves that performed badly are
			// skipped at shallow depth, past a first-moves grace.
			if allowLeafsPruning && !critical && move.IsQuiet() &&
				depth <= s.opts.HistoryMaxDepth &&
				numQuiets > s.opts.HistoryMinQuietIndex &&
				s.history.get(move) < s.opts.HistoryThreshold {
				dropped = true
				continue
			}

			s.DoMove(move)
			if pos.IsChecked(us) {
				s.UndoMove()
				continue
			}

			// ABDADA: when another worker already reserved this
			// child at sufficient depth, take a different move
			// first.
			childKey := uint64(0)
			if s.abdada && phase == 0 && numMoves > 0 && depth >= abdadaMinDepth {
				childKey = pos.Zobrist()
				if !s.tt.TryStartSearch(childKey, depth) {
					s.UndoMove()
					deferred = append(deferred, move)
					continue
				}
			}
			numMoves++
			givesCheck := pos.IsChecked(us.Opposite())

			// Futility: quiet moves that cannot raise alpha are
			// undone and skipped.
			if allowLeafsPruning && !critical && !givesCheck && move.IsQuiet() &&
				static+futilityMargin[depth] <= localα {
				bestScore = max(bestScore, static)
				dropped = true
				if childKey != 0 {
					s.tt.EndSearch(childKey)
				}
				s.UndoMove()
				continue
			}

			newDepth := depth
			if move == hash {
				newDepth += extendHash
			}

			// Late move reductions for quiet, non-checking moves
			// past the first few, reduced more after many moves, at
			// higher depth and with a poor history.
			lmr := int32(0)
			if allowLateMove && !givesCheck && !critical &&
				numMoves > lmrMoveLimit && move.IsQuiet() {
				lmr = depth/4 + int32(numMoves)/8
				if s.history.get(move) < 0 {
					lmr++
				}
				if lmr > depth-2 {
					lmr = depth - 2
				}
			}

			score := s.tryMove(localα, β, newDepth, lmr, nullWindow)
			if childKey != 0 {
				s.tt.EndSearch(childKey)
			}
			if s.stopped {
				return 0
			}

			if score >= β {
				// Fail high, cut node.
				s.stack.SaveKiller(move)
				if move.IsQuiet() {
					s.history.add(move, depth*depth)
				}
				if excluded == board.NullMove {
					s.updateHash(α, β, depth, score, move)
				}
				return β
			}
			if move.IsQuiet() {
				s.history.add(move, -1)
			}
			if score > bestScore {
				nullWindow = true
				bestMove, bestScore = move, score
				localα = max(localα, score)
			}
		}
	}

	if numMoves == 0 && !dropped {
		// No legal moves: checkmate or stalemate.
		if sideIsChecked {
			bestScore = MatedScore + ply
		} else {
			bestScore = 0
		}
		if excluded == board.NullMove {
			s.updateHash(α, β, depth, bestScore, board.NullMove)
		}
		return bestScore
	}

	if bestScore == -InfinityScore {
		// Every legal move was pruned away; fail low.
		bestScore = localα
	}
	if excluded == board.NullMove && !s.stopped {
		s.updateHash(α, β, depth, bestScore, bestMove)
		if α < bestScore && bestScore < β {
			s.pvTable.Put(pos, bestMove)
		}
	}
	return bestScore
}

// searchRoot iterates the root moves with the principal variation
// search, returning the score and the best move. The ordering stack
// supplies the hash move first.
func (s *searcher) searchRoot(α, β, depth int32) (int32, board.Move) {
	pos := s.pos
	us := pos.Us()
	entry := s.retrieveHash()

	bestMove, bestScore := board.NullMove, -InfinityScore
	nullWindow := false
	numMoves := 0
	localα := α

	s.stack.GenerateMoves(board.GenAll, entry.move)
	for move := s.stack.PopMove(); move != board.NullMove; move = s.stack.PopMove() {
		s.DoMove(move)
		if pos.IsChecked(us) {
			s.UndoMove()
			continue
		}
		numMoves++

		score := s.tryMove(localα, β, depth, 0, nullWindow)
		if s.stopped {
			return 0, bestMove
		}
		if score > bestScore {
			nullWindow = true
			bestMove, bestScore = move, score
			localα = max(localα, score)
		}
		if score >= β {
			break
		}
	}

	if numMoves == 0 {
		if pos.IsChecked(us) {
			return MatedScore, board.NullMove
		}
		return 0, board.NullMove
	}

	s.updateHash(α, β, depth, bestScore, bestMove)
	if α < bestScore && bestScore < β {
		s.pvTable.Put(pos, bestMove)
	}
	return bestScore, bestMove
}

// searchAspirated searches depth with a window bracketed around the
// previous iteration's score, gradually widened on failure.
//
// The widening algorithm is the one used by RobboLito and Stockfish:
// http://www.talkchess.com/forum/viewtopic.php?topic_view=threads&p=499768&t=46624
func (s *searcher) searchAspirated(depth, estimated int32, bias int32) (int32, board.Move) {
	δ := initialAspirationSize
	α := max(estimated-δ+min(bias, 0), -InfinityScore)
	β := min(estimated+δ+max(bias, 0), InfinityScore)

	if depth < 4 || !s.opts.Aspiration {
		α, β = -InfinityScore, InfinityScore
	}

	score, move := int32(0), board.NullMove
	for !s.stopped {
		score, move = s.searchRoot(α, β, depth)
		if score <= α {
			α = max(α-2*(β-α), -InfinityScore)
		} else if score >= β {
			β = min(β+2*(β-α), InfinityScore)
		} else {
			break
		}
	}
	return score, move
}
