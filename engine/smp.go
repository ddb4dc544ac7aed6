// Copyright 2014-2017 The Zurichess Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// smp.go drives the parallel search. Two modes share the same
// transposition table and evaluator:
//
// LazySMP runs independent iterative-deepening workers over the same
// root, diversified by staggered starting depths and biased
// aspiration windows; they communicate only through the table.
//
// Work stealing creates a split point at the root: a shared queue of
// remaining moves plus the running best score. Workers pull moves and
// search them with the current alpha as the null-window bound; a
// fail high sets the cutoff flag and everybody stops pulling.

package engine

import (
	"fmt"
	"sync"
	"time"

	"bitbucket.org/lucernechess/lucerne/board"
)

// splitWakeup bounds how long the master sleeps before re-checking
// the stop flag while waiting on a split point.
const splitWakeup = 10 * time.Millisecond

// bestResult records the deepest completed iteration across workers.
type bestResult struct {
	mu       sync.Mutex
	depth    int32
	selDepth int32
	score    int32
	move     board.Move
	pv       []board.Move
}

// publish installs a completed iteration if it is the deepest so far.
// Returns true when the result was installed.
func (br *bestResult) publish(depth, selDepth, score int32, move board.Move, pv []board.Move) bool {
	br.mu.Lock()
	defer br.mu.Unlock()
	if depth <= br.depth || move == board.NullMove {
		return false
	}
	br.depth = depth
	br.selDepth = selDepth
	br.score = score
	br.move = move
	br.pv = append(br.pv[:0], pv...)
	return true
}

func (br *bestResult) result(nodes uint64, elapsed time.Duration) Result {
	br.mu.Lock()
	defer br.mu.Unlock()
	res := Result{
		BestMove: br.move,
		Score:    br.score,
		Depth:    br.depth,
		SelDepth: br.selDepth,
		Nodes:    nodes,
		Time:     elapsed,
		PV:       append([]board.Move(nil), br.pv...),
	}
	if len(res.PV) > 1 {
		res.PonderMove = res.PV[1]
	}
	return res
}

// emitInfo reports one completed depth to the logger.
func (e *Engine) emitInfo(depth, selDepth, score int32, pv []board.Move, start time.Time) {
	elapsed := time.Since(start)
	nodes := e.nodes.Load()
	nps := uint64(0)
	if elapsed > 0 {
		nps = nodes * uint64(time.Second) / uint64(elapsed)
	}
	e.Log.PrintInfo(Info{
		Depth:    depth,
		SelDepth: selDepth,
		Time:     elapsed,
		Nodes:    nodes,
		NPS:      nps,
		HashFull: e.tt.HashFull(),
		Score:    score,
		PV:       append([]board.Move(nil), pv...),
	})
}

// recoverWorker keeps a worker panic from crossing the thread
// boundary: the worker is marked degraded and the stop flag raised so
// joined threads surface a clean state.
func (e *Engine) recoverWorker(id int) {
	if r := recover(); r != nil {
		log.Errorf("worker %d degraded: %v", id, r)
		e.stopFlag.Store(true)
	}
}

func (e *Engine) newWorker(id int, limits Limits, tc *TimeControl) *searcher {
	s := newSearcher(id, e.Position.Clone(), e.eval, e.tt, &e.Options, &e.stopFlag, &e.nodes)
	s.abdada = e.Options.Threads > 1
	s.timeControl = tc
	s.nodeLimit = limits.NodeLimit
	s.checkpoint = checkpointStep
	return s
}

// checkViolation escalates an audit failure to the driver: the search
// stops, a diagnostic is emitted, and the best partial result is
// still returned by the caller.
func (e *Engine) checkViolation(s *searcher) {
	if s.violation != nil {
		log.Errorf("%v: %v", ErrInvariantViolation, s.violation)
	}
}

// searchLazySMP runs Options.Threads independent deepening workers.
func (e *Engine) searchLazySMP(tc *TimeControl, limits Limits) Result {
	start := time.Now()
	best := &bestResult{depth: 0}
	nWorkers := e.Options.Threads

	var wg sync.WaitGroup
	for i := 0; i < nWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			defer e.recoverWorker(id)
			s := e.newWorker(id, limits, tc)

			// Workers differ by starting depth, staggered modulo
			// four, and by an aspiration bias alternating direction
			// with parity.
			depth := int32(1 + id%4)
			bias := int32(id) * e.Options.LazyAspirationDelta
			if id%2 == 1 {
				bias = -bias
			}

			score := int32(0)
			for ; depth <= 63; depth++ {
				if !tc.NextDepth(depth) || s.stopped {
					break
				}
				s.rootDepth = depth
				s.Stats.SelDepth = 0
				iterScore, move := s.searchAspirated(depth, score, bias)
				if s.stopped {
					break
				}
				score = iterScore
				s.Stats.Depth = depth
				pv := s.pvTable.Get(s.pos)
				if len(pv) == 0 && move != board.NullMove {
					pv = []board.Move{move}
				}
				// Whichever worker first finishes a depth reports it.
				s.flushNodes()
				if best.publish(depth, s.Stats.SelDepth, score, move, pv) {
					e.emitInfo(depth, s.Stats.SelDepth, score, pv, start)
				}
				s.history.decay()
			}
			s.flushNodes()
			e.checkViolation(s)
		}(i)
	}
	wg.Wait()
	return best.result(e.nodes.Load(), time.Since(start))
}

// splitPoint shares the remaining root moves between workers.
type splitPoint struct {
	mu        sync.Mutex
	moves     []board.Move
	next      int
	searched  int
	depth     int32
	alpha     int32
	beta      int32
	bestScore int32
	bestMove  board.Move
	cutoff    bool
	pending   int // moves handed out, not yet published
}

func newSplitPoint(moves []board.Move, depth, alpha, beta int32) *splitPoint {
	return &splitPoint{
		moves:     moves,
		depth:     depth,
		alpha:     alpha,
		beta:      beta,
		bestScore: -InfinityScore,
		bestMove:  board.NullMove,
	}
}

// take hands out the next move together with the current bounds.
// first is true for the first move, searched with a full window.
func (sp *splitPoint) take() (m board.Move, alpha, beta int32, first, ok bool) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.cutoff || sp.next >= len(sp.moves) {
		return board.NullMove, 0, 0, false, false
	}
	m = sp.moves[sp.next]
	first = sp.next == 0
	sp.next++
	sp.pending++
	return m, sp.alpha, sp.beta, first, true
}

// abandon returns a move unsearched, e.g. when the worker stopped.
func (sp *splitPoint) abandon() {
	sp.mu.Lock()
	sp.pending--
	sp.mu.Unlock()
}

// publish installs one searched move. A score raising alpha narrows
// the null window of subsequent searches; a score at or above beta
// flips the cutoff flag so workers stop pulling.
func (sp *splitPoint) publish(m board.Move, score int32) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.pending--
	sp.searched++
	if score > sp.bestScore {
		sp.bestScore = score
		sp.bestMove = m
	}
	if score > sp.alpha {
		sp.alpha = score
	}
	if score >= sp.beta {
		sp.cutoff = true
	}
}

// splitSearch pulls moves off the split point until it drains.
func (s *searcher) splitSearch(sp *splitPoint) {
	for {
		m, α, β, first, ok := sp.take()
		if !ok {
			return
		}
		s.DoMove(m)
		var score int32
		if first {
			score = -s.searchTree(-β, -α, sp.depth-1, true)
		} else {
			score = -s.searchTree(-α-1, -α, sp.depth-1, true)
			if score > α && score < β && !s.stopped {
				score = -s.searchTree(-β, -α, sp.depth-1, true)
			}
		}
		s.UndoMove()
		if s.stopped {
			sp.abandon()
			return
		}
		sp.publish(m, score)
	}
}

// rootMoves returns the legal root moves in the ordering stack's
// sequence: the hash move first, then good captures by MVV-LVA,
// killers, losing captures, and quiets by history.
func (s *searcher) rootMoves() []board.Move {
	pos := s.pos
	us := pos.Us()
	entry := s.retrieveHash()
	var moves []board.Move
	s.stack.GenerateMoves(board.GenAll, entry.move)
	for m := s.stack.PopMove(); m != board.NullMove; m = s.stack.PopMove() {
		s.DoMove(m)
		if !pos.IsChecked(us) {
			moves = append(moves, m)
		}
		s.UndoMove()
	}
	return moves
}

// searchWorkStealing runs iterative deepening splitting the root
// moves over the workers. With a single thread it degenerates to the
// plain aspirated search.
func (e *Engine) searchWorkStealing(tc *TimeControl, limits Limits) Result {
	start := time.Now()
	best := &bestResult{depth: 0}
	nWorkers := e.Options.Threads

	workers := make([]*searcher, nWorkers)
	for i := range workers {
		workers[i] = e.newWorker(i, limits, tc)
	}
	master := workers[0]

	score := int32(0)
	for depth := int32(1); depth <= 63; depth++ {
		if !tc.NextDepth(depth) || master.stopped {
			break
		}
		for _, w := range workers {
			w.rootDepth = depth
			w.Stats.SelDepth = 0
		}

		moves := master.rootMoves()
		if len(moves) == 0 {
			break
		}

		var iterScore int32
		var iterMove board.Move
		if nWorkers == 1 || depth < e.Options.SplitDepth || len(moves) < e.Options.SplitMoves {
			iterScore, iterMove = master.searchAspirated(depth, score, 0)
		} else {
			iterScore, iterMove = e.splitRoot(workers, moves, depth, score)
		}
		if master.stopped {
			break
		}
		score = iterScore

		master.Stats.Depth = depth
		master.pvTable.Put(master.pos, iterMove)
		pv := master.pvTable.Get(master.pos)
		if len(pv) == 0 && iterMove != board.NullMove {
			pv = []board.Move{iterMove}
		}
		selDepth := int32(0)
		for _, w := range workers {
			selDepth = max(selDepth, w.Stats.SelDepth)
			w.flushNodes()
		}
		if best.publish(depth, selDepth, score, iterMove, pv) {
			e.emitInfo(depth, selDepth, score, pv, start)
		}
		for _, w := range workers {
			w.history.decay()
		}
	}
	for _, w := range workers {
		w.flushNodes()
		e.checkViolation(w)
	}
	return best.result(e.nodes.Load(), time.Since(start))
}

// splitRoot searches one iteration by splitting the root moves,
// re-splitting with a wider window when the result falls outside the
// aspiration bracket.
func (e *Engine) splitRoot(workers []*searcher, moves []board.Move, depth, estimated int32) (int32, board.Move) {
	master := workers[0]
	δ := initialAspirationSize
	α := max(estimated-δ, -InfinityScore)
	β := min(estimated+δ, InfinityScore)
	if depth < 4 || !e.Options.Aspiration {
		α, β = -InfinityScore, InfinityScore
	}

	for {
		sp := newSplitPoint(moves, depth, α, β)

		var wg sync.WaitGroup
		for _, w := range workers[1:] {
			wg.Add(1)
			go func(s *searcher) {
				defer wg.Done()
				defer e.recoverWorker(s.id)
				s.splitSearch(sp)
			}(w)
		}
		master.splitSearch(sp)

		// Wait on the completion event with periodic wakeups to
		// re-check the stop flag.
		helpers := make(chan struct{})
		go func() {
			wg.Wait()
			close(helpers)
		}()
	waitLoop:
		for {
			select {
			case <-helpers:
				break waitLoop
			case <-time.After(splitWakeup):
				if e.stopFlag.Load() {
					sp.mu.Lock()
					sp.cutoff = true
					sp.mu.Unlock()
				}
			}
		}

		if master.stopped || e.stopFlag.Load() {
			return sp.bestScore, sp.bestMove
		}
		switch {
		case sp.bestScore <= α && α > -InfinityScore:
			α = max(α-2*(β-α), -InfinityScore)
		case sp.bestScore >= β && β < InfinityScore:
			β = min(β+2*(β-α), InfinityScore)
		default:
			master.updateHash(α, β, depth, sp.bestScore, sp.bestMove)
			return sp.bestScore, sp.bestMove
		}
	}
}

// String renders a Result for diagnostics.
func (r Result) String() string {
	return fmt.Sprintf("bestmove %v score %d depth %d nodes %d", r.BestMove, r.Score, r.Depth, r.Nodes)
}
