// Copyright 2014-2017 The Zurichess Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// hash_table.go implements the shared transposition table.
//
// The table is a power-of-two array of four-entry buckets. Readers are
// lock free: each bucket carries a seqlock version counter, odd while
// a write is in progress. A reader takes a snapshot of the bucket and
// keeps it only if the version did not change underneath; otherwise it
// retries once and reports a miss. Writers serialize per bucket by
// flipping the version odd.
//
// ABDADA coordination counters (number of workers inside a position
// and the depth they reserved) live directly in the entries so no
// separate structure is needed.

package engine

import (
	"runtime"
	"sync/atomic"
	"unsafe" // for sizeof

	"bitbucket.org/lucernechess/lucerne/board"
)

type hashKind uint8

const (
	noEntry    hashKind = iota
	exact               // score is exact
	failedLow           // search failed low, score is an upper bound
	failedHigh          // search failed high, score is a lower bound
)

const (
	bucketSize = 4
	maxAge     = 63 // generations wrap around 6 bits
)

// hashEntry is a single slot of a bucket.
type hashEntry struct {
	key         uint64     // full Zobrist key for verification
	move        board.Move // best move, 16 bits
	score       int16      // centipawns, or mate relative to the stored node
	depth       int8       // remaining search depth; 0 marks quiescence entries
	kind        hashKind
	age         uint8 // generation the entry was last stored in
	searchers   uint8 // ABDADA: workers currently searching this position
	searchDepth uint8 // ABDADA: deepest reserved depth
}

type bucket struct {
	version uint32 // seqlock
	entries [bucketSize]hashEntry
}

// HashStats counts probe traffic. Updated atomically, never consulted
// by the search itself.
type HashStats struct {
	Probes     uint64
	Hits       uint64
	Collisions uint64 // full buckets probed without a key match
	Stores     uint64
	Overwrites uint64 // same-key rewrites
	Skipped    uint64 // stores suppressed by the skip-rewrite rules
	Evictions  uint64 // replacement of a live entry with another key
	Fills      uint64 // stores into empty slots
}

// HashTable is the shared transposition table.
type HashTable struct {
	buckets    []bucket
	mask       uint64
	generation uint32 // current 6-bit generation, atomic
	agingDepth int32  // entries deeper than this age at half rate

	probes     atomic.Uint64
	hits       atomic.Uint64
	collisions atomic.Uint64
	stores     atomic.Uint64
	overwrites atomic.Uint64
	skipped    atomic.Uint64
	evictions  atomic.Uint64
	fills      atomic.Uint64
}

// NewHashTable builds a transposition table of the largest power of
// two of buckets that fits hashSizeMB megabytes.
func NewHashTable(hashSizeMB int) *HashTable {
	bucketBytes := uint64(unsafe.Sizeof(bucket{}))
	n := uint64(hashSizeMB) << 20 / bucketBytes
	for n&(n-1) != 0 {
		n &= n - 1
	}
	if n == 0 {
		n = 1
	}
	return &HashTable{
		buckets:    make([]bucket, n),
		mask:       n - 1,
		agingDepth: 8,
	}
}

// Size returns the number of entries in the table.
func (ht *HashTable) Size() int {
	return len(ht.buckets) * bucketSize
}

// SetAgingDepth sets the depth above which entries age at half rate.
func (ht *HashTable) SetAgingDepth(depth int32) {
	ht.agingDepth = depth
}

// NewGeneration starts a new root search. Replacement is biased
// against entries from older generations.
func (ht *HashTable) NewGeneration() {
	atomic.StoreUint32(&ht.generation, (atomic.LoadUint32(&ht.generation)+1)&maxAge)
}

// Clear removes all entries.
func (ht *HashTable) Clear() {
	for i := range ht.buckets {
		b := &ht.buckets[i]
		v := b.acquire()
		b.entries = [bucketSize]hashEntry{}
		b.release(v)
	}
}

// Stats returns a snapshot of the probe statistics.
func (ht *HashTable) Stats() HashStats {
	return HashStats{
		Probes:     ht.probes.Load(),
		Hits:       ht.hits.Load(),
		Collisions: ht.collisions.Load(),
		Stores:     ht.stores.Load(),
		Overwrites: ht.overwrites.Load(),
		Skipped:    ht.skipped.Load(),
		Evictions:  ht.evictions.Load(),
		Fills:      ht.fills.Load(),
	}
}

// acquire flips the seqlock odd, serializing writers on this bucket.
func (b *bucket) acquire() uint32 {
	for {
		v := atomic.LoadUint32(&b.version)
		if v&1 == 0 && atomic.CompareAndSwapUint32(&b.version, v, v+1) {
			return v + 2
		}
		runtime.Gosched()
	}
}

// release publishes the write with a new even version.
func (b *bucket) release(next uint32) {
	atomic.StoreUint32(&b.version, next)
}

// snapshot copies the bucket if no write intervened. ok is false when
// the bucket stayed unstable over two attempts; the caller treats that
// as a miss.
func (b *bucket) snapshot() (entries [bucketSize]hashEntry, ok bool) {
	for attempt := 0; attempt < 2; attempt++ {
		v := atomic.LoadUint32(&b.version)
		if v&1 == 0 {
			entries = b.entries
			if atomic.LoadUint32(&b.version) == v {
				return entries, true
			}
		}
		runtime.Gosched()
	}
	return entries, false
}

// get returns the entry matching the position's key, or a zero entry.
func (ht *HashTable) get(pos *board.Position) hashEntry {
	key := pos.Zobrist()
	ht.probes.Add(1)
	entries, ok := ht.buckets[key&ht.mask].snapshot()
	if !ok {
		return hashEntry{}
	}
	full := true
	for i := range entries {
		if entries[i].kind == noEntry {
			full = false
			continue
		}
		if entries[i].key == key {
			ht.hits.Add(1)
			return entries[i]
		}
	}
	if full {
		ht.collisions.Add(1)
	}
	return hashEntry{}
}

// ageDiff returns how many generations ago the entry was stored,
// halved for entries deeper than the aging threshold so deep work
// survives across iterations.
func (ht *HashTable) ageDiff(e *hashEntry) int32 {
	d := int32(atomic.LoadUint32(&ht.generation)-uint32(e.age)) & maxAge
	if int32(e.depth) > ht.agingDepth {
		d /= 2
	}
	return d
}

// replaceScore values an entry for the replacement policy; the slot
// with the lowest score is evicted.
func (ht *HashTable) replaceScore(e *hashEntry) int32 {
	score := int32(e.depth)*256 + (maxAge - ht.ageDiff(e))
	if e.kind == exact {
		score += 1 << 16
	}
	if e.depth == 0 {
		score -= 1 << 12
	}
	return score
}

// put stores an entry for the position.
func (ht *HashTable) put(pos *board.Position, entry hashEntry) {
	entry.key = pos.Zobrist()
	entry.age = uint8(atomic.LoadUint32(&ht.generation))

	b := &ht.buckets[entry.key&ht.mask]
	v := b.acquire()
	defer b.release(v)

	// Same key: overwrite in place unless the skip-rewrite rules
	// say the existing data is at least as good.
	for i := range b.entries {
		e := &b.entries[i]
		if e.kind == noEntry || e.key != entry.key {
			continue
		}
		if e.depth >= entry.depth && e.move == entry.move &&
			e.score == entry.score && e.kind == entry.kind {
			ht.skipped.Add(1)
			return
		}
		if e.kind == exact && e.depth >= entry.depth && entry.kind != exact {
			ht.skipped.Add(1)
			return
		}
		if entry.depth == 0 && e.depth > 0 {
			ht.skipped.Add(1)
			return
		}
		// Keep the coordination counters across rewrites.
		entry.searchers = e.searchers
		entry.searchDepth = e.searchDepth
		*e = entry
		ht.stores.Add(1)
		ht.overwrites.Add(1)
		return
	}

	for i := range b.entries {
		if b.entries[i].kind == noEntry {
			b.entries[i] = entry
			ht.stores.Add(1)
			ht.fills.Add(1)
			return
		}
	}

	victim := 0
	worst := ht.replaceScore(&b.entries[0])
	for i := 1; i < bucketSize; i++ {
		if s := ht.replaceScore(&b.entries[i]); s < worst {
			victim, worst = i, s
		}
	}
	b.entries[victim] = entry
	ht.stores.Add(1)
	ht.evictions.Add(1)
}

// TryStartSearch reserves the position with Zobrist key for an ABDADA
// worker. It returns false when another worker already reserved the
// same position at a depth at least as deep, in which case the caller
// defers.
func (ht *HashTable) TryStartSearch(key uint64, depth int32) bool {
	b := &ht.buckets[key&ht.mask]
	v := b.acquire()
	defer b.release(v)

	for i := range b.entries {
		e := &b.entries[i]
		if e.key != key || e.kind == noEntry && e.searchers == 0 {
			continue
		}
		if e.searchers > 0 && int32(e.searchDepth) >= depth {
			return false
		}
		if e.searchers < 255 {
			e.searchers++
		}
		if int32(e.searchDepth) < depth {
			e.searchDepth = uint8(min(depth, 255))
		}
		return true
	}
	// No entry yet: leave a reservation stub in an empty slot.
	for i := range b.entries {
		e := &b.entries[i]
		if e.kind == noEntry && e.searchers == 0 {
			*e = hashEntry{key: key, searchers: 1, searchDepth: uint8(min(depth, 255))}
			return true
		}
	}
	return true
}

// EndSearch drops the reservation taken by TryStartSearch.
func (ht *HashTable) EndSearch(key uint64) {
	b := &ht.buckets[key&ht.mask]
	v := b.acquire()
	defer b.release(v)

	for i := range b.entries {
		e := &b.entries[i]
		if e.key == key && e.searchers > 0 {
			e.searchers--
			if e.searchers == 0 {
				e.searchDepth = 0
				if e.kind == noEntry {
					*e = hashEntry{} // drop a pure reservation stub
				}
			}
			return
		}
	}
}

// HashFull estimates the fill rate in permille over a sample of
// buckets, counting entries touched in the current generation.
func (ht *HashTable) HashFull() int {
	gen := uint8(atomic.LoadUint32(&ht.generation))
	sample := 250
	if len(ht.buckets) < sample {
		sample = len(ht.buckets)
	}
	used := 0
	for i := 0; i < sample; i++ {
		entries, ok := ht.buckets[i].snapshot()
		if !ok {
			continue
		}
		for j := range entries {
			if entries[j].kind != noEntry && entries[j].age == gen {
				used++
			}
		}
	}
	return used * 1000 / (sample * bucketSize)
}
