// Package totals computes and incrementally maintains per-attribute
// discrimination counts over a rank's slice of the virtual disjoint
// matrix: for each attribute bit j, how many still-uncovered assigned
// pairs have differing values on j.
package totals

import (
	"github.com/laid-engine/laid/pkg/dataset"
	"github.com/laid-engine/laid/pkg/enumerator"
)

// WordsPerCycle is the cache-tiling width the initial/incremental scans
// group words into. The pair walk is the outer loop and the word groups
// of this size are walked inside it for each pair (see addXORToTotals);
// word groups are not the outer loop. It is a performance heuristic, not
// part of the correctness contract (spec.md §9), and is overridable via
// Engine.Tile.
const WordsPerCycle = 8

// CoveredLines is a bit-per-row mask over a rank's assigned slice: bit p
// is set once the pair at local offset p is discriminated by some
// selected attribute.
type CoveredLines []bool

// Engine owns one rank's slice of the virtual matrix and its running
// attribute totals.
type Engine struct {
	ds     *dataset.Dataset
	en     *enumerator.Enumerator
	Offset int64
	Size   int64
	Tile   int // words per cache-tiling cycle; defaults to WordsPerCycle

	Totals  []int64 // length A'
	Covered CoveredLines
}

// New allocates an Engine over [offset, offset+size) of ds's virtual
// matrix rows.
func New(ds *dataset.Dataset, en *enumerator.Enumerator, offset, size int64) *Engine {
	return &Engine{
		ds:      ds,
		en:      en,
		Offset:  offset,
		Size:    size,
		Tile:    WordsPerCycle,
		Totals:  make([]int64, ds.Layout.Attributes),
		Covered: make(CoveredLines, size),
	}
}

func (e *Engine) tile() int {
	if e.Tile <= 0 {
		return WordsPerCycle
	}
	return e.Tile
}

// pairXORWords walks every pair in the rank's slice for which include is
// nil or returns true, invoking visit with each pair's XOR words and its
// local position. InitialTotals, Add, Subtract, and SubtractMask all
// share this single scan, collapsing the line-view/column-view
// duplication.
func (e *Engine) pairXORWords(include func(local int64) bool, visit func(local int64, xor []uint64)) error {
	walker, err := enumerator.NewPairWalker(e.en, e.Offset, e.Size)
	if err != nil {
		return err
	}
	xor := make([]uint64, e.ds.Layout.Words)
	for p := int64(0); ; p++ {
		t, ok := walker.Next()
		if !ok {
			break
		}
		if include != nil && !include(p) {
			continue
		}
		a := e.ds.Observation(t.ClassA, t.IdxA)
		b := e.ds.Observation(t.ClassB, t.IdxB)
		for w := range xor {
			xor[w] = a[w] ^ b[w]
		}
		visit(p, xor)
	}
	return nil
}

// addXORToTotals increments Totals by the bits set in xor, tiled across
// word groups of width e.tile() words for cache locality: it is called
// once per qualifying pair from the scans below, so the tiling is
// expressed as iterating the word range in groups rather than
// restructuring the outer pair loop (the pair loop is driven by the
// enumerator's sequential walk, which cannot itself be blocked without
// re-deriving tuples out of order).
func (e *Engine) addXORToTotals(xor []uint64, sign int64) {
	w := e.ds.Layout.Words
	tile := e.tile()
	for base := 0; base < w; base += tile {
		end := base + tile
		if end > w {
			end = w
		}
		for wi := base; wi < end; wi++ {
			word := xor[wi]
			if word == 0 {
				continue
			}
			for bit := 0; bit < 64; bit++ {
				if (word>>uint(bit))&1 == 0 {
					continue
				}
				attr := wi*64 + (63 - bit)
				if attr >= len(e.Totals) {
					continue
				}
				e.Totals[attr] += sign
			}
		}
	}
}

// InitialTotals resets Totals to zero and recomputes it from scratch over
// every assigned pair, regardless of coverage.
func (e *Engine) InitialTotals() error {
	for i := range e.Totals {
		e.Totals[i] = 0
	}
	return e.pairXORWords(nil, func(_ int64, xor []uint64) {
		e.addXORToTotals(xor, 1)
	})
}

// Add rebuilds Totals from scratch but skips pairs whose Covered bit is
// set, counting only still-uncovered rows. Used after a covered-set
// update when the newly-covered fraction is the majority, so rescanning
// the (now smaller) uncovered set is cheaper than subtracting.
func (e *Engine) Add() error {
	for i := range e.Totals {
		e.Totals[i] = 0
	}
	return e.pairXORWords(func(p int64) bool { return !e.Covered[p] }, func(_ int64, xor []uint64) {
		e.addXORToTotals(xor, 1)
	})
}

// Subtract decrements Totals by the contribution of pairs whose Covered
// bit is set, without rescanning the uncovered majority. This reads
// e.Covered directly, so it is only correct when Covered already reflects
// exactly the rows to remove (e.g. rebuilding a totals vector from a
// known-good covered-set snapshot). The per-round driver instead uses
// SubtractMask with the newly-covered column, since at the point the
// round's subtract path runs, Covered has not yet been updated for this
// round's selection.
func (e *Engine) Subtract() error {
	return e.pairXORWords(func(p int64) bool { return e.Covered[p] }, func(_ int64, xor []uint64) {
		e.addXORToTotals(xor, -1)
	})
}

// SubtractMask decrements Totals by the contribution of exactly the pairs
// flagged in mask (MSB-first packed per matrix.GetColumn's contract),
// regardless of Covered's current state. The driver uses this with a
// best_column already masked down to newly-covered rows only.
func (e *Engine) SubtractMask(mask []uint64) error {
	include := func(p int64) bool {
		word := mask[p/64]
		return (word>>uint(63-(p%64)))&1 == 1
	}
	return e.pairXORWords(include, func(_ int64, xor []uint64) {
		e.addXORToTotals(xor, -1)
	})
}

// MarkCovered sets the Covered bit for every local position where column
// has bit p set (MSB-first packed, per matrix.GetColumn's contract), and
// reports how many newly-covered rows were found.
func (e *Engine) MarkCovered(column []uint64) int64 {
	var newlyCovered int64
	for p := int64(0); p < e.Size; p++ {
		word := column[p/64]
		bit := (word >> uint(63-(p%64))) & 1
		if bit == 1 && !e.Covered[p] {
			e.Covered[p] = true
			newlyCovered++
		}
	}
	return newlyCovered
}

// UncoveredCount returns how many of this rank's assigned rows remain
// uncovered.
func (e *Engine) UncoveredCount() int64 {
	var n int64
	for _, c := range e.Covered {
		if !c {
			n++
		}
	}
	return n
}
