// Package dataset holds the bit-packed observation matrix: sorting,
// deduplication, and class indexing over rows whose tail bits carry the
// class label.
package dataset

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/laid-engine/laid/pkg/bitutil"
)

// ErrClassOutOfRange is returned when a row's class field is >= K.
var ErrClassOutOfRange = errors.New("dataset: class field out of range")

// Layout describes the bit geometry of every row in a Dataset.
type Layout struct {
	Attributes int // A: number of attribute bits
	ClassBits  int // C: number of class bits (tail of the row)
	Words      int // W = ceil((A+C)/64)
}

// NewLayout computes W from A and C.
func NewLayout(attributes, classBits int) Layout {
	return Layout{
		Attributes: attributes,
		ClassBits:  classBits,
		Words:      bitutil.WordsFor(attributes + classBits),
	}
}

// attrWholeWords is the count of words entirely covered by attribute bits.
func (l Layout) attrWholeWords() int {
	return l.Attributes / 64
}

// attrTailBits is A mod 64, the number of attribute bits living in the
// first word that also carries class/JNSQ bits.
func (l Layout) attrTailBits() int {
	return l.Attributes % 64
}

// Class extracts the class field (right-aligned in the final word).
func (l Layout) Class(row []uint64) int {
	last := row[l.Words-1]
	mask := bitutil.TailMask(l.ClassBits) >> (64 - uint(l.ClassBits))
	// class bits are right-aligned: low ClassBits bits of the last word.
	return int(last & mask)
}

// SetClass overwrites the low ClassBits bits of the final word.
func (l Layout) SetClass(row []uint64, class int) {
	mask := uint64(1)<<uint(l.ClassBits) - 1
	last := row[l.Words-1]
	last &^= mask
	last |= uint64(class) & mask
	row[l.Words-1] = last
}

// Dataset is an ordered sequence of N rows, W words each, K classes.
type Dataset struct {
	Layout Layout
	Rows   []uint64 // N*W words, row i at Rows[i*W : (i+1)*W]
	N      int
	K      int

	classCount  []int   // n_k
	classOffset []int   // first-row index of class k
	classRows   [][]int // row indices of class k, in sorted order
}

// New builds a Dataset view over pre-packed row data. data must have
// length n*layout.Words. numClasses is K.
func New(layout Layout, data []uint64, n, numClasses int) (*Dataset, error) {
	if len(data) != n*layout.Words {
		return nil, fmt.Errorf("dataset: row data length %d does not match n*W=%d", len(data), n*layout.Words)
	}
	return &Dataset{
		Layout: layout,
		Rows:   data,
		N:      n,
		K:      numClasses,
	}, nil
}

// Row returns the i'th row as a sub-slice (shares backing storage).
func (d *Dataset) Row(i int) []uint64 {
	w := d.Layout.Words
	return d.Rows[i*w : (i+1)*w]
}

// compareRows orders rows lexicographically, most-significant word first.
// It closes over W so it is reentrant regardless of which dataset calls it.
func compareRows(w int) func(a, b []uint64) int {
	return func(a, b []uint64) int {
		for i := 0; i < w; i++ {
			if a[i] < b[i] {
				return -1
			}
			if a[i] > b[i] {
				return 1
			}
		}
		return 0
	}
}

// Sort orders rows lexicographically by full row content (attribute bits,
// then class tail), word-major, most-significant word first. Rows with
// equal attribute bits end up adjacent; rows of one class are not
// necessarily contiguous, which is why BuildClassIndex records each
// class's row indices.
func (d *Dataset) Sort() {
	w := d.Layout.Words
	cmp := compareRows(w)
	idx := make([]int, d.N)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool {
		return cmp(d.rowAt(idx[i]), d.rowAt(idx[j])) < 0
	})
	out := make([]uint64, len(d.Rows))
	for newPos, oldIdx := range idx {
		copy(out[newPos*w:(newPos+1)*w], d.rowAt(oldIdx))
	}
	d.Rows = out
}

func (d *Dataset) rowAt(i int) []uint64 {
	w := d.Layout.Words
	return d.Rows[i*w : (i+1)*w]
}

// SameAttributes reports whether a and b agree on every attribute bit,
// ignoring class/JNSQ tail bits. Compares the floor(A/64) whole words for
// equality and, if A mod 64 != 0, masks the leading A mod 64 bits of the
// next word.
func (l Layout) SameAttributes(a, b []uint64) bool {
	whole := l.attrWholeWords()
	if !bytes.Equal(u64ToBytes(a[:whole]), u64ToBytes(b[:whole])) {
		return false
	}
	tail := l.attrTailBits()
	if tail == 0 {
		return true
	}
	mask := bitutil.TailMask(tail)
	return a[whole]&mask == b[whole]&mask
}

func u64ToBytes(words []uint64) []byte {
	out := make([]byte, len(words)*8)
	for i, w := range words {
		for b := 0; b < 8; b++ {
			out[i*8+b] = byte(w >> uint(56-8*b))
		}
	}
	return out
}

// Dedupe drops rows equal on all bits (including class) to the
// immediately preceding row in sorted order. Rows equal on attribute bits
// but differing in class are kept: they are the inconsistencies JNSQ
// resolves. Dataset must already be Sort()-ed. Returns the number of rows
// removed.
func (d *Dataset) Dedupe() int {
	if d.N == 0 {
		return 0
	}
	w := d.Layout.Words
	cmp := compareRows(w)
	write := 1
	for read := 1; read < d.N; read++ {
		prev := d.rowAt(write - 1)
		cur := d.rowAt(read)
		if cmp(prev, cur) == 0 {
			continue
		}
		if write != read {
			copy(d.Rows[write*w:(write+1)*w], cur)
		}
		write++
	}
	removed := d.N - write
	d.Rows = d.Rows[:write*w]
	d.N = write
	return removed
}

// BuildClassIndex performs a single pass over the sorted dataset, setting
// each class's first-row pointer at its first occurrence, counting
// occurrences, and recording the row indices of each class in order.
// Returns ErrClassOutOfRange if any row's class field is >= K.
func (d *Dataset) BuildClassIndex() error {
	d.classCount = make([]int, d.K)
	d.classOffset = make([]int, d.K)
	d.classRows = make([][]int, d.K)
	for k := range d.classOffset {
		d.classOffset[k] = -1
	}
	for i := 0; i < d.N; i++ {
		class := d.Layout.Class(d.rowAt(i))
		if class < 0 || class >= d.K {
			return fmt.Errorf("%w: row %d has class %d, K=%d", ErrClassOutOfRange, i, class, d.K)
		}
		if d.classOffset[class] == -1 {
			d.classOffset[class] = i
		}
		d.classCount[class]++
		d.classRows[class] = append(d.classRows[class], i)
	}
	return nil
}

// ClassCount returns n_k, the number of observations in class k.
func (d *Dataset) ClassCount(k int) int { return d.classCount[k] }

// ClassOffset returns the index of class k's first row in the sorted dataset.
func (d *Dataset) ClassOffset(k int) int { return d.classOffset[k] }

// Observation returns the idx'th row of class k.
func (d *Dataset) Observation(class, idx int) []uint64 {
	return d.rowAt(d.classRows[class][idx])
}

// Stats summarizes a prepared dataset for logging/CLI output.
type DatasetStats struct {
	Rows       int
	Classes    int
	Words      int
	Attributes int
	ClassCounts []int
}

// Stats reports the current dataset shape.
func (d *Dataset) Stats() DatasetStats {
	counts := make([]int, len(d.classCount))
	copy(counts, d.classCount)
	return DatasetStats{
		Rows:        d.N,
		Classes:     d.K,
		Words:       d.Layout.Words,
		Attributes:  d.Layout.Attributes,
		ClassCounts: counts,
	}
}

// Clone returns a deep copy, used by tests that mutate a copy in place.
func (d *Dataset) Clone() *Dataset {
	rows := make([]uint64, len(d.Rows))
	copy(rows, d.Rows)
	cc := append([]int(nil), d.classCount...)
	co := append([]int(nil), d.classOffset...)
	var cr [][]int
	if d.classRows != nil {
		cr = make([][]int, len(d.classRows))
		for k, idx := range d.classRows {
			cr[k] = append([]int(nil), idx...)
		}
	}
	return &Dataset{
		Layout:      d.Layout,
		Rows:        rows,
		N:           d.N,
		K:           d.K,
		classCount:  cc,
		classOffset: co,
		classRows:   cr,
	}
}

// Prepare sorts, dedupes, and builds the class index in one step, the
// sequence the orchestrator runs before JNSQ.
func (d *Dataset) Prepare() (removed int, err error) {
	d.Sort()
	removed = d.Dedupe()
	if err := d.BuildClassIndex(); err != nil {
		return removed, err
	}
	return removed, nil
}

