// Package jnsq implements the "join-not-same-question" disambiguation
// stage: it appends inconsistency-counter bits to rows that share all
// attribute bits but differ in class, making the attribute projection a
// function of class.
package jnsq

import (
	"math"
	"math/bits"

	"github.com/laid-engine/laid/pkg/bitutil"
	"github.com/laid-engine/laid/pkg/dataset"
)

// Config controls the bit-reversal contract of the JNSQ encoding.
type Config struct {
	// BitReversal preserves the legacy ordering where, for field widths
	// greater than one bit, the inconsistency counter is bit-reversed
	// before being written, so the counter's lowest bit lands in the
	// field's first position. The written values do not keep the
	// counters' numeric order (at width 2, 1 becomes 10 and 2 becomes 01).
	// Disabling it writes the counter as a plain big-endian integer
	// instead.
	BitReversal bool
}

// DefaultConfig matches the original encoder's behavior.
func DefaultConfig() Config {
	return Config{BitReversal: true}
}

// Result reports what the JNSQ pass did.
type Result struct {
	MaxInconsistency int
	Width            int // J = ceil(log2(max+1))
}

// Apply runs the JNSQ stage over an already-sorted, deduped dataset and
// returns a new dataset whose layout has A' = A+J attribute bits. ds is
// left untouched; the caller should replace its reference with the
// returned dataset.
//
// Algorithm: walk rows in sorted order. Maintain a counter. For each row
// after the first: if it shares all attribute bits with the previous row,
// increment the counter; otherwise reset it to zero. The counter value at
// each row becomes that row's JNSQ field once the field width J is known.
func Apply(ds *dataset.Dataset, cfg Config) (*dataset.Dataset, Result, error) {
	counters := make([]int, ds.N)
	maxInconsistency := 0
	if ds.N > 0 {
		counters[0] = 0
		for i := 1; i < ds.N; i++ {
			prev := ds.Row(i - 1)
			cur := ds.Row(i)
			if ds.Layout.SameAttributes(prev, cur) {
				counters[i] = counters[i-1] + 1
			} else {
				counters[i] = 0
			}
			if counters[i] > maxInconsistency {
				maxInconsistency = counters[i]
			}
		}
	}

	width := widthFor(maxInconsistency)
	result := Result{MaxInconsistency: maxInconsistency, Width: width}

	newLayout := dataset.NewLayout(ds.Layout.Attributes+width, ds.Layout.ClassBits)
	out := make([]uint64, ds.N*newLayout.Words)

	for i := 0; i < ds.N; i++ {
		srcRow := ds.Row(i)
		dstRow := out[i*newLayout.Words : (i+1)*newLayout.Words]

		// Copy attribute bits verbatim; they occupy the same leading
		// bit positions in both layouts.
		for j := 0; j < ds.Layout.Attributes; j++ {
			bitutil.PutBit(dstRow, j, bitutil.GetBit(srcRow, j))
		}

		if width > 0 {
			value := uint64(counters[i])
			if width > 1 && cfg.BitReversal {
				value = bitutil.ReverseBits(value, width)
			}
			base := ds.Layout.Attributes
			for k := 0; k < width; k++ {
				bit := int((value >> uint(width-1-k)) & 1)
				bitutil.PutBit(dstRow, base+k, bit)
			}
		}

		class := ds.Layout.Class(srcRow)
		newLayout.SetClass(dstRow, class)
	}

	newDS, err := dataset.New(newLayout, out, ds.N, ds.K)
	if err != nil {
		return nil, result, err
	}
	if err := newDS.BuildClassIndex(); err != nil {
		return nil, result, err
	}
	return newDS, result, nil
}

// widthFor computes J = ceil(log2(1 + max)).
func widthFor(max int) int {
	if max <= 0 {
		return 0
	}
	// ceil(log2(max+1)) == bit length of max.
	return bits.Len(uint(max))
}

// WidthForFloat mirrors widthFor using the float formula from the
// specification, kept for documentation/testing parity with spec.md.
func WidthForFloat(max int) int {
	if max <= 0 {
		return 0
	}
	return int(math.Ceil(math.Log2(float64(max + 1))))
}
