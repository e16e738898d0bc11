// Package matrix materializes lines and columns of the virtual disjoint
// matrix on demand: row p of the matrix is the XOR of the two
// observations the enumerator pairs at linear index s_offset+p, never
// persisted to storage.
package matrix

import (
	"fmt"

	"github.com/laid-engine/laid/pkg/bitutil"
	"github.com/laid-engine/laid/pkg/dataset"
	"github.com/laid-engine/laid/pkg/enumerator"
)

// VirtualMatrix generates lines/columns of M from a dataset and an
// enumerator over its class sizes.
type VirtualMatrix struct {
	ds *dataset.Dataset
	en *enumerator.Enumerator
}

// New builds a VirtualMatrix over ds, whose class index must already be
// built.
func New(ds *dataset.Dataset, en *enumerator.Enumerator) *VirtualMatrix {
	return &VirtualMatrix{ds: ds, en: en}
}

// Line returns the XOR of the two observations named by t, one word per
// attribute-word of the dataset layout.
func (m *VirtualMatrix) Line(t enumerator.Tuple) []uint64 {
	a := m.ds.Observation(t.ClassA, t.IdxA)
	b := m.ds.Observation(t.ClassB, t.IdxB)
	out := make([]uint64, m.ds.Layout.Words)
	bitutil.XORWords(out, a, b)
	return out
}

// GetColumn produces a bit array of `size` bits (packed MSB-first per
// output word) where bit p is 1 iff the pair at position offset+p differs
// in attribute j. Downstream consumers (the totals engine, the driver's
// best-column update) depend on the MSB-first packing.
func (m *VirtualMatrix) GetColumn(j int, offset, size int64) ([]uint64, error) {
	walker, err := enumerator.NewPairWalker(m.en, offset, size)
	if err != nil {
		return nil, fmt.Errorf("matrix: get column %d: %w", j, err)
	}
	word := bitutil.WordIndex(j)
	shift := bitutil.BitInWord(j)

	out := make([]uint64, bitutil.WordsFor(int(size)))
	for p := int64(0); ; p++ {
		t, ok := walker.Next()
		if !ok {
			break
		}
		a := m.ds.Observation(t.ClassA, t.IdxA)
		b := m.ds.Observation(t.ClassB, t.IdxB)
		bit := (a[word] ^ b[word]) >> shift & 1
		bitutil.PutBit(out, int(p), int(bit))
	}
	return out, nil
}
