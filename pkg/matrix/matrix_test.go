package matrix

import (
	"testing"

	"github.com/laid-engine/laid/pkg/bitutil"
	"github.com/laid-engine/laid/pkg/dataset"
	"github.com/laid-engine/laid/pkg/enumerator"
)

// buildDataset packs attrRows/classes into a sorted, class-indexed
// Dataset. Dedupe is not called here, so attrRows must already be free of
// duplicate rows.
func buildDataset(t *testing.T, attrRows [][]int, classes []int, k int) *dataset.Dataset {
	t.Helper()
	layout := dataset.NewLayout(len(attrRows[0]), 8)
	data := make([]uint64, 0, len(attrRows)*layout.Words)
	for i, attrs := range attrRows {
		row := make([]uint64, layout.Words)
		for j, bit := range attrs {
			bitutil.PutBit(row, j, bit)
		}
		layout.SetClass(row, classes[i])
		data = append(data, row...)
	}
	ds, err := dataset.New(layout, data, len(attrRows), k)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ds.Sort()
	if err := ds.BuildClassIndex(); err != nil {
		t.Fatalf("BuildClassIndex: %v", err)
	}
	return ds
}

func TestGetColumnMatchesLine(t *testing.T) {
	// spec.md scenario 1: 4 observations, 2 classes (n_0=2, n_1=2), 3
	// attributes: [1,0,0], [1,1,0], [0,1,1], [1,1,1].
	attrRows := [][]int{
		{1, 0, 0},
		{1, 1, 0},
		{0, 1, 1},
		{1, 1, 1},
	}
	classes := []int{0, 0, 1, 1}
	ds := buildDataset(t, attrRows, classes, 2)

	sizes := make(enumerator.ClassSizes, ds.K)
	for k := 0; k < ds.K; k++ {
		sizes[k] = ds.ClassCount(k)
	}
	en := enumerator.New(sizes)
	vm := New(ds, en)

	l := en.TotalRows()
	if l != 4 {
		t.Fatalf("L = %d, want 4", l)
	}

	for attr := 0; attr < 3; attr++ {
		col, err := vm.GetColumn(attr, 0, l)
		if err != nil {
			t.Fatalf("GetColumn(%d): %v", attr, err)
		}
		walker, err := enumerator.NewPairWalker(en, 0, l)
		if err != nil {
			t.Fatalf("NewPairWalker: %v", err)
		}
		for p := int64(0); ; p++ {
			tup, ok := walker.Next()
			if !ok {
				break
			}
			line := vm.Line(tup)
			want := bitutil.GetBit(line, attr)
			got := bitutil.GetBit(col, int(p))
			if got != want {
				t.Errorf("attr %d row %d: GetColumn bit = %d, Line bit = %d", attr, p, got, want)
			}
		}
	}
}

func TestGetColumnPartialSlice(t *testing.T) {
	attrRows := [][]int{
		{1, 0}, {0, 1}, {1, 1},
	}
	classes := []int{0, 1, 2}
	ds := buildDataset(t, attrRows, classes, 3)

	sizes := make(enumerator.ClassSizes, ds.K)
	for k := 0; k < ds.K; k++ {
		sizes[k] = ds.ClassCount(k)
	}
	en := enumerator.New(sizes)
	vm := New(ds, en)
	l := en.TotalRows()

	full, err := vm.GetColumn(0, 0, l)
	if err != nil {
		t.Fatalf("GetColumn full: %v", err)
	}
	for offset := int64(0); offset < l; offset++ {
		part, err := vm.GetColumn(0, offset, 1)
		if err != nil {
			t.Fatalf("GetColumn(0, %d, 1): %v", offset, err)
		}
		if bitutil.GetBit(part, 0) != bitutil.GetBit(full, int(offset)) {
			t.Errorf("partial column at offset %d disagrees with full column", offset)
		}
	}
}
