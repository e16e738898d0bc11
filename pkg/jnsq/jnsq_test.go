package jnsq

import (
	"testing"

	"github.com/laid-engine/laid/pkg/bitutil"
	"github.com/laid-engine/laid/pkg/dataset"
)

func packRow(layout dataset.Layout, attrs []int, class int) []uint64 {
	row := make([]uint64, layout.Words)
	for j, bit := range attrs {
		bitutil.PutBit(row, j, bit)
	}
	layout.SetClass(row, class)
	return row
}

func buildSorted(t *testing.T, attrRows [][]int, classes []int, classBits, k int) *dataset.Dataset {
	t.Helper()
	layout := dataset.NewLayout(len(attrRows[0]), classBits)
	data := make([]uint64, 0, len(attrRows)*layout.Words)
	for i, attrs := range attrRows {
		data = append(data, packRow(layout, attrs, classes[i])...)
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

func TestApplyNoOpWhenNoInconsistency(t *testing.T) {
	attrRows := [][]int{
		{0, 0}, {0, 1}, {1, 0}, {1, 1},
	}
	classes := []int{0, 0, 1, 1}
	ds := buildSorted(t, attrRows, classes, 2, 2)

	out, res, err := Apply(ds, DefaultConfig())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.MaxInconsistency != 0 || res.Width != 0 {
		t.Fatalf("Apply on a consistent dataset reported max=%d width=%d, want 0 0", res.MaxInconsistency, res.Width)
	}
	if out.Layout.Attributes != ds.Layout.Attributes {
		t.Errorf("attribute count changed despite zero width: got %d, want %d", out.Layout.Attributes, ds.Layout.Attributes)
	}
}

func TestApplySetsNonZeroBitOnInconsistentPair(t *testing.T) {
	// Two rows share all attribute bits but differ in class: the second
	// must receive a non-zero JNSQ field.
	attrRows := [][]int{
		{1, 1},
		{1, 1},
	}
	classes := []int{0, 1}
	ds := buildSorted(t, attrRows, classes, 1, 2)

	out, res, err := Apply(ds, DefaultConfig())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.MaxInconsistency != 1 {
		t.Fatalf("MaxInconsistency = %d, want 1", res.MaxInconsistency)
	}
	if res.Width != 1 {
		t.Fatalf("Width = %d, want 1", res.Width)
	}
	first := out.Row(0)
	second := out.Row(1)
	if bitutil.GetBit(first, ds.Layout.Attributes) != 0 {
		t.Errorf("first row's JNSQ bit should be 0")
	}
	if bitutil.GetBit(second, ds.Layout.Attributes) != 1 {
		t.Errorf("second row's JNSQ bit should be 1")
	}
}

func TestApplyPreservesClassAndAttributes(t *testing.T) {
	attrRows := [][]int{
		{1, 0, 1},
		{1, 0, 1},
		{1, 0, 1},
	}
	classes := []int{0, 1, 2}
	ds := buildSorted(t, attrRows, classes, 2, 3)

	out, res, err := Apply(ds, DefaultConfig())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.MaxInconsistency != 2 {
		t.Fatalf("MaxInconsistency = %d, want 2", res.MaxInconsistency)
	}
	for i := 0; i < 3; i++ {
		row := out.Row(i)
		for j, bit := range attrRows[i] {
			if bitutil.GetBit(row, j) != bit {
				t.Errorf("row %d attribute %d = %d, want %d", i, j, bitutil.GetBit(row, j), bit)
			}
		}
		if out.Layout.Class(row) != classes[i] {
			t.Errorf("row %d class = %d, want %d", i, out.Layout.Class(row), classes[i])
		}
	}
}

func TestWidthFor(t *testing.T) {
	cases := []struct {
		max  int
		want int
	}{
		{0, 0},
		{1, 1},
		{2, 2},
		{3, 2},
		{4, 3},
		{7, 3},
		{8, 4},
	}
	for _, c := range cases {
		if got := widthFor(c.max); got != c.want {
			t.Errorf("widthFor(%d) = %d, want %d", c.max, got, c.want)
		}
		if got := WidthForFloat(c.max); got != c.want {
			t.Errorf("WidthForFloat(%d) = %d, want %d", c.max, got, c.want)
		}
	}
}
