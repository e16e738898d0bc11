package dataset

import (
	"errors"
	"testing"

	"github.com/laid-engine/laid/pkg/bitutil"
)

// packRow builds one row's word slice from attribute bits (MSB-first) and a
// class value, under layout.
func packRow(layout Layout, attrs []int, class int) []uint64 {
	row := make([]uint64, layout.Words)
	for j, bit := range attrs {
		bitutil.PutBit(row, j, bit)
	}
	layout.SetClass(row, class)
	return row
}

func buildDataset(t *testing.T, attrRows [][]int, classes []int, classBits, k int) *Dataset {
	t.Helper()
	if len(attrRows) != len(classes) {
		t.Fatalf("attrRows and classes length mismatch")
	}
	layout := NewLayout(len(attrRows[0]), classBits)
	data := make([]uint64, 0, len(attrRows)*layout.Words)
	for i, attrs := range attrRows {
		data = append(data, packRow(layout, attrs, classes[i])...)
	}
	ds, err := New(layout, data, len(attrRows), k)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ds
}

func TestSameAttributes(t *testing.T) {
	layout := NewLayout(3, 2)
	a := packRow(layout, []int{1, 0, 1}, 0)
	b := packRow(layout, []int{1, 0, 1}, 1)
	c := packRow(layout, []int{1, 1, 1}, 0)

	if !layout.SameAttributes(a, b) {
		t.Errorf("rows differing only in class should be SameAttributes")
	}
	if layout.SameAttributes(a, c) {
		t.Errorf("rows differing in an attribute bit should not be SameAttributes")
	}
}

func TestSameAttributesWideLayout(t *testing.T) {
	// A not a multiple of 64: attribute 64 sits in the word that also
	// carries class bits; SameAttributes must mask it off.
	layout := NewLayout(65, 3)
	attrs := make([]int, 65)
	attrs[64] = 1
	a := packRow(layout, attrs, 0)
	b := packRow(layout, attrs, 5)
	if !layout.SameAttributes(a, b) {
		t.Errorf("rows sharing all 65 attribute bits but differing in class should be SameAttributes")
	}

	attrs2 := append([]int(nil), attrs...)
	attrs2[64] = 0
	c := packRow(layout, attrs2, 0)
	if layout.SameAttributes(a, c) {
		t.Errorf("rows differing on attribute 64 should not be SameAttributes")
	}
}

func TestSortAndDedupe(t *testing.T) {
	// Two pairs of identical rows (same attrs, same class): Dedupe must
	// remove one row of each pair.
	attrRows := [][]int{
		{1, 1, 0},
		{0, 0, 0},
		{1, 1, 0},
		{0, 0, 0},
	}
	classes := []int{0, 1, 0, 1}
	ds := buildDataset(t, attrRows, classes, 2, 2)

	ds.Sort()
	removed := ds.Dedupe()
	if removed != 2 {
		t.Fatalf("Dedupe removed %d rows, want 2", removed)
	}
	if ds.N != 2 {
		t.Fatalf("N after dedupe = %d, want 2", ds.N)
	}
}

func TestDedupeKeepsClassDifferingRows(t *testing.T) {
	attrRows := [][]int{
		{1, 0},
		{1, 0},
	}
	classes := []int{0, 1}
	ds := buildDataset(t, attrRows, classes, 1, 2)
	ds.Sort()
	removed := ds.Dedupe()
	if removed != 0 {
		t.Fatalf("Dedupe removed %d rows, want 0 (differ in class)", removed)
	}
	if ds.N != 2 {
		t.Fatalf("N after dedupe = %d, want 2", ds.N)
	}
}

func TestBuildClassIndex(t *testing.T) {
	attrRows := [][]int{
		{0, 0}, {0, 1}, {1, 0}, {1, 1}, {1, 1},
	}
	classes := []int{0, 0, 1, 1, 2}
	ds := buildDataset(t, attrRows, classes, 2, 3)
	ds.Sort()
	if err := ds.BuildClassIndex(); err != nil {
		t.Fatalf("BuildClassIndex: %v", err)
	}
	if ds.ClassCount(0) != 2 || ds.ClassCount(1) != 2 || ds.ClassCount(2) != 1 {
		t.Fatalf("class counts = %d %d %d, want 2 2 1", ds.ClassCount(0), ds.ClassCount(1), ds.ClassCount(2))
	}
	total := ds.ClassCount(0) + ds.ClassCount(1) + ds.ClassCount(2)
	if total != ds.N {
		t.Fatalf("sum of class counts = %d, want N = %d", total, ds.N)
	}
}

func TestBuildClassIndexOutOfRange(t *testing.T) {
	attrRows := [][]int{{0, 0}}
	classes := []int{5}
	ds := buildDataset(t, attrRows, classes, 3, 2)
	err := ds.BuildClassIndex()
	if !errors.Is(err, ErrClassOutOfRange) {
		t.Fatalf("BuildClassIndex error = %v, want ErrClassOutOfRange", err)
	}
}

func TestPrepareIsNoOpOnCleanDataset(t *testing.T) {
	attrRows := [][]int{
		{0, 0}, {0, 1}, {1, 0}, {1, 1},
	}
	classes := []int{0, 0, 1, 1}
	ds := buildDataset(t, attrRows, classes, 2, 2)
	removed, err := ds.Prepare()
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if removed != 0 {
		t.Errorf("Prepare on a dataset with no duplicates removed %d rows, want 0", removed)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	attrRows := [][]int{{1, 0}, {0, 1}}
	classes := []int{0, 1}
	ds := buildDataset(t, attrRows, classes, 1, 2)
	if _, err := ds.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	clone := ds.Clone()
	clone.Rows[0] = ^uint64(0)
	if ds.Rows[0] == clone.Rows[0] {
		t.Fatalf("Clone shares backing storage with the original")
	}
}
