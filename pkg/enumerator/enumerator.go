// Package enumerator implements the class-pair row enumeration scheme for
// the virtual disjoint matrix: given a linear row index in [0, L), it
// resolves the (classA, idxA, classB, idxB) tuple that the nested-loop
// order of the specification would reach at that index, and supports
// stepping forward one tuple at a time.
package enumerator

import "fmt"

// ClassSizes holds n_k for each class, used to compute L and to drive the
// enumeration without needing the full dataset.
type ClassSizes []int

// Tuple identifies one row of the virtual disjoint matrix: the crossing
// of observation idxA of classA against idxB of classB (classA < classB).
type Tuple struct {
	ClassA int
	IdxA   int
	ClassB int
	IdxB   int
}

// Enumerator walks the nested-loop order:
//
//	for classA in 0..K-1:
//	  for idxA in 0..n_classA:
//	    for classB in classA+1..K:
//	      for idxB in 0..n_classB:
//	        emit (classA, idxA, classB, idxB)
type Enumerator struct {
	sizes ClassSizes
	k     int
}

// New builds an Enumerator over K classes with the given per-class sizes.
func New(sizes ClassSizes) *Enumerator {
	return &Enumerator{sizes: sizes, k: len(sizes)}
}

// TotalRows returns L = sum over a<b of n_a * n_b.
func (e *Enumerator) TotalRows() int64 {
	var total int64
	for a := 0; a < e.k; a++ {
		for b := a + 1; b < e.k; b++ {
			total += int64(e.sizes[a]) * int64(e.sizes[b])
		}
	}
	return total
}

// rowsForClassA returns the number of rows emitted while classA is fixed:
// n_classA * sum_{b>classA} n_b.
func (e *Enumerator) rowsForClassA(classA int) int64 {
	var crossSum int64
	for b := classA + 1; b < e.k; b++ {
		crossSum += int64(e.sizes[b])
	}
	return int64(e.sizes[classA]) * crossSum
}

// rowsForIdxA (within classA) returns the row count contributed by a
// single idxA: sum_{b>classA} n_b.
func (e *Enumerator) rowsForIdxA(classA int) int64 {
	var crossSum int64
	for b := classA + 1; b < e.k; b++ {
		crossSum += int64(e.sizes[b])
	}
	return crossSum
}

// At resolves the tuple at linear index ell in [0, L).
//
// For K=2 this is O(1): (0, ell/n_1, 1, ell mod n_1). For K>2 it walks the
// nested loops until the running counter reaches ell; called once per
// rank at setup, so O(ell) is acceptable.
func (e *Enumerator) At(ell int64) (Tuple, error) {
	if ell < 0 {
		return Tuple{}, fmt.Errorf("enumerator: negative index %d", ell)
	}
	if l := e.TotalRows(); ell >= l {
		return Tuple{}, fmt.Errorf("enumerator: index %d out of range (L=%d)", ell, l)
	}
	if e.k == 2 {
		n1 := int64(e.sizes[1])
		if n1 == 0 {
			return Tuple{}, fmt.Errorf("enumerator: class 1 is empty")
		}
		return Tuple{ClassA: 0, IdxA: int(ell / n1), ClassB: 1, IdxB: int(ell % n1)}, nil
	}

	remaining := ell
	for classA := 0; classA < e.k; classA++ {
		perClassA := e.rowsForClassA(classA)
		if remaining >= perClassA {
			remaining -= perClassA
			continue
		}
		perIdxA := e.rowsForIdxA(classA)
		if perIdxA == 0 {
			return Tuple{}, fmt.Errorf("enumerator: index %d out of range", ell)
		}
		idxA := int(remaining / perIdxA)
		remaining %= perIdxA
		for classB := classA + 1; classB < e.k; classB++ {
			nB := int64(e.sizes[classB])
			if remaining >= nB {
				remaining -= nB
				continue
			}
			return Tuple{ClassA: classA, IdxA: idxA, ClassB: classB, IdxB: int(remaining)}, nil
		}
		return Tuple{}, fmt.Errorf("enumerator: index %d out of range", ell)
	}
	return Tuple{}, fmt.Errorf("enumerator: index %d out of range (L=%d)", ell, e.TotalRows())
}

// Advance moves t to the next tuple in nested-loop order: idxB advances
// fastest, then classB, then idxA, then classA. Returns false if t was
// the last tuple (no next tuple exists).
func (e *Enumerator) Advance(t *Tuple) bool {
	if t.IdxB+1 < e.sizes[t.ClassB] {
		t.IdxB++
		return true
	}
	if classB, ok := e.firstNonEmptyFrom(t.ClassB + 1); ok {
		t.ClassB = classB
		t.IdxB = 0
		return true
	}
	if firstB, ok := e.firstNonEmptyFrom(t.ClassA + 1); ok && t.IdxA+1 < e.sizes[t.ClassA] {
		t.IdxA++
		t.ClassB = firstB
		t.IdxB = 0
		return true
	}
	for classA := t.ClassA + 1; classA < e.k; classA++ {
		if e.sizes[classA] == 0 {
			continue
		}
		if firstB, ok := e.firstNonEmptyFrom(classA + 1); ok {
			t.ClassA = classA
			t.IdxA = 0
			t.ClassB = firstB
			t.IdxB = 0
			return true
		}
	}
	return false
}

// firstNonEmptyFrom returns the smallest class index >= start with a
// non-zero observation count.
func (e *Enumerator) firstNonEmptyFrom(start int) (int, bool) {
	for c := start; c < e.k; c++ {
		if e.sizes[c] > 0 {
			return c, true
		}
	}
	return 0, false
}

// Remaining reports how many tuples lie in [offset, offset+size) given
// the enumerator's L, i.e. size clipped to the end of [0, L).
func (e *Enumerator) Remaining(offset, size int64) int64 {
	l := e.TotalRows()
	if offset >= l {
		return 0
	}
	if offset+size > l {
		return l - offset
	}
	return size
}

// PairWalker steps through exactly `size` tuples starting at `offset`,
// respecting the nested-loop ordering. It is the single shared cursor
// both the virtual matrix's column generator and the attribute-total
// engine's pair scan use, collapsing what would otherwise be two
// independent line-view/column-view walks over the same ordering.
type PairWalker struct {
	en       *Enumerator
	cur      Tuple
	emitted  int64
	size     int64
	started  bool
	exhausted bool
}

// NewPairWalker creates a walker over [offset, offset+size) of the
// enumerator's row order.
func NewPairWalker(en *Enumerator, offset, size int64) (*PairWalker, error) {
	w := &PairWalker{en: en, size: size}
	if size == 0 {
		w.exhausted = true
		return w, nil
	}
	t, err := en.At(offset)
	if err != nil {
		return nil, err
	}
	w.cur = t
	return w, nil
}

// Next returns the next tuple and true, or the zero Tuple and false once
// size tuples have been emitted.
func (w *PairWalker) Next() (Tuple, bool) {
	if w.exhausted || w.emitted >= w.size {
		return Tuple{}, false
	}
	if !w.started {
		w.started = true
		w.emitted++
		return w.cur, true
	}
	if !w.en.Advance(&w.cur) {
		w.exhausted = true
		return Tuple{}, false
	}
	w.emitted++
	return w.cur, true
}
