// Package setcover implements the distributed greedy set-cover driver: a
// round-based reduction over per-rank attribute-discrimination totals
// that incrementally selects the attribute covering the most
// still-uncovered class-pair rows, until every row is covered or no
// attribute can cover any more.
package setcover

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/laid-engine/laid/pkg/cluster"
	"github.com/laid-engine/laid/pkg/dataset"
	"github.com/laid-engine/laid/pkg/enumerator"
	"github.com/laid-engine/laid/pkg/matrix"
	"github.com/laid-engine/laid/pkg/partition"
	"github.com/laid-engine/laid/pkg/totals"
)

// ErrInvariantBreach is fatal: the enumerator produced a tuple out of
// range, totals went negative, or a rank's slice exceeded L. There is no
// retry; the algorithm is cheap to restart.
var ErrInvariantBreach = errors.New("setcover: invariant breach")

// state names the five-state machine of the round loop.
type state int

const (
	stateInit state = iota
	stateReduce
	stateDecide
	stateUpdate
	stateDone
)

// RoundLog records one round's decision, used both for zerolog fields and
// the post-hoc gonum/stat summary.
type RoundLog struct {
	Round           int
	SelectedAttr    int
	CoverageGained  int64
	UncoveredBefore int64
	UncoveredAfter  int64
}

// Logger is the minimal logging surface the driver needs, so pkg/setcover
// does not import zerolog. A zerolog.Logger does not satisfy it directly;
// cmd/laid wraps one in a small adapter.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
}

// Result is the terminal output of the cover loop.
type Result struct {
	Selected           []int
	TotalAttributes    int
	Rounds             []RoundLog
	RoundCoverageMean  float64
	RoundCoverageStdev float64
}

// Driver runs the round loop across an in-process Cluster of ranks, all
// sharing one read-only dataset (paired via the caller-supplied
// enumerator.Enumerator).
type Driver struct {
	DS      *dataset.Dataset
	En      *enumerator.Enumerator
	Cluster *cluster.Cluster
	Logger  Logger

	// WordsPerCycle overrides totals.Engine's cache-tiling width; zero
	// keeps the totals package default.
	WordsPerCycle int
}

// Run drives every rank's goroutine through the Init/Reduce/Decide/
// Update/Done state machine to completion and returns the root's
// solution. Ranks with an empty slice still participate in every
// collective with zero-vectors, as the reduction's correctness requires.
func (d *Driver) Run(ctx context.Context) (Result, error) {
	size := d.Cluster.Rank(0).Size()
	l := d.En.TotalRows()

	g, ctx := errgroup.WithContext(ctx)
	results := make([]Result, size)

	for r := 0; r < size; r++ {
		r := r
		g.Go(func() error {
			res, err := d.runRank(ctx, r, l)
			if err != nil {
				return err
			}
			results[r] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	// Every rank follows the same decision sequence (broadcast from the
	// root), but only rank 0 assembles the solution; the other ranks
	// return an empty Result.
	return results[0], nil
}

func (d *Driver) runRank(ctx context.Context, rank int, l int64) (Result, error) {
	comm := d.Cluster.Rank(rank)
	rng := partition.For(rank, comm.Size(), l)
	if rng.Size > l {
		return Result{}, fmt.Errorf("%w: rank %d slice size %d exceeds L=%d", ErrInvariantBreach, rank, rng.Size, l)
	}

	vm := matrix.New(d.DS, d.En)
	eng := totals.New(d.DS, d.En, rng.Offset, rng.Size)
	if d.WordsPerCycle > 0 {
		eng.Tile = d.WordsPerCycle
	}
	if err := eng.InitialTotals(); err != nil {
		return Result{}, fmt.Errorf("setcover: rank %d initial totals: %w", rank, err)
	}

	selected := make([]bool, d.DS.Layout.Attributes)
	globalUncovered := l // only rank 0's copy is authoritative; see spec.md §3
	var rounds []RoundLog
	st := stateInit

roundLoop:
	for {
		switch st {
		case stateInit:
			st = stateReduce

		case stateReduce:
			globalTotals, err := comm.ReduceSum(ctx, eng.Totals)
			if err != nil {
				return Result{}, fmt.Errorf("setcover: rank %d reduce: %w", rank, err)
			}

			st = stateDecide
			best := -1
			if rank == 0 {
				best = decide(globalTotals, globalUncovered)
			}
			best, err = comm.Broadcast(ctx, best)
			if err != nil {
				return Result{}, fmt.Errorf("setcover: rank %d broadcast: %w", rank, err)
			}
			if best < 0 {
				st = stateDone
				continue roundLoop
			}

			before := globalUncovered
			gained := globalTotals[best]
			if gained < 0 {
				return Result{}, fmt.Errorf("%w: rank %d attribute %d has negative global total %d", ErrInvariantBreach, rank, best, gained)
			}

			st = stateUpdate
			if _, err := d.update(eng, vm, best); err != nil {
				return Result{}, err
			}
			if rank == 0 {
				selected[best] = true
				globalUncovered -= gained
				if globalUncovered < 0 {
					return Result{}, fmt.Errorf("%w: global_uncovered went negative", ErrInvariantBreach)
				}
				rounds = append(rounds, RoundLog{
					Round:           len(rounds),
					SelectedAttr:    best,
					CoverageGained:  gained,
					UncoveredBefore: before,
					UncoveredAfter:  globalUncovered,
				})
				if d.Logger != nil {
					d.Logger.Debugf("round %d: selected attribute %d, gained %d, uncovered %d -> %d",
						len(rounds)-1, best, gained, before, globalUncovered)
				}
			}
			st = stateReduce

		case stateDone:
			break roundLoop
		}
	}

	if rank != 0 {
		return Result{}, nil
	}

	var out []int
	for j, s := range selected {
		if s {
			out = append(out, j)
		}
	}
	sort.Ints(out)

	res := Result{
		Selected:        out,
		TotalAttributes: d.DS.Layout.Attributes,
		Rounds:          rounds,
	}
	if len(rounds) > 0 {
		gains := make([]float64, len(rounds))
		for i, rl := range rounds {
			gains[i] = float64(rl.CoverageGained)
		}
		res.RoundCoverageMean, res.RoundCoverageStdev = stat.MeanStdDev(gains, nil)
	}
	if d.Logger != nil {
		d.Logger.Infof("cover complete: %d attributes selected of %d", len(out), d.DS.Layout.Attributes)
	}
	return res, nil
}

// decide finds argmax(globalTotals); ties break to the lowest index. best
// is -1 once no attribute can cover any uncovered row, or the uncovered
// count has already reached zero.
func decide(globalTotals []int64, globalUncovered int64) int {
	if globalUncovered == 0 {
		return -1
	}
	best := -1
	var bestVal int64
	for j, v := range globalTotals {
		if v > bestVal {
			bestVal = v
			best = j
		}
	}
	if bestVal == 0 {
		return -1
	}
	return best
}

// update applies the best attribute's column to this rank's slice,
// choosing add or subtract to minimize work: if the newly-covered rows
// are fewer than the uncovered remainder, mask already-covered bits out
// of best_column, subtract those rows' contributions, then mark them
// covered; otherwise mark covered first, then rebuild totals via add.
func (d *Driver) update(eng *totals.Engine, vm *matrix.VirtualMatrix, best int) (int64, error) {
	column, err := vm.GetColumn(best, eng.Offset, eng.Size)
	if err != nil {
		return 0, fmt.Errorf("setcover: get column %d: %w", best, err)
	}

	uncoveredBefore := eng.UncoveredCount()
	newlyCovered := countNewlyCovered(eng, column)

	if newlyCovered < uncoveredBefore-newlyCovered {
		maskCovered(column, eng.Covered)
		if err := eng.SubtractMask(column); err != nil {
			return 0, err
		}
		eng.MarkCovered(column)
	} else {
		eng.MarkCovered(column)
		if err := eng.Add(); err != nil {
			return 0, err
		}
	}
	return newlyCovered, nil
}

// countNewlyCovered counts bits set in column at positions not already
// covered, without mutating eng.Covered.
func countNewlyCovered(eng *totals.Engine, column []uint64) int64 {
	var n int64
	for p := int64(0); p < eng.Size; p++ {
		word := column[p/64]
		bit := (word >> uint(63-(p%64))) & 1
		if bit == 1 && !eng.Covered[p] {
			n++
		}
	}
	return n
}

// maskCovered clears bits in column at positions already covered, so a
// subsequent Subtract-style pass only touches newly-covered rows.
func maskCovered(column []uint64, covered totals.CoveredLines) {
	for p := range covered {
		if !covered[p] {
			continue
		}
		word := p / 64
		bit := uint(63 - (p % 64))
		column[word] &^= uint64(1) << bit
	}
}

