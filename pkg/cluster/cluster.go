// Package cluster provides an in-process stand-in for the MPI-style
// launcher the engine is built against: a fixed number of ranks, grouped
// into nodes, that rendezvous at explicit collective operations
// (broadcast, reduce, barrier) exactly as spec.md §5 describes. Each
// rank's cover loop in pkg/setcover talks to its peers only through the
// Communicator interface, but setcover.Driver holds a *Cluster and runs
// every rank as a goroutine of the same process.
package cluster

import (
	"context"
	"errors"
	"sync"
)

// ErrDistributedInit is returned when a Cluster cannot be constructed
// with the requested shape (e.g. zero ranks, or ranksPerNode not
// dividing size).
var ErrDistributedInit = errors.New("cluster: distributed init failure")

// Communicator is the collective-operation surface a rank uses. Every
// rank in a superstep must call each method exactly once per round, even
// ranks with an empty slice of work, because the reduction is only
// correct once every rank has contributed. If any rank's goroutine
// returns an error (an invariant breach) and abandons the round, the
// others' in-flight or subsequent collective calls unblock with that same
// error instead of hanging forever waiting for an arrival that will never
// come — standing in for the way a real MPI job aborts the whole
// communicator when one rank faults.
type Communicator interface {
	Rank() int
	Size() int
	NodeRank() int
	NodeSize() int
	// ReduceSum sums local across all ranks and returns the total to
	// every rank (only rank 0's copy is authoritative for decisions, but
	// every rank receives it so it can log/verify).
	ReduceSum(ctx context.Context, local []int64) ([]int64, error)
	// Broadcast has rank 0 provide value; every rank (including rank 0)
	// receives the same value back.
	Broadcast(ctx context.Context, value int) (int, error)
	// Barrier blocks until every rank has called Barrier for this round.
	Barrier(ctx context.Context) error
}

// Cluster owns the shared rendezvous state for Size ranks split into
// nodes of NodeSize ranks each (node-local rank 0 is the node-local
// root).
type Cluster struct {
	size     int
	nodeSize int

	mu        sync.Mutex
	arrived   int
	genDone   chan struct{}
	sumInputs [][]int64
	sumResult []int64
	bcastVal  int
	aborted   bool
	abortErr  error
}

// New builds a Cluster of size ranks, nodeSize ranks per node. size must
// be a positive multiple of nodeSize, matching the node-local
// communicator split the shared-memory coordinator relies on.
func New(size, nodeSize int) (*Cluster, error) {
	if size <= 0 || nodeSize <= 0 || size%nodeSize != 0 {
		return nil, ErrDistributedInit
	}
	return &Cluster{
		size:      size,
		nodeSize:  nodeSize,
		genDone:   make(chan struct{}),
		sumInputs: make([][]int64, size),
	}, nil
}

// Rank returns a Communicator bound to logical rank r.
func (c *Cluster) Rank(r int) Communicator {
	return &rankHandle{c: c, rank: r}
}

type rankHandle struct {
	c    *Cluster
	rank int
}

func (h *rankHandle) Rank() int     { return h.rank }
func (h *rankHandle) Size() int     { return h.c.size }
func (h *rankHandle) NodeRank() int { return h.rank % h.c.nodeSize }
func (h *rankHandle) NodeSize() int { return h.c.nodeSize }

// rendezvous blocks the calling goroutine until every rank has arrived
// for the current round, running compute exactly once — by whichever
// rank is last to arrive — before releasing everyone. Barrier, ReduceSum,
// and Broadcast are all built from this one primitive.
func (c *Cluster) rendezvous(ctx context.Context, arrive func(), compute func()) error {
	c.mu.Lock()
	if c.aborted {
		err := c.abortErr
		c.mu.Unlock()
		return err
	}
	arrive()
	c.arrived++
	myGen := c.genDone

	if c.arrived == c.size {
		compute()
		c.arrived = 0
		c.sumInputs = make([][]int64, c.size)
		c.genDone = make(chan struct{})
		close(myGen)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	select {
	case <-myGen:
		c.mu.Lock()
		aborted, err := c.aborted, c.abortErr
		c.mu.Unlock()
		if aborted {
			return err
		}
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		firstAbort := !c.aborted
		if firstAbort {
			c.aborted = true
			c.abortErr = ctx.Err()
		}
		c.mu.Unlock()
		if firstAbort {
			close(myGen)
		}
		return ctx.Err()
	}
}

func (h *rankHandle) Barrier(ctx context.Context) error {
	return h.c.rendezvous(ctx, func() {}, func() {})
}

func (h *rankHandle) ReduceSum(ctx context.Context, local []int64) ([]int64, error) {
	err := h.c.rendezvous(ctx,
		func() {
			h.c.sumInputs[h.rank] = append([]int64(nil), local...)
		},
		func() {
			width := 0
			for _, v := range h.c.sumInputs {
				if len(v) > width {
					width = len(v)
				}
			}
			sum := make([]int64, width)
			for _, v := range h.c.sumInputs {
				for i, x := range v {
					sum[i] += x
				}
			}
			h.c.sumResult = sum
		},
	)
	if err != nil {
		return nil, err
	}
	h.c.mu.Lock()
	result := h.c.sumResult
	h.c.mu.Unlock()
	return result, nil
}

func (h *rankHandle) Broadcast(ctx context.Context, value int) (int, error) {
	err := h.c.rendezvous(ctx,
		func() {
			if h.rank == 0 {
				h.c.bcastVal = value
			}
		},
		func() {},
	)
	if err != nil {
		return 0, err
	}
	h.c.mu.Lock()
	v := h.c.bcastVal
	h.c.mu.Unlock()
	return v, nil
}
