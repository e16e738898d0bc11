// Package shared implements the node-local shared-memory coordinator: one
// rank per physical node (in this in-process model, one rank per
// goroutine group sharing a NodeGroup) loads the dataset once; every
// other rank in the node reads the same pointer. No barrier is used: the
// orchestrator finishes the mutable setup phase in its own goroutine
// before the cover phase starts any rank goroutine.
package shared

import (
	"sync"

	"github.com/laid-engine/laid/pkg/dataset"
)

// Metadata is the broadcastable shape of a prepared dataset: attribute
// count, observation count, class count, word count, and JNSQ width. It
// is stored alongside the dataset by Load or Refresh; it is not sent over
// any communicator.
type Metadata struct {
	Attributes int
	ClassBits  int
	Words      int
	N          int
	K          int
	JNSQWidth  int
}

// NodeGroup owns exactly one in-node copy of the dataset. The node-local
// root (NodeRank() == 0) is the only rank allowed to mutate it, by
// construction of the orchestrator's control flow: only the root's
// goroutine ever calls Load, before any reader rank is started. All other
// ranks in the node only ever call Dataset()/Metadata().
type NodeGroup struct {
	mu   sync.RWMutex
	ds   *dataset.Dataset
	meta Metadata
}

// New creates an empty NodeGroup; the node-local root populates it via
// Load.
func New() *NodeGroup {
	return &NodeGroup{}
}

// Load installs ds as the node's shared dataset, replacing any previous
// pointer. cmd/laid calls it once, with the dataset the JNSQ stage
// produces; the dataset as first read is never installed.
func (g *NodeGroup) Load(ds *dataset.Dataset, meta Metadata) {
	g.mu.Lock()
	g.ds = ds
	g.meta = meta
	g.mu.Unlock()
}

// Dataset returns the shared, read-only-after-setup dataset pointer.
// Callers must not call this before setup has finished.
func (g *NodeGroup) Dataset() *dataset.Dataset {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.ds
}

// Metadata returns the broadcastable dataset shape.
func (g *NodeGroup) Metadata() Metadata {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.meta
}

// Refresh updates the metadata after a mutation (e.g. JNSQ widening the
// layout). Only the node-local root calls this.
func (g *NodeGroup) Refresh(meta Metadata) {
	g.mu.Lock()
	g.meta = meta
	g.mu.Unlock()
}
