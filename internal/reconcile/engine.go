package reconcile

import (
	"github.com/zlomekfs/zfsd/internal/metadata"
)

// Engine binds the per-volume metadata store to a master connection and
// runs the update/reintegrate/conflict operations of spec.md §4.7 over
// them. One Engine serves one volume; the scheduler (C8) owns picking
// which dentry to hand it next and on which queue.
type Engine struct {
	Store  *metadata.Store
	Remote Remote
}

// New returns an Engine for the given volume store and master connection.
func New(store *metadata.Store, remote Remote) *Engine {
	return &Engine{Store: store, Remote: remote}
}
