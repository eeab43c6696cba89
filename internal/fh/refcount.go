package fh

import (
	"fmt"
	"log/slog"
)

// refCount mirrors gcsfuse's inode lookup-count helper: a count that calls
// destroy once it returns to zero, with destroy errors logged but otherwise
// swallowed. External synchronization is required, spec.md §4.4.
type refCount struct {
	count   uint32
	destroy func() error
}

func (rc *refCount) inc() {
	rc.count++
}

// dec decrements by n and destroys once the count reaches zero, returning
// whether destruction happened.
func (rc *refCount) dec(n uint32) (destroyed bool) {
	if n > rc.count {
		panic(fmt.Sprintf("fh: dec %d exceeds refcount %d", n, rc.count))
	}
	rc.count -= n
	if rc.count == 0 {
		if err := rc.destroy(); err != nil {
			slog.Error("fh: destroy failed", "error", err)
		}
		destroyed = true
	}
	return
}
