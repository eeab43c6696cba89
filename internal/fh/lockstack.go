package fh

import (
	"context"
	"fmt"
)

// MaxLockedFileHandles bounds how many dentries a single worker may hold
// locked at once, spec.md §4.4's "fixed-size stack (MAX_LOCKED_FILE_HANDLES)".
const MaxLockedFileHandles = 32

type lockedEntry struct {
	d     *Dentry
	level LockLevel
}

// LockStack is a fixed-size, per-worker record of every dentry that worker
// currently holds locked, so ReleaseAll can unwind them all on that
// worker's exit/cleanup path, spec.md §4.4.
type LockStack struct {
	entries [MaxLockedFileHandles]lockedEntry
	n       int
}

// NewLockStack returns an empty stack, one per worker goroutine.
func NewLockStack() *LockStack {
	return &LockStack{}
}

// Lock acquires d at level and records it, failing closed once the stack is
// full rather than growing past MaxLockedFileHandles.
func (s *LockStack) Lock(d *Dentry, level LockLevel) error {
	if s.n >= MaxLockedFileHandles {
		return fmt.Errorf("fh: lock stack full (max %d locked file handles)", MaxLockedFileHandles)
	}
	d.Lock(level)
	s.entries[s.n] = lockedEntry{d: d, level: level}
	s.n++
	return nil
}

// Unlock releases d, which must be the most recently locked entry still on
// the stack that has not yet been unlocked; it need not be the very top if
// the caller unlocks out of strict LIFO order, but the common case (and the
// only one the original's stack discipline expects) is unlocking the most
// recent lock first.
func (s *LockStack) Unlock(d *Dentry) {
	for i := s.n - 1; i >= 0; i-- {
		if s.entries[i].d == d {
			d.Unlock(s.entries[i].level)
			copy(s.entries[i:s.n-1], s.entries[i+1:s.n])
			s.n--
			return
		}
	}
}

// ReleaseAll unwinds every still-held lock in LIFO order, the behavior that
// runs on a worker's thread exit/cleanup path so a panic or an early return
// can never leak a held dentry lock.
func (s *LockStack) ReleaseAll() {
	for s.n > 0 {
		s.n--
		e := s.entries[s.n]
		e.d.Unlock(e.level)
	}
}

// Len reports how many dentries are currently tracked, for tests.
func (s *LockStack) Len() int { return s.n }

type lockStackKey struct{}

// WithLockStack attaches s to ctx, for operations several calls deep that
// need to record a lock against the current worker's stack without having
// it threaded through every signature.
func WithLockStack(ctx context.Context, s *LockStack) context.Context {
	return context.WithValue(ctx, lockStackKey{}, s)
}

// LockStackFromContext retrieves the stack attached by WithLockStack, if any.
func LockStackFromContext(ctx context.Context) (*LockStack, bool) {
	s, ok := ctx.Value(lockStackKey{}).(*LockStack)
	return s, ok
}
