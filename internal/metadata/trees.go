package metadata

import (
	"fmt"
	"os"

	"github.com/zlomekfs/zfsd/internal/interval"
)

// LoadIntervalTrees materialises updated+modified for (dev,ino), ref
// counted: the first call opens the sidecar files, spec.md §4.3.
func (s *Store) LoadIntervalTrees(dev, ino uint32) (updated, modified *interval.Tree, err error) {
	s.ivMu.Lock()
	defer s.ivMu.Unlock()

	k := key{dev, ino}
	if e, ok := s.ivCache[k]; ok {
		e.refs++
		return e.updated, e.modified, nil
	}

	updated, err = s.readTreeFile(dev, ino, "updated")
	if err != nil {
		return nil, nil, err
	}
	modified, err = s.readTreeFile(dev, ino, "modified")
	if err != nil {
		return nil, nil, err
	}

	s.ivCache[k] = &intervalEntry{refs: 1, updated: updated, modified: modified}
	return updated, modified, nil
}

func (s *Store) readTreeFile(dev, ino uint32, suffix string) (*interval.Tree, error) {
	path := DerivePath(s.root, dev, ino, s.depth, suffix)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return interval.New(), nil
	}
	if err != nil {
		return nil, s.fail(fmt.Errorf("metadata: open %s: %w", path, err))
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, s.fail(err)
	}
	n := int(fi.Size() / 16)
	t, err := interval.ReadFromLog(f, n)
	if err != nil {
		return nil, s.fail(err)
	}
	return t, nil
}

// SaveIntervalTrees decrements the ref count; the last release rewrites (or
// removes, when complete/empty) and closes the sidecars, spec.md §4.2/§4.3.
func (s *Store) SaveIntervalTrees(dev, ino uint32, size uint64) error {
	s.ivMu.Lock()
	k := key{dev, ino}
	e, ok := s.ivCache[k]
	if !ok {
		s.ivMu.Unlock()
		return fmt.Errorf("metadata: save_interval_trees: not loaded for dev=%d ino=%d", dev, ino)
	}
	e.refs--
	last := e.refs <= 0
	if last {
		delete(s.ivCache, k)
	}
	s.ivMu.Unlock()
	if !last {
		return nil
	}

	complete := e.updated.Covered(0, size)
	if complete {
		if err := os.Remove(DerivePath(s.root, dev, ino, s.depth, "updated")); err != nil && !os.IsNotExist(err) {
			return s.fail(err)
		}
	} else if e.updated.NeedsRewrite() || !e.updated.Empty() {
		if err := e.updated.Rewrite(DerivePath(s.root, dev, ino, s.depth, "updated")); err != nil {
			return s.fail(err)
		}
	}

	if e.modified.Empty() {
		if err := os.Remove(DerivePath(s.root, dev, ino, s.depth, "modified")); err != nil && !os.IsNotExist(err) {
			return s.fail(err)
		}
	} else if e.modified.NeedsRewrite() {
		if err := e.modified.Rewrite(DerivePath(s.root, dev, ino, s.depth, "modified")); err != nil {
			return s.fail(err)
		}
	}

	s.mu.Lock()
	r, found, err := s.lookupLocked(dev, ino)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if found {
		if complete {
			r.Flags = r.Flags.Set(FlagComplete).Clear(FlagUpdatedTree)
		} else if !e.updated.Empty() {
			r.Flags = r.Flags.Set(FlagUpdatedTree).Clear(FlagComplete)
		}
		if e.modified.Empty() {
			r.Flags = r.Flags.Clear(FlagModifiedTree)
		} else {
			r.Flags = r.Flags.Set(FlagModifiedTree)
		}
		s.mu.Lock()
		err = s.flush(r)
		s.mu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}
