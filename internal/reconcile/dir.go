package reconcile

import (
	"context"
	"fmt"

	"github.com/zlomekfs/zfsd/internal/codec"
	"github.com/zlomekfs/zfsd/internal/metadata"
)

// LocalEntry describes a directory's local journal-replay inputs, spec.md §4.7.4.
type LocalEntry struct {
	Exists bool
	Attr   codec.Attr
}

// LocalNameLookup resolves a journalled name to its current local state,
// used by ReintegrateDir's ADD replay to check "the local file still
// exists", spec.md §4.7.4.
type LocalNameLookup func(name string) (LocalEntry, error)

// ReintegrateDir is reintegrate_dir of spec.md §4.7.4: it replays the
// directory's journal entry-by-entry against the master's current
// listing, returning any conflicts it had to materialise and rewriting
// the journal to keep only the entries that still need another attempt.
func (e *Engine) ReintegrateDir(ctx context.Context, dirFH codec.FileHandle, dev, ino, gen uint32, lookup LocalNameLookup) ([]Conflict, error) {
	j, err := e.Store.ReadDirJournal(dev, ino, gen)
	if err != nil {
		return nil, fmt.Errorf("reconcile: reintegrate_dir: read_journal: %w", err)
	}
	masterList, err := e.Remote.ReadDir(ctx, dirFH)
	if err != nil {
		return nil, fmt.Errorf("reconcile: reintegrate_dir: readdir: %w", err)
	}
	masterByName := make(map[string]codec.FileHandle, len(masterList.Entries))
	for _, me := range masterList.Entries {
		masterByName[me.Name] = me.FH
	}

	var conflicts []Conflict
	var remaining []metadata.JournalEntry

	for _, entry := range j.Entries {
		switch entry.Oper {
		case metadata.JournalAdd:
			le, lerr := lookup(entry.Name)
			if lerr != nil {
				return nil, fmt.Errorf("reconcile: reintegrate_dir: lookup %q: %w", entry.Name, lerr)
			}
			if !le.Exists {
				continue // nothing left to reintegrate, drop the entry
			}
			if masterFH, taken := masterByName[entry.Name]; taken {
				conflicts = append(conflicts, MaterializeCreateCreateConflict(dev, ino, entry.Name, entry.LocalFH, masterFH))
				continue
			}
			if _, aerr := e.Remote.ReintegrateAdd(ctx, dirFH, entry.Name, le.Attr); aerr != nil {
				remaining = append(remaining, entry)
				continue
			}
			// success: drop the entry, the create is now reflected upstream

		case metadata.JournalDel:
			masterFH, present := masterByName[entry.Name]
			if present && !masterFH.Equal(entry.MasterFH) {
				conflicts = append(conflicts, MaterializeDeleteModifyConflict(dev, ino, entry.Name, masterFH))
				continue
			}
			le, lerr := lookup(entry.Name)
			if lerr != nil {
				return nil, fmt.Errorf("reconcile: reintegrate_dir: lookup %q: %w", entry.Name, lerr)
			}
			destroy := !le.Exists
			if derr := e.Remote.ReintegrateDel(ctx, dirFH, entry.Name, destroy); derr != nil {
				remaining = append(remaining, entry)
				continue
			}
			// success: drop the entry
		}
	}

	if err := e.Store.WriteDirJournal(dev, ino, gen, &metadata.Journal{Entries: remaining}); err != nil {
		return nil, fmt.Errorf("reconcile: reintegrate_dir: write_journal: %w", err)
	}
	return conflicts, nil
}

// LocalDirEntry is one of the local namespace's live children, the input
// update_dir compares against the master's readdir result, spec.md §4.7.4.
type LocalDirEntry struct {
	Name     string
	LocalFH  codec.FileHandle
	MasterFH codec.FileHandle // the master_fh our metadata record has on file, Undefined if none
}

// DirSync is everything UpdateDir needs from the namespace layer to apply
// its decisions: deleting a local child and materialising a brand-new one
// from remote attributes, spec.md §4.7.4. A delete that can't be applied
// immediately is journalled by UpdateDir itself through the metadata store.
type DirSync interface {
	DeleteLocal(name string, localFH codec.FileHandle) error
	CreateLocalFH(name string, remoteFH codec.FileHandle, attr codec.Attr) error
}

// UpdateDir is update_dir of spec.md §4.7.4: it compares the full local
// and master directory listings. Matching entries are returned for the
// caller to recurse into with IFHMetadata; mismatches become conflicts;
// locally-present-but-master-gone entries are deleted or journalled for
// later deletion depending on whether our local_version has moved past
// master_version; and master-only entries are materialised locally.
func (e *Engine) UpdateDir(ctx context.Context, dirFH codec.FileHandle, dev, ino, gen uint32, local []LocalDirEntry, sync DirSync) (needsMetadataRecheck []codec.FileHandle, conflicts []Conflict, err error) {
	masterList, err := e.Remote.ReadDir(ctx, dirFH)
	if err != nil {
		return nil, nil, fmt.Errorf("reconcile: update_dir: readdir: %w", err)
	}
	masterByName := make(map[string]codec.FileHandle, len(masterList.Entries))
	for _, me := range masterList.Entries {
		masterByName[me.Name] = me.FH
	}

	for _, le := range local {
		masterFH, present := masterByName[le.Name]
		if present {
			delete(masterByName, le.Name)
			if le.MasterFH.Equal(masterFH) {
				needsMetadataRecheck = append(needsMetadataRecheck, le.LocalFH)
			} else {
				conflicts = append(conflicts, MaterializeModifyModifyConflict(dev, ino, le.Name, le.LocalFH, masterFH))
			}
			continue
		}

		// The master-side object disappeared.
		rec, found, lerr := e.Store.Lookup(le.LocalFH.Dev, le.LocalFH.Ino, false)
		if lerr != nil {
			return nil, nil, fmt.Errorf("reconcile: update_dir: lookup %q: %w", le.Name, lerr)
		}
		if found && rec.LocalVersion == rec.MasterVersion {
			if derr := sync.DeleteLocal(le.Name, le.LocalFH); derr != nil {
				return nil, nil, fmt.Errorf("reconcile: update_dir: delete_local %q: %w", le.Name, derr)
			}
			continue
		}
		mv := uint64(0)
		if found {
			mv = rec.MasterVersion
		}
		if _, jerr := e.Store.AddDirJournalEntry(dev, ino, gen, metadata.JournalEntry{
			LocalFH: le.LocalFH, Oper: metadata.JournalDel, Name: le.Name, MasterFH: le.MasterFH, MasterVersion: mv,
		}); jerr != nil {
			return nil, nil, fmt.Errorf("reconcile: update_dir: journal delete %q: %w", le.Name, jerr)
		}
	}

	for name, fh := range masterByName {
		attr, aerr := e.Remote.GetAttr(ctx, fh)
		if aerr != nil {
			return nil, nil, fmt.Errorf("reconcile: update_dir: get_attr %q: %w", name, aerr)
		}
		if cerr := sync.CreateLocalFH(name, fh, attr); cerr != nil {
			return nil, nil, fmt.Errorf("reconcile: update_dir: create_local_fh %q: %w", name, cerr)
		}
	}

	return needsMetadataRecheck, conflicts, nil
}
