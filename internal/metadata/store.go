// Package metadata implements C3 of spec.md §4.3: per-volume metadata
// records, hardlink lists, interval-tree sidecars, directory journals, the
// FH mapping, and path derivation, backed by the hash-file format of §4.1.
package metadata

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"

	"github.com/zlomekfs/zfsd/internal/codec"
	"github.com/zlomekfs/zfsd/internal/interval"
)

// RootDev/RootIno identify a volume's root directory: it has no parent
// record to recurse into, terminating get_local_path_from_metadata.
const (
	RootDev uint32 = 0
	RootIno uint32 = 0
)

const (
	defaultMetaSlots   = 4096
	defaultFHMapSlots  = 4096
	defaultFDLimit     = 64
)

// ErrHook receives any hash-file or sidecar write failure so the caller can
// mark the volume delete-on-next-mount (spec.md §4.3 MARK_VOLUME_DELETE).
type ErrHook func(err error)

// Store is the per-volume metadata store.
type Store struct {
	root    string
	depth   int
	isCopy  bool
	onError ErrHook

	mu         sync.Mutex // the per-volume metadata hash-file mutex, spec.md §5 lock ordering
	metaTable  *Table
	fhMapTable *Table
	fds        *FDLimiter

	ivMu    sync.Mutex
	ivCache map[key]*intervalEntry
}

type key struct{ dev, ino uint32 }

type intervalEntry struct {
	refs     int
	updated  *interval.Tree
	modified *interval.Tree
}

// Options configures a new Store.
type Options struct {
	Root    string
	Depth   int // path derivation depth, spec.md §4.3; defaults to MaxDepth
	IsCopy  bool
	FDLimit int
	OnError ErrHook
}

// Open opens (creating if necessary) a volume's metadata and fh_mapping
// hash files.
func Open(opt Options) (*Store, error) {
	if opt.Depth <= 0 {
		opt.Depth = MaxDepth
	}
	if opt.FDLimit <= 0 {
		opt.FDLimit = defaultFDLimit
	}
	if err := os.MkdirAll(filepath.Join(opt.Root, ".zfs"), 0o700); err != nil {
		return nil, fmt.Errorf("metadata: mkdir .zfs: %w", err)
	}
	s := &Store{
		root:    opt.Root,
		depth:   opt.Depth,
		isCopy:  opt.IsCopy,
		onError: opt.OnError,
		fds:     NewFDLimiter(opt.FDLimit),
		ivCache: make(map[key]*intervalEntry),
	}

	metaPath := MetadataHashFilePath(opt.Root)
	mt, err := openOrCreate(metaPath, recordPayloadSize+4, defaultMetaSlots)
	if err != nil {
		return nil, s.fail(err)
	}
	s.metaTable = mt

	fhPath := FHMappingHashFilePath(opt.Root)
	ft, err := openOrCreate(fhPath, fhMappingPayloadSize+4, defaultFHMapSlots)
	if err != nil {
		return nil, s.fail(err)
	}
	s.fhMapTable = ft

	return s, nil
}

func openOrCreate(path string, slotSize int, nSlots uint32) (*Table, error) {
	if _, err := os.Stat(path); err == nil {
		return OpenTable(path, slotSize)
	}
	return Create(path, slotSize, nSlots)
}

func (s *Store) fail(err error) error {
	if s.onError != nil && err != nil {
		s.onError(err)
	}
	return err
}

func (s *Store) Close() error {
	s.fds.CloseAll()
	if s.metaTable != nil {
		s.metaTable.Close()
	}
	if s.fhMapTable != nil {
		s.fhMapTable.Close()
	}
	return nil
}

func hashKey(dev, ino uint32) uint64 {
	h := fnv.New64a()
	var b [8]byte
	b[0], b[1], b[2], b[3] = byte(dev), byte(dev>>8), byte(dev>>16), byte(dev>>24)
	b[4], b[5], b[6], b[7] = byte(ino), byte(ino>>8), byte(ino>>16), byte(ino>>24)
	h.Write(b[:])
	return h.Sum64()
}

func matchesKey(dev, ino uint32) func([]byte) bool {
	return func(payload []byte) bool {
		var r Record
		if err := r.Unmarshal(codec.NewDecoder(payload)); err != nil {
			return false
		}
		return r.Dev == dev && r.Ino == ino
	}
}

func encodeRecord(r Record) ([]byte, error) {
	b := codec.NewEncoder()
	// No padding is added here: Marshal writes a fixed-width record
	// (name field is itself fixed-width), so Bytes() is already the exact
	// payload size expected by the hash table.
	if err := r.Marshal(b); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Lookup reads the slot for (dev,ino); if absent and insert is true, a
// fresh record is created (version=1, master_version=0 if this node is a
// copy else 1), spec.md §4.3.
func (s *Store) Lookup(dev, ino uint32, insert bool) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, found, payload, err := s.metaTable.Find(hashKey(dev, ino), matchesKey(dev, ino))
	if err != nil {
		return Record{}, false, s.fail(fmt.Errorf("metadata: lookup: %w", err))
	}
	if found {
		var r Record
		if err := r.Unmarshal(codec.NewDecoder(payload)); err != nil {
			return Record{}, false, s.fail(err)
		}
		return r, true, nil
	}
	if !insert {
		return Record{}, false, nil
	}

	r := Record{Dev: dev, Ino: ino, LocalVersion: 1, MasterFH: codec.Undefined}
	r.ClearInline()
	if !s.isCopy {
		r.MasterVersion = 1
	}
	payload2, err := encodeRecord(r)
	if err != nil {
		return Record{}, false, err
	}
	if _, err := s.metaTable.Insert(hashKey(dev, ino), payload2); err != nil {
		return Record{}, false, s.fail(fmt.Errorf("metadata: insert: %w", err))
	}
	return r, true, nil
}

// flush write-through inserts or overwrites rec, spec.md §4.3.
func (s *Store) flush(rec Record) error {
	idx, found, _, err := s.metaTable.Find(hashKey(rec.Dev, rec.Ino), matchesKey(rec.Dev, rec.Ino))
	if err != nil {
		return s.fail(err)
	}
	payload, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if found {
		if err := s.metaTable.Update(idx, payload); err != nil {
			return s.fail(err)
		}
		return nil
	}
	if _, err := s.metaTable.Insert(hashKey(rec.Dev, rec.Ino), payload); err != nil {
		return s.fail(err)
	}
	return nil
}

// Flush is the exported write-through insert/overwrite, spec.md §4.3.
func (s *Store) Flush(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush(rec)
}

// SetMetadata updates flags/local_version/master_version for (dev,ino).
func (s *Store) SetMetadata(dev, ino uint32, flags Flags, lv, mv uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, found, err := s.lookupLocked(dev, ino)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("metadata: set_metadata: no record for dev=%d ino=%d", dev, ino)
	}
	r.Flags, r.LocalVersion, r.MasterVersion = flags, lv, mv
	return s.flush(r)
}

// SetMetadataFlags updates only the flags bitset.
func (s *Store) SetMetadataFlags(dev, ino uint32, flags Flags) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, found, err := s.lookupLocked(dev, ino)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("metadata: set_metadata_flags: no record for dev=%d ino=%d", dev, ino)
	}
	r.Flags = flags
	return s.flush(r)
}

// SetMetadataMasterFH updates master_fh and keeps the reverse FH mapping
// consistent, spec.md §4.3.
func (s *Store) SetMetadataMasterFH(dev, ino uint32, localFH, masterFH codec.FileHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, found, err := s.lookupLocked(dev, ino)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("metadata: set_metadata_master_fh: no record for dev=%d ino=%d", dev, ino)
	}
	if !r.MasterFH.IsUndefined() {
		if err := s.deleteFHMappingLocked(r.MasterFH); err != nil {
			return err
		}
	}
	r.MasterFH = masterFH
	if err := s.flush(r); err != nil {
		return err
	}
	if !masterFH.IsUndefined() {
		return s.setFHMappingLocked(masterFH, localFH)
	}
	return nil
}

func (s *Store) lookupLocked(dev, ino uint32) (Record, bool, error) {
	_, found, payload, err := s.metaTable.Find(hashKey(dev, ino), matchesKey(dev, ino))
	if err != nil {
		return Record{}, false, s.fail(err)
	}
	if !found {
		return Record{}, false, nil
	}
	var r Record
	if err := r.Unmarshal(codec.NewDecoder(payload)); err != nil {
		return Record{}, false, s.fail(err)
	}
	return r, true, nil
}

// IncLocalVersion bumps local_version by one, spec.md §4.3.
func (s *Store) IncLocalVersion(dev, ino uint32) error {
	return s.incLocalVersion(dev, ino, false)
}

// IncLocalVersionAndModified additionally sets MODIFIED_TREE and mirrors to
// master_version on non-copy volumes, spec.md §4.3.
func (s *Store) IncLocalVersionAndModified(dev, ino uint32) error {
	return s.incLocalVersion(dev, ino, true)
}

func (s *Store) incLocalVersion(dev, ino uint32, setModified bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, found, err := s.lookupLocked(dev, ino)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("metadata: inc_local_version: no record for dev=%d ino=%d", dev, ino)
	}
	r.LocalVersion++
	if setModified {
		r.Flags = r.Flags.Set(FlagModifiedTree)
		if !s.isCopy {
			r.MasterVersion = r.LocalVersion
		}
	}
	return s.flush(r)
}

// DeleteMetadata removes one hardlink; if the list empties, tombstones the
// identity, spec.md §4.3.
func (s *Store) DeleteMetadata(dev, ino, parentDev, parentIno uint32, name string) error {
	s.mu.Lock()
	r, found, err := s.lookupLocked(dev, ino)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("metadata: delete_metadata: no record for dev=%d ino=%d", dev, ino)
	}

	target := Hardlink{ParentDev: parentDev, ParentIno: parentIno, Name: name}
	links, err := s.hardlinksFor(r)
	if err != nil {
		return err
	}
	remaining, removed := DeleteHardlink(links, target)
	if !removed {
		return fmt.Errorf("metadata: delete_metadata: hardlink %+v not found", target)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(remaining) == 0 {
		r.Tombstone()
		if err := s.writeHardlinksFor(r, nil); err != nil {
			return err
		}
		return s.flush(r)
	}
	if len(remaining) == 1 {
		r.ParentDev, r.ParentIno, r.Name = remaining[0].ParentDev, remaining[0].ParentIno, remaining[0].Name
		if err := s.writeHardlinksFor(r, nil); err != nil {
			return err
		}
		return s.flush(r)
	}
	r.ClearInline()
	if err := s.writeHardlinksFor(r, remaining); err != nil {
		return err
	}
	return s.flush(r)
}

// hardlinksFor returns the full hardlink multiset for r: either its inlined
// single link or the sidecar list. A tombstoned record has had its sidecar
// removed, so it yields an empty list; a fresh record (whose ModeType is
// still the zero TypeBad) is read from its sidecar like any other.
func (s *Store) hardlinksFor(r Record) ([]Hardlink, error) {
	if !r.InlineUndefined() {
		return []Hardlink{{ParentDev: r.ParentDev, ParentIno: r.ParentIno, Name: r.Name}}, nil
	}
	return ReadHardlinks(s.hardlinkPath(r.Dev, r.Ino))
}

// writeHardlinksFor writes the sidecar list explicitly (used when there are
// zero or >=2 links; single-link and tombstone cases only touch the inline
// fields and must remove any stale sidecar).
func (s *Store) writeHardlinksFor(r Record, links []Hardlink) error {
	return WriteHardlinks(s.hardlinkPath(r.Dev, r.Ino), links)
}

func (s *Store) hardlinkPath(dev, ino uint32) string {
	return DerivePath(s.root, dev, ino, s.depth, "hardlinks")
}

// MetadataHardlinkInsert adds a new link, moving from inline to sidecar
// storage once a second link appears, spec.md §4.3.
func (s *Store) MetadataHardlinkInsert(dev, ino, parentDev, parentIno uint32, name string) error {
	s.mu.Lock()
	r, found, err := s.lookupLocked(dev, ino)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("metadata: hardlink_insert: no record for dev=%d ino=%d", dev, ino)
	}
	links, err := s.hardlinksFor(r)
	if err != nil {
		return err
	}
	links = InsertHardlink(links, Hardlink{ParentDev: parentDev, ParentIno: parentIno, Name: name})

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(links) == 1 {
		r.ParentDev, r.ParentIno, r.Name = links[0].ParentDev, links[0].ParentIno, links[0].Name
		if err := s.writeHardlinksFor(r, nil); err != nil {
			return err
		}
		return s.flush(r)
	}
	r.ClearInline()
	if err := s.writeHardlinksFor(r, links); err != nil {
		return err
	}
	return s.flush(r)
}

// MetadataNHardlinks returns the current multiset size for (dev,ino).
func (s *Store) MetadataNHardlinks(dev, ino uint32) (int, error) {
	s.mu.Lock()
	r, found, err := s.lookupLocked(dev, ino)
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("metadata: n_hardlinks: no record for dev=%d ino=%d", dev, ino)
	}
	links, err := s.hardlinksFor(r)
	if err != nil {
		return 0, err
	}
	return NHardlinks(links), nil
}

// GetLocalPathFromMetadata reconstructs the absolute local path of
// (dev,ino) by walking hardlinks up to the volume root, self-healing links
// whose parent no longer maps to our identity, spec.md §4.3.
func (s *Store) GetLocalPathFromMetadata(dev, ino uint32) (string, error) {
	s.mu.Lock()
	r, found, err := s.lookupLocked(dev, ino)
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("metadata: get_local_path: no record for dev=%d ino=%d", dev, ino)
	}
	if dev == RootDev && ino == RootIno {
		return s.root, nil
	}

	links, err := s.hardlinksFor(r)
	if err != nil {
		return "", err
	}
	remaining := append([]Hardlink{}, links...)
	for _, h := range links {
		parentPath, err := s.resolveParent(h.ParentDev, h.ParentIno)
		if err != nil {
			// Self-heal: this link's parent no longer exists or no longer
			// maps to us; drop it and try the next, spec.md §4.3.
			remaining, _ = DeleteHardlink(remaining, h)
			s.mu.Lock()
			s.writeHardlinksFor(r, remaining)
			s.mu.Unlock()
			continue
		}
		return filepath.Join(parentPath, h.Name), nil
	}

	// No surviving link: tombstone.
	s.mu.Lock()
	r.Tombstone()
	err = s.flush(r)
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	return "", fmt.Errorf("metadata: get_local_path: %d/%d has no surviving hardlink", dev, ino)
}

func (s *Store) resolveParent(dev, ino uint32) (string, error) {
	if dev == RootDev && ino == RootIno {
		return s.root, nil
	}
	return s.GetLocalPathFromMetadata(dev, ino)
}
