package metadata

import (
	"fmt"
	"os"

	"github.com/zlomekfs/zfsd/internal/codec"
)

// JournalOp is ADD or DEL, spec.md §3.
type JournalOp uint32

const (
	JournalAdd JournalOp = iota
	JournalDel
)

// JournalEntry describes one pending directory mutation awaiting
// reintegration, spec.md §3.
type JournalEntry struct {
	LocalFH       codec.FileHandle
	Oper          JournalOp
	Name          string
	MasterFH      codec.FileHandle
	MasterVersion uint64
}

func (e JournalEntry) Marshal(b *codec.Buffer) error {
	if err := e.LocalFH.Marshal(b); err != nil {
		return err
	}
	if err := b.WriteU32(uint32(e.Oper)); err != nil {
		return err
	}
	if err := b.WriteString(e.Name); err != nil {
		return err
	}
	if err := e.MasterFH.Marshal(b); err != nil {
		return err
	}
	return b.WriteU64(e.MasterVersion)
}

func (e *JournalEntry) Unmarshal(b *codec.Buffer) error {
	if err := e.LocalFH.Unmarshal(b); err != nil {
		return err
	}
	op, err := b.ReadU32()
	if err != nil {
		return err
	}
	e.Oper = JournalOp(op)
	if e.Name, err = b.ReadString(); err != nil {
		return err
	}
	if err := e.MasterFH.Unmarshal(b); err != nil {
		return err
	}
	e.MasterVersion, err = b.ReadU64()
	return err
}

// Journal is the ordered, in-memory view of a directory's pending
// mutations, spec.md §3.
type Journal struct {
	Entries []JournalEntry
}

// ReadJournal reads the full journal file, preserving entry order, spec.md §4.3.
func ReadJournal(path string) (*Journal, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Journal{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("metadata: read journal %s: %w", path, err)
	}
	dec := codec.NewDecoder(data)
	j := &Journal{}
	for dec.Remaining() > 0 {
		var e JournalEntry
		if err := e.Unmarshal(dec); err != nil {
			return nil, fmt.Errorf("metadata: decode journal %s: %w", path, err)
		}
		j.Entries = append(j.Entries, e)
	}
	return j, nil
}

// WriteJournal rewrites the whole journal file via .new + rename, as
// interval-file rewrites do; a journal is never appended to in place,
// spec.md §4.3.
func WriteJournal(path string, j *Journal) error {
	if len(j.Entries) == 0 {
		err := os.Remove(path)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("metadata: remove journal %s: %w", path, err)
		}
		return nil
	}
	tmp := path + ".new"
	enc := codec.NewEncoder()
	for _, e := range j.Entries {
		if err := e.Marshal(enc); err != nil {
			return err
		}
	}
	if err := os.WriteFile(tmp, enc.Bytes(), 0o600); err != nil {
		return fmt.Errorf("metadata: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("metadata: rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}

// AddJournalEntry appends e to path's journal, reading then rewriting it
// (journal files are small and rewritten on every mutation per spec.md §4.3
// "persisted on every mutation").
func AddJournalEntry(path string, e JournalEntry) (*Journal, error) {
	j, err := ReadJournal(path)
	if err != nil {
		return nil, err
	}
	j.Entries = append(j.Entries, e)
	if err := WriteJournal(path, j); err != nil {
		return nil, err
	}
	return j, nil
}

// RemoveJournalEntry drops the entry at index i (used once an ADD/DEL has
// been successfully reintegrated, spec.md §4.7.4), and rewrites the file.
func RemoveJournalEntry(path string, j *Journal, i int) error {
	j.Entries = append(j.Entries[:i], j.Entries[i+1:]...)
	return WriteJournal(path, j)
}
