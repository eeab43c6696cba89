package metadata

import (
	"fmt"
	"os"

	"github.com/zlomekfs/zfsd/internal/codec"
)

// Hardlink is one (parent_dev, parent_ino, name) triple, spec.md §3.
type Hardlink struct {
	ParentDev uint32
	ParentIno uint32
	Name      string
}

func (h Hardlink) Marshal(b *codec.Buffer) error {
	if err := b.WriteU32(h.ParentDev); err != nil {
		return err
	}
	if err := b.WriteU32(h.ParentIno); err != nil {
		return err
	}
	return b.WriteString(h.Name)
}

func (h *Hardlink) Unmarshal(b *codec.Buffer) error {
	var err error
	if h.ParentDev, err = b.ReadU32(); err != nil {
		return err
	}
	if h.ParentIno, err = b.ReadU32(); err != nil {
		return err
	}
	h.Name, err = b.ReadString()
	return err
}

// ReadHardlinks reads the full sidecar hardlink list for a file, spec.md §4.3.
func ReadHardlinks(path string) ([]Hardlink, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("metadata: read hardlinks %s: %w", path, err)
	}
	dec := codec.NewDecoder(data)
	var out []Hardlink
	for dec.Remaining() > 0 {
		var h Hardlink
		if err := h.Unmarshal(dec); err != nil {
			return nil, fmt.Errorf("metadata: decode hardlinks %s: %w", path, err)
		}
		out = append(out, h)
	}
	return out, nil
}

// WriteHardlinks rewrites the sidecar list via .new + rename, or removes it
// entirely when links is empty (an inlined single link, or a tombstone).
func WriteHardlinks(path string, links []Hardlink) error {
	if len(links) == 0 {
		err := os.Remove(path)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("metadata: remove hardlinks %s: %w", path, err)
		}
		return nil
	}
	tmp := path + ".new"
	enc := codec.NewEncoder()
	for _, h := range links {
		if err := h.Marshal(enc); err != nil {
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

// InsertHardlink appends a new (parent_dev,parent_ino,name) triple.
func InsertHardlink(links []Hardlink, h Hardlink) []Hardlink {
	return append(links, h)
}

// ReplaceHardlink swaps the first link matching old for replacement.
func ReplaceHardlink(links []Hardlink, old, replacement Hardlink) []Hardlink {
	for i, h := range links {
		if h == old {
			links[i] = replacement
			return links
		}
	}
	return links
}

// DeleteHardlink removes the first occurrence of h, returning the
// resulting list and whether anything was removed.
func DeleteHardlink(links []Hardlink, h Hardlink) ([]Hardlink, bool) {
	for i, cur := range links {
		if cur == h {
			return append(links[:i], links[i+1:]...), true
		}
	}
	return links, false
}

// NHardlinks is the multiset size, spec.md §4.3 metadata_n_hardlinks.
func NHardlinks(links []Hardlink) int { return len(links) }
