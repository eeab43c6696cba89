package metadata

import (
	"fmt"
	"os"
	"path/filepath"
)

// MaxDepth is the default maximum nibble depth for path derivation,
// spec.md §4.3.
const MaxDepth = 6

// nibblePath returns the MAX_DEPTH..depth-exclusive hex-nibble directory
// components of key = (dev<<32)|ino, per spec.md §4.3: "Xi is the hex nibble
// at position i of (dev<<32)|ino", walked from nibble 15 down to 16-D.
func nibblePath(dev, ino uint32, depth int) []string {
	key := (uint64(dev) << 32) | uint64(ino)
	var comps []string
	for i := 15; i >= 16-depth; i-- {
		nibble := (key >> uint(i*4)) & 0xF
		comps = append(comps, fmt.Sprintf("%x", nibble))
	}
	return comps
}

func leafName(dev, ino uint32, suffix string) string {
	return fmt.Sprintf("%08x%08x.%s", dev, ino, suffix)
}

// DerivePath returns the on-disk path for a sidecar of the given suffix
// ("updated", "modified", "hardlinks", "journal") at the given depth under
// root/.zfs, spec.md §4.3.
func DerivePath(root string, dev, ino uint32, depth int, suffix string) string {
	comps := append([]string{root, ".zfs"}, nibblePath(dev, ino, depth)...)
	comps = append(comps, leafName(dev, ino, suffix))
	return filepath.Join(comps...)
}

// ProbeAllDepths returns the existing path for this (dev,ino)+suffix across
// every depth 0..MaxDepth, checking the configured depth first. Used when a
// config reload changes the depth and old sidecars still live at the
// previous depth, spec.md §4.3.
func ProbeAllDepths(root string, dev, ino uint32, configuredDepth int, suffix string) (path string, foundDepth int, ok bool) {
	if p := DerivePath(root, dev, ino, configuredDepth, suffix); fileExists(p) {
		return p, configuredDepth, true
	}
	for d := 0; d <= MaxDepth; d++ {
		if d == configuredDepth {
			continue
		}
		p := DerivePath(root, dev, ino, d, suffix)
		if fileExists(p) {
			return p, d, true
		}
	}
	return "", 0, false
}

// RelocateToDepth renames an existing sidecar found at a stale depth to the
// path implied by the currently configured depth, creating any missing
// parent directories, spec.md §4.3 ("rename to the current depth on the
// fly").
func RelocateToDepth(root string, dev, ino uint32, currentPath string, configuredDepth int, suffix string) (string, error) {
	newPath := DerivePath(root, dev, ino, configuredDepth, suffix)
	if newPath == currentPath {
		return currentPath, nil
	}
	if err := os.MkdirAll(filepath.Dir(newPath), 0o700); err != nil {
		return "", fmt.Errorf("metadata: mkdir for relocate: %w", err)
	}
	if err := os.Rename(currentPath, newPath); err != nil {
		return "", fmt.Errorf("metadata: relocate %s -> %s: %w", currentPath, newPath, err)
	}
	return newPath, nil
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// ShadowPath returns the path under root/.shadow for a tombstoned-but-
// still-needed-by-master file body, spec.md §4.3.
func ShadowPath(root string, dev, ino uint32, depth int, name string) string {
	comps := append([]string{root, ".shadow"}, nibblePath(dev, ino, depth)...)
	comps = append(comps, fmt.Sprintf("%s.%08x%08x", name, dev, ino))
	return filepath.Join(comps...)
}

// MoveToShadow relocates a tombstoned file's body into the shadow tree so
// reintegration can still find content to push, spec.md §4.3.
func MoveToShadow(root string, dev, ino uint32, depth int, name, bodyPath string) (string, error) {
	dst := ShadowPath(root, dev, ino, depth, name)
	if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
		return "", fmt.Errorf("metadata: mkdir shadow: %w", err)
	}
	if err := os.Rename(bodyPath, dst); err != nil {
		return "", fmt.Errorf("metadata: move to shadow: %w", err)
	}
	return dst, nil
}

// MetadataHashFilePath / FHMappingHashFilePath are the two fixed-name hash files
// per volume, spec.md §6.
func MetadataHashFilePath(root string) string   { return filepath.Join(root, ".zfs", "metadata") }
func FHMappingHashFilePath(root string) string  { return filepath.Join(root, ".zfs", "fh_mapping") }
