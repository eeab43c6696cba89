package reconcile

import (
	"context"

	"github.com/zlomekfs/zfsd/internal/codec"
)

// Remote is everything the reconciliation engine needs from the master,
// each method a thin wrapper around one wire RPC of spec.md §6. It plays
// the role gcsproxy's gcs.Bucket interface plays for MutableObject: the
// engine is written against this interface so tests exercise the real
// update/reintegrate/conflict logic against a fake, while production code
// wires it to internal/rpc.Dispatcher.Call.
type Remote interface {
	// MD5Sum is remote_md5sum, spec.md §4.7.2 step 1.
	MD5Sum(ctx context.Context, cap codec.Capability, offsets []uint64, lengths []uint32) (codec.MD5SumRes, error)
	// ReadAt is the remote read path, spec.md §4.7.2 step 6; the returned
	// ReadRes.Changed flag is ZFS_CHANGED (spec.md §4.7.2 step 7).
	ReadAt(ctx context.Context, cap codec.Capability, offset uint64, length uint32) (codec.ReadRes, error)
	// WriteAt is remote_write, spec.md §4.7.3 step 2.
	WriteAt(ctx context.Context, cap codec.Capability, offset uint64, data []byte) (codec.WriteRes, error)
	// SetAttr is remote_setattr, spec.md §4.7.3 step 3.
	SetAttr(ctx context.Context, cap codec.Capability, attr codec.Attr, mask codec.SetAttrMask) (codec.Attr, error)
	// Reintegrate acquires (acquire=true) or releases (acquire=false)
	// reintegration privilege on cap's FH, spec.md §4.7.3 steps 1 and 4
	// ("remote_reintegrate(1)"/"remote_reintegrate(0)").
	Reintegrate(ctx context.Context, cap codec.Capability, acquire bool) error
	// ReintegrateVer releases a local_version lead of exactly diff without
	// transferring bytes, spec.md §4.7.3 step 4 "remote_reintegrate_ver(diff)";
	// it also gives up the reintegration privilege, in place of
	// Reintegrate(acquire=false).
	ReintegrateVer(ctx context.Context, cap codec.Capability, diff uint64) error
	// ReintegrateAdd creates a remote object for a journalled ADD, spec.md
	// §4.7.4 ("mkdir/mknod/symlink/remote_reintegrate_add").
	ReintegrateAdd(ctx context.Context, parent codec.FileHandle, name string, attr codec.Attr) (codec.FileHandle, error)
	// ReintegrateDel removes a remote object for a journalled DEL, spec.md
	// §4.7.4; destroy distinguishes a full unlink from dropping only the
	// journal's claim on a name that is about to be replaced.
	ReintegrateDel(ctx context.Context, parent codec.FileHandle, name string, destroy bool) error
	// GetAttr fetches the master's current attributes for fh.
	GetAttr(ctx context.Context, fh codec.FileHandle) (codec.Attr, error)
	// ReadDir lists the master's directory contents for fh.
	ReadDir(ctx context.Context, fh codec.FileHandle) (codec.DirList, error)
}

// LocalFile is the subset of *os.File the engine needs, abstracted so
// tests can exercise update/reintegrate logic against an in-memory fake
// without touching disk, mirroring gcsproxy.MutableObject's localFile
// field but as an interface rather than a concrete *os.File.
type LocalFile interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Truncate(size int64) error
	Size() (int64, error)
}
