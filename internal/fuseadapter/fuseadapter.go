// Package fuseadapter is C9 of SPEC_FULL.md: a thin fuseutil.FileSystem
// implementation translating kernel VFS ops into calls against a single
// core.Volume, mirroring gcsfuse's fs.fileSystem (fs/fs.go) — a
// mu-guarded inode table plus one method per fuseops type, with no
// reconciliation logic of its own.
package fuseadapter

import (
	"os"
	"sync"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/zlomekfs/zfsd/internal/conn"
	"github.com/zlomekfs/zfsd/internal/core"
	"github.com/zlomekfs/zfsd/internal/fh"
	"github.com/zlomekfs/zfsd/internal/logger"
)

var log = logger.For("fuseadapter")

// FileSystem adapts one core.Volume to fuseutil.FileSystem. The FUSE
// kernel-visible InodeID is the dentry's Ino directly (the root is always
// fuseops.RootInodeID == 1, matching core.NewVolume's root Ino).
type FileSystem struct {
	vol *core.Volume

	mu         sync.Mutex // guards inodes/dirHandles/nextHandle below
	inodes     map[fuseops.InodeID]*fh.Dentry
	dirHandles map[fuseops.HandleID][]fuseutil.Dirent
	nextHandle fuseops.HandleID
}

// New wraps vol as a fuseutil.FileSystem.
func New(vol *core.Volume) fuse.Server {
	return fuseutil.NewFileSystemServer(newFileSystem(vol))
}

func newFileSystem(vol *core.Volume) *FileSystem {
	return &FileSystem{
		vol:        vol,
		inodes:     map[fuseops.InodeID]*fh.Dentry{fuseops.RootInodeID: vol.Root()},
		dirHandles: make(map[fuseops.HandleID][]fuseutil.Dirent),
	}
}

func inodeID(d *fh.Dentry) fuseops.InodeID { return fuseops.InodeID(d.FH.Ino) }

// register remembers d under its InodeID so future ops addressing it by ID
// can find it again, mirroring gcsfuse's fs.inodes map population on every
// LookUpInode/MkDir/CreateFile.
func (fsys *FileSystem) register(d *fh.Dentry) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	fsys.inodes[inodeID(d)] = d
}

func (fsys *FileSystem) lookupByID(id fuseops.InodeID) (*fh.Dentry, bool) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	d, ok := fsys.inodes[id]
	return d, ok
}

func (fsys *FileSystem) attributesOf(d *fh.Dentry) (fuseops.InodeAttributes, error) {
	attr := fuseops.InodeAttributes{
		Uid:  0,
		Gid:  0,
		Mode: 0o644,
		Nlink: 1,
	}
	if d.IsDir() {
		attr.Mode = os.ModeDir | 0o755
		attr.Nlink = 2
		return attr, nil
	}

	info, err := fsys.vol.Stat(d)
	if err != nil {
		return attr, err
	}
	attr.Size = uint64(info.Size())
	attr.Mtime = info.ModTime()
	attr.Ctime = info.ModTime()
	attr.Atime = info.ModTime()
	return attr, nil
}

func (fsys *FileSystem) Init(op *fuseops.InitOp) error { return nil }

func (fsys *FileSystem) LookUpInode(op *fuseops.LookUpInodeOp) error {
	parent, ok := fsys.lookupByID(op.Parent)
	if !ok {
		return fuse.ENOENT
	}

	child, err := fsys.vol.Lookup(parent, op.Name)
	if err != nil {
		return fuse.ENOENT
	}
	fsys.register(child)
	child.IncrementLookup()

	op.Entry.Child = inodeID(child)
	attr, err := fsys.attributesOf(child)
	if err != nil {
		return err
	}
	op.Entry.Attributes = attr
	return nil
}

func (fsys *FileSystem) GetInodeAttributes(op *fuseops.GetInodeAttributesOp) error {
	d, ok := fsys.lookupByID(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	attr, err := fsys.attributesOf(d)
	if err != nil {
		return err
	}
	op.Attributes = attr
	return nil
}

func (fsys *FileSystem) SetInodeAttributes(op *fuseops.SetInodeAttributesOp) error {
	d, ok := fsys.lookupByID(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	if op.Size != nil {
		if d.IsDir() {
			return fuse.ENOSYS
		}
		if err := fsys.vol.Truncate(d, int64(*op.Size)); err != nil {
			return err
		}
	}
	attr, err := fsys.attributesOf(d)
	if err != nil {
		return err
	}
	op.Attributes = attr
	return nil
}

func (fsys *FileSystem) ForgetInode(op *fuseops.ForgetInodeOp) error {
	d, ok := fsys.lookupByID(op.Inode)
	if !ok {
		return nil
	}
	if destroyed := d.DecrementLookup(uint32(op.N)); destroyed {
		fsys.mu.Lock()
		delete(fsys.inodes, op.Inode)
		fsys.mu.Unlock()
	}
	return nil
}

func (fsys *FileSystem) MkDir(op *fuseops.MkDirOp) error {
	parent, ok := fsys.lookupByID(op.Parent)
	if !ok {
		return fuse.ENOENT
	}
	child, err := fsys.vol.Mkdir(parent, op.Name)
	if err != nil {
		if os.IsExist(err) {
			return fuse.EEXIST
		}
		return err
	}
	fsys.register(child)
	child.IncrementLookup()

	op.Entry.Child = inodeID(child)
	op.Entry.Attributes, err = fsys.attributesOf(child)
	return err
}

func (fsys *FileSystem) CreateFile(op *fuseops.CreateFileOp) error {
	parent, ok := fsys.lookupByID(op.Parent)
	if !ok {
		return fuse.ENOENT
	}
	child, err := fsys.vol.CreateFile(parent, op.Name)
	if err != nil {
		if os.IsExist(err) {
			return fuse.EEXIST
		}
		return err
	}
	fsys.register(child)
	child.IncrementLookup()

	op.Entry.Child = inodeID(child)
	op.Entry.Attributes, err = fsys.attributesOf(child)
	return err
}

func (fsys *FileSystem) Unlink(op *fuseops.UnlinkOp) error {
	parent, ok := fsys.lookupByID(op.Parent)
	if !ok {
		return fuse.ENOENT
	}
	child, err := fsys.vol.Lookup(parent, op.Name)
	if err != nil {
		return fuse.ENOENT
	}
	return fsys.vol.Remove(child)
}

func (fsys *FileSystem) RmDir(op *fuseops.RmDirOp) error {
	parent, ok := fsys.lookupByID(op.Parent)
	if !ok {
		return fuse.ENOENT
	}
	child, err := fsys.vol.Lookup(parent, op.Name)
	if err != nil {
		return fuse.ENOENT
	}
	if len(child.Children()) != 0 {
		return fuse.ENOTEMPTY
	}
	return fsys.vol.Remove(child)
}

func (fsys *FileSystem) OpenDir(op *fuseops.OpenDirOp) error {
	d, ok := fsys.lookupByID(op.Inode)
	if !ok {
		return fuse.ENOENT
	}

	entries := make([]fuseutil.Dirent, 0, len(d.Children()))
	var offset fuseops.DirOffset = 1
	for name, child := range d.Children() {
		typ := fuseutil.DT_File
		if child.IsDir() {
			typ = fuseutil.DT_Directory
		}
		entries = append(entries, fuseutil.Dirent{
			Offset: offset,
			Inode:  inodeID(child),
			Name:   name,
			Type:   typ,
		})
		offset++
	}

	fsys.mu.Lock()
	fsys.nextHandle++
	handle := fsys.nextHandle
	fsys.dirHandles[handle] = entries
	fsys.mu.Unlock()

	op.Handle = handle
	return nil
}

func (fsys *FileSystem) ReadDir(op *fuseops.ReadDirOp) error {
	fsys.mu.Lock()
	entries, ok := fsys.dirHandles[op.Handle]
	fsys.mu.Unlock()
	if !ok {
		return fuse.EIO
	}

	n := 0
	for _, e := range entries {
		if uint64(e.Offset) <= uint64(op.Offset) {
			continue
		}
		written := fuseutil.WriteDirent(op.Dst[n:], e)
		if written == 0 {
			break
		}
		n += written
	}
	op.BytesRead = n
	return nil
}

func (fsys *FileSystem) ReleaseDirHandle(op *fuseops.ReleaseDirHandleOp) error {
	fsys.mu.Lock()
	delete(fsys.dirHandles, op.Handle)
	fsys.mu.Unlock()
	return nil
}

func (fsys *FileSystem) OpenFile(op *fuseops.OpenFileOp) error {
	if _, ok := fsys.lookupByID(op.Inode); !ok {
		return fuse.ENOENT
	}
	return nil
}

func (fsys *FileSystem) ReadFile(op *fuseops.ReadFileOp) error {
	d, ok := fsys.lookupByID(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	n, err := fsys.vol.ReadAt(d, op.Dst, op.Offset)
	op.BytesRead = n
	return err
}

func (fsys *FileSystem) WriteFile(op *fuseops.WriteFileOp) error {
	d, ok := fsys.lookupByID(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	start := time.Now()
	_, err := fsys.vol.WriteAt(d, op.Data, op.Offset, conn.SpeedFast, func() error {
		log.Debug("reconcile placeholder: wire this to internal/reconcile.Engine once a Remote is attached")
		return nil
	})
	if err != nil {
		log.Error("write failed", "fh", d.FH.String(), "err", err, "elapsed", time.Since(start))
	}
	return err
}

func (fsys *FileSystem) FlushFile(op *fuseops.FlushFileOp) error {
	if _, ok := fsys.lookupByID(op.Inode); !ok {
		return fuse.ENOENT
	}
	return nil
}

func (fsys *FileSystem) ReleaseFileHandle(op *fuseops.ReleaseFileHandleOp) error {
	return nil
}

func (fsys *FileSystem) SyncFile(op *fuseops.SyncFileOp) error {
	if _, ok := fsys.lookupByID(op.Inode); !ok {
		return fuse.ENOENT
	}
	return nil
}

func (fsys *FileSystem) ReadSymlink(op *fuseops.ReadSymlinkOp) error {
	return fuse.ENOSYS
}

func (fsys *FileSystem) CreateSymlink(op *fuseops.CreateSymlinkOp) error {
	return fuse.ENOSYS
}

func (fsys *FileSystem) Rename(op *fuseops.RenameOp) error {
	return fuse.ENOSYS
}

func (fsys *FileSystem) CreateLink(op *fuseops.CreateLinkOp) error {
	return fuse.ENOSYS
}

func (fsys *FileSystem) RemoveXattr(op *fuseops.RemoveXattrOp) error  { return fuse.ENOSYS }
func (fsys *FileSystem) GetXattr(op *fuseops.GetXattrOp) error        { return fuse.ENOSYS }
func (fsys *FileSystem) ListXattr(op *fuseops.ListXattrOp) error      { return fuse.ENOSYS }
func (fsys *FileSystem) SetXattr(op *fuseops.SetXattrOp) error        { return fuse.ENOSYS }
func (fsys *FileSystem) Fallocate(op *fuseops.FallocateOp) error      { return fuse.ENOSYS }
func (fsys *FileSystem) SyncFS(op *fuseops.SyncFSOp) error            { return nil }
func (fsys *FileSystem) StatFS(op *fuseops.StatFSOp) error            { return nil }
func (fsys *FileSystem) Destroy() {}
