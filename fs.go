// Copyright 2015 Google Inc. All Rights Reserved.

// Package fsim implements a small inode-based filesystem backed by a
// single flat file. It layers three on-disk superstructures on top of
// blockdev.Device — a fixed-size inode table, a free-space occupancy map,
// and per-inode data-block index vectors — and exposes the minimal
// operation surface a kernel-bridge adapter (see package fsfuse) needs to
// mount it: attribute lookup, directory listing, file/directory creation,
// and byte-range read/write.
//
// Every block is BlockSize bytes. Block 0 holds the inode table, block 1
// the free-space map, and block 2 the root directory's own inode record;
// everything from block 3 on is available for allocation. Inode 0 is
// permanently bound to the root directory and is never handed out by the
// inode allocator.
//
// FS is safe for concurrent use: every operation-surface method takes
// fs.mu, an InvariantMutex that re-validates the on-disk bookkeeping's
// structural invariants on every release when syncutil's invariant
// checking is enabled.
package fsim

import (
	"context"

	"github.com/jacobsa/reqtrace"
	"github.com/jacobsa/syncutil"

	"github.com/xAlekos/FSIM/blockdev"
)

// FS is a mounted filesystem instance: a backing device plus the decoded
// superstructures that sit on top of it.
type FS struct {
	mu syncutil.InvariantMutex

	dev        *blockdev.Device
	inodes     inodeTable
	freeBlocks freeSpaceMap
}

// checkInvariants panics if the on-disk bookkeeping has drifted out of the
// shape the rest of the package assumes, the same fail-fast style the
// source implementation's sample filesystems use for their own invariant
// checks.
func (fs *FS) checkInvariants() {
	if !fs.inodes.disjoint(&fs.freeBlocks) {
		panic("fsim: inode table and free-space map disagree (invariant I1)")
	}
	if fs.inodes[RootInode] != rootInodeBlock {
		panic("fsim: root inode is not bound to its reserved block")
	}
}

// New opens an existing filesystem image at path.
func New(path string) (*FS, error) {
	dev, err := blockdev.Open(path, BlockSize, MaxBlocks)
	if err != nil {
		return nil, newErr(KindIO, "New", path, err)
	}
	return load(dev)
}

// Format creates a brand-new filesystem image at path: a freshly zeroed
// device with the inode table, free-space map, and root directory
// installed, mirroring init_fs/init_root_dir in the source implementation.
func Format(path string) (*FS, error) {
	dev, err := blockdev.Create(path, BlockSize, MaxBlocks)
	if err != nil {
		return nil, newErr(KindIO, "Format", path, err)
	}

	fs := &FS{dev: dev}
	fs.freeBlocks[inodeTableBlock] = 1
	fs.freeBlocks[freeSpaceMapBlock] = 1
	fs.freeBlocks[rootInodeBlock] = 1
	if err := fs.freeBlocks.persist(dev); err != nil {
		return nil, err
	}

	fs.inodes[RootInode] = rootInodeBlock
	if err := fs.inodes.persist(dev); err != nil {
		return nil, err
	}
	if err := fs.writeInodeHeader(RootInode, modeDir|0o755, 0); err != nil {
		return nil, err
	}

	fs.mu = syncutil.NewInvariantMutex(fs.checkInvariants)
	return fs, nil
}

func load(dev *blockdev.Device) (*FS, error) {
	inodes, err := loadInodeTable(dev)
	if err != nil {
		return nil, err
	}
	freeBlocks, err := loadFreeSpaceMap(dev)
	if err != nil {
		return nil, err
	}

	fs := &FS{dev: dev, inodes: inodes, freeBlocks: freeBlocks}
	fs.mu = syncutil.NewInvariantMutex(fs.checkInvariants)
	return fs, nil
}

// Close releases the backing device.
func (fs *FS) Close() error {
	return fs.dev.Close()
}

// traced opens a reqtrace span named name and returns a function that
// should be deferred against the operation's named error return, closing
// the span with the outcome.
func (fs *FS) traced(name string) func(*error) {
	_, report := reqtrace.Trace(context.Background(), name)
	return func(errp *error) { report(*errp) }
}

// GetAttr returns the mode and size of the inode at path.
func (fs *FS) GetAttr(path string) (mode uint32, size uint64, err error) {
	defer fs.traced("fsim.GetAttr")(&err)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	num, err := fs.resolve(path)
	if err != nil {
		return 0, 0, err
	}
	in, err := fs.readInode(num)
	if err != nil {
		return 0, 0, err
	}
	return in.Mode, in.Size, nil
}

// ReadDir lists path's entries, always prepending "." and "..".
func (fs *FS) ReadDir(path string) (names []string, err error) {
	defer fs.traced("fsim.ReadDir")(&err)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	num, err := fs.resolve(path)
	if err != nil {
		return nil, err
	}
	in, err := fs.readInode(num)
	if err != nil {
		return nil, err
	}
	if !in.IsDir() {
		return nil, newErr(KindNotFound, "ReadDir", path, nil)
	}

	entries, err := fs.enumerate(num)
	if err != nil {
		return nil, err
	}
	names = make([]string, 0, len(entries)+2)
	names = append(names, ".", "..")
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names, nil
}

// createEntry resolves path's parent, allocates a new inode with mode, and
// links it into the parent directory under path's final component. It
// backs both Create and Mkdir, which differ only in the type bit folded
// into mode.
func (fs *FS) createEntry(path string, mode uint32) error {
	parent, err := fs.resolveParent(path)
	if err != nil {
		return err
	}
	_, name := splitParentName(path)
	if name == "" {
		return newErr(KindExists, "createEntry", path, nil)
	}

	if _, ok, err := fs.lookupChild(parent, name); err != nil {
		return err
	} else if ok {
		return newErr(KindExists, "createEntry", path, nil)
	}

	full, err := fs.dirIsFull(parent)
	if err != nil {
		return err
	}
	if full {
		return newErr(KindDirFull, "createEntry", path, nil)
	}

	child, err := fs.syncNewFile(mode)
	if err != nil {
		return err
	}
	return fs.appendEntry(parent, child, name)
}

// Create makes a new regular file at path with the given permission bits.
func (fs *FS) Create(path string, perm uint32) (err error) {
	defer fs.traced("fsim.Create")(&err)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.createEntry(path, modeRegular|perm)
}

// Mkdir makes a new, empty directory at path with the given permission
// bits.
func (fs *FS) Mkdir(path string, perm uint32) (err error) {
	defer fs.traced("fsim.Mkdir")(&err)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.createEntry(path, modeDir|perm)
}

// Open verifies that path exists, returning its inode number.
func (fs *FS) Open(path string) (num int, err error) {
	defer fs.traced("fsim.Open")(&err)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.resolve(path)
}

// Read copies up to size bytes of path's content, starting at offset,
// into buf, returning the number of bytes copied.
func (fs *FS) Read(path string, buf []byte, size, offset int) (n int, err error) {
	defer fs.traced("fsim.Read")(&err)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	num, err := fs.resolve(path)
	if err != nil {
		return 0, err
	}
	if size > len(buf) {
		size = len(buf)
	}
	data, err := fs.readStream(num, offset, size)
	if err != nil {
		return 0, err
	}
	return copy(buf, data), nil
}

// Write stores size bytes of buf into path's content at offset, growing
// the file if the write extends past its current size.
func (fs *FS) Write(path string, buf []byte, size, offset int) (n int, err error) {
	defer fs.traced("fsim.Write")(&err)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	num, err := fs.resolve(path)
	if err != nil {
		return 0, err
	}
	if size > len(buf) {
		size = len(buf)
	}
	if _, err := fs.writeStream(num, buf[:size], offset); err != nil {
		return 0, err
	}
	return size, nil
}

// Chmod replaces path's inode mode word verbatim with mode.
func (fs *FS) Chmod(path string, mode uint32) (err error) {
	defer fs.traced("fsim.Chmod")(&err)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	num, err := fs.resolve(path)
	if err != nil {
		return err
	}
	return fs.updateMode(num, mode)
}

// The methods below form a second, raw-inode-number-addressed surface over
// the same operations, for consumers (see package fsfuse) that already hold
// a kernel-assigned inode identity and would otherwise have to maintain
// their own path cache just to re-derive one. fsim's inode numbers are
// already exactly such an identity space: once allocated, a number is never
// reused for the lifetime of the filesystem image, since this implementation
// never frees an inode.

// Stat returns the mode and size of inode num directly, without a path
// lookup.
func (fs *FS) Stat(num int) (mode uint32, size uint64, err error) {
	defer fs.traced("fsim.Stat")(&err)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, err := fs.readInode(num)
	if err != nil {
		return 0, 0, err
	}
	return in.Mode, in.Size, nil
}

// LookupChild finds name among dirNum's entries, returning its inode number.
func (fs *FS) LookupChild(dirNum int, name string) (child int, ok bool, err error) {
	defer fs.traced("fsim.LookupChild")(&err)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.lookupChild(dirNum, name)
}

// ListChildren returns dirNum's decoded directory entries, with no "." or
// ".." synthesized.
func (fs *FS) ListChildren(dirNum int) (entries []DirEntry, err error) {
	defer fs.traced("fsim.ListChildren")(&err)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.enumerate(dirNum)
}

// CreateChild allocates a new inode with mode and links it into dirNum under
// name, the raw-inode-number counterpart of createEntry.
func (fs *FS) CreateChild(dirNum int, name string, mode uint32) (child int, err error) {
	defer fs.traced("fsim.CreateChild")(&err)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok, err := fs.lookupChild(dirNum, name); err != nil {
		return 0, err
	} else if ok {
		return 0, newErr(KindExists, "CreateChild", name, nil)
	}

	full, err := fs.dirIsFull(dirNum)
	if err != nil {
		return 0, err
	}
	if full {
		return 0, newErr(KindDirFull, "CreateChild", name, nil)
	}

	child, err = fs.syncNewFile(mode)
	if err != nil {
		return 0, err
	}
	if err := fs.appendEntry(dirNum, child, name); err != nil {
		return 0, err
	}
	return child, nil
}

// ReadAt reads up to size bytes of inode num's content starting at offset
// into buf, returning the number of bytes copied.
func (fs *FS) ReadAt(num int, buf []byte, size, offset int) (n int, err error) {
	defer fs.traced("fsim.ReadAt")(&err)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if size > len(buf) {
		size = len(buf)
	}
	data, err := fs.readStream(num, offset, size)
	if err != nil {
		return 0, err
	}
	return copy(buf, data), nil
}

// WriteAt stores size bytes of buf into inode num's content at offset.
func (fs *FS) WriteAt(num int, buf []byte, size, offset int) (n int, err error) {
	defer fs.traced("fsim.WriteAt")(&err)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if size > len(buf) {
		size = len(buf)
	}
	if _, err := fs.writeStream(num, buf[:size], offset); err != nil {
		return 0, err
	}
	return size, nil
}

// ChmodInode replaces inode num's mode word verbatim with mode.
func (fs *FS) ChmodInode(num int, mode uint32) (err error) {
	defer fs.traced("fsim.ChmodInode")(&err)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.updateMode(num, mode)
}
