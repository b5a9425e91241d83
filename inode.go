// Copyright 2015 Google Inc. All Rights Reserved.

package fsim

import "encoding/binary"

// modeRegular and modeDir are or'd with a permission word to form the mode
// word stored in an inode, mirroring the S_IFREG / S_IFDIR bits of the
// source implementation without pulling in a particular platform's
// syscall constants.
const (
	modeRegular uint32 = 0x8000
	modeDir     uint32 = 0x4000
)

// ModeRegular and ModeDir are the type bits consumers outside this package
// (see package fsfuse) must fold into a permission word when calling
// CreateChild for a file or a directory, respectively.
const (
	ModeRegular = modeRegular
	ModeDir     = modeDir
)

// IsDirMode reports whether mode carries the directory type bit.
func IsDirMode(mode uint32) bool { return mode&modeDir != 0 }

// Inode is the decoded form of one on-disk inode record: a mode word, a
// size, and the vector of data-block numbers holding the inode's content.
// It is packed on disk as:
//
//	offset 0:  mode  (4 bytes, little-endian)
//	offset 4:  size  (8 bytes, little-endian)
//	offset 12: index_vector (MaxBlocksPerInode bytes)
type Inode struct {
	Mode  uint32
	Size  uint64
	Index [MaxBlocksPerInode]byte
}

// IsDir reports whether the inode represents a directory.
func (in *Inode) IsDir() bool { return in.Mode&modeDir != 0 }

// readInode reads inode number num's record from the block the inode table
// points it at.
func (fs *FS) readInode(num int) (Inode, error) {
	if num < 0 || num >= MaxInodes {
		return Inode{}, newErr(KindNotFound, "readInode", "", nil)
	}

	block := int(fs.inodes[num])
	if block == 0 && num != RootInode {
		return Inode{}, newErr(KindNotFound, "readInode", "", nil)
	}

	if err := fs.dev.Seek(block, 0); err != nil {
		return Inode{}, newErr(KindIO, "readInode", "", err)
	}

	var raw [BlockSize]byte
	if err := fs.dev.Read(raw[:inodeHeaderSize+MaxBlocksPerInode]); err != nil {
		return Inode{}, newErr(KindIO, "readInode", "", err)
	}

	var in Inode
	in.Mode = binary.LittleEndian.Uint32(raw[0:4])
	in.Size = binary.LittleEndian.Uint64(raw[4:12])
	copy(in.Index[:], raw[12:12+MaxBlocksPerInode])

	if err := checkIndexVector(in.Index[:]); err != nil {
		return Inode{}, err
	}

	return in, nil
}

// checkIndexVector enforces invariant I4: a zero entry terminates the list
// of valid data blocks, and every entry after the first zero must also be
// zero.
func checkIndexVector(idx []byte) error {
	seenZero := false
	for _, b := range idx {
		if b == 0 {
			seenZero = true
			continue
		}
		if seenZero {
			return newErr(KindCorrupt, "checkIndexVector", "", nil)
		}
	}
	return nil
}

// inodeBlock returns the block number holding inode num's record.
func (fs *FS) inodeBlock(num int) int { return int(fs.inodes[num]) }

// writeInodeHeader rewrites the mode and size fields of inode num's record
// in place, leaving the index vector untouched.
func (fs *FS) writeInodeHeader(num int, mode uint32, size uint64) error {
	block := fs.inodeBlock(num)

	var hdr [inodeHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], mode)
	binary.LittleEndian.PutUint64(hdr[4:12], size)

	if err := fs.dev.Seek(block, 0); err != nil {
		return newErr(KindIO, "writeInodeHeader", "", err)
	}
	if err := fs.dev.Write(hdr[:]); err != nil {
		return newErr(KindIO, "writeInodeHeader", "", err)
	}
	return fs.dev.Flush()
}

func (fs *FS) updateMode(num int, mode uint32) error {
	in, err := fs.readInode(num)
	if err != nil {
		return err
	}
	return fs.writeInodeHeader(num, mode, in.Size)
}

func (fs *FS) updateSize(num int, size uint64) error {
	in, err := fs.readInode(num)
	if err != nil {
		return err
	}
	return fs.writeInodeHeader(num, in.Mode, size)
}

// allocateDataBlockFor allocates a fresh block via the free-space map,
// writes its number into the first zero slot of num's index vector, and
// returns the new block number. It fails with KindNoSpace when the index
// vector has no zero slot left or the free-space map is exhausted; callers
// pass that error on unchanged.
func (fs *FS) allocateDataBlockFor(num int) (int, error) {
	in, err := fs.readInode(num)
	if err != nil {
		return 0, err
	}

	slot := -1
	for i, b := range in.Index {
		if b == 0 {
			slot = i
			break
		}
	}
	if slot == -1 {
		return 0, newErr(KindNoSpace, "allocateDataBlockFor", "", nil)
	}

	block, ok, err := fs.freeBlocks.allocBlock(fs.dev)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, newErr(KindNoSpace, "allocateDataBlockFor", "", nil)
	}

	if err := fs.dev.Seek(fs.inodeBlock(num), inodeHeaderSize+slot); err != nil {
		return 0, newErr(KindIO, "allocateDataBlockFor", "", err)
	}
	if err := fs.dev.Write([]byte{byte(block)}); err != nil {
		return 0, newErr(KindIO, "allocateDataBlockFor", "", err)
	}
	if err := fs.dev.Flush(); err != nil {
		return 0, newErr(KindIO, "allocateDataBlockFor", "", err)
	}

	return block, nil
}

// syncNewFile allocates an inode number and a data block for it, binds
// them together in the inode table, writes the header (mode, size 0, empty
// index vector), and returns the new inode number.
func (fs *FS) syncNewFile(mode uint32) (int, error) {
	num, ok := fs.inodes.alloc()
	if !ok {
		return 0, newErr(KindNoSpace, "syncNewFile", "", nil)
	}

	block, ok, err := fs.freeBlocks.allocBlock(fs.dev)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, newErr(KindNoSpace, "syncNewFile", "", nil)
	}

	if err := fs.inodes.bind(fs.dev, num, block); err != nil {
		return 0, err
	}

	if err := fs.writeInodeHeader(num, mode, 0); err != nil {
		return 0, err
	}

	return num, nil
}
