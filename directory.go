// Copyright 2015 Google Inc. All Rights Reserved.

package fsim

import "io"

// DirEntry is one decoded directory entry: a child inode number and its
// name, encoded on disk as a one-byte inode number, a one-byte name
// length, and the raw name bytes.
type DirEntry struct {
	Inode byte
	Name  string
}

// findFreeOffsetInBlock scans block for the offset at which the trailing
// run of zero bytes begins, returning -1 if the block has no such run
// (i.e. is entirely written).
func (fs *FS) findFreeOffsetInBlock(block int) (int, error) {
	if err := fs.dev.Seek(block, 0); err != nil {
		return -1, newErr(KindIO, "findFreeOffsetInBlock", "", err)
	}
	var buf [BlockSize]byte
	if err := fs.dev.Read(buf[:]); err != nil {
		return -1, newErr(KindIO, "findFreeOffsetInBlock", "", err)
	}

	candidate := -1
	for i := 0; i < BlockSize; i++ {
		if buf[i] == 0 {
			if candidate == -1 {
				candidate = i
			}
		} else {
			candidate = -1
		}
	}
	return candidate, nil
}

// reachDirWritePosition seeks the device to the first free byte available
// for a new directory entry in dirNum, allocating a fresh data block if
// every existing one is full, and returns the block the cursor now sits
// in.
func (fs *FS) reachDirWritePosition(dirNum int) (int, error) {
	in, err := fs.readInode(dirNum)
	if err != nil {
		return 0, err
	}

	for i := 0; i < MaxBlocksPerInode && in.Index[i] != 0; i++ {
		block := int(in.Index[i])
		off, err := fs.findFreeOffsetInBlock(block)
		if err != nil {
			return 0, err
		}
		if off != -1 {
			if err := fs.dev.Seek(block, off); err != nil {
				return 0, newErr(KindIO, "reachDirWritePosition", "", err)
			}
			return block, nil
		}
	}

	block, err := fs.allocateDataBlockFor(dirNum)
	if err != nil {
		return 0, err
	}
	if err := fs.dev.Seek(block, 0); err != nil {
		return 0, newErr(KindIO, "reachDirWritePosition", "", err)
	}
	return block, nil
}

// appendEntry records a new (childNum, name) entry at the end of dirNum's
// content, chaining into a fresh data block one byte at a time whenever
// the current one runs out of room — mirroring write_file_info in the
// source implementation.
func (fs *FS) appendEntry(dirNum, childNum int, name string) error {
	if len(name) == 0 || len(name) > MaxFilenameLen {
		return newErr(KindBadOffset, "appendEntry", name, nil)
	}

	block, err := fs.reachDirWritePosition(dirNum)
	if err != nil {
		return err
	}

	writeByte := func(b byte) error {
		left, err := fs.dev.SpaceLeftInBlock(block)
		if err != nil {
			return newErr(KindIO, "appendEntry", name, err)
		}
		if left == 0 {
			nb, err := fs.allocateDataBlockFor(dirNum)
			if err != nil {
				return err
			}
			block = nb
			if err := fs.dev.Seek(block, 0); err != nil {
				return newErr(KindIO, "appendEntry", name, err)
			}
		}
		return fs.dev.Write([]byte{b})
	}

	if err := writeByte(byte(childNum)); err != nil {
		return err
	}
	if err := writeByte(byte(len(name))); err != nil {
		return err
	}
	for i := 0; i < len(name); i++ {
		if err := writeByte(name[i]); err != nil {
			return err
		}
	}
	return fs.dev.Flush()
}

// enumerate decodes every entry in dirNum's content, stopping at the
// zero-inode-number sentinel (invariant I5) or MaxDirEntries, whichever
// comes first.
func (fs *FS) enumerate(dirNum int) ([]DirEntry, error) {
	in, err := fs.readInode(dirNum)
	if err != nil {
		return nil, err
	}
	if in.Index[0] == 0 {
		return nil, nil
	}

	blockIdx := 0
	block := int(in.Index[0])
	if err := fs.dev.Seek(block, 0); err != nil {
		return nil, newErr(KindIO, "enumerate", "", err)
	}

	readByte := func() (byte, error) {
		left, err := fs.dev.SpaceLeftInBlock(block)
		if err != nil {
			return 0, newErr(KindIO, "enumerate", "", err)
		}
		if left == 0 {
			blockIdx++
			if blockIdx >= MaxBlocksPerInode || in.Index[blockIdx] == 0 {
				return 0, io.EOF
			}
			block = int(in.Index[blockIdx])
			if err := fs.dev.Seek(block, 0); err != nil {
				return 0, newErr(KindIO, "enumerate", "", err)
			}
		}
		var b [1]byte
		if err := fs.dev.Read(b[:]); err != nil {
			return 0, newErr(KindIO, "enumerate", "", err)
		}
		return b[0], nil
	}

	var entries []DirEntry
	for len(entries) < MaxDirEntries {
		inodeNum, err := readByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if inodeNum == 0 {
			break
		}

		nameLen, err := readByte()
		if err != nil {
			return nil, err
		}
		name := make([]byte, nameLen)
		for i := range name {
			b, err := readByte()
			if err != nil {
				return nil, err
			}
			name[i] = b
		}
		entries = append(entries, DirEntry{Inode: inodeNum, Name: string(name)})
	}
	return entries, nil
}

// lookupChild finds name among dirNum's entries, returning its inode
// number.
func (fs *FS) lookupChild(dirNum int, name string) (int, bool, error) {
	entries, err := fs.enumerate(dirNum)
	if err != nil {
		return 0, false, err
	}
	for _, e := range entries {
		if e.Name == name {
			return int(e.Inode), true, nil
		}
	}
	return 0, false, nil
}

// dirIsFull reports whether dirNum can accept no further entries: every
// index-vector slot is occupied and the last data block has no free byte
// left.
func (fs *FS) dirIsFull(dirNum int) (bool, error) {
	in, err := fs.readInode(dirNum)
	if err != nil {
		return false, err
	}

	lastBlock := 0
	for _, b := range in.Index {
		if b == 0 {
			return false, nil
		}
		lastBlock = int(b)
	}

	off, err := fs.findFreeOffsetInBlock(lastBlock)
	if err != nil {
		return false, err
	}
	return off == -1, nil
}
