// Copyright 2015 Google Inc. All Rights Reserved.

package fsim

// writeStream writes buf into inode num's content at offset, allocating
// data blocks lazily as the write walks past the end of the index vector.
// It returns the inode's new size. offset must not exceed the current
// size — holes are not supported, matching write_to_file in the source
// implementation.
func (fs *FS) writeStream(num int, buf []byte, offset int) (int, error) {
	in, err := fs.readInode(num)
	if err != nil {
		return 0, err
	}
	if offset < 0 || offset > int(in.Size) {
		return 0, newErr(KindBadOffset, "writeStream", "", nil)
	}

	blockIdx := offset / BlockSize
	byteOff := offset % BlockSize

	block, err := fs.blockAt(num, &in, blockIdx)
	if err != nil {
		return 0, err
	}
	if err := fs.dev.Seek(block, byteOff); err != nil {
		return 0, newErr(KindIO, "writeStream", "", err)
	}

	written := 0
	for written < len(buf) {
		left, err := fs.dev.SpaceLeftInBlock(block)
		if err != nil {
			return 0, newErr(KindIO, "writeStream", "", err)
		}
		if left == 0 {
			blockIdx++
			block, err = fs.blockAt(num, &in, blockIdx)
			if err != nil {
				return 0, err
			}
			if err := fs.dev.Seek(block, 0); err != nil {
				return 0, newErr(KindIO, "writeStream", "", err)
			}
			left, err = fs.dev.SpaceLeftInBlock(block)
			if err != nil {
				return 0, newErr(KindIO, "writeStream", "", err)
			}
		}

		chunk := len(buf) - written
		if chunk > left {
			chunk = left
		}
		if err := fs.dev.Write(buf[written : written+chunk]); err != nil {
			return 0, newErr(KindIO, "writeStream", "", err)
		}
		written += chunk
	}
	if err := fs.dev.Flush(); err != nil {
		return 0, newErr(KindIO, "writeStream", "", err)
	}

	newSize := offset + len(buf)
	if newSize < int(in.Size) {
		newSize = int(in.Size)
	}
	if err := fs.writeInodeHeader(num, in.Mode, uint64(newSize)); err != nil {
		return 0, err
	}
	return newSize, nil
}

// blockAt returns the data block holding blockIdx, allocating and binding
// one into in's (local, possibly stale after allocation) index vector if
// necessary. It keeps in.Index in sync with what it writes so repeated
// calls during the same writeStream don't re-request the same slot.
func (fs *FS) blockAt(num int, in *Inode, blockIdx int) (int, error) {
	if blockIdx < 0 || blockIdx >= MaxBlocksPerInode {
		return 0, newErr(KindNoSpace, "blockAt", "", nil)
	}
	if in.Index[blockIdx] != 0 {
		return int(in.Index[blockIdx]), nil
	}

	block, err := fs.allocateDataBlockFor(num)
	if err != nil {
		return 0, err
	}
	in.Index[blockIdx] = byte(block)
	return block, nil
}

// readStream reads up to size bytes of inode num's content starting at
// offset. The amount actually returned is clamped to the inode's size, so a
// read can never run past the end of the written data.
func (fs *FS) readStream(num int, offset, size int) ([]byte, error) {
	in, err := fs.readInode(num)
	if err != nil {
		return nil, err
	}
	if offset < 0 || offset > int(in.Size) {
		return nil, newErr(KindBadOffset, "readStream", "", nil)
	}

	n := size
	if offset+n > int(in.Size) {
		n = int(in.Size) - offset
	}
	if n <= 0 {
		return []byte{}, nil
	}

	out := make([]byte, 0, n)
	blockIdx := offset / BlockSize
	byteOff := offset % BlockSize
	remaining := n

	for remaining > 0 {
		if blockIdx >= MaxBlocksPerInode || in.Index[blockIdx] == 0 {
			return nil, newErr(KindCorrupt, "readStream", "", nil)
		}
		block := int(in.Index[blockIdx])
		if err := fs.dev.Seek(block, byteOff); err != nil {
			return nil, newErr(KindIO, "readStream", "", err)
		}

		chunk := BlockSize - byteOff
		if chunk > remaining {
			chunk = remaining
		}
		buf := make([]byte, chunk)
		if err := fs.dev.Read(buf); err != nil {
			return nil, newErr(KindIO, "readStream", "", err)
		}
		out = append(out, buf...)

		remaining -= chunk
		byteOff = 0
		blockIdx++
	}
	return out, nil
}
