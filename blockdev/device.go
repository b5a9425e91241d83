// Copyright 2015 Google Inc. All Rights Reserved.

// Package blockdev implements the lowest layer of the filesystem: a fixed
// size, seekable, single-cursor byte file treated as a flat address space
// of equal-sized blocks.
package blockdev

import (
	"fmt"
	"io"
	"os"

	fallocate "github.com/detailyang/go-fallocate"
)

// Device is a backing file addressed in BlockSize-byte blocks. It has a
// single cursor shared by every caller; higher layers are responsible for
// re-seeking before every logical read or write (see the package-level
// concurrency note in the root fsim package).
type Device struct {
	f *os.File

	blockSize  int
	blockCount int
}

// Open opens an existing backing file at path. The file must already be
// exactly blockSize*blockCount bytes; use Create to make a fresh one.
func Open(path string, blockSize, blockCount int) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("blockdev: open %s: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("blockdev: stat %s: %w", path, err)
	}

	want := int64(blockSize) * int64(blockCount)
	if fi.Size() != want {
		f.Close()
		return nil, fmt.Errorf("blockdev: %s is %d bytes, want %d", path, fi.Size(), want)
	}

	return &Device{f: f, blockSize: blockSize, blockCount: blockCount}, nil
}

// Create creates a fresh backing file at path of exactly
// blockSize*blockCount bytes, preallocating the space up front with
// fallocate(2) so later writes never have to grow the file.
func Create(path string, blockSize, blockCount int) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("blockdev: create %s: %w", path, err)
	}

	size := int64(blockSize) * int64(blockCount)
	if err := fallocate.Fallocate(f, 0, size); err != nil {
		// Some filesystems (notably non-Linux ones) don't support
		// fallocate(2) for a given file; fall back to an explicit
		// truncate, which still gives us the right file size even if it
		// doesn't guarantee the blocks are physically reserved.
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, fmt.Errorf("blockdev: allocate %s: %w", path, err)
		}
	}

	d := &Device{f: f, blockSize: blockSize, blockCount: blockCount}
	if err := d.Format(); err != nil {
		f.Close()
		return nil, err
	}
	return d, nil
}

// Close releases the backing file handle.
func (d *Device) Close() error {
	return d.f.Close()
}

// Seek moves the device's cursor to block*blockSize + offset. It fails if
// the resulting position falls outside the device.
func (d *Device) Seek(block int, offset int) error {
	if block < 0 || block >= d.blockCount {
		return fmt.Errorf("blockdev: block %d out of range [0,%d)", block, d.blockCount)
	}
	if offset < 0 || offset >= d.blockSize {
		return fmt.Errorf("blockdev: offset %d out of range [0,%d)", offset, d.blockSize)
	}

	pos := int64(block)*int64(d.blockSize) + int64(offset)
	if _, err := d.f.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("blockdev: seek: %w", err)
	}
	return nil
}

// Read fills buf entirely from the device's current cursor, advancing it.
func (d *Device) Read(buf []byte) error {
	if _, err := io.ReadFull(d.f, buf); err != nil {
		return fmt.Errorf("blockdev: read: %w", err)
	}
	return nil
}

// Write emits buf entirely at the device's current cursor, advancing it.
func (d *Device) Write(buf []byte) error {
	if _, err := d.f.Write(buf); err != nil {
		return fmt.Errorf("blockdev: write: %w", err)
	}
	return nil
}

// Flush forces durability of writes issued so far.
func (d *Device) Flush() error {
	if err := d.f.Sync(); err != nil {
		return fmt.Errorf("blockdev: flush: %w", err)
	}
	return nil
}

// Format zeroes every block of the device.
func (d *Device) Format() error {
	if err := d.Seek(0, 0); err != nil {
		return err
	}

	zero := make([]byte, d.blockSize)
	for b := 0; b < d.blockCount; b++ {
		if _, err := d.f.Write(zero); err != nil {
			return fmt.Errorf("blockdev: format: %w", err)
		}
	}
	return d.Flush()
}

// BlockSize returns the configured block size.
func (d *Device) BlockSize() int { return d.blockSize }

// BlockCount returns the configured number of blocks.
func (d *Device) BlockCount() int { return d.blockCount }

// SpaceLeftInBlock returns how many bytes remain between the device's
// current cursor and the end of the given block, used by the directory and
// data-stream layers to decide when to chain into a fresh block.
func (d *Device) SpaceLeftInBlock(block int) (int, error) {
	pos, err := d.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("blockdev: tell: %w", err)
	}
	end := int64(block+1) * int64(d.blockSize)
	return int(end - pos), nil
}
