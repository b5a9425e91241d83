// Copyright 2015 Google Inc. All Rights Reserved.

package fsim

import "github.com/xAlekos/FSIM/blockdev"

// inodeTable is the in-memory mirror of block 0: table[i] is the block
// number holding inode i's record, or zero if inode i is free. Entry 0 is
// never "free" — it is always bound to the root directory's block.
type inodeTable [MaxInodes]byte

func loadInodeTable(dev *blockdev.Device) (inodeTable, error) {
	var t inodeTable
	if err := dev.Seek(inodeTableBlock, 0); err != nil {
		return t, newErr(KindIO, "loadInodeTable", "", err)
	}
	if err := dev.Read(t[:]); err != nil {
		return t, newErr(KindIO, "loadInodeTable", "", err)
	}
	return t, nil
}

func (t *inodeTable) persist(dev *blockdev.Device) error {
	if err := dev.Seek(inodeTableBlock, 0); err != nil {
		return newErr(KindIO, "persistInodeTable", "", err)
	}
	if err := dev.Write(t[:]); err != nil {
		return newErr(KindIO, "persistInodeTable", "", err)
	}
	return dev.Flush()
}

// alloc returns the smallest free inode number, or ok == false if the table
// is full. It does not mutate the table; callers bind the returned number
// once they know which block it will live in.
func (t *inodeTable) alloc() (num int, ok bool) {
	for i := 1; i < MaxInodes; i++ {
		if t[i] == 0 {
			return i, true
		}
	}
	return 0, false
}

// bind records that inode num's record lives in block, and persists the
// table immediately: the table hits disk before the caller uses the block
// number further.
func (t *inodeTable) bind(dev *blockdev.Device, num int, block int) error {
	t[num] = byte(block)
	return t.persist(dev)
}

// freeSpaceMap is the in-memory mirror of block 1: map[b] is nonzero iff
// block b is occupied.
type freeSpaceMap [MaxBlocks]byte

func loadFreeSpaceMap(dev *blockdev.Device) (freeSpaceMap, error) {
	var m freeSpaceMap
	if err := dev.Seek(freeSpaceMapBlock, 0); err != nil {
		return m, newErr(KindIO, "loadFreeSpaceMap", "", err)
	}
	if err := dev.Read(m[:]); err != nil {
		return m, newErr(KindIO, "loadFreeSpaceMap", "", err)
	}
	return m, nil
}

func (m *freeSpaceMap) persist(dev *blockdev.Device) error {
	if err := dev.Seek(freeSpaceMapBlock, 0); err != nil {
		return newErr(KindIO, "persistFreeSpaceMap", "", err)
	}
	if err := dev.Write(m[:]); err != nil {
		return newErr(KindIO, "persistFreeSpaceMap", "", err)
	}
	return dev.Flush()
}

// mark sets block's occupancy and persists the map.
func (m *freeSpaceMap) mark(dev *blockdev.Device, block int, used bool) error {
	if used {
		m[block] = 1
	} else {
		m[block] = 0
	}
	return m.persist(dev)
}

// allocBlock scans for the lowest free block, marks it occupied, persists
// the map, and returns its number. ok is false if the device is full.
func (m *freeSpaceMap) allocBlock(dev *blockdev.Device) (block int, ok bool, err error) {
	for i := 0; i < MaxBlocks; i++ {
		if m[i] == 0 {
			if err := m.mark(dev, i, true); err != nil {
				return 0, false, err
			}
			return i, true, nil
		}
	}
	return 0, false, nil
}

// disjoint reports whether every inode-table entry points to a block the
// free-space map considers occupied — invariant I1.
func (t *inodeTable) disjoint(m *freeSpaceMap) bool {
	if m[inodeTableBlock] == 0 || m[freeSpaceMapBlock] == 0 || m[rootInodeBlock] == 0 {
		return false
	}
	for i := 0; i < MaxInodes; i++ {
		b := t[i]
		if i == RootInode || b != 0 {
			if m[b] == 0 {
				return false
			}
		}
	}
	return true
}
