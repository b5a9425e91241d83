// Copyright 2015 Google Inc. All Rights Reserved.

package fsfuse

import (
	"os"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	fsim "github.com/xAlekos/FSIM"
)

// toFileMode translates an fsim mode word (a permission word with the
// package's own 0x8000/0x4000 type bits) into the os.FileMode the fuseops
// structs expect.
func toFileMode(mode uint32) os.FileMode {
	perm := os.FileMode(mode & 0o7777)
	if fsim.IsDirMode(mode) {
		return perm | os.ModeDir
	}
	return perm
}

// toFsimRegularMode is the inverse of toFileMode for a file created via
// CreateFile, which always carries the regular-file type bit.
func toFsimRegularMode(mode os.FileMode) uint32 {
	return uint32(mode.Perm()) | fsim.ModeRegular
}

// toFsimDirMode is the inverse of toFileMode for a directory created via
// MkDir. The kernel's mode argument for mkdir(2) carries only permission
// bits, so the directory type bit is folded in unconditionally.
func toFsimDirMode(mode os.FileMode) uint32 {
	return uint32(mode.Perm()) | fsim.ModeDir
}

// attributes builds the fuseops.InodeAttributes the kernel expects for fsim
// inode num.
func (s *Server) attributes(num int) (fuseops.InodeAttributes, error) {
	mode, size, err := s.fs.Stat(num)
	if err != nil {
		return fuseops.InodeAttributes{}, errno(err)
	}

	nlink := uint32(1)
	if fsim.IsDirMode(mode) {
		nlink = 2
	}

	now := s.clock.Now()
	return fuseops.InodeAttributes{
		Size:   size,
		Nlink:  nlink,
		Mode:   toFileMode(mode),
		Atime:  now,
		Mtime:  now,
		Ctime:  now,
		Crtime: now,
		Uid:    s.uid,
		Gid:    s.gid,
	}, nil
}

func (s *Server) childEntry(num int) (fuseops.ChildInodeEntry, error) {
	attrs, err := s.attributes(num)
	if err != nil {
		return fuseops.ChildInodeEntry{}, err
	}
	return fuseops.ChildInodeEntry{
		Child:      fuseInode(num),
		Attributes: attrs,
	}, nil
}

func (s *Server) lookUpInode(parent fuseops.InodeID, name string) (fuseops.ChildInodeEntry, error) {
	child, ok, err := s.fs.LookupChild(fsimInode(parent), name)
	if err != nil {
		return fuseops.ChildInodeEntry{}, errno(err)
	}
	if !ok {
		return fuseops.ChildInodeEntry{}, fuse.ENOENT
	}
	return s.childEntry(child)
}

func (s *Server) setAttributes(num int, mode *os.FileMode) (fuseops.InodeAttributes, error) {
	if mode != nil {
		fsMode, _, err := s.fs.Stat(num)
		if err != nil {
			return fuseops.InodeAttributes{}, errno(err)
		}
		newMode := uint32(mode.Perm())
		if fsim.IsDirMode(fsMode) {
			newMode |= fsim.ModeDir
		} else {
			newMode |= fsim.ModeRegular
		}
		if err := s.fs.ChmodInode(num, newMode); err != nil {
			return fuseops.InodeAttributes{}, errno(err)
		}
	}
	return s.attributes(num)
}

func (s *Server) mkDir(parent fuseops.InodeID, name string, mode os.FileMode) (fuseops.ChildInodeEntry, error) {
	child, err := s.fs.CreateChild(fsimInode(parent), name, toFsimDirMode(mode))
	if err != nil {
		return fuseops.ChildInodeEntry{}, errno(err)
	}
	return s.childEntry(child)
}

func (s *Server) createFile(parent fuseops.InodeID, name string, mode os.FileMode) (fuseops.ChildInodeEntry, fuseops.HandleID, error) {
	child, err := s.fs.CreateChild(fsimInode(parent), name, toFsimRegularMode(mode))
	if err != nil {
		return fuseops.ChildInodeEntry{}, 0, errno(err)
	}
	entry, err := s.childEntry(child)
	if err != nil {
		return fuseops.ChildInodeEntry{}, 0, err
	}
	return entry, fuseops.HandleID(entry.Child), nil
}

func (s *Server) openDir(inode fuseops.InodeID) (fuseops.HandleID, error) {
	mode, _, err := s.fs.Stat(fsimInode(inode))
	if err != nil {
		return 0, errno(err)
	}
	if !fsim.IsDirMode(mode) {
		return 0, fuse.EIO
	}
	return fuseops.HandleID(inode), nil
}

func (s *Server) readDir(inode fuseops.InodeID, offset fuseops.DirOffset, size int) ([]byte, error) {
	num := fsimInode(inode)
	children, err := s.fs.ListChildren(num)
	if err != nil {
		return nil, errno(err)
	}

	entries := make([]fuseutil.Dirent, 0, len(children))
	for i, c := range children {
		mode, _, err := s.fs.Stat(int(c.Inode))
		if err != nil {
			return nil, errno(err)
		}
		dt := fuseutil.DT_File
		if fsim.IsDirMode(mode) {
			dt = fuseutil.DT_Directory
		}
		entries = append(entries, fuseutil.Dirent{
			Offset: fuseops.DirOffset(i + 1),
			Inode:  fuseInode(int(c.Inode)),
			Name:   c.Name,
			Type:   dt,
		})
	}

	if int(offset) > len(entries) {
		return nil, fuse.EIO
	}
	entries = entries[offset:]

	var data []byte
	for _, e := range entries {
		data = fuseutil.AppendDirent(data, e)
		if len(data) > size {
			data = data[:size]
			break
		}
	}
	return data, nil
}

func (s *Server) openFile(inode fuseops.InodeID) (fuseops.HandleID, error) {
	mode, _, err := s.fs.Stat(fsimInode(inode))
	if err != nil {
		return 0, errno(err)
	}
	if fsim.IsDirMode(mode) {
		return 0, fuse.EIO
	}
	return fuseops.HandleID(inode), nil
}

func (s *Server) readFile(inode fuseops.InodeID, offset int64, size int) ([]byte, error) {
	buf := make([]byte, size)
	n, err := s.fs.ReadAt(fsimInode(inode), buf, size, int(offset))
	if err != nil {
		return nil, errno(err)
	}
	return buf[:n], nil
}

func (s *Server) writeFile(inode fuseops.InodeID, offset int64, data []byte) error {
	_, err := s.fs.WriteAt(fsimInode(inode), data, len(data), int(offset))
	return errno(err)
}
