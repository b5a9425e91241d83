// Copyright 2015 Google Inc. All Rights Reserved.

// Package fsfuse adapts an *fsim.FS to the fuseutil.FileSystem interface,
// letting it be served over a real kernel FUSE connection via
// fuseutil.NewFileSystemServer. It owns none of the on-disk bookkeeping
// itself; every method here translates between fuseops identifiers and
// fsim's own raw inode numbers and delegates the actual work to the
// corresponding fsim.FS method.
package fsfuse

import (
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jacobsa/timeutil"

	fsim "github.com/xAlekos/FSIM"
)

// Server implements fuseutil.FileSystem over an *fsim.FS.
type Server struct {
	fs    *fsim.FS
	clock timeutil.Clock
	uid   uint32
	gid   uint32
}

// New wraps fs for serving over FUSE. uid and gid are reported as the owner
// of every inode, since the underlying image carries no ownership bits of
// its own.
func New(fs *fsim.FS, clock timeutil.Clock, uid, gid uint32) *Server {
	return &Server{fs: fs, clock: clock, uid: uid, gid: gid}
}

// MountServer builds the fuse.Server that cmd/fsimmount passes to fuse.Mount,
// handing off dispatch and concurrency to the library's own
// fuseutil.NewFileSystemServer rather than a hand-rolled read loop.
func MountServer(fs *fsim.FS, clock timeutil.Clock, uid, gid uint32) fuse.Server {
	return fuseutil.NewFileSystemServer(New(fs, clock, uid, gid))
}

// fuseInode converts one of fsim's own raw inode numbers (0-based, with the
// root at 0) into the kernel-facing identity space (1-based, with the root
// fixed at fuseops.RootInodeID).
func fuseInode(num int) fuseops.InodeID { return fuseops.InodeID(num + 1) }

// fsimInode is the inverse of fuseInode.
func fsimInode(id fuseops.InodeID) int { return int(id) - 1 }

////////////////////////////////////////////////////////////////////////
// fuseutil.FileSystem
////////////////////////////////////////////////////////////////////////

func (s *Server) Init(op *fuseops.InitOp) {
	op.Respond(nil)
}

func (s *Server) LookUpInode(op *fuseops.LookUpInodeOp) {
	var err error
	defer func() { op.Respond(err) }()

	op.Entry, err = s.lookUpInode(op.Parent, op.Name)
}

func (s *Server) GetInodeAttributes(op *fuseops.GetInodeAttributesOp) {
	var err error
	defer func() { op.Respond(err) }()

	op.Attributes, err = s.attributes(fsimInode(op.Inode))
}

func (s *Server) SetInodeAttributes(op *fuseops.SetInodeAttributesOp) {
	var err error
	defer func() { op.Respond(err) }()

	op.Attributes, err = s.setAttributes(fsimInode(op.Inode), op.Mode)
}

func (s *Server) ForgetInode(op *fuseops.ForgetInodeOp) {
	op.Respond(nil)
}

func (s *Server) MkDir(op *fuseops.MkDirOp) {
	var err error
	defer func() { op.Respond(err) }()

	op.Entry, err = s.mkDir(op.Parent, op.Name, op.Mode)
}

func (s *Server) CreateFile(op *fuseops.CreateFileOp) {
	var err error
	defer func() { op.Respond(err) }()

	op.Entry, op.Handle, err = s.createFile(op.Parent, op.Name, op.Mode)
}

func (s *Server) CreateSymlink(op *fuseops.CreateSymlinkOp) {
	op.Respond(fuse.ENOSYS)
}

// RmDir and Unlink are not implemented: fsim never frees an inode or a data
// block once allocated, so there is no way to honor a deletion request.
func (s *Server) RmDir(op *fuseops.RmDirOp) {
	op.Respond(fuse.ENOSYS)
}

func (s *Server) Unlink(op *fuseops.UnlinkOp) {
	op.Respond(fuse.ENOSYS)
}

func (s *Server) OpenDir(op *fuseops.OpenDirOp) {
	var err error
	defer func() { op.Respond(err) }()

	op.Handle, err = s.openDir(op.Inode)
}

func (s *Server) ReadDir(op *fuseops.ReadDirOp) {
	var err error
	defer func() { op.Respond(err) }()

	op.Data, err = s.readDir(op.Inode, op.Offset, op.Size)
}

func (s *Server) ReleaseDirHandle(op *fuseops.ReleaseDirHandleOp) {
	op.Respond(nil)
}

func (s *Server) OpenFile(op *fuseops.OpenFileOp) {
	var err error
	defer func() { op.Respond(err) }()

	op.Handle, err = s.openFile(op.Inode)
}

func (s *Server) ReadFile(op *fuseops.ReadFileOp) {
	var err error
	defer func() { op.Respond(err) }()

	op.Data, err = s.readFile(op.Inode, op.Offset, op.Size)
}

func (s *Server) WriteFile(op *fuseops.WriteFileOp) {
	var err error
	defer func() { op.Respond(err) }()

	err = s.writeFile(op.Inode, op.Offset, op.Data)
}

func (s *Server) SyncFile(op *fuseops.SyncFileOp) {
	op.Respond(nil)
}

func (s *Server) FlushFile(op *fuseops.FlushFileOp) {
	op.Respond(nil)
}

func (s *Server) ReleaseFileHandle(op *fuseops.ReleaseFileHandleOp) {
	op.Respond(nil)
}
