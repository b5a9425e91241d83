// Copyright 2015 Google Inc. All Rights Reserved.

package fsfuse

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jacobsa/fuse/fuseops"
	. "github.com/jacobsa/oglematchers"
	. "github.com/jacobsa/ogletest"
	"github.com/jacobsa/timeutil"

	fsim "github.com/xAlekos/FSIM"
)

func TestFsfuse(t *testing.T) { RunTests(t) }

////////////////////////////////////////////////////////////////////////
// Boilerplate
////////////////////////////////////////////////////////////////////////

// ServerTest exercises fsfuse.Server's per-op translation logic directly
// (the same bodies the fuseutil.FileSystem glue methods delegate to),
// rather than driving a real kernel mount, since none is available in this
// environment.
type ServerTest struct {
	fs     *fsim.FS
	server *Server
}

func init() { RegisterTestSuite(&ServerTest{}) }

func (t *ServerTest) SetUp(ti *TestInfo) {
	dir, err := os.MkdirTemp("", "fsfuse_test")
	AssertEq(nil, err)
	t.fs, err = fsim.Format(filepath.Join(dir, "FS"))
	AssertEq(nil, err)

	t.server = New(t.fs, timeutil.RealClock(), 501, 20)
}

func (t *ServerTest) TearDown() {
	t.fs.Close()
}

////////////////////////////////////////////////////////////////////////
// Test functions
////////////////////////////////////////////////////////////////////////

func (t *ServerTest) InodeIDsRoundTripThroughTheKernelOffset() {
	ExpectEq(fuseops.RootInodeID, fuseInode(fsim.RootInode))
	ExpectEq(fsim.RootInode, fsimInode(fuseops.RootInodeID))
	ExpectEq(7, fsimInode(fuseInode(7)))
}

func (t *ServerTest) RootAttributes_ReportDirectory() {
	attrs, err := t.server.attributes(fsim.RootInode)
	AssertEq(nil, err)

	ExpectTrue(attrs.Mode&os.ModeDir != 0)
	ExpectEq(2, attrs.Nlink)
}

func (t *ServerTest) CreateFile_ThenLookUpInode() {
	entry, handle, err := t.server.createFile(fuseops.RootInodeID, "greeting", 0644)
	AssertEq(nil, err)
	ExpectEq(fuseops.HandleID(entry.Child), handle)
	ExpectFalse(entry.Attributes.Mode&os.ModeDir != 0)

	looked, err := t.server.lookUpInode(fuseops.RootInodeID, "greeting")
	AssertEq(nil, err)
	ExpectEq(entry.Child, looked.Child)
}

func (t *ServerTest) LookUpInode_MissingNameFails() {
	_, err := t.server.lookUpInode(fuseops.RootInodeID, "nope")
	ExpectNe(nil, err)
}

func (t *ServerTest) MkDir_ThenReadDirListsChild() {
	entry, err := t.server.mkDir(fuseops.RootInodeID, "sub", 0755)
	AssertEq(nil, err)
	ExpectTrue(entry.Attributes.Mode&os.ModeDir != 0)

	data, err := t.server.readDir(fuseops.RootInodeID, 0, 4096)
	AssertEq(nil, err)
	ExpectThat(len(data), GreaterThan(0))
}

func (t *ServerTest) WriteFile_ThenReadFile_RoundTrips() {
	entry, _, err := t.server.createFile(fuseops.RootInodeID, "f", 0644)
	AssertEq(nil, err)

	want := []byte("hello from the other side of the kernel boundary")
	err = t.server.writeFile(entry.Child, 0, want)
	AssertEq(nil, err)

	got, err := t.server.readFile(entry.Child, 0, len(want)+32)
	AssertEq(nil, err)
	ExpectEq(string(want), string(got))
}

func (t *ServerTest) SetAttributes_ChangesMode() {
	entry, _, err := t.server.createFile(fuseops.RootInodeID, "f", 0644)
	AssertEq(nil, err)

	newMode := os.FileMode(0600)
	attrs, err := t.server.setAttributes(fsimInode(entry.Child), &newMode)
	AssertEq(nil, err)
	ExpectEq(os.FileMode(0600), attrs.Mode.Perm())
}

func (t *ServerTest) OpenDir_RejectsRegularFile() {
	entry, _, err := t.server.createFile(fuseops.RootInodeID, "f", 0644)
	AssertEq(nil, err)

	_, err = t.server.openDir(entry.Child)
	ExpectNe(nil, err)
}

func (t *ServerTest) OpenFile_RejectsDirectory() {
	entry, err := t.server.mkDir(fuseops.RootInodeID, "sub", 0755)
	AssertEq(nil, err)

	_, err = t.server.openFile(entry.Child)
	ExpectNe(nil, err)
}
