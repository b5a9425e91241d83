// Copyright 2015 Google Inc. All Rights Reserved.

package fsim

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/kylelemons/godebug/pretty"
)

func mustFormat(t *testing.T) *FS {
	t.Helper()
	path := filepath.Join(t.TempDir(), "FS")
	fs, err := Format(path)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	t.Cleanup(func() { fs.Close() })
	return fs
}

func TestFormatInstallsRoot(t *testing.T) {
	fs := mustFormat(t)

	mode, size, err := fs.GetAttr("/")
	if err != nil {
		t.Fatalf("GetAttr(/): %v", err)
	}
	if !(&Inode{Mode: mode}).IsDir() {
		t.Fatalf("root mode %#x is not a directory", mode)
	}
	if size != 0 {
		t.Fatalf("root size = %d, want 0", size)
	}

	names, err := fs.ReadDir("/")
	if err != nil {
		t.Fatalf("ReadDir(/): %v", err)
	}
	want := []string{".", ".."}
	if diff := pretty.Compare(want, names); diff != "" {
		t.Fatalf("ReadDir(/) mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateThenLookup(t *testing.T) {
	fs := mustFormat(t)

	if err := fs.Create("/hello.txt", 0o644); err != nil {
		t.Fatalf("Create: %v", err)
	}

	mode, size, err := fs.GetAttr("/hello.txt")
	if err != nil {
		t.Fatalf("GetAttr: %v", err)
	}
	if (&Inode{Mode: mode}).IsDir() {
		t.Fatalf("new file reports as directory")
	}
	if size != 0 {
		t.Fatalf("new file size = %d, want 0", size)
	}

	names, err := fs.ReadDir("/")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	want := []string{".", "..", "hello.txt"}
	if diff := pretty.Compare(want, names); diff != "" {
		t.Fatalf("ReadDir(/) mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateDuplicateFails(t *testing.T) {
	fs := mustFormat(t)

	if err := fs.Create("/a", 0o644); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err := fs.Create("/a", 0o644)
	if !errors.Is(err, ErrExists) {
		t.Fatalf("Create duplicate: got %v, want ErrExists", err)
	}
}

func TestCreateMissingParentFails(t *testing.T) {
	fs := mustFormat(t)

	err := fs.Create("/missing/a", 0o644)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Create under missing parent: got %v, want ErrNotFound", err)
	}
}

func TestMkdirAndNest(t *testing.T) {
	fs := mustFormat(t)

	if err := fs.Mkdir("/sub", 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := fs.Create("/sub/file", 0o644); err != nil {
		t.Fatalf("Create in subdir: %v", err)
	}

	names, err := fs.ReadDir("/sub")
	if err != nil {
		t.Fatalf("ReadDir(/sub): %v", err)
	}
	want := []string{".", "..", "file"}
	if diff := pretty.Compare(want, names); diff != "" {
		t.Fatalf("ReadDir(/sub) mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	fs := mustFormat(t)

	if err := fs.Create("/f", 0o644); err != nil {
		t.Fatalf("Create: %v", err)
	}

	want := []byte("the quick brown fox jumps over the lazy dog, repeated a few times to span more than one block: the quick brown fox jumps over the lazy dog, the quick brown fox jumps over the lazy dog, the quick brown fox jumps over the lazy dog, the quick brown fox jumps over the lazy dog")
	n, err := fs.Write("/f", want, len(want), 0)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len(want) {
		t.Fatalf("Write returned %d, want %d", n, len(want))
	}

	_, size, err := fs.GetAttr("/f")
	if err != nil {
		t.Fatalf("GetAttr: %v", err)
	}
	if int(size) != len(want) {
		t.Fatalf("size = %d, want %d", size, len(want))
	}

	got := make([]byte, len(want))
	n, err = fs.Read("/f", got, len(got), 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != len(want) {
		t.Fatalf("Read returned %d, want %d", n, len(want))
	}
	if string(got) != string(want) {
		t.Fatalf("round-trip mismatch:\ngot  %q\nwant %q", got, want)
	}
}

func TestReadClampsToSize(t *testing.T) {
	fs := mustFormat(t)

	if err := fs.Create("/f", 0o644); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := fs.Write("/f", []byte("hi"), 2, 0); err != nil {
		t.Fatalf("Write: %v", err)
	}

	buf := make([]byte, 64)
	n, err := fs.Read("/f", buf, len(buf), 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 2 {
		t.Fatalf("Read returned %d, want 2 (clamped to file size)", n)
	}
	if string(buf[:n]) != "hi" {
		t.Fatalf("got %q, want %q", buf[:n], "hi")
	}
}

func TestWriteRejectsOffsetPastEnd(t *testing.T) {
	fs := mustFormat(t)

	if err := fs.Create("/f", 0o644); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := fs.Write("/f", []byte("x"), 1, 10)
	if !errors.Is(err, ErrBadOffset) {
		t.Fatalf("Write past end: got %v, want ErrBadOffset", err)
	}
}

func TestChmodIsPure(t *testing.T) {
	fs := mustFormat(t)

	if err := fs.Create("/f", 0o644); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := fs.Write("/f", []byte("data"), 4, 0); err != nil {
		t.Fatalf("Write: %v", err)
	}

	const newMode = modeRegular | 0o600
	if err := fs.Chmod("/f", newMode); err != nil {
		t.Fatalf("Chmod: %v", err)
	}

	mode, size, err := fs.GetAttr("/f")
	if err != nil {
		t.Fatalf("GetAttr: %v", err)
	}
	if mode != newMode {
		t.Fatalf("mode = %#x, want %#x", mode, newMode)
	}
	if size != 4 {
		t.Fatalf("size = %d, want 4 (chmod must not touch content)", size)
	}

	buf := make([]byte, 4)
	if _, err := fs.Read("/f", buf, len(buf), 0); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf) != "data" {
		t.Fatalf("content changed by chmod: got %q", buf)
	}
}

func TestDeviceExhaustionRejectsFurtherCreates(t *testing.T) {
	fs := mustFormat(t)

	// Every create spends a whole block on the new inode's record, while
	// the root's 9-byte entries fill a directory block only about every 28
	// files, so the free-space map runs dry after roughly 244 creates, long
	// before the root directory could fill its own index vector. ErrDirFull
	// is accepted as well: either is a bounded outcome of running the
	// device dry.
	created := 0
	var lastErr error
	for i := 0; i < MaxInodes; i++ {
		lastErr = fs.Create(fmt.Sprintf("/file%03d", i), 0o644)
		if lastErr != nil {
			break
		}
		created++
	}
	if lastErr == nil {
		t.Fatalf("expected exhaustion after creating %d entries, got none", created)
	}
	if !errors.Is(lastErr, ErrDirFull) && !errors.Is(lastErr, ErrNoSpace) {
		t.Fatalf("got %v, want ErrDirFull or ErrNoSpace", lastErr)
	}
}

func TestReopenPreservesState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "FS")
	fs, err := Format(path)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if err := fs.Create("/f", 0o644); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := fs.Write("/f", []byte("persisted"), 9, 0); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := fs.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer reopened.Close()

	buf := make([]byte, 9)
	if _, err := reopened.Read("/f", buf, len(buf), 0); err != nil {
		t.Fatalf("Read after reopen: %v", err)
	}
	if string(buf) != "persisted" {
		t.Fatalf("got %q, want %q", buf, "persisted")
	}
}
