// Copyright 2015 Google Inc. All Rights Reserved.

package fsfuse

import (
	"errors"
	"syscall"

	"github.com/jacobsa/bazilfuse"
	"github.com/jacobsa/fuse"

	fsim "github.com/xAlekos/FSIM"
)

// Errno values the jacobsa/fuse package doesn't predefine itself, built the
// same way its own ENOTEMPTY is: a bazilfuse.Errno wrapping a syscall
// number.
var (
	eexist = bazilfuse.Errno(syscall.EEXIST)
	enospc = bazilfuse.Errno(syscall.ENOSPC)
	einval = bazilfuse.Errno(syscall.EINVAL)
)

// errno translates an *fsim.Error into the fuse.Errno value the kernel
// expects back, falling back to EIO for anything it doesn't recognize.
func errno(err error) error {
	if err == nil {
		return nil
	}

	var fsErr *fsim.Error
	if !errors.As(err, &fsErr) {
		return fuse.EIO
	}

	switch fsErr.Kind {
	case fsim.KindNotFound:
		return fuse.ENOENT
	case fsim.KindExists:
		return eexist
	case fsim.KindDirFull, fsim.KindNoSpace:
		return enospc
	case fsim.KindBadOffset:
		return einval
	default:
		return fuse.EIO
	}
}
