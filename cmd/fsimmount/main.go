// Copyright 2015 Google Inc. All Rights Reserved.

// Command fsimmount mounts an fsim filesystem image, backed by a fixed file
// named FS in the current directory, at a given mount point.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/user"
	"strconv"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/timeutil"
	"github.com/spf13/cobra"

	fsim "github.com/xAlekos/FSIM"
	"github.com/xAlekos/FSIM/fsfuse"
)

const backingFileName = "FS"

var (
	debug      bool
	formatFlag bool
)

func newLogger() *log.Logger {
	var w io.Writer = io.Discard
	if debug {
		w = os.Stderr
	}
	return log.New(w, "fsimmount: ", log.Ldate|log.Ltime|log.Lmicroseconds)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fsimmount <mount-point>",
		Short: "Mount the fsim filesystem image in the working directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0])
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "log fsimmount's own progress messages to stderr")
	cmd.Flags().BoolVar(&formatFlag, "format", false, "zero and reinitialize the backing file before mounting")
	return cmd
}

func run(mountPoint string) error {
	logger := newLogger()

	var fs *fsim.FS
	var err error
	if formatFlag {
		logger.Printf("formatting %s", backingFileName)
		fs, err = fsim.Format(backingFileName)
	} else {
		fs, err = fsim.New(backingFileName)
	}
	if err != nil {
		return fmt.Errorf("opening %s: %w", backingFileName, err)
	}
	defer fs.Close()

	uid, gid, err := currentOwner()
	if err != nil {
		return err
	}
	server := fsfuse.MountServer(fs, timeutil.RealClock(), uid, gid)

	cfg := &fuse.MountConfig{}

	logger.Printf("mounting at %s", mountPoint)
	mfs, err := fuse.Mount(mountPoint, server, cfg)
	if err != nil {
		return fmt.Errorf("Mount: %w", err)
	}

	if err := mfs.Join(context.Background()); err != nil {
		return fmt.Errorf("Join: %w", err)
	}
	return nil
}

func currentOwner() (uid, gid uint32, err error) {
	u, err := user.Current()
	if err != nil {
		return 0, 0, err
	}
	uid64, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return 0, 0, err
	}
	gid64, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return 0, 0, err
	}
	return uint32(uid64), uint32(gid64), nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}
