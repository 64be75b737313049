//go:build linux

package main

import (
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"
)

// raiseOpenFileLimit lifts the soft open file limit to the hard limit. Each concurrent
// transfer holds its payload open plus up to MaxConcurrency connections.
func raiseOpenFileLimit() error {
	rLimit := unix.Rlimit{}
	err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		return fmt.Errorf("unable to get rlimit: %w", err)
	}
	if rLimit.Cur >= rLimit.Max {
		return nil
	}

	prev := rLimit.Cur
	rLimit.Cur = rLimit.Max
	err = unix.Setrlimit(unix.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		return fmt.Errorf("unable to set open file limit: %w", err)
	}
	slog.Debug("raised open file limit", slog.Uint64("from", prev), slog.Uint64("to", rLimit.Cur))
	return nil
}
