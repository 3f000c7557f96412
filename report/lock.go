// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package report // import "go.opentelemetry.io/luaprof/report"

import (
	"io"

	"golang.org/x/sys/unix"
)

// fder is implemented by sinks backed by a file descriptor, like *os.File.
type fder interface {
	Fd() uintptr
}

// lockSink takes an exclusive advisory lock on the whole file behind w and
// waits until it is granted. It returns the function that releases the lock.
// Sinks without a file descriptor are not locked.
//
// fcntl locks are owned by the process, so they only keep reports of
// different processes apart; Reporter.mu serializes threads.
func lockSink(w io.Writer) (unlock func() error, err error) {
	f, ok := w.(fder)
	if !ok {
		return func() error { return nil }, nil
	}
	fd := int(f.Fd())

	lk := unix.Flock_t{
		Type:   unix.F_WRLCK,
		Whence: io.SeekStart,
	}
	for {
		err = unix.FcntlFlock(uintptr(fd), unix.F_SETLKW, &lk)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		return func() error { return nil }, err
	}

	return func() error {
		ulk := unix.Flock_t{
			Type:   unix.F_UNLCK,
			Whence: io.SeekStart,
		}
		return unix.FcntlFlock(uintptr(fd), unix.F_SETLK, &ulk)
	}, nil
}
