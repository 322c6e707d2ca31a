// Package iox provides I/O helpers for resource cleanup.
package iox

import (
	"errors"
	"io"
	"net"
	"os"
)

// DiscardClose closes c and discards the error.
// Use in defer statements where close errors are unactionable:
//
//	defer iox.DiscardClose(f)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a cleanup function that closes c.
// Designed for t.Cleanup registration:
//
//	t.Cleanup(iox.CloseFunc(transport))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// DiscardErr calls fn and discards the returned error.
// Use for non-Close cleanup calls (e.g. Sync) where errors are unactionable:
//
//	defer iox.DiscardErr(logger.Sync)
func DiscardErr(fn func() error) { _ = fn() }

// CloseIgnoreClosed closes c, treating an already closed resource as success.
func CloseIgnoreClosed(c io.Closer) error {
	err := c.Close()
	if IsClosed(err) {
		return nil
	}
	return err
}

// IsClosed reports whether err signals use of a closed file, pipe or
// connection.
func IsClosed(err error) bool {
	return errors.Is(err, os.ErrClosed) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}
