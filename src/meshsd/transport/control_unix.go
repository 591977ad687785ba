//go:build !windows

package transport

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// reuseAddrControl sets SO_REUSEADDR before bind, so that one socket per
// interface can share port 5353, and so that meshsd can coexist with
// another mDNS responder already bound to the port.
func reuseAddrControl(_, _ string, c syscall.RawConn) error {
	var sockErr error

	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}

	return sockErr
}
