//go:build windows

package transport

import "syscall"

// reuseAddrControl is a no-op on Windows; binding a second socket to the
// same port there needs SO_REUSEADDR semantics the platform does not offer
// through this hook in the same way, so per-interface sockets on Windows
// fall back to the OS's default bind behavior.
func reuseAddrControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
