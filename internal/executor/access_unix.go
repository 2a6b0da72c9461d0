//go:build unix

package executor

import "golang.org/x/sys/unix"

// unix_access_writable checks write permission for the effective user via
// faccessat's effective-ids mode, matching the "writable by the effective
// user" pre-flight step rather than the real uid.
func unix_access_writable(path string) bool {
	err := unix.Faccessat(unix.AT_FDCWD, path, unix.W_OK, unix.AT_EACCESS)
	return err == nil
}
