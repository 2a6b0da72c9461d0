//go:build unix

package walker

import (
	"os"
	"syscall"
)

// deviceID extracts the POSIX device id from a FileInfo's underlying
// syscall.Stat_t, used to enforce the cross-device walk policy without an
// extra stat call.
func deviceID(info os.FileInfo) (uint64, bool) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, false
	}
	return uint64(st.Dev), true
}
