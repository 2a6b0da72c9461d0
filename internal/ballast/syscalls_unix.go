//go:build unix

package ballast

import (
	"os"

	"golang.org/x/sys/unix"
)

func flock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}

func funlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}

// reserveSpace uses fallocate to reserve size bytes at offset without
// writing, which is instant on ext4/xfs. It returns an error on
// filesystems that don't support it (notably some copy-on-write
// filesystems), letting the caller fall back to a random-data write.
func reserveSpace(f *os.File, offset, size int64) error {
	if size <= 0 {
		return nil
	}
	return unix.Fallocate(int(f.Fd()), 0, offset, size)
}
