// Package platform implements the POSIX filesystem probe: per-mount
// capacity sampling, special-location discovery, and the best-effort
// open-file veto. It is kept behind a single interface with two
// implementations — Linux (golang.org/x/sys/unix.Statfs) and BSD/macOS
// (gopsutil/v3/disk, which shells out to getmntinfo under the hood) — per
// spec.md §9's portability note. The ballast and executor syscall files are
// built only for unix targets, so the module does not build for Windows;
// config validation performs no GOOS check.
package platform

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/focusd/sbh/internal/model"
	"github.com/focusd/sbh/internal/sbherrors"
)

// SpecialLocation is a tmpfs/ramfs/swap-adjacent mount with its own tighter
// thresholds and poll interval, per spec.md §3/§4.1. Grounded on
// original_source/src/monitor/special_locations.rs's SpecialLocation.
type SpecialLocation struct {
	MountID      string
	Path         string
	Kind         string // "devshm", "ramfs", "tmpfs", "usertmp", "custom"
	BufferPct    float64
	ScanInterval time.Duration
	Priority     int
}

// Probe is the platform abstraction every OS implementation satisfies.
type Probe interface {
	// ListMounts returns the current set of mount descriptors filtered to
	// writable, non-network, non-overlay file systems unless configured
	// otherwise.
	ListMounts() ([]model.Mount, error)

	// Sample returns current total/free bytes for one mount. An error maps
	// to sbherrors.KindFilesystemStats; the mount is skipped for this tick,
	// never silently reported healthy.
	Sample(mountPath string) (total, free uint64, err error)

	// DetectSpecialLocations enumerates /dev/shm, tmpfs/ramfs mounts, /tmp
	// and the custom paths, each with a priority weight and override
	// thresholds. The swap device is not enumerated.
	DetectSpecialLocations(customPaths []string) ([]SpecialLocation, error)

	// MemoryInfo reports total/available RAM and swap. Special-location
	// discovery and ballast sizing do not call it.
	MemoryInfo() (totalRAM, availableRAM, swapTotal, swapFree uint64, err error)
}

// MountID derives a stable identity from a device id and mount path so the
// same physical mount is recognized across polls even if ordering changes.
func MountID(device, path string) string {
	sum := md5.Sum([]byte(device + "\x00" + path))
	return hex.EncodeToString(sum[:])[:16]
}

// classifySpecial assigns buffer/interval/priority per
// original_source/src/monitor/special_locations.rs's table.
func classifySpecial(path, fsType string, ramBacked bool) (kind string, bufferPct float64, interval time.Duration, priority int, special bool) {
	switch {
	case path == "/dev/shm":
		return "devshm", 20, 3 * time.Second, 255, true
	case ramBacked && fsType == "ramfs":
		return "ramfs", 18, 4 * time.Second, 220, true
	case ramBacked:
		return "tmpfs", 15, 5 * time.Second, 200, true
	case path == "/tmp":
		return "usertmp", 15, 5 * time.Second, 160, true
	default:
		return "", 0, 0, 0, false
	}
}

// memoryInfoFromGopsutil is shared by both OS implementations.
func memoryInfoFromGopsutil() (totalRAM, availableRAM, swapTotal, swapFree uint64, err error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, 0, 0, sbherrors.Wrap(sbherrors.KindFilesystemStats, "virtual memory stats failed", err)
	}
	sw, err := mem.SwapMemory()
	if err != nil {
		return vm.Total, vm.Available, 0, 0, nil // swap is best-effort; RAM figures still valid
	}
	return vm.Total, vm.Available, sw.Total, sw.Free, nil
}

// NewProbe returns the platform implementation for the running GOOS, never
// nil. It performs no platform check of its own.
func NewProbe() Probe {
	return newOSProbe()
}

func unsupportedPlatformError(goos string) error {
	return sbherrors.New(sbherrors.KindUnsupportedPlat, fmt.Sprintf("GOOS %q is not a supported POSIX target", goos))
}
