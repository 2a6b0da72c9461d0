//go:build linux

package platform

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/focusd/sbh/internal/model"
	"github.com/focusd/sbh/internal/sbherrors"
)

// networkFsTypes and overlayFsTypes are excluded from ListMounts unless the
// caller opts in (config.Scanner.CrossDevices does not affect this — it
// governs walker behavior, not mount discovery).
var networkFsTypes = map[string]bool{
	"nfs": true, "nfs4": true, "cifs": true, "smbfs": true, "fuse.sshfs": true, "9p": true,
}

var overlayFsTypes = map[string]bool{
	"overlay": true, "overlayfs": true, "aufs": true,
}

var ramBackedFsTypes = map[string]bool{
	"tmpfs": true, "ramfs": true,
}

type linuxProbe struct{}

func newOSProbe() Probe {
	return &linuxProbe{}
}

type procMount struct {
	device string
	path   string
	fsType string
}

func readProcMounts() ([]procMount, error) {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return nil, sbherrors.Wrap(sbherrors.KindMountParse, "failed to open /proc/mounts", err)
	}
	defer f.Close()

	var mounts []procMount
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 {
			continue
		}
		mounts = append(mounts, procMount{device: fields[0], path: fields[1], fsType: fields[2]})
	}
	if err := sc.Err(); err != nil {
		return nil, sbherrors.Wrap(sbherrors.KindMountParse, "failed to scan /proc/mounts", err)
	}
	return mounts, nil
}

func (p *linuxProbe) ListMounts() ([]model.Mount, error) {
	raw, err := readProcMounts()
	if err != nil {
		return nil, err
	}

	var out []model.Mount
	for _, m := range raw {
		if networkFsTypes[m.fsType] || overlayFsTypes[m.fsType] {
			continue
		}

		total, free, statErr := p.Sample(m.path)
		if statErr != nil {
			// A single unreadable mount is skipped, never reported healthy.
			continue
		}
		if total == 0 {
			continue // pseudo filesystems (proc, sysfs, cgroup) report zero capacity
		}

		ramBacked := ramBackedFsTypes[m.fsType]
		kind, bufferPct, interval, _, special := classifySpecial(m.path, m.fsType, ramBacked)

		out = append(out, model.Mount{
			ID:           MountID(m.device, m.path),
			Device:       m.device,
			Path:         m.path,
			TotalBytes:   total,
			FreeBytes:    free,
			Special:      special,
			SpecialKind:  kind,
			BufferPct:    bufferPct,
			PollInterval: interval,
		})
	}
	return out, nil
}

func (p *linuxProbe) Sample(mountPath string) (total, free uint64, err error) {
	var stat unix.Statfs_t
	if statErr := unix.Statfs(mountPath, &stat); statErr != nil {
		return 0, 0, sbherrors.FilesystemStatsError(mountPath, statErr)
	}
	total = uint64(stat.Blocks) * uint64(stat.Bsize)
	free = uint64(stat.Bavail) * uint64(stat.Bsize)
	return total, free, nil
}

func (p *linuxProbe) DetectSpecialLocations(customPaths []string) ([]SpecialLocation, error) {
	raw, err := readProcMounts()
	if err != nil {
		return nil, err
	}

	var out []SpecialLocation
	seen := map[string]bool{}
	for _, m := range raw {
		ramBacked := ramBackedFsTypes[m.fsType]
		kind, bufferPct, interval, priority, special := classifySpecial(m.path, m.fsType, ramBacked)
		if !special {
			continue
		}
		if seen[m.path] {
			continue
		}
		seen[m.path] = true
		out = append(out, SpecialLocation{
			MountID:      MountID(m.device, m.path),
			Path:         m.path,
			Kind:         kind,
			BufferPct:    bufferPct,
			ScanInterval: interval,
			Priority:     priority,
		})
	}

	for _, cp := range customPaths {
		if seen[cp] {
			continue
		}
		seen[cp] = true
		out = append(out, SpecialLocation{
			MountID:      MountID("custom", cp),
			Path:         cp,
			Kind:         "custom",
			BufferPct:    15,
			ScanInterval: 5 * time.Second,
			Priority:     140,
		})
	}

	if !seen["/tmp"] {
		out = append(out, SpecialLocation{
			MountID:      MountID("tmpfs", "/tmp"),
			Path:         "/tmp",
			Kind:         "usertmp",
			BufferPct:    15,
			ScanInterval: 5 * time.Second,
			Priority:     160,
		})
	}

	return out, nil
}

func (p *linuxProbe) MemoryInfo() (totalRAM, availableRAM, swapTotal, swapFree uint64, err error) {
	return memoryInfoFromGopsutil()
}

// openFileCandidates lists PIDs with the given path open, via /proc/*/fd
// symlink resolution, per spec.md §4.1's probabilistic open-file veto.
func openFileCandidates(path string) (found bool, supported bool) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return false, false
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, convErr := strconv.Atoi(e.Name()); convErr != nil {
			continue
		}
		fdDir := "/proc/" + e.Name() + "/fd"
		fds, err := os.ReadDir(fdDir)
		if err != nil {
			continue // process exited or inaccessible; not evidence either way
		}
		for _, fd := range fds {
			target, err := os.Readlink(fdDir + "/" + fd.Name())
			if err != nil {
				continue
			}
			if target == path {
				return true, true
			}
		}
	}
	return false, true
}
