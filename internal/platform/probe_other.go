//go:build !linux

package platform

import (
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/focusd/sbh/internal/model"
	"github.com/focusd/sbh/internal/sbherrors"
)

// bsdProbe implements Probe for Darwin/BSD targets via gopsutil/v3/disk,
// which shells out to getmntinfo(3) under the hood — the second of the two
// platform implementations spec.md §9 requires.
type bsdProbe struct{}

func newOSProbe() Probe {
	return &bsdProbe{}
}

var bsdNetworkFsTypes = map[string]bool{
	"nfs": true, "smbfs": true, "afpfs": true, "webdav": true,
}

func (p *bsdProbe) ListMounts() ([]model.Mount, error) {
	parts, err := disk.Partitions(false)
	if err != nil {
		return nil, sbherrors.Wrap(sbherrors.KindMountParse, "getmntinfo failed", err)
	}

	var out []model.Mount
	for _, part := range parts {
		if bsdNetworkFsTypes[part.Fstype] {
			continue
		}
		usage, usageErr := disk.Usage(part.Mountpoint)
		if usageErr != nil {
			continue // skip unreadable mount rather than report it healthy
		}
		if usage.Total == 0 {
			continue
		}

		ramBacked := part.Fstype == "tmpfs" || part.Fstype == "ramfs" || part.Device == "devfs"
		kind, bufferPct, interval, _, special := classifySpecial(part.Mountpoint, part.Fstype, ramBacked)

		out = append(out, model.Mount{
			ID:           MountID(part.Device, part.Mountpoint),
			Device:       part.Device,
			Path:         part.Mountpoint,
			TotalBytes:   usage.Total,
			FreeBytes:    usage.Free,
			Special:      special,
			SpecialKind:  kind,
			BufferPct:    bufferPct,
			PollInterval: interval,
		})
	}
	return out, nil
}

func (p *bsdProbe) Sample(mountPath string) (total, free uint64, err error) {
	usage, usageErr := disk.Usage(mountPath)
	if usageErr != nil {
		return 0, 0, sbherrors.FilesystemStatsError(mountPath, usageErr)
	}
	return usage.Total, usage.Free, nil
}

func (p *bsdProbe) DetectSpecialLocations(customPaths []string) ([]SpecialLocation, error) {
	parts, err := disk.Partitions(false)
	if err != nil {
		return nil, sbherrors.Wrap(sbherrors.KindMountParse, "getmntinfo failed", err)
	}

	var out []SpecialLocation
	seen := map[string]bool{}
	for _, part := range parts {
		ramBacked := part.Fstype == "tmpfs" || part.Fstype == "ramfs" || part.Device == "devfs"
		kind, bufferPct, interval, priority, special := classifySpecial(part.Mountpoint, part.Fstype, ramBacked)
		if !special || seen[part.Mountpoint] {
			continue
		}
		seen[part.Mountpoint] = true
		out = append(out, SpecialLocation{
			MountID:      MountID(part.Device, part.Mountpoint),
			Path:         part.Mountpoint,
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
		out = append(out, SpecialLocation{MountID: MountID("custom", cp), Path: cp, Kind: "custom", BufferPct: 15, Priority: 140})
	}

	return out, nil
}

func (p *bsdProbe) MemoryInfo() (totalRAM, availableRAM, swapTotal, swapFree uint64, err error) {
	return memoryInfoFromGopsutil()
}

// openFileCandidates has no cheap /proc/*/fd equivalent on BSD/Darwin within
// this probe; the caller falls back to the "assume open if uncertain within
// a grace window" rule per spec.md §4.1.
func openFileCandidates(path string) (found bool, supported bool) {
	return false, false
}
