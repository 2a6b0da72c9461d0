// Package walker performs parallel filesystem traversal of scheduled
// roots. It prunes `.sbh-protect`-marked directories and protected globs
// before descending, never follows symlinks, and tags each emitted entry
// with a directory role inferred from the nearest ancestor matching a
// known role pattern.
package walker

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/focusd/sbh/internal/model"
	"github.com/focusd/sbh/internal/sbherrors"
)

// ProtectMarkerFile, when present in a directory, prunes that entire
// subtree from the walk.
const ProtectMarkerFile = ".sbh-protect"

// roleMarkers maps a directory basename to the role it confers on itself
// and its descendants, checked against the nearest matching ancestor.
var roleMarkers = map[string]model.DirectoryRole{
	"tmp":          model.RoleTemp,
	"temp":         model.RoleTemp,
	".cache":       model.RoleDependencyCache,
	"cache":        model.RoleDependencyCache,
	"node_modules": model.RoleNodeModules,
	"dist":         model.RoleBuildOutput,
	"build":        model.RoleBuildOutput,
	"target":       model.RoleBuildOutput,
	"out":          model.RoleBuildOutput,
	".git":         model.RoleSource,
	"src":          model.RoleSource,
}

// Options configures one walk.
type Options struct {
	Root           string
	ProtectedGlobs []string
	NamePatterns   []string // artifact-name globs matched against basename, e.g. "*.tmp"
	MaxDepth       int
	Parallelism    int
	CrossDevices   bool
	RootDeviceID   uint64 // 0 disables cross-device enforcement
}

// EmitFunc receives each non-pruned regular file discovered by the walk.
// Implementations must be safe for concurrent use from multiple workers.
type EmitFunc func(model.Candidate)

// Walk traverses Root according to Options, invoking emit for every
// regular file entry that survives pruning. Directories are parallelized
// across a bounded worker pool; Walk returns once every worker has
// finished or ctx is cancelled.
func Walk(ctx context.Context, opts Options, emit EmitFunc) error {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return sbherrors.Wrap(sbherrors.KindWalkerIO, "failed to resolve root", err)
	}

	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}
	sem := semaphore.NewWeighted(int64(parallelism))

	g, gctx := errgroup.WithContext(ctx)

	walkDir(gctx, g, sem, root, 0, model.RoleGeneric, opts, emit)

	return g.Wait()
}

// walkDir schedules the traversal of one directory. Subdirectories are
// dispatched onto the errgroup so siblings traverse concurrently, bounded
// by sem.
func walkDir(ctx context.Context, g *errgroup.Group, sem *semaphore.Weighted, dir string, depth int, parentRole model.DirectoryRole, opts Options, emit EmitFunc) {
	g.Go(func() error {
		if opts.MaxDepth > 0 && depth > opts.MaxDepth {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		entries, err := os.ReadDir(dir)
		sem.Release(1)
		if err != nil {
			// An unreadable directory (permission denied, race with
			// deletion) is skipped, not fatal to the walk.
			return nil
		}

		role := roleFor(filepath.Base(dir), parentRole)

		if hasProtectMarker(entries) {
			return nil
		}

		for _, e := range entries {
			fullPath := filepath.Join(dir, e.Name())

			if isProtectedGlob(fullPath, opts.ProtectedGlobs) {
				continue
			}

			if e.IsDir() {
				walkDir(ctx, g, sem, fullPath, depth+1, role, opts, emit)
				continue
			}

			// e.Type() comes from the OS-provided dirent, avoiding an extra
			// stat syscall for the common case (spec.md §4.5 performance
			// contract). Symlinks are reported via ModeSymlink and skipped
			// without following.
			if e.Type()&os.ModeSymlink != 0 {
				continue
			}
			if !e.Type().IsRegular() {
				continue
			}

			info, err := e.Info()
			if err != nil {
				continue
			}

			if !opts.CrossDevices && opts.RootDeviceID != 0 {
				if devID, ok := deviceID(info); ok && devID != opts.RootDeviceID {
					continue
				}
			}

			emit(model.Candidate{
				Path:      fullPath,
				Size:      info.Size(),
				Mtime:     info.ModTime(),
				Ctime:     changeTime(info),
				Role:      role,
				PatternID: matchPattern(e.Name(), opts.NamePatterns),
			})
		}
		return nil
	})
}

func hasProtectMarker(entries []os.DirEntry) bool {
	for _, e := range entries {
		if !e.IsDir() && e.Name() == ProtectMarkerFile {
			return true
		}
	}
	return false
}

func isProtectedGlob(path string, globs []string) bool {
	base := filepath.Base(path)
	for _, g := range globs {
		if ok, err := filepath.Match(g, base); err == nil && ok {
			return true
		}
		if ok, err := filepath.Match(g, path); err == nil && ok {
			return true
		}
		if strings.Contains(path, g) && strings.HasSuffix(g, string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func roleFor(base string, parentRole model.DirectoryRole) model.DirectoryRole {
	if role, ok := roleMarkers[base]; ok {
		return role
	}
	return parentRole
}

// matchPattern returns the first configured name-pattern glob matching
// base, or "" if none match (spec.md §3/§4.6 Name-pattern factor).
func matchPattern(base string, patterns []string) string {
	for _, p := range patterns {
		if ok, err := filepath.Match(p, base); err == nil && ok {
			return p
		}
	}
	return ""
}

// changeTime returns the file's mtime; the platform ctime is not read. The
// executor treats age-based vetoes against mtime, so this is advisory only.
func changeTime(info os.FileInfo) time.Time {
	return info.ModTime()
}
