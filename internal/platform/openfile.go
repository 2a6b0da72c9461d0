package platform

import "time"

// OpenFileGraceWindow bounds how recently a file must have been modified
// before an unsupported open-file probe is allowed to veto it on suspicion
// alone (spec.md §4.1: "assume open if uncertain" applies only just after
// a write, not indefinitely).
const OpenFileGraceWindow = 10 * time.Second

// IsLikelyOpen reports whether path should be treated as open by a running
// process. When the platform can enumerate open file descriptors the result
// is authoritative. When it cannot, the function falls back to a
// conservative heuristic: only files modified within OpenFileGraceWindow are
// treated as open, so old, untouched candidates are never vetoed on
// suspicion alone.
func IsLikelyOpen(path string, mtime time.Time, now time.Time) bool {
	found, supported := openFileCandidates(path)
	if supported {
		return found
	}
	return now.Sub(mtime) < OpenFileGraceWindow
}
