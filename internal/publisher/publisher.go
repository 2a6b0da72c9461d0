// Package publisher periodically snapshots the shared model to state.json
// via an atomic temp-file-then-rename write, per spec.md §4.11. The
// snapshot schema is a stable external read contract (spec.md §6).
package publisher

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/focusd/sbh/internal/model"
)

// StaleAfter is the mtime age past which a reader must treat state.json as
// "daemon not running" per spec.md §4.11.
const StaleAfter = 90 * time.Second

// Snapshot is the JSON shape written to disk: model.StateSnapshot plus the
// SPEC_FULL supplement fields (run id, humanized summary) external readers
// and the CLI's `status` command consume.
type Snapshot struct {
	model.StateSnapshot
	RunID   string `json:"run_id"`
	Summary string `json:"summary"`
}

// Publisher owns the run identity and writes snapshots on demand.
type Publisher struct {
	path   string
	runID  string
	logger *zap.Logger
}

// New constructs a Publisher writing to filepath.Join(dataDir, "state.json"),
// tagging every snapshot with a fresh RunID for this process's lifetime.
func New(dataDir string, logger *zap.Logger) *Publisher {
	return &Publisher{
		path:   filepath.Join(dataDir, "state.json"),
		runID:  uuid.NewString(),
		logger: logger,
	}
}

// RunID returns this process run's identifier.
func (p *Publisher) RunID() string { return p.runID }

// Publish writes snap to state.json.tmp and renames it over state.json
// with mode 0600, so readers never observe a partially-written file.
func (p *Publisher) Publish(state model.StateSnapshot) error {
	state.Daemon.RunID = p.runID

	snap := Snapshot{
		StateSnapshot: state,
		RunID:         p.runID,
		Summary:       summarize(state),
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := p.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, p.path); err != nil {
		return err
	}
	return nil
}

func summarize(state model.StateSnapshot) string {
	var worstFree uint64
	haveMount := false
	for _, m := range state.Pressure {
		if !haveMount || m.FreeBytes < worstFree {
			worstFree = m.FreeBytes
			haveMount = true
		}
	}

	if !haveMount {
		return "no mounts observed"
	}
	return humanize.Bytes(worstFree) + " free on tightest mount, " +
		humanize.Comma(int64(state.Counters.Deletions)) + " deletions, " +
		humanize.Bytes(state.Counters.BytesFreed) + " reclaimed"
}

// IsStale reports whether a state.json at path should be treated as
// "daemon not running" based on its mtime.
func IsStale(path string, now time.Time) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return true, err
	}
	return now.Sub(info.ModTime()) > StaleAfter, nil
}
