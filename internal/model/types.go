// Package model defines the data types shared across every SBH worker and
// the single owned structure (SharedModel) they read and write through one
// reader-writer lock, constructed once in main and passed explicitly to
// each worker (no process-wide singletons — see spec.md §9).
package model

import "time"

// PressureLevel is a discrete severity tier, totally ordered
// Green > Yellow > Orange > Red > Critical (invariant #1).
type PressureLevel int

const (
	Green PressureLevel = iota
	Yellow
	Orange
	Red
	Critical
)

func (l PressureLevel) String() string {
	switch l {
	case Green:
		return "Green"
	case Yellow:
		return "Yellow"
	case Orange:
		return "Orange"
	case Red:
		return "Red"
	case Critical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// Mount is a stable mount identity plus the capacity/pressure data sampled
// for it each tick.
type Mount struct {
	ID             string // device id + mount path, stable across polls
	Device         string
	Path           string
	TotalBytes     uint64
	FreeBytes      uint64
	Level          PressureLevel
	Special        bool
	SpecialKind    string // "", "tmpfs", "devshm", "ramfs", "usertmp", "custom"
	BufferPct      float64
	PollInterval   time.Duration
}

// FreePct returns the fraction of the mount that is free, in [0,100].
func (m Mount) FreePct() float64 {
	if m.TotalBytes == 0 {
		return 0
	}
	return float64(m.FreeBytes) / float64(m.TotalBytes) * 100
}

// PressureSample is consumed only by the forecaster; never persisted.
type PressureSample struct {
	MountID   string
	FreeBytes uint64
	Timestamp time.Time
}

// Trend classifies the direction of a mount's forecast.
type Trend int

const (
	Stable Trend = iota
	Improving
	Degrading
	Accelerating
)

func (t Trend) String() string {
	switch t {
	case Improving:
		return "Improving"
	case Degrading:
		return "Degrading"
	case Accelerating:
		return "Accelerating"
	default:
		return "Stable"
	}
}

// DangerClass is the discrete class a Projection falls into.
type DangerClass int

const (
	DangerNone DangerClass = iota
	DangerWarning
	DangerAction
	DangerImminent
	DangerCritical
)

func (d DangerClass) String() string {
	switch d {
	case DangerWarning:
		return "Warning"
	case DangerAction:
		return "Action"
	case DangerImminent:
		return "Imminent"
	case DangerCritical:
		return "Critical"
	default:
		return "None"
	}
}

// Projection is produced each tick from forecaster state plus thresholds.
type Projection struct {
	MountID        string
	SecondsToExhaustion float64 // math.Inf(1) if rate >= 0
	DangerClass    DangerClass
	Confidence     float64
	Actionable     bool // false when Confidence < MinConfidence
}

// Action is the discrete response the PID controller selects.
type Action int

const (
	ActionObserve Action = iota
	ActionSoftScan
	ActionAggressiveScan
	ActionReleaseBallast
	ActionEmergency
)

func (a Action) String() string {
	switch a {
	case ActionSoftScan:
		return "SoftScan"
	case ActionAggressiveScan:
		return "AggressiveScan"
	case ActionReleaseBallast:
		return "ReleaseBallast"
	case ActionEmergency:
		return "Emergency"
	default:
		return "Observe"
	}
}

// ControlDecision is the PID controller's per-tick output for one mount.
type ControlDecision struct {
	Timestamp  time.Time
	MountID    string
	Level      PressureLevel
	Urgency    float64
	Action     Action
	BatchSize  int
	ReleaseN   int // ballast files to release, when Action implies a release
}

// DirectoryRole classifies a candidate by its nearest role-matching ancestor.
type DirectoryRole int

const (
	RoleGeneric DirectoryRole = iota
	RoleTemp
	RoleBuildOutput
	RoleDependencyCache
	RoleNodeModules
	RoleSource
)

func (r DirectoryRole) String() string {
	switch r {
	case RoleTemp:
		return "Temp"
	case RoleBuildOutput:
		return "BuildOutput"
	case RoleDependencyCache:
		return "DependencyCache"
	case RoleNodeModules:
		return "NodeModules"
	case RoleSource:
		return "Source"
	default:
		return "Generic"
	}
}

// VetoReason enumerates why a candidate can never be deleted regardless of
// score (invariant #3).
type VetoReason string

const (
	VetoNone            VetoReason = ""
	VetoProtectMarker    VetoReason = "protect_marker"
	VetoProtectedGlob    VetoReason = "protected_glob"
	VetoTooYoung         VetoReason = "too_young"
	VetoUnderVCS         VetoReason = "under_vcs"
	VetoParentUnwritable VetoReason = "parent_unwritable"
	VetoOpenFile         VetoReason = "open_file"
	VetoNotRegularFile   VetoReason = "not_regular_file"
	VetoCooldown         VetoReason = "cooldown"
)

// ScoreFactors is the five-factor decomposition behind a Candidate's score.
type ScoreFactors struct {
	Location  float64
	Pattern   float64
	Age       float64
	Size      float64
	Structure float64
}

// Candidate is a single file discovered by the walker and evaluated by the
// scoring engine.
type Candidate struct {
	Path        string
	Size        int64
	Mtime       time.Time
	Ctime       time.Time
	Role        DirectoryRole
	PatternID   string // empty if no name-pattern match
	Score       float64
	Factors     ScoreFactors
	Vetoes      []VetoReason
}

// HasVeto reports whether the candidate carries any hard veto.
func (c Candidate) HasVeto() bool {
	return len(c.Vetoes) > 0
}

// BallastFileState is a ballast file's position in its state machine.
type BallastFileState int

const (
	BallastAbsent BallastFileState = iota
	BallastProvisioning
	BallastPresent
	BallastReleasing
	BallastCorrupt
)

func (s BallastFileState) String() string {
	switch s {
	case BallastProvisioning:
		return "Provisioning"
	case BallastPresent:
		return "Present"
	case BallastReleasing:
		return "Releasing"
	case BallastCorrupt:
		return "Corrupt"
	default:
		return "Absent"
	}
}

// BallastFile is one sacrificial file in a pool.
type BallastFile struct {
	Path          string
	IntendedSize  int64
	ActualSize    int64
	PoolID        uint64
	Index         uint32
	State         BallastFileState
	LastVerified  time.Time
}

// BallastPool is the set of ballast files provisioned on one mount.
type BallastPool struct {
	MountID       string
	IntendedCount int
	Files         []BallastFile
}

// RepeatDeletionRecord tracks cooldown state for a (directory, pattern)
// fingerprint that has been deleted from repeatedly.
type RepeatDeletionRecord struct {
	Fingerprint      string
	LastDeletedAt    time.Time
	ConsecutiveCount int
	CooldownSecs     int
}

// EventKind tags the variant of an ActivityEvent.
type EventKind string

const (
	EventPressureSample   EventKind = "PressureSample"
	EventForecastEmitted  EventKind = "ForecastEmitted"
	EventDecisionMade     EventKind = "DecisionMade"
	EventScanStarted      EventKind = "ScanStarted"
	EventScanFinished     EventKind = "ScanFinished"
	EventCandidateScored  EventKind = "CandidateScored"
	EventDeleteAttempted  EventKind = "DeleteAttempted"
	EventDeleteSucceeded  EventKind = "DeleteSucceeded"
	EventDeleteVetoed     EventKind = "DeleteVetoed"
	EventBallastReleased  EventKind = "BallastReleased"
	EventBallastReplenished EventKind = "BallastReplenished"
	EventError            EventKind = "Error"
	EventHeartbeat         EventKind = "Heartbeat"
	EventCircuitOpened     EventKind = "CircuitOpened"
	EventCircuitClosed     EventKind = "CircuitClosed"
	EventLoggerDegraded    EventKind = "LoggerDegraded"
	EventConfigReloaded    EventKind = "ConfigReloaded"
	EventScanTruncated     EventKind = "ScanTruncated"
)

// ActivityEvent is the tagged union every actor writes to the logger queue.
// Sequence ids are unique and monotonic per process run.
type ActivityEvent struct {
	Seq       uint64
	Timestamp time.Time
	Kind      EventKind
	MountID   string
	Path      string
	Bytes     int64
	Fields    map[string]any
}

// DaemonInfo identifies this process run for the published state snapshot.
type DaemonInfo struct {
	PID          int
	Version      string
	RunID        string
	StartedAt    time.Time
	LastHeartbeat map[string]time.Time
}

// Counters are the rolling operational counters in the published state.
type Counters struct {
	Scans        uint64
	Deletions    uint64
	BytesFreed   uint64
	Errors       uint64
	DroppedEvents uint64
	SqliteFailures uint64
}

// ScanSummary describes the most recently completed scan.
type ScanSummary struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Candidates int
	Deleted    int
}

// MountBallastInventory is the per-mount ballast counts in published state.
type MountBallastInventory struct {
	Present    int
	Released   int
	TotalBytes int64
}

// StateSnapshot is the full external read contract written to state.json.
type StateSnapshot struct {
	Daemon   DaemonInfo
	Pressure map[string]Mount
	Rates    map[string]float64 // bytes/sec per mount, signed
	Projections map[string]Projection
	Ballast  map[string]MountBallastInventory
	Counters Counters
	LastScan ScanSummary
}
