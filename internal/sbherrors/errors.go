// Package sbherrors defines the closed tagged-sum error type shared across
// the daemon, with stable SBH-NNNN codes in three namespaces: 1xxx config,
// 2xxx runtime, 3xxx system.
package sbherrors

import (
	"errors"
	"fmt"
)

// Kind identifies which variant of the tagged sum an Error carries.
type Kind string

const (
	KindInvalidConfig     Kind = "invalid_config"
	KindMissingConfig     Kind = "missing_config"
	KindConfigParse       Kind = "config_parse"
	KindUnsupportedPlat   Kind = "unsupported_platform"
	KindFilesystemStats   Kind = "filesystem_stats"
	KindMountParse        Kind = "mount_parse"
	KindSafetyVeto        Kind = "safety_veto"
	KindSerialization     Kind = "serialization"
	KindSqlite            Kind = "sqlite"
	KindPermission        Kind = "permission"
	KindIo                Kind = "io"
	KindChannelClosed     Kind = "channel_closed"
	KindWalkerIO          Kind = "walker_io"
	KindCircuitOpen       Kind = "circuit_open"
	KindDeleteFailed      Kind = "delete_failed"
	KindBallast           Kind = "ballast"
	KindRuntime           Kind = "runtime"
)

var codes = map[Kind]string{
	KindInvalidConfig:   "SBH-1001",
	KindMissingConfig:   "SBH-1002",
	KindConfigParse:     "SBH-1003",
	KindUnsupportedPlat: "SBH-1101",
	KindFilesystemStats: "SBH-2001",
	KindMountParse:      "SBH-2002",
	KindSafetyVeto:      "SBH-2003",
	KindSerialization:   "SBH-2101",
	KindSqlite:          "SBH-2102",
	KindPermission:      "SBH-3001",
	KindIo:               "SBH-3002",
	KindChannelClosed:   "SBH-3003",
	KindWalkerIO:        "SBH-3004",
	KindCircuitOpen:     "SBH-3005",
	KindDeleteFailed:    "SBH-3006",
	KindBallast:         "SBH-3007",
	KindRuntime:         "SBH-3900",
}

// retryable mirrors original_source's SbhError::is_retryable: transient
// errors the caller may reasonably retry after a backoff.
var retryable = map[Kind]bool{
	KindIo:              true,
	KindChannelClosed:   true,
	KindFilesystemStats: true,
	KindSqlite:          true,
	KindRuntime:         true,
	KindCircuitOpen:     true,
	KindWalkerIO:        true,
}

// Error is the tagged sum over every error variant SBH produces. Context
// fields are optional and only the ones relevant to Kind are populated.
type Error struct {
	Kind    Kind
	Path    string
	Mount   string
	Context string
	Details string
	Err     error // wrapped cause, if any
}

func (e *Error) Error() string {
	code := e.Code()
	switch e.Kind {
	case KindInvalidConfig:
		return fmt.Sprintf("[%s] invalid configuration: %s", code, e.Details)
	case KindMissingConfig:
		return fmt.Sprintf("[%s] missing configuration file: %s", code, e.Path)
	case KindConfigParse:
		return fmt.Sprintf("[%s] configuration parse failure in %s: %s", code, e.Context, e.Details)
	case KindUnsupportedPlat:
		return fmt.Sprintf("[%s] unsupported platform: %s", code, e.Details)
	case KindFilesystemStats:
		return fmt.Sprintf("[%s] filesystem stats failure for %s: %s", code, e.Path, e.Details)
	case KindMountParse:
		return fmt.Sprintf("[%s] mount table parse failure: %s", code, e.Details)
	case KindSafetyVeto:
		return fmt.Sprintf("[%s] safety veto for %s: %s", code, e.Path, e.Details)
	case KindSerialization:
		return fmt.Sprintf("[%s] serialization failure in %s: %s", code, e.Context, e.Details)
	case KindSqlite:
		return fmt.Sprintf("[%s] sqlite failure in %s: %s", code, e.Context, e.Details)
	case KindPermission:
		return fmt.Sprintf("[%s] permission denied for %s", code, e.Path)
	case KindIo:
		return fmt.Sprintf("[%s] io failure at %s: %s", code, e.Path, e.Details)
	case KindChannelClosed:
		return fmt.Sprintf("[%s] channel closed in component %s", code, e.Context)
	case KindWalkerIO:
		return fmt.Sprintf("[%s] walker io failure: %s", code, e.Details)
	case KindCircuitOpen:
		return fmt.Sprintf("[%s] executor circuit open: %s", code, e.Details)
	case KindDeleteFailed:
		return fmt.Sprintf("[%s] delete failed for %s: %s", code, e.Path, e.Details)
	case KindBallast:
		return fmt.Sprintf("[%s] ballast failure: %s", code, e.Details)
	default:
		return fmt.Sprintf("[%s] runtime failure: %s", code, e.Details)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code returns the stable machine-parseable SBH-NNNN code for this error.
func (e *Error) Code() string {
	if c, ok := codes[e.Kind]; ok {
		return c
	}
	return codes[KindRuntime]
}

// IsRetryable reports whether the component may reasonably retry the
// operation that produced this error.
func (e *Error) IsRetryable() bool {
	return retryable[e.Kind]
}

// Is supports errors.Is comparisons against a Kind-only sentinel built with
// New(kind, "").
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an Error with no wrapped cause.
func New(kind Kind, details string) *Error {
	return &Error{Kind: kind, Details: details}
}

// Wrap constructs an Error that wraps an underlying cause.
func Wrap(kind Kind, details string, cause error) *Error {
	return &Error{Kind: kind, Details: details, Err: cause}
}

// IOError builds an Io-kind error carrying the failing path.
func IOError(path string, cause error) *Error {
	return &Error{Kind: KindIo, Path: path, Details: cause.Error(), Err: cause}
}

// FilesystemStatsError builds a FilesystemStats-kind error for a mount probe.
func FilesystemStatsError(path string, cause error) *Error {
	return &Error{Kind: KindFilesystemStats, Path: path, Details: cause.Error(), Err: cause}
}

// SafetyVeto builds a SafetyVeto-kind error (used only where a veto must be
// surfaced as an error return, e.g. a caller-facing API; the executor itself
// never treats a veto as an error; it reports a model.VetoReason instead).
func SafetyVeto(path, reason string) *Error {
	return &Error{Kind: KindSafetyVeto, Path: path, Details: reason}
}

// SqliteError builds a Sqlite-kind error from a database/sql failure.
func SqliteError(context string, cause error) *Error {
	return &Error{Kind: KindSqlite, Context: context, Details: cause.Error(), Err: cause}
}

// ChannelClosed builds a ChannelClosed-kind error naming the component whose
// output channel could not accept a send.
func ChannelClosed(component string) *Error {
	return &Error{Kind: KindChannelClosed, Context: component}
}
