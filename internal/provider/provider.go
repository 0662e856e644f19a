// Package provider defines the debug-info provider boundary.
//
// The resolution engine never parses symbol file contents itself; it opens a
// located file through a Provider and asks the resulting Session for the
// file's embedded identity and, when supported, name/line information. The
// built-in PDB provider implements identity extraction only; a full native
// engine can be plugged in behind the same interface.
package provider

import (
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNotSupported is returned by sessions for queries the provider
	// cannot answer.
	ErrNotSupported = errors.New("operation not supported by this provider")

	// ErrUnavailable means the provider itself cannot operate at all
	// (e.g. a required native engine failed to load). It is a fatal
	// condition for the consumer, reported once, not retried per lookup.
	ErrUnavailable = errors.New("debug-info provider unavailable")
)

// ChecksumKind identifies the hash algorithm recorded for a source file.
type ChecksumKind int

const (
	// ChecksumNone means no checksum was recorded; any content matches.
	ChecksumNone ChecksumKind = iota

	// ChecksumMD5 is the MD5 digest of the source file bytes.
	ChecksumMD5
)

// SourceFileRecord describes one source file referenced by a symbol file.
// Records are immutable after creation.
type SourceFileRecord struct {
	// BuildTimePath is the path the file had on the build machine.
	BuildTimePath string

	// ChecksumKind identifies Checksum's algorithm.
	ChecksumKind ChecksumKind

	// Checksum is the recorded digest, nil when ChecksumKind is
	// ChecksumNone.
	Checksum []byte
}

// SourceLocation is a file/line pair for an address.
type SourceLocation struct {
	File string
	Line int
}

// Session is an opened symbol file.
type Session interface {
	// Identity returns the GUID and age embedded in the file.
	Identity() (uuid.UUID, uint32, error)

	// NameForAddress returns the symbol name covering addr.
	NameForAddress(addr uint64) (string, error)

	// SourceLineForAddress returns the source location for addr.
	SourceLineForAddress(addr uint64) (SourceLocation, error)

	// SourceFiles returns one record per distinct source file referenced
	// by the symbol file.
	SourceFiles() ([]SourceFileRecord, error)

	Close() error
}

// Provider opens symbol files.
type Provider interface {
	Open(path string) (Session, error)
}
