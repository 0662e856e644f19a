// Package store maintains the durable on-disk symbol cache.
//
// Cached files live at deterministic, identity-addressed paths:
//
//	<cache>/<name>/<hex identity>/<name>   identified files
//	<cache>/<name>                         unidentified files (opt-in)
//
// The cache is shared across processes and never evicted; entries are only
// ever overwritten in place. Alongside the files, a bbolt journal records
// entry metadata for inspection tooling.
package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/binref/symfind/internal/ident"
)

// Normalizer copies located files into their canonical cache slots.
// Normalization is best-effort: on any failure the original path is still
// returned and remains valid.
type Normalizer struct {
	// CacheDir is the cache root for identities that do not carry their
	// own cache directory.
	CacheDir string

	// CacheUnsafe permits caching files located with a wildcard identity.
	// Off by default: unverified content is not cached.
	CacheUnsafe bool

	// Journal, when set, records every stored entry. Journal failures are
	// logged and otherwise ignored.
	Journal *Journal

	Logger *log.Logger
}

// NewNormalizer creates a normalizer rooted at cacheDir.
func NewNormalizer(cacheDir string, logger *log.Logger) *Normalizer {
	if logger == nil {
		logger = discardLogger()
	}

	return &Normalizer{CacheDir: cacheDir, Logger: logger}
}

// Normalize ensures foundPath is resident at its canonical cache location
// and returns that location. The returned path is always usable; a non-nil
// error only reports why caching was skipped or failed.
func (n *Normalizer) Normalize(foundPath string, id ident.SymbolIdentity) (string, error) {
	// A simple name carrying directory components (the literal-path probe
	// case) is cached under its base name.
	simple := filepath.Base(filepath.FromSlash(id.SimpleName))

	if id.IsWildcard() {
		if !n.CacheUnsafe {
			return foundPath, nil
		}

		dst := filepath.Join(n.CacheDir, simple)

		// Identified entries may already own <cache>/<name> as a
		// directory; a flat unverified entry never displaces them.
		if fi, err := os.Stat(dst); err == nil && fi.IsDir() {
			n.Logger.Warn("cache slot held by identified entries, not caching unverified file", "path", dst)
			return foundPath, fmt.Errorf("cache slot %s is a directory", dst)
		}

		return n.place(foundPath, dst, simple, simple)
	}

	return n.normalizeIdentified(foundPath, simple, id.Hex(), id.IndexPath())
}

// NormalizeExecutable is Normalize for executable identities. Executable
// identities are never wildcards.
func (n *Normalizer) NormalizeExecutable(foundPath string, id ident.ExecutableIdentity) (string, error) {
	return n.normalizeIdentified(foundPath, id.FileName, id.Hex(), id.IndexPath())
}

func (n *Normalizer) normalizeIdentified(foundPath, simpleName, hex, indexPath string) (string, error) {
	nameDir := filepath.Join(n.CacheDir, simpleName)

	// The identified layout needs <cache>/<name> to be a directory. A
	// stray flat file with that name blocks it; remove it unless it is
	// the very file being normalized.
	if fi, err := os.Lstat(nameDir); err == nil && !fi.IsDir() {
		if sameFile(foundPath, nameDir) {
			return foundPath, nil
		}

		if err := os.Remove(nameDir); err != nil {
			n.Logger.Warn("cache collision cleanup failed", "path", nameDir, "err", err)
			return foundPath, fmt.Errorf("remove colliding cache file %s: %w", nameDir, err)
		}

		n.Logger.Debug("removed colliding cache file", "path", nameDir)
	}

	dst := filepath.Join(nameDir, hex, simpleName)

	return n.place(foundPath, dst, simpleName, indexPath)
}

// place copies src to dst unless dst is already current, then journals the
// entry. Failures degrade to returning src.
func (n *Normalizer) place(src, dst, simpleName, key string) (string, error) {
	if sameFile(src, dst) {
		return dst, nil
	}

	if upToDate(src, dst) {
		return dst, nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		n.Logger.Warn("cache write failed", "path", dst, "err", err)
		return src, fmt.Errorf("create cache directory: %w", err)
	}

	if err := copyFile(src, dst); err != nil {
		n.Logger.Warn("cache write failed", "path", dst, "err", err)
		return src, fmt.Errorf("copy into cache: %w", err)
	}

	n.record(src, dst, simpleName, key)

	return dst, nil
}

// RecordFetch journals a file a server fetch placed directly at its
// canonical cache location. Only the journal entry is written; the file is
// already resident. Re-recording an existing key overwrites it.
func (n *Normalizer) RecordFetch(path, simpleName, key, origin string) {
	n.record(origin, path, simpleName, key)
}

func (n *Normalizer) record(src, dst, simpleName, key string) {
	if n.Journal == nil {
		return
	}

	var size int64
	if fi, err := os.Stat(dst); err == nil {
		size = fi.Size()
	}

	err := n.Journal.Record(Entry{
		Key:        key,
		SimpleName: simpleName,
		Path:       dst,
		Origin:     src,
		Size:       size,
	})
	if err != nil {
		n.Logger.Warn("cache journal write failed", "key", key, "err", err)
	}
}

// upToDate reports whether dst exists with the same last-write time as src.
// A timestamp comparison, not a content hash; concurrent writers race on
// last-writer-wins terms.
func upToDate(src, dst string) bool {
	sfi, err := os.Stat(src)
	if err != nil {
		return false
	}

	dfi, err := os.Stat(dst)
	if err != nil {
		return false
	}

	return sfi.ModTime().Equal(dfi.ModTime())
}

func sameFile(a, b string) bool {
	afi, err := os.Stat(a)
	if err != nil {
		return false
	}

	bfi, err := os.Stat(b)
	if err != nil {
		return false
	}

	return os.SameFile(afi, bfi)
}

func discardLogger() *log.Logger {
	return log.New(io.Discard)
}
