// Package source resolves the on-disk location of source files referenced
// by a symbol file.
//
// Resolution tries, in order: the build-time path as recorded in the symbol
// file, the source-server mechanism embedded in the symbol file, and a
// configured list of source directories probed with progressively shorter
// suffixes of the build-time path. Candidates are accepted on a verified
// checksum match; an existing-but-mismatched candidate can be surfaced as a
// best guess when the caller opts out of strict matching.
package source

import (
	"bytes"
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/binref/symfind/internal/provider"
)

// ErrNotFound means no acceptable candidate exists.
var ErrNotFound = errors.New("source file not found")

// maxExeAncestors bounds how many ancestor directories of the build-time
// executable are prepended to the probe locations.
const maxExeAncestors = 3

// ServerProvider is the external source-server collaborator: it can
// reconstruct the exact source file used at build time, typically via a
// version-control fetch driven by a stream inside the symbol file.
type ServerProvider interface {
	// FetchSource materializes the file locally and returns its path.
	FetchSource(ctx context.Context, rec provider.SourceFileRecord) (string, error)
}

// Result is a located source file. ChecksumMatches is false only for
// best-guess results returned under RequireChecksumMatch=false.
type Result struct {
	Path            string
	ChecksumMatches bool
}

// Locator resolves source file locations.
type Locator struct {
	// SourcePath is the configured list of directories to probe.
	SourcePath []string

	// Server, when set, is consulted after the build-time path. Its
	// results are accepted without checksum verification; the mechanism
	// guarantees exactness.
	Server ServerProvider

	// RequireChecksumMatch rejects existing files whose checksum
	// disagrees with the record. When false, such a file is returned as a
	// best guess if nothing better exists.
	RequireChecksumMatch bool

	Logger *log.Logger

	// sem serializes source-server queries: the underlying mechanism is
	// not reentrant, so at most one query runs process-wide. Waiters can
	// be cancelled; the in-flight query itself is not interrupted.
	// Initialized lazily so a literal Locator works too.
	semOnce sync.Once
	sem     chan struct{}
}

// NewLocator creates a locator probing the given directories.
func NewLocator(sourcePath []string, logger *log.Logger) *Locator {
	return &Locator{
		SourcePath:           sourcePath,
		RequireChecksumMatch: true,
		Logger:               logger,
	}
}

func (l *Locator) semaphore() chan struct{} {
	l.semOnce.Do(func() { l.sem = make(chan struct{}, 1) })
	return l.sem
}

func (l *Locator) logger() *log.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return log.New(io.Discard)
}

// Locate resolves rec to a local file. buildExePath, when known, is the
// build-time path of the executable and seeds extra probe locations.
func (l *Locator) Locate(ctx context.Context, rec provider.SourceFileRecord, buildExePath string) (Result, error) {
	var bestGuess string

	// The file may still exist exactly where the build saw it.
	if p := filepath.FromSlash(strings.ReplaceAll(rec.BuildTimePath, `\`, "/")); fileExists(p) {
		if l.checksumMatches(rec, p) {
			return Result{Path: p, ChecksumMatches: true}, nil
		}

		l.logger().Debug("checksum mismatch at build-time path", "path", p)
		bestGuess = p
	}

	if l.Server != nil {
		p, err := l.fetchFromServer(ctx, rec)
		if err == nil {
			return Result{Path: p, ChecksumMatches: true}, nil
		}
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		if !errors.Is(err, ErrNotFound) {
			l.logger().Debug("source server query failed", "path", rec.BuildTimePath, "err", err)
		}
	}

	if p, ok := l.probeSourcePath(rec, buildExePath, &bestGuess); ok {
		return Result{Path: p, ChecksumMatches: true}, nil
	}

	if !l.RequireChecksumMatch && bestGuess != "" {
		l.logger().Info("returning unverified best guess", "path", bestGuess)
		return Result{Path: bestGuess, ChecksumMatches: false}, nil
	}

	if bestGuess != "" {
		return Result{}, fmt.Errorf("%s: checksum mismatch at %s: %w", rec.BuildTimePath, bestGuess, ErrNotFound)
	}

	return Result{}, fmt.Errorf("%s: %w", rec.BuildTimePath, ErrNotFound)
}

// fetchFromServer runs one serialized source-server query. Each caller
// still executes its own query; only the overlap is prevented.
func (l *Locator) fetchFromServer(ctx context.Context, rec provider.SourceFileRecord) (string, error) {
	select {
	case l.semaphore() <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-l.sem }()

	return l.Server.FetchSource(ctx, rec)
}

// probeSourcePath tries location+suffix for every suffix of the build-time
// path (longest first) against every probe location. An existing but
// mismatched candidate becomes the best guess if none exists yet.
func (l *Locator) probeSourcePath(rec provider.SourceFileRecord, buildExePath string, bestGuess *string) (string, bool) {
	locations := append(exeAncestors(buildExePath), l.SourcePath...)
	if len(locations) == 0 {
		return "", false
	}

	for _, suffix := range pathSuffixes(rec.BuildTimePath) {
		for _, loc := range locations {
			cand := filepath.Join(loc, suffix)
			if !fileExists(cand) {
				continue
			}

			if l.checksumMatches(rec, cand) {
				return cand, true
			}

			l.logger().Debug("checksum mismatch", "path", cand)
			if *bestGuess == "" {
				*bestGuess = cand
			}
		}
	}

	return "", false
}

// checksumMatches compares the file at path against the record's checksum.
// Records without a checksum always match. Unrecognized algorithms were
// already downgraded to no-checksum at record creation.
func (l *Locator) checksumMatches(rec provider.SourceFileRecord, path string) bool {
	switch rec.ChecksumKind {
	case provider.ChecksumNone:
		return true

	case provider.ChecksumMD5:
		sum, err := md5File(path)
		if err != nil {
			l.logger().Debug("cannot hash candidate", "path", path, "err", err)
			return false
		}

		return bytes.Equal(sum, rec.Checksum)

	default:
		l.logger().Warn("unknown checksum algorithm, treating as unchecked", "kind", int(rec.ChecksumKind))
		return true
	}
}

func md5File(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}

	return h.Sum(nil), nil
}

// pathSuffixes returns the suffixes of a build-time path from longest
// (the whole path, relative) down to the bare file name. Build-time paths
// may use either separator.
func pathSuffixes(buildPath string) []string {
	norm := strings.ReplaceAll(buildPath, `\`, "/")
	norm = strings.TrimPrefix(norm, "/")

	// Strip a drive letter; it never survives a machine move.
	if len(norm) >= 2 && norm[1] == ':' {
		norm = norm[2:]
		norm = strings.TrimPrefix(norm, "/")
	}

	parts := strings.Split(norm, "/")

	suffixes := make([]string, 0, len(parts))
	for i := 0; i < len(parts); i++ {
		suffixes = append(suffixes, filepath.Join(parts[i:]...))
	}

	return suffixes
}

// exeAncestors returns up to maxExeAncestors directories above the
// build-time executable, nearest first.
func exeAncestors(buildExePath string) []string {
	if buildExePath == "" {
		return nil
	}

	var out []string
	dir := filepath.Dir(filepath.FromSlash(strings.ReplaceAll(buildExePath, `\`, "/")))
	for i := 0; i < maxExeAncestors; i++ {
		out = append(out, dir)

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}

		dir = parent
	}

	return out
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
