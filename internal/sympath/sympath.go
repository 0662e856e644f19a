// Package sympath parses symbol search path specifications.
//
// A search path is a semicolon-separated list of elements. Each element is
// either a plain directory or a symbol-server clause:
//
//	srv*<cacheDir>*<remoteRoot>
//	srv*<remoteRoot>
//
// Order is significant: lookups consult elements first to last, and the
// first match wins.
package sympath

import (
	"fmt"
	"strings"
)

// Delimiter separates search path elements.
const Delimiter = ";"

// Kind discriminates search path element variants.
type Kind int

const (
	// Local is a plain directory probed for the file by name.
	Local Kind = iota

	// Server is a symbol-server element with a remote root and a local
	// cache directory.
	Server
)

// Element is one entry of a search path.
type Element struct {
	Kind Kind

	// Directory is the probe directory for Local elements.
	Directory string

	// RemoteRoot is the server root for Server elements. Roots starting
	// with http: or https: are fetched over HTTP; anything else is treated
	// as a filesystem path.
	RemoteRoot string

	// CacheDir is the local cache for Server elements. Empty means the
	// process-wide default cache.
	CacheDir string
}

// EffectiveCache returns the element's cache directory, falling back to def
// when the element does not name one.
func (e Element) EffectiveCache(def string) string {
	if e.CacheDir != "" {
		return e.CacheDir
	}
	return def
}

func (e Element) String() string {
	if e.Kind == Server {
		if e.CacheDir != "" {
			return "srv*" + e.CacheDir + "*" + e.RemoteRoot
		}
		return "srv*" + e.RemoteRoot
	}
	return e.Directory
}

// SearchPath is an ordered list of elements. Immutable once parsed; a single
// instance may be shared across resolvers.
type SearchPath []Element

// Parse parses a search path specification. Empty elements are skipped;
// element order is preserved and duplicates are kept.
func Parse(spec string) (SearchPath, error) {
	var sp SearchPath

	for _, raw := range strings.Split(spec, Delimiter) {
		elem := strings.TrimSpace(raw)
		if elem == "" {
			continue
		}

		if isServerClause(elem) {
			e, err := parseServerClause(elem)
			if err != nil {
				return nil, err
			}

			sp = append(sp, e)
			continue
		}

		sp = append(sp, Element{Kind: Local, Directory: elem})
	}

	return sp, nil
}

func isServerClause(elem string) bool {
	return len(elem) >= 4 && strings.EqualFold(elem[:4], "srv*")
}

// parseServerClause splits a srv* clause on stars. One field is a bare
// remote root; two fields are cache then root.
func parseServerClause(elem string) (Element, error) {
	parts := strings.Split(elem[4:], "*")

	switch len(parts) {
	case 1:
		if parts[0] == "" {
			return Element{}, fmt.Errorf("server element %q has no remote root", elem)
		}

		return Element{Kind: Server, RemoteRoot: parts[0]}, nil

	case 2:
		if parts[1] == "" {
			return Element{}, fmt.Errorf("server element %q has no remote root", elem)
		}

		return Element{Kind: Server, CacheDir: parts[0], RemoteRoot: parts[1]}, nil

	default:
		return Element{}, fmt.Errorf("server element %q has too many fields", elem)
	}
}
