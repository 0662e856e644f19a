// Package resolver implements tiered symbol and executable file lookup.
//
// A lookup walks the configured search path in order: local directories are
// probed and identity-verified through the debug-info provider, server
// elements are delegated to the symbol-server client, and the first
// accepted match wins. Matches from non-indexed probe locations must pass
// the caller's trust policy before acceptance.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/binref/symfind/internal/ident"
	"github.com/binref/symfind/internal/notify"
	"github.com/binref/symfind/internal/provider"
	"github.com/binref/symfind/internal/server"
	"github.com/binref/symfind/internal/store"
	"github.com/binref/symfind/internal/sympath"
)

// ErrNotFound means every search path element and fallback probe was
// exhausted. The ordinary "symbol not available" outcome, never a fault.
var ErrNotFound = errors.New("symbol file not found")

// Resolver locates symbol and executable files. A Resolver owns its whole
// configuration; nothing is ambient process state, so independent resolvers
// can coexist with different policies.
type Resolver struct {
	// SearchPath is consulted in order; the first match wins and later
	// elements are never visited, even if a better match exists there.
	SearchPath sympath.SearchPath

	// DefaultCache backs server elements that name no cache directory.
	DefaultCache string

	// Provider opens candidates to verify embedded identity.
	Provider provider.Provider

	// Client performs remote fetches.
	Client *server.Client

	// Store normalizes accepted matches into the cache.
	Store *store.Normalizer

	// Trusted gates matches from non-indexed locations: files next to the
	// binary, literal paths, and wildcard-identity matches. A nil policy
	// rejects everything (fail closed).
	Trusted func(path string) bool

	// WeakExecutableMatch, when set, accepts a locally probed executable
	// on file name alone without checking timestamp/size against the
	// candidate. This mirrors long-standing debugger behavior; the strict
	// check is known to reject valid files in the field.
	WeakExecutableMatch bool

	Notifier notify.Notifier
	Logger   *log.Logger

	mu          sync.Mutex
	providerErr error
}

// New creates a resolver over the given search path with quiet defaults for
// every collaborator not yet assigned.
func New(sp sympath.SearchPath, defaultCache string) *Resolver {
	logger := log.New(io.Discard)

	return &Resolver{
		SearchPath:          sp,
		DefaultCache:        defaultCache,
		Provider:            provider.PDB{},
		Client:              server.NewClient(nil, nil),
		Store:               store.NewNormalizer(defaultCache, nil),
		WeakExecutableMatch: true,
		Notifier:            notify.Nop{},
		Logger:              logger,
	}
}

func (r *Resolver) notifier() notify.Notifier {
	if r.Notifier != nil {
		return r.Notifier
	}
	return notify.Nop{}
}

// FindSymbolFile locates the symbol file for id. dllPath, when known, is
// the on-disk location of the binary the symbols belong to and enables the
// next-to-binary fallback probes. With allowRemote false, server elements
// contribute only their local caches.
func (r *Resolver) FindSymbolFile(ctx context.Context, id ident.SymbolIdentity, dllPath string, allowRemote bool) (string, error) {
	if err := r.knownProviderFailure(); err != nil {
		return "", err
	}

	for _, el := range r.SearchPath {
		switch el.Kind {
		case sympath.Local:
			cand := filepath.Join(el.Directory, id.SimpleName)

			ok, err := r.acceptSymbolCandidate(cand, id, false)
			if err != nil {
				return "", err
			}
			if ok {
				return r.normalize(cand, id), nil
			}

		case sympath.Server:
			cacheDir := el.EffectiveCache(r.DefaultCache)

			if !allowRemote {
				target := filepath.Join(cacheDir, filepath.FromSlash(id.IndexPath()))
				if fileExists(target) {
					r.notifier().FoundInCache(target)
					return target, nil
				}
				continue
			}

			p, err := r.Client.Fetch(ctx, el.RemoteRoot, id.IndexPath(), cacheDir)
			if err == nil {
				simple := filepath.Base(filepath.FromSlash(id.SimpleName))
				r.Store.RecordFetch(p, simple, id.IndexPath(), el.RemoteRoot)
				return p, nil
			}
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if !errors.Is(err, server.ErrNotFound) {
				r.Logger.Warn("server fetch failed", "root", el.RemoteRoot, "id", id, "err", err)
			}
		}
	}

	if allowRemote {
		if p, ok, err := r.unsafeSymbolProbes(id, dllPath); err != nil {
			return "", err
		} else if ok {
			return p, nil
		}
	}

	return "", fmt.Errorf("%s: %w", id, ErrNotFound)
}

// unsafeSymbolProbes tries the non-indexed fallback locations: the symbol
// name next to the binary, the conventional symbols.pri tree beside it, and
// the simple name interpreted as a literal path. Every hit must pass the
// trust gate.
func (r *Resolver) unsafeSymbolProbes(id ident.SymbolIdentity, dllPath string) (string, bool, error) {
	var candidates []string

	if dllPath != "" {
		ext := filepath.Ext(id.SimpleName)
		base := strings.TrimSuffix(dllPath, filepath.Ext(dllPath))
		candidates = append(candidates,
			base+ext,
			filepath.Join(filepath.Dir(dllPath), "symbols.pri", "retail", "dll", id.SimpleName),
		)
	}

	if strings.ContainsAny(id.SimpleName, `/\`) {
		candidates = append(candidates, filepath.FromSlash(id.SimpleName))
	}

	for _, cand := range candidates {
		ok, err := r.acceptSymbolCandidate(cand, id, true)
		if err != nil {
			return "", false, err
		}
		if ok {
			return r.normalize(cand, id), true, nil
		}
	}

	return "", false, nil
}

// acceptSymbolCandidate probes cand and decides whether it satisfies id.
// untrusted marks candidates from non-indexed locations, which must pass
// the trust gate regardless of identity. Only provider-unavailable errors
// propagate; everything else is a logged rejection.
func (r *Resolver) acceptSymbolCandidate(cand string, id ident.SymbolIdentity, untrusted bool) (bool, error) {
	if !fileExists(cand) {
		return false, nil
	}

	if id.IsWildcard() {
		if !r.trusted(cand) {
			return false, nil
		}

		r.Logger.Warn("unsafe match: identity not verified", "path", cand, "name", id.SimpleName)
		return true, nil
	}

	guid, age, err := r.candidateIdentity(cand)
	if err != nil {
		if errors.Is(err, provider.ErrUnavailable) {
			return false, err
		}

		r.Logger.Info("candidate rejected", "path", cand, "err", err)
		r.notifier().ProbeFailed(cand, err)
		return false, nil
	}

	if guid != id.GUID || age != id.Age {
		err := fmt.Errorf("identity mismatch: want %s, found %s%x",
			id.Hex(), strings.ReplaceAll(guid.String(), "-", ""), age)
		r.Logger.Info("candidate rejected", "path", cand, "err", err)
		r.notifier().ProbeFailed(cand, err)
		return false, nil
	}

	if untrusted && !r.trusted(cand) {
		return false, nil
	}

	return true, nil
}

// candidateIdentity opens cand through the provider and extracts its
// embedded GUID and age. A provider-unavailable failure is latched: it is
// reported once and every later lookup fails fast with the same error.
func (r *Resolver) candidateIdentity(cand string) (uuid.UUID, uint32, error) {
	sess, err := r.Provider.Open(cand)
	if err != nil {
		if errors.Is(err, provider.ErrUnavailable) {
			r.latchProviderFailure(err)
		}
		return uuid.Nil, 0, err
	}
	defer sess.Close()

	return sess.Identity()
}

func (r *Resolver) knownProviderFailure() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.providerErr
}

func (r *Resolver) latchProviderFailure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.providerErr == nil {
		r.providerErr = err
		r.Logger.Error("debug-info provider unavailable", "err", err)
	}
}

// trusted applies the security gate. No policy means reject, with the
// reason logged so the misconfiguration is diagnosable.
func (r *Resolver) trusted(path string) bool {
	if r.Trusted == nil {
		r.Logger.Warn("untrusted location rejected: no trust policy configured", "path", path)
		r.notifier().ProbeFailed(path, errors.New("no trust policy configured"))
		return false
	}

	if !r.Trusted(path) {
		r.Logger.Warn("trust policy rejected candidate", "path", path)
		r.notifier().ProbeFailed(path, errors.New("rejected by trust policy"))
		return false
	}

	return true
}

// normalize routes an accepted match through the cache. Cache trouble never
// fails the lookup; the original path is returned instead.
func (r *Resolver) normalize(cand string, id ident.SymbolIdentity) string {
	p, err := r.Store.Normalize(cand, id)
	if err != nil {
		r.Logger.Warn("cache normalization incomplete", "path", cand, "err", err)
	}

	return p
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
