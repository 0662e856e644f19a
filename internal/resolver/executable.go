package resolver

import (
	"context"
	"debug/pe"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/binref/symfind/internal/ident"
	"github.com/binref/symfind/internal/server"
	"github.com/binref/symfind/internal/sympath"
)

// FindExecutableFile locates the executable image for id using the same
// search path tiering as symbol lookup, with the index path built from the
// image's timestamp and size.
//
// Local probes honor the WeakExecutableMatch policy: by default a file with
// the right name is accepted without verifying timestamp/size. Server
// results are identity-addressed by construction and need no verification.
func (r *Resolver) FindExecutableFile(ctx context.Context, id ident.ExecutableIdentity, allowRemote bool) (string, error) {
	for _, el := range r.SearchPath {
		switch el.Kind {
		case sympath.Local:
			cand := filepath.Join(el.Directory, id.FileName)
			if !fileExists(cand) {
				continue
			}

			if !r.WeakExecutableMatch {
				if err := verifyExecutable(cand, id); err != nil {
					r.Logger.Info("candidate rejected", "path", cand, "err", err)
					r.notifier().ProbeFailed(cand, err)
					continue
				}
			}

			p, err := r.Store.NormalizeExecutable(cand, id)
			if err != nil {
				r.Logger.Warn("cache normalization incomplete", "path", cand, "err", err)
			}

			return p, nil

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
				r.Store.RecordFetch(p, id.FileName, id.IndexPath(), el.RemoteRoot)
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

	return "", fmt.Errorf("%s: %w", id, ErrNotFound)
}

// verifyExecutable checks a PE image's link timestamp and image size
// against the requested identity. Used only when the weak-match policy is
// disabled.
func verifyExecutable(path string, id ident.ExecutableIdentity) error {
	f, err := pe.Open(path)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	if f.FileHeader.TimeDateStamp != id.Timestamp {
		return fmt.Errorf("timestamp mismatch: want %x, found %x", id.Timestamp, f.FileHeader.TimeDateStamp)
	}

	var imageSize uint32
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		imageSize = oh.SizeOfImage
	case *pe.OptionalHeader64:
		imageSize = oh.SizeOfImage
	default:
		return fmt.Errorf("image has no optional header")
	}

	if imageSize != id.ImageSize {
		return fmt.Errorf("image size mismatch: want %x, found %x", id.ImageSize, imageSize)
	}

	return nil
}
