// Package server implements the symbol-server fetch protocol.
//
// A lookup against a server element walks three tiers, each a complete
// attempt before falling through to the next:
//
//  1. direct fetch of the index path
//  2. fetch of the compressed variant (last character replaced with '_')
//     followed by decompression
//  3. redirection through a sibling file.ptr
//
// Remote roots starting with http: or https: are fetched over HTTP;
// anything else is treated as a filesystem path. Transport failures are
// per-tier misses, never fatal.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/binref/symfind/internal/notify"
)

// ErrNotFound means every tier was exhausted without producing the file.
// A normal result, not a fault.
var ErrNotFound = errors.New("file not found on symbol server")

// DefaultUserAgent identifies the client on HTTP fetches.
const DefaultUserAgent = "Microsoft-Symbol-Server/10.0.10036.206 symfind"

// ptrFileName is the redirection marker consulted by the third tier.
const ptrFileName = "file.ptr"

// Client fetches files from one or more symbol-server roots into local
// cache directories.
type Client struct {
	// HTTPClient is used for http(s) roots. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client

	// UserAgent overrides DefaultUserAgent when non-empty.
	UserAgent string

	// Decompressor expands compressed-variant artifacts. Defaults to
	// NewExpandDecompressor.
	Decompressor Decompressor

	// Notifier receives progress events. Defaults to notify.Nop.
	Notifier notify.Notifier

	Logger *log.Logger
}

// NewClient creates a client with the given notifier and logger; nil
// arguments select quiet defaults.
func NewClient(n notify.Notifier, logger *log.Logger) *Client {
	if n == nil {
		n = notify.Nop{}
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}

	return &Client{
		HTTPClient:   http.DefaultClient,
		Decompressor: NewExpandDecompressor(),
		Notifier:     n,
		Logger:       logger,
	}
}

func (c *Client) notifier() notify.Notifier {
	if c.Notifier != nil {
		return c.Notifier
	}
	return notify.Nop{}
}

// Fetch retrieves remoteRoot/indexPath into cacheDir/indexPath and returns
// the local path. If the target already exists locally no network traffic
// occurs. Returns ErrNotFound when all tiers miss.
func (c *Client) Fetch(ctx context.Context, remoteRoot, indexPath, cacheDir string) (string, error) {
	target := filepath.Join(cacheDir, filepath.FromSlash(indexPath))

	if fileExists(target) {
		c.notifier().FoundInCache(target)
		return target, nil
	}

	// The cache directory is created lazily by the transport once a tier
	// actually produces bytes; a full miss leaves no empty tree behind.

	// Tier 1: direct.
	err := c.fetch(ctx, remoteRoot, indexPath, target)
	if err == nil {
		c.notifier().DownloadComplete(target, false)
		c.notifier().FoundOnServer(target)
		return target, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	c.Logger.Debug("direct fetch failed", "root", remoteRoot, "path", indexPath, "err", err)
	c.notifier().ProbeFailed(remoteJoin(remoteRoot, indexPath), err)

	// Tier 2: compressed variant.
	if p, err := c.fetchCompressed(ctx, remoteRoot, indexPath, target); err == nil {
		return p, nil
	} else if ctx.Err() != nil {
		return "", ctx.Err()
	}

	// Tier 3: pointer redirection.
	if p, err := c.fetchViaPointer(ctx, remoteRoot, indexPath, target); err == nil {
		return p, nil
	} else if ctx.Err() != nil {
		return "", ctx.Err()
	}

	return "", ErrNotFound
}

func (c *Client) fetchCompressed(ctx context.Context, remoteRoot, indexPath, target string) (string, error) {
	compressedIndex := indexPath[:len(indexPath)-1] + "_"
	compressedTarget := target[:len(target)-1] + "_"

	if err := c.fetch(ctx, remoteRoot, compressedIndex, compressedTarget); err != nil {
		c.Logger.Debug("compressed fetch failed", "root", remoteRoot, "path", compressedIndex, "err", err)
		c.notifier().ProbeFailed(remoteJoin(remoteRoot, compressedIndex), err)
		return "", err
	}

	dec := c.Decompressor
	if dec == nil {
		dec = NewExpandDecompressor()
	}

	if err := dec.Decompress(ctx, compressedTarget, target); err != nil {
		os.Remove(compressedTarget)
		c.Logger.Warn("decompression failed", "path", compressedTarget, "err", err)
		c.notifier().ProbeFailed(compressedTarget, err)
		return "", err
	}

	os.Remove(compressedTarget)
	c.notifier().DecompressComplete(target)
	c.notifier().DownloadComplete(target, true)
	c.notifier().FoundOnServer(target)

	return target, nil
}

func (c *Client) fetchViaPointer(ctx context.Context, remoteRoot, indexPath, target string) (string, error) {
	ptrIndex := path.Join(path.Dir(indexPath), ptrFileName)
	ptrTarget := filepath.Join(filepath.Dir(target), ptrFileName)

	if err := c.fetch(ctx, remoteRoot, ptrIndex, ptrTarget); err != nil {
		c.Logger.Debug("pointer fetch failed", "root", remoteRoot, "path", ptrIndex, "err", err)
		return "", err
	}
	defer os.Remove(ptrTarget)

	data, err := os.ReadFile(ptrTarget)
	if err != nil {
		return "", err
	}

	ref := strings.TrimSpace(string(data))

	switch {
	case strings.HasPrefix(ref, "MSG:"):
		// A terminal message from the server, never a path to follow.
		msg := strings.TrimSpace(ref[len("MSG:"):])
		c.Logger.Info("symbol server reported", "path", indexPath, "msg", msg)
		return "", fmt.Errorf("server message %q: %w", msg, ErrNotFound)

	case strings.HasPrefix(ref, "PATH:"):
		ref = strings.TrimSpace(ref[len("PATH:"):])
	}

	if ref == "" || !fileExists(ref) {
		return "", fmt.Errorf("pointer target %q does not exist: %w", ref, ErrNotFound)
	}

	if err := c.copyLocal(ctx, ref, target); err != nil {
		return "", err
	}

	c.notifier().DownloadComplete(target, false)
	c.notifier().FoundOnServer(target)

	return target, nil
}

// fetch dispatches on the root scheme and downloads to dst.
func (c *Client) fetch(ctx context.Context, remoteRoot, indexPath, dst string) error {
	if isHTTP(remoteRoot) {
		return c.fetchHTTP(ctx, remoteRoot, indexPath, dst)
	}

	src := filepath.Join(remoteRoot, filepath.FromSlash(indexPath))
	return c.copyLocal(ctx, src, dst)
}

func isHTTP(root string) bool {
	lower := strings.ToLower(root)
	return strings.HasPrefix(lower, "http:") || strings.HasPrefix(lower, "https:")
}

func remoteJoin(root, indexPath string) string {
	if isHTTP(root) {
		return strings.TrimRight(root, "/") + "/" + indexPath
	}
	return filepath.Join(root, filepath.FromSlash(indexPath))
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
