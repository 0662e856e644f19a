// Package config materializes symfind's configuration.
//
// Sources are layered the usual way: built-in defaults, a global config
// file, a local .symfind.* file found by walking up from the working
// directory, environment variables, and bound command flags. Everything is
// resolved once into an immutable Config; nothing re-reads the environment
// afterwards.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/binref/symfind/internal/sympath"
)

// Default configuration values.
const (
	DefaultVerbose              = false
	DefaultCacheUnsafe          = false
	DefaultRequireChecksumMatch = true
	DefaultWeakExecutableMatch  = true
)

// Config holds the resolved configuration for one resolver instance.
type Config struct {
	// SymbolPath is the raw search path specification.
	SymbolPath string

	// SearchPath is SymbolPath parsed into ordered elements.
	SearchPath sympath.SearchPath

	// SymbolCache is the default cache for server elements that name no
	// cache of their own, and for normalizing local matches.
	SymbolCache string

	// SourcePath lists directories probed for source files.
	SourcePath []string

	// SourceCache is where source-server results are materialized.
	SourceCache string

	// CacheUnsafe permits caching files matched with a wildcard identity.
	CacheUnsafe bool

	// RequireChecksumMatch rejects source candidates whose checksum
	// disagrees with the symbol file's record.
	RequireChecksumMatch bool

	// WeakExecutableMatch accepts locally probed executables on name
	// alone, without verifying timestamp and size.
	WeakExecutableMatch bool

	// Verbose enables debug-level logging.
	Verbose bool
}

// Load builds a Config from the current viper state.
func Load() (*Config, error) {
	cfg := &Config{
		SymbolPath:           viper.GetString("sympath"),
		SymbolCache:          viper.GetString("cache"),
		SourcePath:           splitPathList(viper.GetString("source_path")),
		SourceCache:          viper.GetString("source_cache"),
		CacheUnsafe:          viper.GetBool("cache_unsafe"),
		RequireChecksumMatch: viper.GetBool("require_checksum_match"),
		WeakExecutableMatch:  viper.GetBool("weak_exe_match"),
		Verbose:              viper.GetBool("verbose"),
	}

	if cfg.SymbolCache == "" {
		cfg.SymbolCache = DefaultSymbolCache()
	}

	if cfg.SourceCache == "" {
		cfg.SourceCache = DefaultSourceCache()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate parses the search path and resolves directories to absolute
// paths.
func (c *Config) Validate() error {
	sp, err := sympath.Parse(c.SymbolPath)
	if err != nil {
		return fmt.Errorf("invalid symbol path: %w", err)
	}

	c.SearchPath = sp

	if abs, err := filepath.Abs(c.SymbolCache); err == nil {
		c.SymbolCache = abs
	}

	if abs, err := filepath.Abs(c.SourceCache); err == nil {
		c.SourceCache = abs
	}

	for i, dir := range c.SourcePath {
		if dir == "" {
			continue
		}

		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("invalid source path entry %q: %v", dir, err)
		}

		c.SourcePath[i] = abs
	}

	return nil
}

// DefaultSymbolCache is the per-user symbol cache location, falling back to
// the temp directory when no user cache directory exists.
func DefaultSymbolCache() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "symfind", "sym")
	}

	return filepath.Join(os.TempDir(), "symfind", "sym")
}

// DefaultSourceCache is the temp-directory source cache used when no
// source cache is configured.
func DefaultSourceCache() string {
	return filepath.Join(os.TempDir(), "src")
}

// splitPathList splits a semicolon-separated directory list, dropping
// empty entries. An absent variable yields an empty list.
func splitPathList(list string) []string {
	if list == "" {
		return nil
	}

	var out []string
	for _, p := range strings.Split(list, ";") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	return out
}
