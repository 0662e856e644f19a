package config

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binref/symfind/internal/sympath"
)

func TestValidate_ParsesSearchPath(t *testing.T) {
	cfg := &Config{
		SymbolPath:  `/local/syms;srv*/cache*http://symserver`,
		SymbolCache: t.TempDir(),
		SourceCache: t.TempDir(),
	}

	require.NoError(t, cfg.Validate())
	require.Len(t, cfg.SearchPath, 2)
	assert.Equal(t, sympath.Local, cfg.SearchPath[0].Kind)
	assert.Equal(t, sympath.Server, cfg.SearchPath[1].Kind)
}

func TestValidate_RejectsBadSearchPath(t *testing.T) {
	cfg := &Config{
		SymbolPath:  "srv*",
		SymbolCache: t.TempDir(),
		SourceCache: t.TempDir(),
	}

	assert.Error(t, cfg.Validate())
}

func TestValidate_ResolvesSourcePathEntries(t *testing.T) {
	cfg := &Config{
		SymbolCache: t.TempDir(),
		SourceCache: t.TempDir(),
		SourcePath:  []string{"relative/dir"},
	}

	require.NoError(t, cfg.Validate())
	assert.True(t, filepath.IsAbs(cfg.SourcePath[0]))
}

func TestDefaultCaches(t *testing.T) {
	assert.True(t, strings.HasSuffix(DefaultSymbolCache(), filepath.Join("symfind", "sym")))
	assert.True(t, strings.HasSuffix(DefaultSourceCache(), "src"))
}

func TestSplitPathList(t *testing.T) {
	assert.Nil(t, splitPathList(""))
	assert.Equal(t, []string{"/a", "/b"}, splitPathList("/a;/b"))
	assert.Equal(t, []string{"/a"}, splitPathList(";/a;;"))
}
