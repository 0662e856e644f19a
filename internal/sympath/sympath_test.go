package sympath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_MixedElements(t *testing.T) {
	sp, err := Parse(`/local/syms;srv*/cache*http://symserver;srv*https://msdl.example.com/download/symbols`)
	require.NoError(t, err)
	require.Len(t, sp, 3)

	assert.Equal(t, Local, sp[0].Kind)
	assert.Equal(t, "/local/syms", sp[0].Directory)

	assert.Equal(t, Server, sp[1].Kind)
	assert.Equal(t, "/cache", sp[1].CacheDir)
	assert.Equal(t, "http://symserver", sp[1].RemoteRoot)

	assert.Equal(t, Server, sp[2].Kind)
	assert.Empty(t, sp[2].CacheDir)
	assert.Equal(t, "https://msdl.example.com/download/symbols", sp[2].RemoteRoot)
}

func TestParse_OrderPreservedAndDuplicatesKept(t *testing.T) {
	sp, err := Parse("/a;/b;/a")
	require.NoError(t, err)
	require.Len(t, sp, 3)

	assert.Equal(t, "/a", sp[0].Directory)
	assert.Equal(t, "/b", sp[1].Directory)
	assert.Equal(t, "/a", sp[2].Directory)
}

func TestParse_EmptyElementsSkipped(t *testing.T) {
	sp, err := Parse(";;/only;;")
	require.NoError(t, err)
	require.Len(t, sp, 1)
	assert.Equal(t, "/only", sp[0].Directory)

	sp, err = Parse("")
	require.NoError(t, err)
	assert.Empty(t, sp)
}

func TestParse_ServerClauseCaseInsensitive(t *testing.T) {
	sp, err := Parse(`SRV*/cache*http://symserver`)
	require.NoError(t, err)
	require.Len(t, sp, 1)
	assert.Equal(t, Server, sp[0].Kind)
}

func TestParse_ServerClauseErrors(t *testing.T) {
	_, err := Parse("srv*")
	assert.Error(t, err)

	_, err = Parse("srv*/cache*")
	assert.Error(t, err)

	_, err = Parse("srv*a*b*c")
	assert.Error(t, err)
}

func TestEffectiveCache(t *testing.T) {
	e := Element{Kind: Server, RemoteRoot: "http://symserver"}
	assert.Equal(t, "/default", e.EffectiveCache("/default"))

	e.CacheDir = "/own"
	assert.Equal(t, "/own", e.EffectiveCache("/default"))
}
