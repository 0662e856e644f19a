package ident

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSymbolIdentity_IndexPath(t *testing.T) {
	id := SymbolIdentity{
		SimpleName: "app.pdb",
		GUID:       uuid.MustParse("01234567-89ab-cdef-0123-456789abcdef"),
		Age:        2,
	}

	assert.Equal(t, "0123456789abcdef0123456789abcdef2", id.Hex())
	assert.Equal(t, "app.pdb/0123456789abcdef0123456789abcdef2/app.pdb", id.IndexPath())
}

func TestSymbolIdentity_HexIsLowercase(t *testing.T) {
	id := SymbolIdentity{
		SimpleName: "app.pdb",
		GUID:       uuid.MustParse("ABCDEFAB-CDEF-ABCD-EFAB-CDEFABCDEFAB"),
		Age:        0x1f,
	}

	assert.Equal(t, "abcdefabcdefabcdefabcdefabcdefab1f", id.Hex())
}

func TestSymbolIdentity_Wildcard(t *testing.T) {
	id := SymbolIdentity{SimpleName: "app.pdb"}
	assert.True(t, id.IsWildcard())

	id.GUID = uuid.MustParse("01234567-89ab-cdef-0123-456789abcdef")
	assert.False(t, id.IsWildcard())
}

func TestExecutableIdentity_IndexPath(t *testing.T) {
	id := ExecutableIdentity{
		FileName:  "app.exe",
		Timestamp: 0x5b7e1234,
		ImageSize: 0x21000,
	}

	assert.Equal(t, "5b7e123421000", id.Hex())
	assert.Equal(t, "app.exe/5b7e123421000/app.exe", id.IndexPath())
}
