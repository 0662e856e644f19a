// Package ident defines the content identities used to index symbol and
// executable files on a symbol store.
//
// A symbol file is identified by its embedded GUID and age; an executable by
// its link timestamp and image size. Both map onto the same store layout:
//
//	<name>/<hex identity>/<name>
//
// Index paths always use forward slashes; backends convert as needed.
package ident

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// SymbolIdentity identifies a symbol file by name, GUID and age.
type SymbolIdentity struct {
	// SimpleName is the file name with no directory component,
	// e.g. "app.pdb".
	SimpleName string

	// GUID is the unique identifier embedded in both the binary and its
	// matching symbol file. uuid.Nil acts as a wildcard matching any file
	// with the right name; wildcard matches are unsafe and must pass the
	// caller's trust policy.
	GUID uuid.UUID

	// Age counts how many times the symbol file has been written.
	Age uint32
}

// IsWildcard reports whether the identity matches any file with the same
// simple name.
func (id SymbolIdentity) IsWildcard() bool {
	return id.GUID == uuid.Nil
}

// Hex returns the store identity segment: 32 lowercase hex digits of the
// GUID followed by the age in lowercase hex, no separators.
func (id SymbolIdentity) Hex() string {
	return strings.ReplaceAll(id.GUID.String(), "-", "") + fmt.Sprintf("%x", id.Age)
}

// IndexPath returns the slash-separated symbol-store index path for this
// identity: name/hex/name.
func (id SymbolIdentity) IndexPath() string {
	return path.Join(id.SimpleName, id.Hex(), id.SimpleName)
}

func (id SymbolIdentity) String() string {
	return id.SimpleName + " " + id.Hex()
}

// ExecutableIdentity identifies an executable image by name, link timestamp
// and image size.
type ExecutableIdentity struct {
	// FileName is the image file name with no directory component,
	// e.g. "app.exe".
	FileName string

	// Timestamp is the TimeDateStamp from the image's file header.
	Timestamp uint32

	// ImageSize is the SizeOfImage from the image's optional header.
	ImageSize uint32
}

// Hex returns the store identity segment: timestamp then image size, both
// lowercase hex with no padding or separators.
func (id ExecutableIdentity) Hex() string {
	return fmt.Sprintf("%x%x", id.Timestamp, id.ImageSize)
}

// IndexPath returns the slash-separated symbol-store index path for this
// identity: name/hex/name.
func (id ExecutableIdentity) IndexPath() string {
	return path.Join(id.FileName, id.Hex(), id.FileName)
}

func (id ExecutableIdentity) String() string {
	return id.FileName + " " + id.Hex()
}
