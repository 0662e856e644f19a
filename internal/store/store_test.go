package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binref/symfind/internal/ident"
)

var testGUID = uuid.MustParse("01234567-89ab-cdef-0123-456789abcdef")

func testIdentity() ident.SymbolIdentity {
	return ident.SymbolIdentity{SimpleName: "foo.pdb", GUID: testGUID, Age: 1}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNormalize_CopiesIntoIdentifiedSlot(t *testing.T) {
	cacheDir := t.TempDir()
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "foo.pdb")
	writeFile(t, src, "symbols")

	n := NewNormalizer(cacheDir, nil)
	id := testIdentity()

	got, err := n.Normalize(src, id)
	require.NoError(t, err)

	want := filepath.Join(cacheDir, "foo.pdb", id.Hex(), "foo.pdb")
	assert.Equal(t, want, got)

	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "symbols", string(data))
}

func TestNormalize_SkipsWhenTimestampUnchanged(t *testing.T) {
	cacheDir := t.TempDir()
	src := filepath.Join(t.TempDir(), "foo.pdb")
	writeFile(t, src, "symbols")

	n := NewNormalizer(cacheDir, nil)
	id := testIdentity()

	first, err := n.Normalize(src, id)
	require.NoError(t, err)

	// Change content but keep the source timestamp; the cheap staleness
	// check must skip the copy.
	mtime := time.Now().Add(-time.Hour)
	require.NoError(t, os.WriteFile(src, []byte("changed"), 0o644))
	require.NoError(t, os.Chtimes(src, mtime, mtime))

	destInfo, err := os.Stat(first)
	require.NoError(t, err)
	require.NoError(t, os.Chtimes(first, destInfo.ModTime(), mtime))

	got, err := n.Normalize(src, id)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "symbols", string(data), "unchanged timestamp should skip the copy")
}

func TestNormalize_RemovesCollidingFlatFile(t *testing.T) {
	cacheDir := t.TempDir()
	src := filepath.Join(t.TempDir(), "foo.pdb")
	writeFile(t, src, "real")

	// A stray flat file occupies the slot the directory layout needs.
	stray := filepath.Join(cacheDir, "foo.pdb")
	writeFile(t, stray, "stray")

	n := NewNormalizer(cacheDir, nil)
	id := testIdentity()

	got, err := n.Normalize(src, id)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cacheDir, "foo.pdb", id.Hex(), "foo.pdb"), got)

	fi, err := os.Stat(filepath.Join(cacheDir, "foo.pdb"))
	require.NoError(t, err)
	assert.True(t, fi.IsDir(), "stray file should be replaced by the cache directory")
}

func TestNormalize_SameFileShortCircuits(t *testing.T) {
	cacheDir := t.TempDir()

	// The found file IS the flat cache slot; it must not be destroyed.
	src := filepath.Join(cacheDir, "foo.pdb")
	writeFile(t, src, "only copy")

	n := NewNormalizer(cacheDir, nil)

	got, err := n.Normalize(src, testIdentity())
	require.NoError(t, err)
	assert.Equal(t, src, got)

	data, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, "only copy", string(data))
}

func TestNormalize_WildcardNotCachedByDefault(t *testing.T) {
	cacheDir := t.TempDir()
	src := filepath.Join(t.TempDir(), "foo.pdb")
	writeFile(t, src, "unverified")

	n := NewNormalizer(cacheDir, nil)
	id := ident.SymbolIdentity{SimpleName: "foo.pdb"}

	got, err := n.Normalize(src, id)
	require.NoError(t, err)
	assert.Equal(t, src, got, "wildcard matches are not cached unless opted in")

	_, err = os.Stat(filepath.Join(cacheDir, "foo.pdb"))
	assert.True(t, os.IsNotExist(err))
}

func TestNormalize_WriteFailureReturnsOriginalPath(t *testing.T) {
	cacheDir := t.TempDir()
	src := filepath.Join(t.TempDir(), "foo.pdb")
	writeFile(t, src, "symbols")

	n := NewNormalizer(cacheDir, nil)
	id := testIdentity()

	// A stray file occupies the path the identity directory needs, so the
	// copy into the cache cannot proceed.
	writeFile(t, filepath.Join(cacheDir, "foo.pdb", id.Hex()), "in the way")

	got, err := n.Normalize(src, id)
	require.Error(t, err)
	assert.Equal(t, src, got, "original path must stay usable when caching fails")

	data, readErr := os.ReadFile(got)
	require.NoError(t, readErr)
	assert.Equal(t, "symbols", string(data))
}

func TestNormalize_WildcardCachedWhenOptedIn(t *testing.T) {
	cacheDir := t.TempDir()
	src := filepath.Join(t.TempDir(), "foo.pdb")
	writeFile(t, src, "unverified")

	n := NewNormalizer(cacheDir, nil)
	n.CacheUnsafe = true

	got, err := n.Normalize(src, ident.SymbolIdentity{SimpleName: "foo.pdb"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cacheDir, "foo.pdb"), got)
}

func TestNormalize_WildcardSkipsSlotHeldByIdentifiedEntries(t *testing.T) {
	cacheDir := t.TempDir()
	src := filepath.Join(t.TempDir(), "foo.pdb")
	writeFile(t, src, "unverified")

	// Identified entries already own the directory at the flat slot.
	identified := filepath.Join(cacheDir, "foo.pdb", "abc1", "foo.pdb")
	writeFile(t, identified, "identified")

	n := NewNormalizer(cacheDir, nil)
	n.CacheUnsafe = true

	got, err := n.Normalize(src, ident.SymbolIdentity{SimpleName: "foo.pdb"})
	require.Error(t, err)
	assert.Equal(t, src, got)

	data, readErr := os.ReadFile(identified)
	require.NoError(t, readErr)
	assert.Equal(t, "identified", string(data), "identified entries must survive")
}

func TestNormalizeExecutable(t *testing.T) {
	cacheDir := t.TempDir()
	src := filepath.Join(t.TempDir(), "app.exe")
	writeFile(t, src, "image")

	n := NewNormalizer(cacheDir, nil)
	id := ident.ExecutableIdentity{FileName: "app.exe", Timestamp: 0x5b7e1234, ImageSize: 0x21000}

	got, err := n.NormalizeExecutable(src, id)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cacheDir, "app.exe", "5b7e123421000", "app.exe"), got)
}

func TestJournal_RecordAndStats(t *testing.T) {
	cacheDir := t.TempDir()

	j, err := OpenJournal(cacheDir)
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.Record(Entry{Key: "foo.pdb/abc1/foo.pdb", SimpleName: "foo.pdb", Size: 100}))
	require.NoError(t, j.Record(Entry{Key: "bar.pdb/def2/bar.pdb", SimpleName: "bar.pdb", Size: 50}))

	count, size, err := j.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, int64(150), size)

	entries, err := j.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.False(t, entries[0].StoredAt.IsZero())

	require.NoError(t, j.Clear())

	count, _, err = j.Stats()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestNormalize_RecordsJournalEntry(t *testing.T) {
	cacheDir := t.TempDir()
	src := filepath.Join(t.TempDir(), "foo.pdb")
	writeFile(t, src, "symbols")

	j, err := OpenJournal(cacheDir)
	require.NoError(t, err)
	defer j.Close()

	n := NewNormalizer(cacheDir, nil)
	n.Journal = j
	id := testIdentity()

	_, err = n.Normalize(src, id)
	require.NoError(t, err)

	entries, err := j.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id.IndexPath(), entries[0].Key)
	assert.Equal(t, "foo.pdb", entries[0].SimpleName)
	assert.Equal(t, src, entries[0].Origin)
	assert.Equal(t, int64(len("symbols")), entries[0].Size)
}
