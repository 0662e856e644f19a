package source

import (
	"context"
	"crypto/md5"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binref/symfind/internal/provider"
)

func md5Of(content string) []byte {
	sum := md5.Sum([]byte(content))
	return sum[:]
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLocate_BuildTimePathWithMatchingChecksum(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "main.c")
	writeFile(t, p, "int main() {}\n")

	rec := provider.SourceFileRecord{
		BuildTimePath: p,
		ChecksumKind:  provider.ChecksumMD5,
		Checksum:      md5Of("int main() {}\n"),
	}

	l := NewLocator(nil, nil)

	res, err := l.Locate(context.Background(), rec, "")
	require.NoError(t, err)
	assert.Equal(t, p, res.Path)
	assert.True(t, res.ChecksumMatches)
}

func TestLocate_NoChecksumAlwaysMatches(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "main.c")
	writeFile(t, p, "anything")

	l := NewLocator(nil, nil)

	res, err := l.Locate(context.Background(), provider.SourceFileRecord{BuildTimePath: p}, "")
	require.NoError(t, err)
	assert.Equal(t, p, res.Path)
	assert.True(t, res.ChecksumMatches)
}

func TestLocate_ChecksumMismatchStrict(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "main.c")
	writeFile(t, p, "edited since the build")

	rec := provider.SourceFileRecord{
		BuildTimePath: p,
		ChecksumKind:  provider.ChecksumMD5,
		Checksum:      md5Of("original content"),
	}

	l := NewLocator(nil, nil)

	_, err := l.Locate(context.Background(), rec, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocate_ChecksumMismatchBestGuess(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "main.c")
	writeFile(t, p, "edited since the build")

	rec := provider.SourceFileRecord{
		BuildTimePath: p,
		ChecksumKind:  provider.ChecksumMD5,
		Checksum:      md5Of("original content"),
	}

	l := NewLocator(nil, nil)
	l.RequireChecksumMatch = false

	res, err := l.Locate(context.Background(), rec, "")
	require.NoError(t, err)
	assert.Equal(t, p, res.Path)
	assert.False(t, res.ChecksumMatches)
}

func TestLocate_SourcePathSuffixProbing(t *testing.T) {
	srcRoot := t.TempDir()
	writeFile(t, filepath.Join(srcRoot, "proj", "src", "util", "main.c"), "source")

	rec := provider.SourceFileRecord{
		BuildTimePath: `c:\dev\proj\src\util\main.c`,
		ChecksumKind:  provider.ChecksumMD5,
		Checksum:      md5Of("source"),
	}

	l := NewLocator([]string{srcRoot}, nil)

	res, err := l.Locate(context.Background(), rec, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(srcRoot, "proj", "src", "util", "main.c"), res.Path)
	assert.True(t, res.ChecksumMatches)
}

func TestLocate_SuffixProbingFindsBareFileName(t *testing.T) {
	srcRoot := t.TempDir()
	writeFile(t, filepath.Join(srcRoot, "main.c"), "source")

	rec := provider.SourceFileRecord{BuildTimePath: `c:\dev\elsewhere\main.c`}

	l := NewLocator([]string{srcRoot}, nil)

	res, err := l.Locate(context.Background(), rec, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(srcRoot, "main.c"), res.Path)
}

func TestLocate_ChecksumGatesSuffixProbe(t *testing.T) {
	srcRoot := t.TempDir()
	writeFile(t, filepath.Join(srcRoot, "main.c"), "wrong content")

	rec := provider.SourceFileRecord{
		BuildTimePath: `c:\dev\main.c`,
		ChecksumKind:  provider.ChecksumMD5,
		Checksum:      md5Of("right content"),
	}

	l := NewLocator([]string{srcRoot}, nil)

	_, err := l.Locate(context.Background(), rec, "")
	assert.ErrorIs(t, err, ErrNotFound)

	l.RequireChecksumMatch = false
	res, err := l.Locate(context.Background(), rec, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(srcRoot, "main.c"), res.Path)
	assert.False(t, res.ChecksumMatches)
}

func TestLocate_ExeAncestorsProbedFirst(t *testing.T) {
	build := t.TempDir()
	writeFile(t, filepath.Join(build, "bin", "app.exe"), "image")
	writeFile(t, filepath.Join(build, "main.c"), "source")

	rec := provider.SourceFileRecord{BuildTimePath: `c:\other\main.c`}

	l := NewLocator(nil, nil)

	res, err := l.Locate(context.Background(), rec, filepath.Join(build, "bin", "app.exe"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(build, "main.c"), res.Path)
}

type fakeServerProvider struct {
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	calls    atomic.Int32
	dir      string
}

func (f *fakeServerProvider) FetchSource(ctx context.Context, rec provider.SourceFileRecord) (string, error) {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)

	for {
		old := f.maxSeen.Load()
		if cur <= old || f.maxSeen.CompareAndSwap(old, cur) {
			break
		}
	}

	f.calls.Add(1)
	time.Sleep(20 * time.Millisecond)

	p := filepath.Join(f.dir, filepath.Base(rec.BuildTimePath))
	if err := os.WriteFile(p, []byte("from source server"), 0o644); err != nil {
		return "", err
	}

	return p, nil
}

func TestLocate_SourceServerAcceptedUnconditionally(t *testing.T) {
	srv := &fakeServerProvider{dir: t.TempDir()}

	l := NewLocator(nil, nil)
	l.Server = srv

	// The record has a checksum that nothing on disk matches; the source
	// server result is still accepted as-is.
	rec := provider.SourceFileRecord{
		BuildTimePath: `c:\dev\main.c`,
		ChecksumKind:  provider.ChecksumMD5,
		Checksum:      md5Of("whatever the build saw"),
	}

	res, err := l.Locate(context.Background(), rec, "")
	require.NoError(t, err)
	assert.True(t, res.ChecksumMatches)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "from source server", string(data))
}

func TestLocate_SourceServerQueriesAreSerialized(t *testing.T) {
	srv := &fakeServerProvider{dir: t.TempDir()}

	l := NewLocator(nil, nil)
	l.Server = srv

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			rec := provider.SourceFileRecord{BuildTimePath: `c:\dev\main.c`}
			_, err := l.Locate(context.Background(), rec, "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), srv.maxSeen.Load(), "at most one source-server query in flight")
	assert.Equal(t, int32(8), srv.calls.Load(), "every caller runs its own query")
}

func TestLocate_LiteralConstruction(t *testing.T) {
	// A Locator built without NewLocator still serves source-server
	// queries; nothing in it requires pre-initialization.
	srv := &fakeServerProvider{dir: t.TempDir()}
	l := &Locator{Server: srv}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := l.Locate(ctx, provider.SourceFileRecord{BuildTimePath: `c:\dev\main.c`}, "")
	require.NoError(t, err)
	assert.Equal(t, int32(1), srv.calls.Load())

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "from source server", string(data))
}

func TestLocate_WaiterCancellation(t *testing.T) {
	l := NewLocator(nil, nil)
	l.Server = &fakeServerProvider{dir: t.TempDir()}

	// Occupy the single query slot.
	l.semaphore() <- struct{}{}
	defer func() { <-l.sem }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := l.Locate(ctx, provider.SourceFileRecord{BuildTimePath: `c:\dev\main.c`}, "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPathSuffixes(t *testing.T) {
	got := pathSuffixes(`c:\dev\proj\main.c`)
	assert.Equal(t, []string{
		filepath.Join("dev", "proj", "main.c"),
		filepath.Join("proj", "main.c"),
		"main.c",
	}, got)

	got = pathSuffixes("/home/user/main.c")
	assert.Equal(t, []string{
		filepath.Join("home", "user", "main.c"),
		filepath.Join("user", "main.c"),
		"main.c",
	}, got)
}
