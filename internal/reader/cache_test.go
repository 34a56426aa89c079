package reader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plotsync/plotsync/internal/types"
)

func newStubCache(t *testing.T, calls *int) *Cache {
	t.Helper()
	reg := NewRegistry()
	reg.Register(types.FormatMarkdown, func() Reader { return &stubReader{format: types.FormatMarkdown, calls: calls} })
	c, err := NewCache(reg, 4)
	require.NoError(t, err)
	return c
}

func TestCacheReusesUnchangedSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outline.md")
	require.NoError(t, os.WriteFile(path, []byte("# One\n"), 0o644))

	calls := 0
	c := newStubCache(t, &calls)
	ctx := context.Background()

	first, err := c.Parse(ctx, types.FormatMarkdown, Input{Path: path})
	require.NoError(t, err)
	first.Chapters[0].Title = "mutated"

	second, err := c.Parse(ctx, types.FormatMarkdown, Input{Path: path})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "One", second.Chapters[0].Title, "callers must get independent copies")
	assert.Equal(t, 1, c.Len())

	require.NoError(t, os.WriteFile(path, []byte("# One\n## Two\n"), 0o644))
	_, err = c.Parse(ctx, types.FormatMarkdown, Input{Path: path})
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "a changed source must be parsed again")

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

type scopedStub struct {
	stubReader
}

func (s *scopedStub) SourceRoot(path string) string { return filepath.Dir(path) }

func TestCacheWatchesReaderSourceRoot(t *testing.T) {
	dir := t.TempDir()
	index := filepath.Join(dir, "Index.md")
	note := filepath.Join(dir, "scenes", "One.md")
	require.NoError(t, os.WriteFile(index, []byte("index"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Dir(note), 0o755))
	require.NoError(t, os.WriteFile(note, []byte("title: One"), 0o644))

	calls := 0
	reg := NewRegistry()
	reg.Register(types.FormatVault, func() Reader {
		return &scopedStub{stubReader{format: types.FormatVault, calls: &calls}}
	})
	c, err := NewCache(reg, 4)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.Parse(ctx, types.FormatVault, Input{Path: index})
	require.NoError(t, err)
	_, err = c.Parse(ctx, types.FormatVault, Input{Path: index})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	require.NoError(t, os.WriteFile(note, []byte("title: One, revised"), 0o644))
	_, err = c.Parse(ctx, types.FormatVault, Input{Path: index})
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "editing a note beside the index must invalidate the entry")
}

func TestCacheDirectoryFingerprint(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("a"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".hidden"), 0o755))

	before, err := fingerprint(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden", "x.md"), []byte("ignored"), 0o644))
	same, err := fingerprint(dir)
	require.NoError(t, err)
	assert.Equal(t, before, same, "hidden directories do not count")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("bb"), 0o644))
	after, err := fingerprint(dir)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}

func TestCacheErrors(t *testing.T) {
	calls := 0
	c := newStubCache(t, &calls)

	_, err := c.Parse(context.Background(), types.FormatVault, Input{Path: "x"})
	assert.Error(t, err, "unregistered format")

	_, err = c.Parse(context.Background(), types.FormatMarkdown, Input{Path: filepath.Join(t.TempDir(), "missing.md")})
	var nf *types.NotFoundError
	assert.True(t, errors.As(err, &nf))
	assert.Equal(t, 0, calls)
}
