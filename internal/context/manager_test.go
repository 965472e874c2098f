package ctxmgr

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shehryarbajwa/warmcontext/pkg/models"
)

func newMemStore(t *testing.T) (*Store, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	store, err := NewStore(fs, "/data/contexts", zaptest.NewLogger(t))
	require.NoError(t, err)
	return store, fs
}

func writeFile(t *testing.T, fs afero.Fs, path string, data []byte) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, afero.WriteFile(fs, path, data, 0644))
}

func seedBase(t *testing.T, store *Store, fs afero.Fs) {
	t.Helper()
	base := store.BasePath()
	writeFile(t, fs, filepath.Join(base, "a.txt"), bytes.Repeat([]byte("a"), 10))
	writeFile(t, fs, filepath.Join(base, "sub", "b.txt"), bytes.Repeat([]byte("b"), 20))
}

func TestNewStore_CreatesRoot(t *testing.T) {
	store, fs := newMemStore(t)

	ok, err := afero.DirExists(fs, store.Root())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/data/contexts/base-context", store.BasePath())
	assert.Equal(t, "/data/contexts/session-abc", store.SessionPath("abc"))
}

func TestEnsureDirectory_Idempotent(t *testing.T) {
	store, fs := newMemStore(t)
	dir := "/data/contexts/x/y/z"

	require.NoError(t, store.EnsureDirectory(dir))
	require.NoError(t, store.EnsureDirectory(dir))

	ok, err := afero.DirExists(fs, dir)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEnsureDirectory_Failure(t *testing.T) {
	store, _ := newMemStore(t)
	store.fs = afero.NewReadOnlyFs(afero.NewMemMapFs())

	err := store.EnsureDirectory("/nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/nope")
}

func TestCopyContextTree_CopiesBaseWithoutBrowser(t *testing.T) {
	store, fs := newMemStore(t)
	seedBase(t, store, fs)

	target := store.SessionPath("s1")
	require.NoError(t, store.CopyContextTree(store.BasePath(), target))

	assert.Equal(t, int64(30), store.MeasureTreeSize(store.BasePath()))
	assert.Equal(t, int64(30), store.MeasureTreeSize(target))

	for _, rel := range []string{"a.txt", filepath.Join("sub", "b.txt")} {
		want, err := afero.ReadFile(fs, filepath.Join(store.BasePath(), rel))
		require.NoError(t, err)
		got, err := afero.ReadFile(fs, filepath.Join(target, rel))
		require.NoError(t, err)
		assert.Equal(t, want, got, rel)
	}
}

func TestCopyContextTree_ReplacesStaleTarget(t *testing.T) {
	store, fs := newMemStore(t)
	seedBase(t, store, fs)
	target := store.SessionPath("s1")

	writeFile(t, fs, filepath.Join(target, "stale.bin"), []byte("left over"))
	writeFile(t, fs, filepath.Join(target, "a.txt"), []byte("much longer than ten bytes"))

	require.NoError(t, store.CopyContextTree(store.BasePath(), target))
	require.NoError(t, store.CopyContextTree(store.BasePath(), target))

	exists, err := afero.Exists(fs, filepath.Join(target, "stale.bin"))
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, int64(30), store.MeasureTreeSize(target))
}

func TestCopyContextTree_IndependentOfSource(t *testing.T) {
	store, fs := newMemStore(t)
	seedBase(t, store, fs)
	target := store.SessionPath("s1")
	require.NoError(t, store.CopyContextTree(store.BasePath(), target))

	writeFile(t, fs, filepath.Join(target, "a.txt"), []byte("session write"))

	got, err := afero.ReadFile(fs, filepath.Join(store.BasePath(), "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte("a"), 10), got)
}

func TestCopyContextTree_RejectsOverlap(t *testing.T) {
	store, fs := newMemStore(t)
	seedBase(t, store, fs)
	base := store.BasePath()

	tests := []struct {
		name   string
		source string
		target string
	}{
		{"same path", base, base},
		{"target inside source", base, filepath.Join(base, "nested")},
		{"source inside target", filepath.Join(base, "sub"), base},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.CopyContextTree(tt.source, tt.target)
			require.ErrorIs(t, err, ErrOverlappingPaths)
			assert.Equal(t, int64(30), store.MeasureTreeSize(base))
		})
	}
}

func TestCopyContextTree_RejectsOverlapAcrossRelativeAndAbsolute(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := NewStore(fs, "contexts", zaptest.NewLogger(t))
	require.NoError(t, err)
	seedBase(t, store, fs)

	absBase, err := filepath.Abs(store.BasePath())
	require.NoError(t, err)

	err = store.CopyContextTree(store.BasePath(), filepath.Join(absBase, "nested"))
	require.ErrorIs(t, err, ErrOverlappingPaths)

	err = store.CopyContextTree(absBase, store.BasePath())
	require.ErrorIs(t, err, ErrOverlappingPaths)
	assert.Equal(t, int64(30), store.MeasureTreeSize(store.BasePath()))
}

func TestCopyContextTree_SiblingWithSharedPrefix(t *testing.T) {
	store, fs := newMemStore(t)
	seedBase(t, store, fs)

	target := store.BasePath() + "-copy"
	require.NoError(t, store.CopyContextTree(store.BasePath(), target))
	assert.Equal(t, int64(30), store.MeasureTreeSize(target))
}

func TestCopyContextTree_MissingSource(t *testing.T) {
	store, _ := newMemStore(t)

	err := store.CopyContextTree("/data/contexts/absent", store.SessionPath("s1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/data/contexts/absent")
}

func TestCopyContextTree_SkipsSymlinks(t *testing.T) {
	root := t.TempDir()
	store, err := NewStore(afero.NewOsFs(), root, zaptest.NewLogger(t))
	require.NoError(t, err)

	base := store.BasePath()
	require.NoError(t, os.MkdirAll(base, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "Cookies"), []byte("cookie-data"), 0600))
	require.NoError(t, os.Symlink("host-12345", filepath.Join(base, "SingletonLock")))

	target := store.SessionPath("s1")
	require.NoError(t, store.CopyContextTree(base, target))

	_, err = os.Lstat(filepath.Join(target, "SingletonLock"))
	assert.True(t, os.IsNotExist(err))

	data, err := os.ReadFile(filepath.Join(target, "Cookies"))
	require.NoError(t, err)
	assert.Equal(t, "cookie-data", string(data))

	info, err := os.Stat(filepath.Join(target, "Cookies"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestMeasureTreeSize(t *testing.T) {
	store, fs := newMemStore(t)

	assert.Equal(t, int64(0), store.MeasureTreeSize("/does/not/exist"))

	seedBase(t, store, fs)
	assert.Equal(t, int64(30), store.MeasureTreeSize(store.BasePath()))
	assert.Equal(t, int64(20), store.MeasureTreeSize(filepath.Join(store.BasePath(), "sub")))
}

func TestCloneAndRemoveSession(t *testing.T) {
	store, fs := newMemStore(t)
	seedBase(t, store, fs)

	id := NewSessionID()
	path, err := store.CloneBase(id)
	require.NoError(t, err)
	assert.Equal(t, store.SessionPath(id), path)
	assert.Equal(t, int64(30), store.MeasureTreeSize(path))

	require.NoError(t, store.RemoveSession(id))
	exists, err := afero.Exists(fs, path)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.CloneBase("")
	assert.Error(t, err)

	require.NoError(t, store.RemoveBase())
	_, ok := store.BaseContext()
	assert.False(t, ok)
}

func TestNewSessionID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewSessionID()
		require.False(t, seen[id])
		seen[id] = true
	}
}

func TestBaseContext(t *testing.T) {
	store, fs := newMemStore(t)

	_, ok := store.BaseContext()
	assert.False(t, ok)

	require.NoError(t, store.EnsureDirectory(store.BasePath()))
	_, ok = store.BaseContext()
	assert.False(t, ok, "empty base counts as missing")

	seedBase(t, store, fs)
	base, ok := store.BaseContext()
	require.True(t, ok)
	assert.Equal(t, models.KindBase, base.Kind)
	assert.Equal(t, int64(30), base.SizeBytes)
	assert.Equal(t, "30.00 Bytes", base.Size)
}

func TestListContexts(t *testing.T) {
	store, fs := newMemStore(t)
	seedBase(t, store, fs)
	_, err := store.CloneBase("one")
	require.NoError(t, err)
	writeFile(t, fs, filepath.Join(store.Root(), "notes.txt"), []byte("ignored"))
	require.NoError(t, store.EnsureDirectory(filepath.Join(store.Root(), "unrelated")))

	contexts, err := store.ListContexts()
	require.NoError(t, err)
	require.Len(t, contexts, 2)

	assert.Equal(t, models.BaseContextID, contexts[0].ID)
	assert.Equal(t, models.KindBase, contexts[0].Kind)
	assert.Equal(t, "one", contexts[1].ID)
	assert.Equal(t, models.KindSession, contexts[1].Kind)
	assert.Equal(t, int64(30), contexts[1].SizeBytes)
}
