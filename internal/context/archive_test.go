package ctxmgr

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportImportBase(t *testing.T) {
	src, srcFS := newMemStore(t)
	seedBase(t, src, srcFS)

	var archive bytes.Buffer
	require.NoError(t, src.ExportBase(&archive))

	dst, dstFS := newMemStore(t)
	writeFile(t, dstFS, filepath.Join(dst.BasePath(), "old.bin"), []byte("stale"))

	require.NoError(t, dst.ImportBase(bytes.NewReader(archive.Bytes())))
	assert.Equal(t, int64(30), dst.MeasureTreeSize(dst.BasePath()))

	got, err := afero.ReadFile(dstFS, filepath.Join(dst.BasePath(), "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte("b"), 20), got)

	exists, err := afero.Exists(dstFS, filepath.Join(dst.BasePath(), "old.bin"))
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = afero.Exists(dstFS, filepath.Join(dst.Root(), importStagingName))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestExportBase_Missing(t *testing.T) {
	store, _ := newMemStore(t)
	var archive bytes.Buffer
	assert.Error(t, store.ExportBase(&archive))
}

func TestImportBase_RejectsTraversal(t *testing.T) {
	var archive bytes.Buffer
	gz := gzip.NewWriter(&archive)
	tw := tar.NewWriter(gz)
	payload := []byte("evil")
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "../../escape.txt",
		Mode:     0644,
		Size:     int64(len(payload)),
		Typeflag: tar.TypeReg,
	}))
	_, err := tw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	store, fs := newMemStore(t)
	err = store.ImportBase(&archive)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes")

	exists, err := afero.Exists(fs, "/data/escape.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestImportBase_EmptyArchiveKeepsBase(t *testing.T) {
	directoriesOnly := func(t *testing.T) []byte {
		var archive bytes.Buffer
		gz := gzip.NewWriter(&archive)
		tw := tar.NewWriter(gz)
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: "Default/", Mode: 0755, Typeflag: tar.TypeDir}))
		require.NoError(t, tw.Close())
		require.NoError(t, gz.Close())
		return archive.Bytes()
	}
	empty := func(t *testing.T) []byte {
		var archive bytes.Buffer
		gz := gzip.NewWriter(&archive)
		require.NoError(t, tar.NewWriter(gz).Close())
		require.NoError(t, gz.Close())
		return archive.Bytes()
	}

	for name, build := range map[string]func(*testing.T) []byte{
		"empty":            empty,
		"directories only": directoriesOnly,
		"not gzip":         func(*testing.T) []byte { return []byte("plain text") },
	} {
		t.Run(name, func(t *testing.T) {
			store, fs := newMemStore(t)
			seedBase(t, store, fs)

			err := store.ImportBase(bytes.NewReader(build(t)))
			require.ErrorIs(t, err, ErrInvalidArchive)
			assert.Equal(t, int64(30), store.MeasureTreeSize(store.BasePath()))
		})
	}
}
