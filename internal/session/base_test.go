package session

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseExportImport(t *testing.T) {
	src := newFixture(t, 1)

	_, err := src.manager.BaseContext()
	assert.ErrorIs(t, err, ErrBaseContextMissing)
	assert.ErrorIs(t, src.manager.ExportBase(&bytes.Buffer{}), ErrBaseContextMissing)

	src.seedBase(t)
	base, err := src.manager.BaseContext()
	require.NoError(t, err)
	assert.Equal(t, int64(4096), base.SizeBytes)

	var archive bytes.Buffer
	require.NoError(t, src.manager.ExportBase(&archive))

	dst := newFixture(t, 1)
	imported, err := dst.manager.ImportBase(&archive)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), imported.SizeBytes)
	assert.Equal(t, "4.00 KB", imported.Size)
}
