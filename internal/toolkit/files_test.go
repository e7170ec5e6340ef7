package toolkit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspectUploadDirListsFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.bin"), []byte{1, 2}, 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))

	files, err := InspectUploadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 2, "directories are skipped")

	assert.Equal(t, "a.bin", files[0].FileName)
	assert.Equal(t, "application/octet-stream", files[0].FileType)
	assert.Equal(t, filepath.Join(dir, "a.bin"), files[0].FilePath)

	assert.Equal(t, "b.json", files[1].FileName)
	assert.True(t, strings.HasPrefix(files[1].FileType, "application/json"))
}

func TestInspectUploadDirCreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")

	files, err := InspectUploadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, files)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
