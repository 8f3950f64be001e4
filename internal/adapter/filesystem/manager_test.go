package filesystem

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)
	return m
}

func TestManager_Probe(t *testing.T) {
	m := newTestManager(t)

	path := filepath.Join(m.RootDir(), "sample.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0644))

	info, err := m.Probe(path)
	require.NoError(t, err)
	assert.True(t, info.Exists)
	assert.Equal(t, int64(11), info.Size)
	assert.Equal(t, "sample.txt", info.Name)
	assert.Equal(t, path, info.URI)
	assert.True(t, strings.HasPrefix(info.MimeType, "text/plain"), "mime type %q", info.MimeType)
}

func TestManager_ProbeFileScheme(t *testing.T) {
	m := newTestManager(t)

	path := filepath.Join(m.RootDir(), "doc.bin")
	require.NoError(t, os.WriteFile(path, []byte{0x00, 0x01, 0x02}, 0644))

	info, err := m.Probe("file://" + path)
	require.NoError(t, err)
	assert.True(t, info.Exists)
	assert.Equal(t, int64(3), info.Size)
	assert.Equal(t, "file://"+path, info.URI)
}

func TestManager_ProbeMissing(t *testing.T) {
	m := newTestManager(t)

	info, err := m.Probe(filepath.Join(m.RootDir(), "missing.pdf"))
	require.NoError(t, err)
	assert.False(t, info.Exists)
	assert.Equal(t, int64(0), info.Size)
	assert.Equal(t, "missing.pdf", info.Name)
	assert.Equal(t, "application/octet-stream", info.MimeType)
}

func TestManager_ProbeDirectory(t *testing.T) {
	m := newTestManager(t)

	info, err := m.Probe(m.RootDir())
	require.NoError(t, err)
	assert.False(t, info.Exists)
}

func TestManager_Resolve(t *testing.T) {
	m := newTestManager(t)

	assert.Equal(t, filepath.Join(m.RootDir(), "a", "b.bin"), m.Resolve("a/b.bin"))
	assert.Equal(t, "/abs/file.bin", m.Resolve("/abs/file.bin"))
	assert.Equal(t, "/abs/file.bin", m.Resolve("file:///abs/file.bin"))
	assert.Equal(t, "/abs/file.bin"+TempSuffix, m.TempPath("/abs/file.bin"))
}

func TestManager_WriteFileWithResume(t *testing.T) {
	m := newTestManager(t)
	dest := filepath.Join(m.RootDir(), "nested", "out.bin")

	// Fresh write
	final, written, err := m.WriteFileWithResume(dest, strings.NewReader("hello"), false, "")
	require.NoError(t, err)
	assert.Equal(t, dest, final)
	assert.Equal(t, int64(5), written)
	assert.False(t, m.FileExists(m.TempPath(dest)))

	// Resume appends to an existing temp file
	tempPath := m.TempPath(dest)
	require.NoError(t, os.WriteFile(tempPath, []byte("hello "), 0644))

	final, written, err = m.WriteFileWithResume(dest, strings.NewReader("world"), true, tempPath)
	require.NoError(t, err)
	assert.Equal(t, int64(11), written)

	data, err := os.ReadFile(final)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

type failingReader struct {
	data []byte
	sent bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.sent {
		return 0, errors.New("connection reset")
	}
	r.sent = true
	return copy(p, r.data), nil
}

func TestManager_WriteFileWithResumeKeepsPartialData(t *testing.T) {
	m := newTestManager(t)
	dest := filepath.Join(m.RootDir(), "partial.bin")
	tempPath := m.TempPath(dest)

	_, written, err := m.WriteFileWithResume(dest, &failingReader{data: []byte("abc")}, false, tempPath)
	require.Error(t, err)
	assert.Equal(t, int64(3), written)

	size, _, err := m.GetTempFileInfo(tempPath)
	require.NoError(t, err)
	assert.Equal(t, int64(3), size)
	assert.False(t, m.FileExists(dest))
}

func TestManager_CleanOldTempFiles(t *testing.T) {
	m := newTestManager(t)

	old := filepath.Join(m.RootDir(), "old.bin"+TempSuffix)
	kept := filepath.Join(m.RootDir(), "kept.bin"+TempSuffix)
	fresh := filepath.Join(m.RootDir(), "fresh.bin"+TempSuffix)
	regular := filepath.Join(m.RootDir(), "regular.bin")

	for _, p := range []string{old, kept, fresh, regular} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
	}

	past := time.Now().Add(-2 * time.Hour)
	for _, p := range []string{old, kept, regular} {
		require.NoError(t, os.Chtimes(p, past, past))
	}

	count, err := m.CleanOldTempFiles(time.Hour, func(tempPath string) bool {
		return tempPath == kept
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.False(t, m.FileExists(old))
	assert.True(t, m.FileExists(kept))
	assert.True(t, m.FileExists(fresh))
	assert.True(t, m.FileExists(regular))
}

func TestManager_DeleteTempFileMissing(t *testing.T) {
	m := newTestManager(t)
	assert.NoError(t, m.DeleteTempFile(filepath.Join(m.RootDir(), "nope"+TempSuffix)))
}

func TestManager_GetDiskUsage(t *testing.T) {
	m := newTestManager(t)

	usage, err := m.GetDiskUsage("")
	require.NoError(t, err)
	assert.True(t, usage.Total > 0)
	assert.True(t, usage.Free <= usage.Total)
}
