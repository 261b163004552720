package transfer

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, path string) []byte {
	t.Helper()
	w, err := Create(path)
	require.NoError(t, err)
	_, err = w.Write([]byte(`{"data":[]}`))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	return b
}

func TestPlainRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cube.json")
	assert.Equal(t, `{"data":[]}`, string(roundTrip(t, path)))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"data":[]}`, string(raw))
}

func TestCompressedRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cube.json.zst")
	assert.True(t, Compressed(path))
	assert.Equal(t, `{"data":[]}`, string(roundTrip(t, path)))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEqual(t, `{"data":[]}`, string(raw))
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
