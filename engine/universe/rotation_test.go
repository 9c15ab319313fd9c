package universe

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteWithRotationNewFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "sub", "a.yaml")
	require.NoError(t, WriteWithRotation(p, []byte("v1")))

	assert.Equal(t, "v1", string(readFile(t, p)))
	assert.NoFileExists(t, p+".bak")
	assert.NoFileExists(t, p+".prev")
	assert.NoFileExists(t, p+".temp")
}

func TestWriteWithRotationKeepsFirstBackup(t *testing.T) {
	p := filepath.Join(t.TempDir(), "a.yaml")
	writeFile(t, p, []byte("original"))

	require.NoError(t, WriteWithRotation(p, []byte("v1")))
	assert.Equal(t, "v1", string(readFile(t, p)))
	assert.Equal(t, "original", string(readFile(t, p+".bak")))
	assert.Equal(t, "original", string(readFile(t, p+".prev")))
	assert.NoFileExists(t, p+".temp")

	require.NoError(t, WriteWithRotation(p, []byte("v2")))
	assert.Equal(t, "v2", string(readFile(t, p)))
	assert.Equal(t, "original", string(readFile(t, p+".bak")))
	assert.Equal(t, "v1", string(readFile(t, p+".prev")))
	assert.NoFileExists(t, p+".temp")
}
