package cipher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lowWorkFactor keeps scrypt fast in tests.
const lowWorkFactor = 10

func TestAge_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bak20240115.zip")
	plain := randomBytes(5000)
	require.NoError(t, os.WriteFile(src, plain, 0644))

	a := NewAge("test-passphrase", lowWorkFactor)
	assert.Equal(t, "age", a.Name())

	encPath, err := a.EncryptFile(src)
	require.NoError(t, err)
	assert.Equal(t, src+".enc", encPath)

	enc, err := os.ReadFile(encPath)
	require.NoError(t, err)
	assert.NotContains(t, string(enc), string(plain[:64]))

	dest := filepath.Join(dir, "out.zip")
	require.NoError(t, NewAge("test-passphrase", 0).DecryptFile(encPath, dest))
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestAge_WrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.tar")
	require.NoError(t, os.WriteFile(src, []byte("secret data"), 0644))

	encPath, err := NewAge("right", lowWorkFactor).EncryptFile(src)
	require.NoError(t, err)

	err = NewAge("wrong", 0).DecryptFile(encPath, filepath.Join(dir, "out"))
	assert.Error(t, err)
}
