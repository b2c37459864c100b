package serial

import (
	"os"
	"path/filepath"
	"testing"

	"filippo.io/age"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	c := NewAgeCipher(identity)

	sealed, err := c.Seal("SN-4471-B")
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "SN-4471-B")

	got, err := c.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "SN-4471-B", got)
}

func TestOpenWithWrongIdentity(t *testing.T) {
	a, _ := age.GenerateX25519Identity()
	b, _ := age.GenerateX25519Identity()

	sealed, err := NewAgeCipher(a).Seal("secret")
	require.NoError(t, err)

	_, err = NewAgeCipher(b).Open(sealed)
	assert.Error(t, err)
}

func TestGenerateAndLoadIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "serial.key")

	identity, err := GenerateIdentity(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadAgeCipher(path)
	require.NoError(t, err)

	sealed, err := NewAgeCipher(identity).Seal("abc")
	require.NoError(t, err)
	got, err := loaded.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "abc", got)

	_, err = GenerateIdentity(path)
	assert.Error(t, err, "existing identity must not be overwritten")
}
