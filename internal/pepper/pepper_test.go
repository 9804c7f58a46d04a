package pepper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSource_ExplicitValueWins(t *testing.T) {
	s := NewSource("explicit-pepper", filepath.Join(t.TempDir(), "pepper"))

	got, err := s.Get()
	require.NoError(t, err)
	assert.Equal(t, []byte("explicit-pepper"), got)
}

func TestSource_EnvOverridesFile(t *testing.T) {
	old := os.Getenv("API_KEY_PEPPER")
	os.Setenv("API_KEY_PEPPER", "env-pepper")
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv("API_KEY_PEPPER")
		} else {
			os.Setenv("API_KEY_PEPPER", old)
		}
	})

	path := filepath.Join(t.TempDir(), "pepper")
	require.NoError(t, os.WriteFile(path, []byte("file-pepper"), 0o600))

	s := NewSource("", path)
	got, err := s.Get()
	require.NoError(t, err)
	assert.Equal(t, []byte("env-pepper"), got)
}

func TestSource_ReadsExistingFile(t *testing.T) {
	os.Unsetenv("API_KEY_PEPPER")

	path := filepath.Join(t.TempDir(), "pepper")
	require.NoError(t, os.WriteFile(path, []byte("persisted"), 0o600))

	s := NewSource("", path)
	got, err := s.Get()
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), got)
}

func TestSource_GeneratesAndPersists(t *testing.T) {
	os.Unsetenv("API_KEY_PEPPER")

	path := filepath.Join(t.TempDir(), "data", "pepper")
	s := NewSource("", path)

	got, err := s.Get()
	require.NoError(t, err)
	assert.Len(t, got, Size)

	// Must be on disk before anyone could mint a credential with it
	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, got, onDisk)

	// A second source reading the same path sees the same pepper, never a
	// regenerated one
	s2 := NewSource("", path)
	got2, err := s2.Get()
	require.NoError(t, err)
	assert.Equal(t, got, got2)
}

func TestSource_CachesAcrossCalls(t *testing.T) {
	os.Unsetenv("API_KEY_PEPPER")

	path := filepath.Join(t.TempDir(), "pepper")
	s := NewSource("", path)

	first, err := s.Get()
	require.NoError(t, err)

	// Deleting the file must not matter; the value is process-lifetime cached
	require.NoError(t, os.Remove(path))

	second, err := s.Get()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSource_EmptyFileRejected(t *testing.T) {
	os.Unsetenv("API_KEY_PEPPER")

	path := filepath.Join(t.TempDir(), "pepper")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	s := NewSource("", path)
	_, err := s.Get()
	assert.Error(t, err)
}
