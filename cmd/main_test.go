package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("DSPOT_TEST_SELECTOR=diversity\n"), 0644))

	t.Run("flag with separate value", func(t *testing.T) {
		t.Setenv("DSPOT_TEST_SELECTOR", "")
		require.NoError(t, os.Unsetenv("DSPOT_TEST_SELECTOR"))
		require.NoError(t, loadEnvFile([]string{"--search-path", "bin", "--env-file", path}))
		require.Equal(t, "diversity", os.Getenv("DSPOT_TEST_SELECTOR"))
	})

	t.Run("flag with inline value", func(t *testing.T) {
		t.Setenv("DSPOT_TEST_SELECTOR", "")
		require.NoError(t, os.Unsetenv("DSPOT_TEST_SELECTOR"))
		require.NoError(t, loadEnvFile([]string{"--env-file=" + path}))
		require.Equal(t, "diversity", os.Getenv("DSPOT_TEST_SELECTOR"))
	})

	t.Run("exported variables win", func(t *testing.T) {
		t.Setenv("DSPOT_TEST_SELECTOR", "random")
		require.NoError(t, loadEnvFile([]string{"--env-file", path}))
		require.Equal(t, "random", os.Getenv("DSPOT_TEST_SELECTOR"))
	})

	t.Run("missing file", func(t *testing.T) {
		require.Error(t, loadEnvFile([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}))
	})

	t.Run("no env file", func(t *testing.T) {
		t.Setenv("DSPOT_ENV_FILE", "")
		require.NoError(t, loadEnvFile([]string{"--search-path", "bin"}))
	})
}
