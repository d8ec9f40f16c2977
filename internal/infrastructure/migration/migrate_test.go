package migration

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList(t *testing.T) {
	t.Run("lists up migrations in order", func(t *testing.T) {
		dir := t.TempDir()
		for _, name := range []string{
			"000002_b.up.sql", "000002_b.down.sql",
			"000001_a.up.sql", "000001_a.down.sql",
			"README.md",
		} {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o600))
		}

		names, err := List(dir)
		require.NoError(t, err)
		assert.Equal(t, []string{"000001_a", "000002_b"}, names)
	})

	t.Run("missing directory", func(t *testing.T) {
		_, err := List(filepath.Join(t.TempDir(), "nope"))
		require.Error(t, err)
	})

	t.Run("repository migrations are paired", func(t *testing.T) {
		_, file, _, ok := runtime.Caller(0)
		require.True(t, ok)
		dir := filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations")

		names, err := List(dir)
		require.NoError(t, err)
		require.NotEmpty(t, names)
		for _, n := range names {
			_, err := os.Stat(filepath.Join(dir, n+".down.sql"))
			assert.NoError(t, err, "missing down migration for %s", n)
		}
	})
}
