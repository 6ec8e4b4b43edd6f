package fs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/fs"
	"go.trai.ch/kiln/internal/core/domain"
)

func TestResolver_Resolve(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "ctx")
	writeTree(t, parent, map[string]string{
		"ctx/requirements.txt": "flask==3.0.0",
		"ctx/src/app.py":       "",
		"requirements.txt":     "outside",
	})
	require.NoError(t, os.Symlink(filepath.Join(parent, "requirements.txt"), filepath.Join(root, "escape.txt")))

	r := fs.NewResolver()

	t.Run("relative inside", func(t *testing.T) {
		got, err := r.Resolve(root, "requirements.txt")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "requirements.txt"), got)
	})

	t.Run("absolute inside", func(t *testing.T) {
		got, err := r.Resolve(root, filepath.Join(root, "src", "app.py"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "src", "app.py"), got)
	})

	t.Run("missing path is returned", func(t *testing.T) {
		got, err := r.Resolve(root, "missing.txt")
		require.NoError(t, err)
		assert.False(t, fs.Exists(got))
	})

	t.Run("parent escape", func(t *testing.T) {
		_, err := r.Resolve(root, "../requirements.txt")
		require.ErrorIs(t, err, domain.ErrPathOutsideContext)
	})

	t.Run("absolute outside", func(t *testing.T) {
		_, err := r.Resolve(root, filepath.Join(parent, "requirements.txt"))
		require.ErrorIs(t, err, domain.ErrPathOutsideContext)
	})

	t.Run("symlink escape", func(t *testing.T) {
		_, err := r.Resolve(root, "escape.txt")
		require.ErrorIs(t, err, domain.ErrPathOutsideContext)
	})

	t.Run("sibling with common prefix", func(t *testing.T) {
		_, err := r.Resolve(root, "../ctx-other/file")
		require.ErrorIs(t, err, domain.ErrPathOutsideContext)
	})
}
