package git_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/git"
	"go.trai.ch/kiln/internal/core/domain"
)

func TestFetcher_Supports(t *testing.T) {
	f := git.NewFetcher()

	tests := []struct {
		ref  string
		want bool
	}{
		{"git+https://example.com/org/app", true},
		{"git+file:///srv/repo#main", true},
		{"https://example.com/org/app.git", true},
		{"https://example.com/org/app.git#v1.2.0", true},
		{"git@example.com:org/app.git", true},
		{"ssh://git@example.com/org/app.git", true},
		{"https://example.com/archive.tar.gz", false},
		{"./context", false},
		{"/abs/context", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, f.Supports(tt.ref), tt.ref)
	}
}

func TestParseRemote(t *testing.T) {
	assert.Equal(t, git.Remote{URL: "https://example.com/app.git", Ref: "v1"}, git.ParseRemote("git+https://example.com/app.git#v1"))
	assert.Equal(t, git.Remote{URL: "https://example.com/app.git"}, git.ParseRemote("https://example.com/app.git"))
}

// sourceRepo creates a repository with one commit on main and a v1 tag.
func sourceRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := gogit.PlainInitWithOptions(dir, &gogit.PlainInitOptions{
		InitOptions: gogit.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName("main")},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte("flask==3.0.0\n"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("requirements.txt")
	require.NoError(t, err)
	hash, err := wt.Commit("init", &gogit.CommitOptions{
		Author: &object.Signature{Name: "kiln", Email: "kiln@example.com", When: time.Unix(0, 0)},
	})
	require.NoError(t, err)
	_, err = repo.CreateTag("v1", hash, nil)
	require.NoError(t, err)
	return dir
}

func TestFetcher_Fetch(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary required for the file transport")
	}
	src := sourceRepo(t)

	for _, ref := range []string{"git+file://" + src, "git+file://" + src + "#main", "git+file://" + src + "#v1"} {
		t.Run(ref, func(t *testing.T) {
			dest := filepath.Join(t.TempDir(), "ctx")
			require.NoError(t, git.NewFetcher().Fetch(context.Background(), ref, dest))
			assert.FileExists(t, filepath.Join(dest, "requirements.txt"))
			assert.NoDirExists(t, filepath.Join(dest, ".git"))
		})
	}
}

func TestFetcher_Fetch_Errors(t *testing.T) {
	f := git.NewFetcher()

	t.Run("destination exists", func(t *testing.T) {
		err := f.Fetch(context.Background(), "git+file:///nowhere", t.TempDir())
		assert.ErrorIs(t, err, domain.ErrContextFetchFailed)
	})

	t.Run("missing repository", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "ctx")
		err := f.Fetch(context.Background(), "git+file://"+filepath.Join(t.TempDir(), "missing")+"#main", dest)
		assert.ErrorIs(t, err, domain.ErrContextFetchFailed)
		assert.NoDirExists(t, dest)
	})
}
