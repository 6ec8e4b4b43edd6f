// Package git fetches remote build contexts from Git repositories.
package git

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
)

var _ ports.ContextFetcher = (*Fetcher)(nil)

const gitPrefix = "git+"

// Fetcher implements ports.ContextFetcher with shallow clones.
type Fetcher struct {
	auth transport.AuthMethod
}

// NewFetcher creates a new Fetcher authenticating HTTPS remotes from GITHUB_TOKEN, GITLAB_TOKEN or GIT_TOKEN.
func NewFetcher() *Fetcher {
	return &Fetcher{auth: httpAuth()}
}

// Remote is a parsed remote context reference.
type Remote struct {
	URL string
	// Ref is a branch or tag name; empty selects the remote HEAD.
	Ref string
}

// ParseRemote splits "[git+]<url>[#<ref>]" into its parts.
func ParseRemote(ref string) Remote {
	url := strings.TrimPrefix(ref, gitPrefix)
	url, branch, _ := strings.Cut(url, "#")
	return Remote{URL: url, Ref: branch}
}

// Supports reports whether ref names a Git remote.
func (f *Fetcher) Supports(ref string) bool {
	if strings.HasPrefix(ref, gitPrefix) {
		return true
	}
	url := ParseRemote(ref).URL
	switch {
	case strings.HasPrefix(url, "git@"), strings.HasPrefix(url, "ssh://"), strings.HasPrefix(url, "git://"):
		return true
	case strings.HasPrefix(url, "https://"), strings.HasPrefix(url, "http://"):
		return strings.HasSuffix(url, ".git")
	default:
		return false
	}
}

// Fetch shallow clones ref into dest. The clone's .git directory is removed so that
// dest holds only the tree at the requested ref.
func (f *Fetcher) Fetch(ctx context.Context, ref, dest string) error {
	remote := ParseRemote(ref)
	if _, err := os.Stat(dest); err == nil {
		return domain.Tagged(domain.ErrContextFetchFailed, "url", remote.URL, "reason", "destination exists", "dest", dest)
	}

	var err error
	if remote.Ref == "" {
		err = f.clone(ctx, remote.URL, "", dest)
	} else {
		err = f.clone(ctx, remote.URL, plumbing.NewBranchReferenceName(remote.Ref), dest)
		if err != nil && !errors.Is(err, context.Canceled) {
			_ = os.RemoveAll(dest)
			err = f.clone(ctx, remote.URL, plumbing.NewTagReferenceName(remote.Ref), dest)
		}
	}
	if err != nil {
		_ = os.RemoveAll(dest)
		return errors.Join(domain.Tagged(domain.ErrContextFetchFailed, "url", remote.URL, "ref", remote.Ref), err)
	}
	if err := os.RemoveAll(filepath.Join(dest, ".git")); err != nil {
		_ = os.RemoveAll(dest)
		return errors.Join(domain.Tagged(domain.ErrContextFetchFailed, "url", remote.URL, "reason", "remove clone metadata"), err)
	}
	return nil
}

func (f *Fetcher) clone(ctx context.Context, url string, ref plumbing.ReferenceName, dest string) error {
	opts := &git.CloneOptions{
		URL:           url,
		ReferenceName: ref,
		SingleBranch:  true,
		Depth:         1,
		Tags:          git.NoTags,
	}
	if strings.HasPrefix(url, "https://") || strings.HasPrefix(url, "http://") {
		opts.Auth = f.auth
	}
	_, err := git.PlainCloneContext(ctx, dest, false, opts)
	return err
}

func httpAuth() transport.AuthMethod {
	tokens := []struct{ env, user string }{
		{"GITHUB_TOKEN", "x-access-token"},
		{"GITLAB_TOKEN", "gitlab-ci-token"},
		{"GIT_TOKEN", "git"},
	}
	for _, t := range tokens {
		if token := os.Getenv(t.env); token != "" {
			return &http.BasicAuth{Username: t.user, Password: token}
		}
	}
	return nil
}
