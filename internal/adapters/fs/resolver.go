package fs

import (
	"errors"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.ContextResolver = (*Resolver)(nil)

// Resolver confines recipe paths to the build context.
type Resolver struct{}

// NewResolver creates a new Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve returns the absolute path of rel inside root.
// Missing paths are returned as-is so callers can report them with their own error.
func (r *Resolver) Resolve(root, rel string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to resolve build context"), "root", root)
	}

	candidate := rel
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(absRoot, rel)
	}
	candidate = filepath.Clean(candidate)

	if !within(absRoot, candidate) {
		return "", domain.Tagged(domain.ErrPathOutsideContext, "path", rel, "context", absRoot)
	}

	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return candidate, nil
		}
		return "", zerr.With(zerr.Wrap(err, "failed to resolve path"), "path", rel)
	}

	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to resolve build context"), "root", root)
	}

	if !within(realRoot, resolved) {
		return "", domain.Tagged(domain.ErrPathOutsideContext, "path", rel, "target", resolved)
	}

	return candidate, nil
}

// Exists reports whether path exists, without following a final symlink.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
