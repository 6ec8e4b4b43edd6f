// Package fs provides file system adapters for build contexts: path confinement, tree walking and hashing.
package fs

import (
	"errors"
	iofs "io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.TreeWalker = (*Walker)(nil)

// Walker captures directory trees, honoring dockerignore-style patterns.
type Walker struct{}

// NewWalker creates a new Walker.
func NewWalker() *Walker {
	return &Walker{}
}

// Walk returns every entry below dir sorted by path, skipping only ignored paths.
// VCS metadata is kept; exclude it with an ignore pattern.
func (w *Walker) Walk(root, dir string, ignore []string) ([]domain.FileEntry, error) {
	matcher, err := patternmatcher.New(ignore)
	if err != nil {
		return nil, zerr.Wrap(err, "invalid ignore pattern")
	}

	var entries []domain.FileEntry
	err = filepath.WalkDir(dir, func(path string, d iofs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == dir {
			return nil
		}

		ctxRel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if len(ignore) > 0 {
			matched, err := matcher.MatchesOrParentMatches(ctxRel)
			if err != nil {
				return err
			}
			if matched {
				if d.IsDir() && !matcher.Exclusions() {
					return filepath.SkipDir
				}
				return nil
			}
		}

		entry, err := newEntry(dir, path, d)
		if err != nil {
			return err
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to walk directory"), "dir", dir)
	}

	slices.SortFunc(entries, func(a, b domain.FileEntry) int {
		return strings.Compare(a.Path, b.Path)
	})
	return entries, nil
}

// IgnorePatterns reads the .kilnignore file at the context root.
func (w *Walker) IgnorePatterns(root string) ([]string, error) {
	f, err := os.Open(filepath.Join(root, domain.IgnoreFileName)) //nolint:gosec // Fixed file name under the context root
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, nil
		}
		return nil, zerr.Wrap(err, "failed to open ignore file")
	}
	defer f.Close() //nolint:errcheck // Read-only file

	patterns, err := ignorefile.ReadAll(f)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to read ignore file")
	}
	return patterns, nil
}

func newEntry(dir, path string, d iofs.DirEntry) (domain.FileEntry, error) {
	info, err := d.Info()
	if err != nil {
		return domain.FileEntry{}, err
	}

	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return domain.FileEntry{}, err
	}

	entry := domain.FileEntry{
		Path: filepath.ToSlash(rel),
		Abs:  path,
		Mode: info.Mode(),
	}

	switch {
	case info.Mode().IsRegular():
		entry.Size = info.Size()
	case info.Mode()&iofs.ModeSymlink != 0:
		target, err := os.Readlink(path)
		if err != nil {
			return domain.FileEntry{}, err
		}
		entry.Link = target
	}

	return entry, nil
}
