// Package index installs dependencies from a local package index.
//
// An index is a directory tree of the form <index>/<normalized-name>/<version>/ where
// each version directory holds the installed files of that package version.
package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.DependencyInstaller = (*Installer)(nil)

// Installer implements ports.DependencyInstaller for local package indexes.
type Installer struct {
	resolver ports.ContextResolver
	walker   ports.TreeWalker
}

// NewInstaller creates a new index Installer.
func NewInstaller(resolver ports.ContextResolver, walker ports.TreeWalker) *Installer {
	return &Installer{resolver: resolver, walker: walker}
}

// Install picks the highest satisfying version of every requirement and copies them into req.StagingDir.
func (i *Installer) Install(ctx context.Context, req ports.InstallRequest) error {
	if req.Manifest.IsEmpty() {
		return nil
	}

	indexDir, err := i.Locate(req.ContextDir, req.Spec)
	if err != nil {
		return err
	}

	pkgs, err := i.Resolve(indexDir, req.Manifest.Requirements)
	if err != nil {
		return err
	}

	owners := make(map[string]string)
	for _, pkg := range pkgs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := i.copyPackage(pkg, req.StagingDir, owners); err != nil {
			return err
		}
		writeLine(req.Stdout, fmt.Sprintf("installed %s %s", pkg.Name, pkg.Version))
	}

	return nil
}

// Locate resolves the index directory inside the build context.
func (i *Installer) Locate(contextDir string, spec domain.InstallerSpec) (string, error) {
	indexDir, err := i.resolver.Resolve(contextDir, spec.Index)
	if err != nil {
		return "", errors.Join(domain.Tagged(domain.ErrDependencyResolution, "index", spec.Index), err)
	}
	info, err := os.Stat(indexDir)
	if err != nil || !info.IsDir() {
		return "", domain.Tagged(domain.ErrDependencyResolution, "reason", "package index not found", "index", spec.Index)
	}
	return indexDir, nil
}

// Resolve selects a version for every requirement, sorted by package name.
// All unsatisfiable requirements are reported together.
func (i *Installer) Resolve(indexDir string, reqs []domain.Requirement) ([]domain.ResolvedPackage, error) {
	sorted := slices.Clone(reqs)
	slices.SortFunc(sorted, func(a, b domain.Requirement) int {
		return strings.Compare(a.Name.String(), b.Name.String())
	})

	pkgs := make([]domain.ResolvedPackage, 0, len(sorted))
	var errs []error
	for _, req := range sorted {
		pkg, err := resolveOne(indexDir, req)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		pkgs = append(pkgs, pkg)
	}

	if len(errs) > 0 {
		return nil, errors.Join(append([]error{domain.ErrDependencyResolution}, errs...)...)
	}
	return pkgs, nil
}

func resolveOne(indexDir string, req domain.Requirement) (domain.ResolvedPackage, error) {
	name := req.Name.String()
	pkgDir := filepath.Join(indexDir, name)

	dirents, err := os.ReadDir(pkgDir)
	if err != nil {
		return domain.ResolvedPackage{}, domain.Tagged(domain.ErrPackageNotFound, "package", name)
	}

	if err := checkConstraints(name, req.Constraints); err != nil {
		return domain.ResolvedPackage{}, err
	}

	var candidates []candidate
	var unsupported []string
	for _, d := range dirents {
		if !d.IsDir() {
			continue
		}
		v, err := parseVersion(d.Name())
		if err != nil {
			unsupported = append(unsupported, d.Name())
			continue
		}
		candidates = append(candidates, candidate{raw: d.Name(), version: v})
	}

	prerelease := allowsPrerelease(req.Constraints)
	var best *candidate
	for idx := range candidates {
		c := candidates[idx]
		if c.version.prerelease() != "" && !prerelease {
			continue
		}
		if !c.matches(req.Constraints) {
			continue
		}
		if best == nil {
			best = &candidates[idx]
			continue
		}
		if order := c.version.compare(best.version); order > 0 || (order == 0 && c.raw < best.raw) {
			best = &candidates[idx]
		}
	}

	if best == nil {
		constraint := req.ConstraintString()
		if constraint == "" {
			constraint = "any"
		}
		err := domain.Tagged(domain.ErrNoMatchingVersion, "package", name, "constraint", constraint)
		if len(unsupported) > 0 {
			err = errors.Join(err, domain.Tagged(domain.ErrUnsupportedVersion,
				"package", name, "versions", strings.Join(unsupported, ", ")))
		}
		return domain.ResolvedPackage{}, err
	}

	return domain.ResolvedPackage{
		Name:    name,
		Version: best.raw,
		Root:    filepath.Join(pkgDir, best.raw),
	}, nil
}

func (i *Installer) copyPackage(pkg domain.ResolvedPackage, staging string, owners map[string]string) error {
	entries, err := i.walker.Walk(pkg.Root, pkg.Root, nil)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to read indexed package"), "package", pkg.Name)
	}

	for _, e := range entries {
		if !e.IsDir() {
			if owner, ok := owners[e.Path]; ok {
				return errors.Join(
					domain.ErrDependencyResolution,
					domain.Tagged(domain.ErrConflictingFiles, "path", e.Path, "packages", owner+","+pkg.Name),
				)
			}
			owners[e.Path] = pkg.Name
		}

		if err := copyEntry(e, filepath.Join(staging, filepath.FromSlash(e.Path))); err != nil {
			return zerr.With(zerr.With(zerr.Wrap(err, "failed to install file"), "package", pkg.Name), "path", e.Path)
		}
	}
	return nil
}

func copyEntry(e domain.FileEntry, dst string) error {
	switch {
	case e.IsDir():
		return os.MkdirAll(dst, e.Mode.Perm()|0o700)
	case e.IsSymlink():
		if err := os.MkdirAll(filepath.Dir(dst), domain.DirPerm); err != nil {
			return err
		}
		return os.Symlink(e.Link, dst)
	case e.Mode.IsRegular():
		return copyFile(e.Abs, dst, e.Mode.Perm())
	default:
		return nil
	}
}

func copyFile(src, dst string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), domain.DirPerm); err != nil {
		return err
	}

	// #nosec G304 -- src comes from the walked package index
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	// #nosec G304 -- dst is inside the staging directory
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(dst, perm)
}

func writeLine(w io.Writer, line string) {
	if w == nil {
		return
	}
	_, _ = io.WriteString(w, line+"\n")
}
