package ports

import (
	"context"
	"io"

	"go.trai.ch/kiln/internal/core/domain"
)

// ManifestParser reads dependency manifests from the build context.
//
//go:generate go run go.uber.org/mock/mockgen -source=installer.go -destination=mocks/mock_installer.go -package=mocks
type ManifestParser interface {
	// Parse reads the manifest at rel inside root, following includes.
	// A path that does not resolve to a file in the context fails with domain.ErrManifestNotFound.
	Parse(root, rel string) (*domain.Manifest, error)
}

// InstallRequest carries everything an installer needs to materialize a manifest.
type InstallRequest struct {
	ContextDir string
	Manifest   *domain.Manifest
	Spec       domain.InstallerSpec
	// StagingDir is an empty directory that receives the installed files.
	StagingDir string
	// Env is the toolchain environment as KEY=VALUE pairs.
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
}

// DependencyInstaller installs every package of a manifest into a staging directory.
type DependencyInstaller interface {
	// Install fails with domain.ErrDependencyResolution when a package cannot be satisfied.
	Install(ctx context.Context, req InstallRequest) error
}
