// Package ports defines the core interfaces for the application.
package ports

import (
	"context"

	"go.trai.ch/kiln/internal/core/domain"
)

// ContextResolver maps paths named by a recipe onto the build context.
//
//go:generate go run go.uber.org/mock/mockgen -source=context.go -destination=mocks/mock_context.go -package=mocks
type ContextResolver interface {
	// Resolve returns the absolute host path of rel inside root.
	// Paths escaping root, lexically or through symlinks, fail with domain.ErrPathOutsideContext.
	Resolve(root, rel string) (string, error)
}

// TreeWalker captures directory trees in a deterministic order.
type TreeWalker interface {
	// Walk returns every entry below dir, sorted by path relative to dir.
	// Ignore patterns use dockerignore syntax and are matched against paths relative to root.
	Walk(root, dir string, ignore []string) ([]domain.FileEntry, error)

	// IgnorePatterns reads the context's ignore file; a missing file yields no patterns.
	IgnorePatterns(root string) ([]string, error)
}

// ContextFetcher materializes remote build contexts on local disk.
type ContextFetcher interface {
	// Supports reports whether ref names a remote context this fetcher can retrieve.
	Supports(ref string) bool

	// Fetch retrieves ref into dest, which must not exist yet.
	Fetch(ctx context.Context, ref, dest string) error
}
