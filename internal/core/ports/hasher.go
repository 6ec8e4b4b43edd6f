package ports

import "go.trai.ch/kiln/internal/core/domain"

// Hasher computes the content hashes cache keys are built from.
//
//go:generate go run go.uber.org/mock/mockgen -source=hasher.go -destination=mocks/mock_hasher.go -package=mocks
type Hasher interface {
	// HashTree hashes a walked tree: paths, modes, link targets and file contents.
	HashTree(entries []domain.FileEntry) (string, error)

	// CacheKey combines ordered parts into a single key.
	CacheKey(parts ...string) string
}
