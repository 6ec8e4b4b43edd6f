package ports

import (
	"io"

	"github.com/opencontainers/go-digest"
	"go.trai.ch/kiln/internal/core/domain"
)

// BuildInfoStore persists step records keyed by cache key.
//
//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
type BuildInfoStore interface {
	// Get returns the record for cacheKey in the context rooted at root.
	// Returns nil, nil if not found.
	Get(root, cacheKey string) (*domain.StepRecord, error)

	// Put stores a record.
	Put(root string, record domain.StepRecord) error
}

// BlobStore is a content addressed store for layer and config blobs.
type BlobStore interface {
	// Ingest copies r into the store and returns its sha256 digest and size.
	Ingest(root string, r io.Reader) (digest.Digest, int64, error)

	// Open returns a reader for the blob, failing with domain.ErrBlobNotFound when absent.
	Open(root string, d digest.Digest) (io.ReadCloser, error)

	// Exists reports whether the blob is present.
	Exists(root string, d digest.Digest) bool
}
