package ports

import (
	"context"
	"time"

	"go.trai.ch/kiln/internal/core/domain"
)

// BaseLoader resolves the base environment and makes its layers available in the blob store.
//
//go:generate go run go.uber.org/mock/mockgen -source=image.go -destination=mocks/mock_image.go -package=mocks
type BaseLoader interface {
	Load(ctx context.Context, root string, spec domain.BaseSpec) (*domain.Base, error)
}

// LayerSpec describes a layer to pack.
type LayerSpec struct {
	// Entries are the captured files, relative to the directory that was walked.
	Entries []domain.FileEntry
	// Prefix is the absolute artifact path the entries are placed under.
	Prefix    string
	CreatedBy string
	// KeepPrefix writes the prefix directories even when there are no entries.
	KeepPrefix bool
}

// LayerWriter packs file trees into deterministic layer blobs.
type LayerWriter interface {
	Write(ctx context.Context, root string, spec LayerSpec) (domain.Layer, error)
}

// SealRequest is the input to sealing an artifact.
type SealRequest struct {
	Name       string
	Tag        string
	Output     string
	Base       *domain.Base
	Layers     []domain.Layer
	WorkingDir domain.WorkingDir
	Env        []string
	Cmd        []string
	Entrypoint []string
	Labels     map[string]string
	// Created stamps the config and history; nil leaves timestamps out.
	Created *time.Time
}

// Sealer writes the final artifact atomically.
type Sealer interface {
	// Seal either produces a complete artifact at req.Output or leaves the previous one untouched.
	Seal(ctx context.Context, root string, req SealRequest) (*domain.Artifact, error)
}

// ArtifactReader reads sealed artifacts back for inspection.
type ArtifactReader interface {
	Read(ctx context.Context, path string) (*domain.Artifact, error)
}

// ImageLoader hands a sealed artifact to a container runtime.
type ImageLoader interface {
	Load(ctx context.Context, artifactPath string) error
}
