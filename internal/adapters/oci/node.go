package oci

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kiln/internal/adapters/cas"
	"go.trai.ch/kiln/internal/adapters/fs"
	"go.trai.ch/kiln/internal/core/ports"
)

const (
	// LoaderNodeID is the unique identifier for the base loader Graft node.
	LoaderNodeID graft.ID = "adapter.oci.base_loader"
	// SealerNodeID is the unique identifier for the sealer Graft node.
	SealerNodeID graft.ID = "adapter.oci.sealer"
	// ReaderNodeID is the unique identifier for the artifact reader Graft node.
	ReaderNodeID graft.ID = "adapter.oci.reader"
)

func init() {
	graft.Register(graft.Node[ports.BaseLoader]{
		ID:        LoaderNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{fs.ResolverNodeID, cas.BlobNodeID},
		Run: func(ctx context.Context) (ports.BaseLoader, error) {
			resolver, err := graft.Dep[ports.ContextResolver](ctx)
			if err != nil {
				return nil, err
			}
			blobs, err := graft.Dep[ports.BlobStore](ctx)
			if err != nil {
				return nil, err
			}
			return NewLoader(resolver, blobs), nil
		},
	})

	graft.Register(graft.Node[ports.Sealer]{
		ID:        SealerNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{cas.BlobNodeID},
		Run: func(ctx context.Context) (ports.Sealer, error) {
			blobs, err := graft.Dep[ports.BlobStore](ctx)
			if err != nil {
				return nil, err
			}
			return NewSealer(blobs), nil
		},
	})

	graft.Register(graft.Node[ports.ArtifactReader]{
		ID:        ReaderNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.ArtifactReader, error) {
			return NewReader(), nil
		},
	})
}
