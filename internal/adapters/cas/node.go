package cas

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kiln/internal/core/ports"
)

const (
	// NodeID is the unique identifier for the step record store Graft node.
	NodeID graft.ID = "adapter.build_info_store"

	// BlobNodeID is the unique identifier for the blob store Graft node.
	BlobNodeID graft.ID = "adapter.blob_store"
)

func init() {
	graft.Register(graft.Node[ports.BuildInfoStore]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.BuildInfoStore, error) {
			return NewStore(), nil
		},
	})

	graft.Register(graft.Node[ports.BlobStore]{
		ID:        BlobNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.BlobStore, error) {
			return NewBlobStore(), nil
		},
	})
}
