package layer

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kiln/internal/adapters/cas"
	"go.trai.ch/kiln/internal/core/ports"
)

// NodeID is the unique identifier for the layer writer Graft node.
const NodeID graft.ID = "adapter.layer_writer"

func init() {
	graft.Register(graft.Node[ports.LayerWriter]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{cas.BlobNodeID},
		Run: func(ctx context.Context) (ports.LayerWriter, error) {
			blobs, err := graft.Dep[ports.BlobStore](ctx)
			if err != nil {
				return nil, err
			}
			return NewWriter(blobs), nil
		},
	})
}
