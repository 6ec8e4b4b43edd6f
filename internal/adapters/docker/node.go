package docker

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kiln/internal/core/ports"
)

// NodeID is the unique identifier for the image loader Graft node.
const NodeID graft.ID = "adapter.docker.loader"

func init() {
	graft.Register(graft.Node[ports.ImageLoader]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.ImageLoader, error) {
			return NewLoader(nil), nil
		},
	})
}
