package git

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kiln/internal/core/ports"
)

// NodeID is the unique identifier for the context fetcher Graft node.
const NodeID graft.ID = "adapter.git.fetcher"

func init() {
	graft.Register(graft.Node[ports.ContextFetcher]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.ContextFetcher, error) {
			return NewFetcher(), nil
		},
	})
}
