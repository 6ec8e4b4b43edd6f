package index

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kiln/internal/adapters/fs"
	"go.trai.ch/kiln/internal/core/ports"
)

// NodeID is the unique identifier for the index installer Graft node.
const NodeID graft.ID = "adapter.installer.index"

func init() {
	graft.Register(graft.Node[*Installer]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{fs.ResolverNodeID, fs.WalkerNodeID},
		Run: func(ctx context.Context) (*Installer, error) {
			resolver, err := graft.Dep[ports.ContextResolver](ctx)
			if err != nil {
				return nil, err
			}
			walker, err := graft.Dep[ports.TreeWalker](ctx)
			if err != nil {
				return nil, err
			}
			return NewInstaller(resolver, walker), nil
		},
	})
}
