package shell

import (
	"context"

	"github.com/grindlemire/graft"
)

// NodeID is the unique identifier for the command installer Graft node.
const NodeID graft.ID = "adapter.installer.command"

func init() {
	graft.Register(graft.Node[*Installer]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (*Installer, error) {
			return NewInstaller(), nil
		},
	})
}
