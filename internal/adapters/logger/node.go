package logger

import (
	"context"
	"os"

	"github.com/grindlemire/graft"
	"go.trai.ch/kiln/internal/core/ports"
)

// NodeID is the unique identifier for the logger Graft node.
const NodeID graft.ID = "adapter.logger"

// LevelEnv names the variable holding the minimum log level.
const LevelEnv = "KILN_LOG_LEVEL"

func init() {
	graft.Register(graft.Node[ports.Logger]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.Logger, error) {
			l := New()
			if name := os.Getenv(LevelEnv); name != "" {
				if err := l.SetLevel(name); err != nil {
					return nil, err
				}
			}
			return l, nil
		},
	})
}
