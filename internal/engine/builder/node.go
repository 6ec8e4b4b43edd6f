package builder

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kiln/internal/adapters/cas"       //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/adapters/fs"        //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/adapters/index"     //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/adapters/layer"     //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/adapters/manifest"  //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/adapters/nix"       //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/adapters/oci"       //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/adapters/shell"     //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/adapters/telemetry" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
)

// NodeID is the unique identifier for the builder Graft node.
const NodeID graft.ID = "engine.builder"

func init() {
	graft.Register(graft.Node[*Builder]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			oci.LoaderNodeID,
			oci.SealerNodeID,
			manifest.NodeID,
			index.NodeID,
			shell.NodeID,
			nix.EnvFactoryNodeID,
			fs.ResolverNodeID,
			fs.WalkerNodeID,
			fs.HasherNodeID,
			layer.NodeID,
			cas.NodeID,
			cas.BlobNodeID,
			telemetry.NodeID,
		},
		Run: func(ctx context.Context) (*Builder, error) {
			var (
				deps Deps
				err  error
			)
			if deps.Bases, err = graft.Dep[ports.BaseLoader](ctx); err != nil {
				return nil, err
			}
			if deps.Sealer, err = graft.Dep[ports.Sealer](ctx); err != nil {
				return nil, err
			}
			if deps.Manifests, err = graft.Dep[ports.ManifestParser](ctx); err != nil {
				return nil, err
			}
			indexInstaller, err := graft.Dep[*index.Installer](ctx)
			if err != nil {
				return nil, err
			}
			commandInstaller, err := graft.Dep[*shell.Installer](ctx)
			if err != nil {
				return nil, err
			}
			deps.Installers = map[domain.InstallerKind]ports.DependencyInstaller{
				domain.InstallerIndex:   indexInstaller,
				domain.InstallerCommand: commandInstaller,
			}
			if deps.Envs, err = graft.Dep[ports.EnvironmentFactory](ctx); err != nil {
				return nil, err
			}
			if deps.Resolver, err = graft.Dep[ports.ContextResolver](ctx); err != nil {
				return nil, err
			}
			if deps.Walker, err = graft.Dep[ports.TreeWalker](ctx); err != nil {
				return nil, err
			}
			if deps.Hasher, err = graft.Dep[ports.Hasher](ctx); err != nil {
				return nil, err
			}
			if deps.Layers, err = graft.Dep[ports.LayerWriter](ctx); err != nil {
				return nil, err
			}
			if deps.Store, err = graft.Dep[ports.BuildInfoStore](ctx); err != nil {
				return nil, err
			}
			if deps.Blobs, err = graft.Dep[ports.BlobStore](ctx); err != nil {
				return nil, err
			}
			if deps.Telemetry, err = graft.Dep[ports.Telemetry](ctx); err != nil {
				return nil, err
			}
			return New(deps), nil
		},
	})
}
