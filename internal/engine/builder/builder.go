// Package builder runs the image build: bind the working directory, install dependencies, copy the source, seal.
package builder

import (
	"context"
	"errors"
	"os"
	"time"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
)

// Deps are the ports a Builder drives.
type Deps struct {
	Bases      ports.BaseLoader
	Manifests  ports.ManifestParser
	Installers map[domain.InstallerKind]ports.DependencyInstaller
	Envs       ports.EnvironmentFactory
	Resolver   ports.ContextResolver
	Walker     ports.TreeWalker
	Hasher     ports.Hasher
	Layers     ports.LayerWriter
	Sealer     ports.Sealer
	Store      ports.BuildInfoStore
	Blobs      ports.BlobStore
	Telemetry  ports.Telemetry
}

// Builder executes recipes step by step. Steps never run in parallel and the first failure stops the build.
type Builder struct {
	Deps
	now func() time.Time
}

// New creates a new Builder.
func New(deps Deps) *Builder {
	return &Builder{Deps: deps, now: time.Now}
}

// Request is the input of a build or plan.
type Request struct {
	ContextDir string
	Recipe     *domain.Recipe
	// RecipeFile is the context-relative path of the recipe, excluded from source copies.
	RecipeFile string
	Output     string
	Tag        string
	// NoCache executes every step; records are still refreshed.
	NoCache bool
}

// Build runs the four steps in order and returns the sealed artifact.
// Nothing is written to req.Output unless every step succeeds.
func (b *Builder) Build(ctx context.Context, req Request) (*domain.Artifact, error) {
	run, err := b.newRun(req)
	if err != nil {
		return nil, err
	}

	workdir := run.workdirStep()
	err = b.record(ctx, &workdir, func(ctx context.Context, _ ports.Vertex) error {
		if err := run.bindWorkdir(ctx); err != nil {
			return err
		}
		return run.writeWorkdir(ctx, &workdir)
	})
	if err != nil {
		return nil, err
	}

	install, err := run.prepareInstall()
	if err != nil {
		return nil, stepError(domain.StepInstall, err)
	}
	err = b.record(ctx, &install.step, func(ctx context.Context, v ports.Vertex) error {
		return run.install(ctx, install, v)
	})
	if err != nil {
		return nil, err
	}

	cp, err := run.prepareCopy(install.key)
	if err != nil {
		return nil, stepError(domain.StepCopy, err)
	}
	err = b.record(ctx, &cp.step, func(ctx context.Context, v ports.Vertex) error {
		return run.copySource(ctx, cp, v)
	})
	if err != nil {
		return nil, err
	}

	var artifact *domain.Artifact
	seal := run.sealStep()
	err = b.record(ctx, &seal, func(ctx context.Context, _ ports.Vertex) error {
		var err error
		artifact, err = run.seal(ctx, []domain.Layer{*workdir.Layer, *install.step.Layer, *cp.step.Layer})
		return err
	})
	if err != nil {
		return nil, err
	}
	return artifact, nil
}

// Plan resolves every step and its cache key without installing, copying or sealing.
func (b *Builder) Plan(ctx context.Context, req Request) (*domain.Plan, error) {
	run, err := b.newRun(req)
	if err != nil {
		return nil, err
	}

	workdir := run.workdirStep()
	if err := run.bindWorkdir(ctx); err != nil {
		return nil, stepError(domain.StepWorkdir, err)
	}
	workdir.Status = domain.VertexStatusPending

	install, err := run.prepareInstall()
	if err != nil {
		return nil, stepError(domain.StepInstall, err)
	}
	run.settle(&install.step, install.manifest.IsEmpty())

	cp, err := run.prepareCopy(install.key)
	if err != nil {
		return nil, stepError(domain.StepCopy, err)
	}
	run.settle(&cp.step, len(cp.entries) == 0)

	seal := run.sealStep()
	seal.Status = domain.VertexStatusPending

	return &domain.Plan{
		Recipe:     req.Recipe,
		ContextDir: run.root,
		Output:     run.output,
		Steps:      []domain.Step{workdir, install.step, cp.step, seal},
	}, nil
}

// record runs fn inside a telemetry vertex and settles the step status.
func (b *Builder) record(ctx context.Context, step *domain.Step, fn func(context.Context, ports.Vertex) error) error {
	ctx, v := b.Telemetry.Record(ctx, step.Description, ports.WithVertexID(string(step.Kind)))
	step.Status = domain.VertexStatusRunning

	if err := fn(ctx, v); err != nil {
		step.Status = domain.VertexStatusFailed
		v.Complete(err)
		return stepError(step.Kind, err)
	}

	switch step.Status {
	case domain.VertexStatusCached:
		v.Cached()
	case domain.VertexStatusRunning:
		step.Status = domain.VertexStatusCompleted
		v.Complete(nil)
	default:
		v.Complete(nil)
	}
	return nil
}

func stepError(kind domain.StepKind, err error) error {
	return errors.Join(domain.Tagged(domain.ErrBuildFailed, "step", string(kind)), err)
}

// DefaultOutput returns where an artifact is sealed when no output is requested.
func DefaultOutput(root string, recipe *domain.Recipe) string {
	return domain.DefaultArtifactPath(root, recipe.Name)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
