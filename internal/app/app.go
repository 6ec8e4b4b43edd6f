// Package app implements the application layer for kiln.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/engine/builder"
	"go.trai.ch/zerr"
)

// App represents the main application logic.
type App struct {
	recipes ports.RecipeLoader
	builder *builder.Builder
	reader  ports.ArtifactReader
	images  ports.ImageLoader
	fetcher ports.ContextFetcher
	logger  ports.Logger
}

// New creates a new App instance.
func New(
	recipes ports.RecipeLoader,
	b *builder.Builder,
	reader ports.ArtifactReader,
	images ports.ImageLoader,
	fetcher ports.ContextFetcher,
	log ports.Logger,
) *App {
	return &App{
		recipes: recipes,
		builder: b,
		reader:  reader,
		images:  images,
		fetcher: fetcher,
		logger:  log,
	}
}

// BuildOptions configures Build and Plan. Empty fields keep the recipe's values.
type BuildOptions struct {
	// Context is a local directory or a git URL.
	Context    string
	RecipeFile string
	WorkingDir string
	Manifest   string
	Source     string
	Dest       string
	Output     string
	Tag        string
	NoCache    bool
	// Load imports the sealed artifact into the local docker daemon.
	Load bool
}

// Build seals an artifact for the build context and optionally loads it into docker.
func (a *App) Build(ctx context.Context, opts BuildOptions) (*domain.Artifact, error) {
	req, cleanup, err := a.prepare(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	artifact, err := a.builder.Build(ctx, req)
	if err != nil {
		return nil, err
	}
	a.logger.Info(fmt.Sprintf("sealed %s at %s", artifact.Name, artifact.Path))

	if opts.Load {
		if err := a.images.Load(ctx, artifact.Path); err != nil {
			return artifact, err
		}
		a.logger.Info(fmt.Sprintf("loaded %s into docker", artifact.Name))
	}
	return artifact, nil
}

// Plan resolves the build steps and their cache keys without building.
func (a *App) Plan(ctx context.Context, opts BuildOptions) (*domain.Plan, error) {
	req, cleanup, err := a.prepare(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	return a.builder.Plan(ctx, req)
}

// Inspect reads a sealed artifact.
func (a *App) Inspect(ctx context.Context, path string) (*domain.Artifact, error) {
	return a.reader.Read(ctx, path)
}

// CleanOptions configuration for the Clean method.
type CleanOptions struct {
	Context string
	Build   bool
	Tools   bool
}

// Clean removes cache and build artifacts based on the provided options.
func (a *App) Clean(_ context.Context, options CleanOptions) error {
	var errs error

	remove := func(path string, name string) {
		a.logger.Info(fmt.Sprintf("removing %s...", name))
		if err := os.RemoveAll(path); err != nil {
			errs = errors.Join(errs, zerr.Wrap(err, fmt.Sprintf("failed to remove %s", name)))
			return
		}
		a.logger.Info(fmt.Sprintf("removed %s", name))
	}

	if options.Build {
		root := options.Context
		if root == "" {
			root = "."
		}
		remove(domain.DefaultStorePath(root), "step records")
		remove(domain.DefaultBlobsPath(root), "layer blobs")
		remove(domain.DefaultTmpPath(root), "staging directories")
	}

	if options.Tools {
		remove(domain.DefaultNixHubCachePath(), "nix tool cache")
		remove(domain.DefaultEnvCachePath(), "environment cache")
	}

	return errs
}

// prepare materializes the build context and applies option overrides to its recipe.
func (a *App) prepare(ctx context.Context, opts BuildOptions) (builder.Request, func(), error) {
	cleanup := func() {}
	contextDir := opts.Context
	if contextDir == "" {
		contextDir = "."
	}

	remote := a.fetcher != nil && a.fetcher.Supports(contextDir)
	if remote {
		tmp, err := os.MkdirTemp("", "kiln-context-*")
		if err != nil {
			return builder.Request{}, cleanup, errors.Join(domain.Tagged(domain.ErrContextFetchFailed, "context", contextDir), err)
		}
		cleanup = func() { _ = os.RemoveAll(tmp) }

		dest := filepath.Join(tmp, "context")
		a.logger.Info("fetching " + contextDir)
		if err := a.fetcher.Fetch(ctx, contextDir, dest); err != nil {
			cleanup()
			return builder.Request{}, func() {}, err
		}
		contextDir = dest
	}

	req, err := a.request(contextDir, remote, opts)
	if err != nil {
		cleanup()
		return builder.Request{}, func() {}, err
	}
	return req, cleanup, nil
}

func (a *App) request(contextDir string, remote bool, opts BuildOptions) (builder.Request, error) {
	root, err := filepath.Abs(contextDir)
	if err != nil {
		return builder.Request{}, errors.Join(domain.Tagged(domain.ErrContextNotFound, "context", contextDir), err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return builder.Request{}, domain.Tagged(domain.ErrContextNotFound, "context", opts.Context)
	}

	recipe, err := a.recipes.Load(root, opts.RecipeFile)
	if err != nil {
		return builder.Request{}, err
	}
	if err := applyOverrides(recipe, opts); err != nil {
		return builder.Request{}, err
	}

	output := opts.Output
	if output == "" && remote {
		output = domain.DefaultArtifactPath(".", recipe.Name)
	}
	if output != "" {
		if output, err = filepath.Abs(output); err != nil {
			return builder.Request{}, zerr.With(zerr.Wrap(err, "invalid output path"), "output", opts.Output)
		}
	}

	return builder.Request{
		ContextDir: root,
		Recipe:     recipe,
		RecipeFile: recipeFile(root, opts.RecipeFile),
		Output:     output,
		Tag:        opts.Tag,
		NoCache:    opts.NoCache,
	}, nil
}

func applyOverrides(recipe *domain.Recipe, opts BuildOptions) error {
	if opts.WorkingDir != "" {
		workdir, err := domain.NewWorkingDir(opts.WorkingDir)
		if err != nil {
			return err
		}
		recipe.WorkingDir = workdir
	}
	if opts.Manifest != "" {
		recipe.Manifest = opts.Manifest
	}
	if opts.Source != "" {
		recipe.Source = opts.Source
	}
	if opts.Dest != "" {
		recipe.Dest = opts.Dest
	}
	return nil
}

// recipeFile returns the recipe path relative to root, or "" when it lies outside.
func recipeFile(root, path string) string {
	if path == "" {
		path = domain.RecipeFileName
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return rel
}
