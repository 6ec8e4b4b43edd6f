package builder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

// run holds the state threaded through the steps of one build.
type run struct {
	b       *Builder
	req     Request
	recipe  *domain.Recipe
	root    string
	output  string
	workdir domain.WorkingDir
	base    *domain.Base
}

func (b *Builder) newRun(req Request) (*run, error) {
	if req.Recipe == nil {
		return nil, domain.Tagged(domain.ErrInvalidRecipe, "reason", "no recipe")
	}
	root, err := filepath.Abs(req.ContextDir)
	if err != nil {
		return nil, errors.Join(domain.Tagged(domain.ErrContextNotFound, "context", req.ContextDir), err)
	}
	if !isDir(root) {
		return nil, domain.Tagged(domain.ErrContextNotFound, "context", req.ContextDir)
	}

	workdir := req.Recipe.WorkingDir
	if workdir.IsZero() {
		workdir = domain.MustWorkingDir(domain.DefaultWorkingDir)
	}

	output := req.Output
	if output == "" {
		output = DefaultOutput(root, req.Recipe)
	} else if !filepath.IsAbs(output) {
		output = filepath.Join(root, output)
	}

	return &run{b: b, req: req, recipe: req.Recipe, root: root, output: output, workdir: workdir}, nil
}

func (r *run) workdirStep() domain.Step {
	return domain.Step{
		Kind:        domain.StepWorkdir,
		Description: "workdir " + r.workdir.String(),
		Status:      domain.VertexStatusPending,
		Layer:       &domain.Layer{CreatedBy: "workdir " + r.workdir.String(), Empty: true},
	}
}

// bindWorkdir loads the base environment.
func (r *run) bindWorkdir(ctx context.Context) error {
	base, err := r.b.Bases.Load(ctx, r.root, r.recipe.Base)
	if err != nil {
		return err
	}
	r.base = base
	return nil
}

// writeWorkdir creates the working directory in the artifact so it exists even when nothing is copied into it.
func (r *run) writeWorkdir(ctx context.Context, step *domain.Step) error {
	layer, err := r.b.Layers.Write(ctx, r.root, ports.LayerSpec{
		Prefix:     r.workdir.String(),
		CreatedBy:  step.Description,
		KeepPrefix: true,
	})
	if err != nil {
		return err
	}
	step.Layer = &layer
	return nil
}

type installStep struct {
	step     domain.Step
	manifest *domain.Manifest
	key      string
}

// prepareInstall parses the manifest and derives the install cache key.
// The key covers the base, the working directory, the installer, its tools, the manifest bytes and the package index.
func (r *run) prepareInstall() (*installStep, error) {
	manifestPath := r.recipe.Manifest
	if manifestPath == "" {
		manifestPath = domain.DefaultManifest
	}
	manifest, err := r.b.Manifests.Parse(r.root, manifestPath)
	if err != nil {
		return nil, err
	}

	spec := r.recipe.Installer
	indexHash, err := r.indexHash(spec)
	if err != nil {
		return nil, err
	}

	parts := []string{
		string(domain.StepInstall),
		r.baseID(),
		r.workdir.String(),
		spec.Fingerprint(),
		domain.GenerateEnvID(r.recipe.Base.Tools),
		indexHash,
	}
	for _, f := range manifest.Files {
		parts = append(parts, f.Path, string(f.Content))
	}
	key := r.b.Hasher.CacheKey(parts...)

	return &installStep{
		step: domain.Step{
			Kind:        domain.StepInstall,
			Description: "install " + manifestPath,
			CacheKey:    key,
			Status:      domain.VertexStatusPending,
		},
		manifest: manifest,
		key:      key,
	}, nil
}

// indexHash fingerprints the package index so that new distributions invalidate installs.
// A missing index hashes to the empty string; the installer reports it if it is needed.
func (r *run) indexHash(spec domain.InstallerSpec) (string, error) {
	if spec.Kind != domain.InstallerIndex || spec.Index == "" {
		return "", nil
	}
	dir, err := r.b.Resolver.Resolve(r.root, spec.Index)
	if err != nil {
		return "", errors.Join(domain.Tagged(domain.ErrDependencyResolution, "index", spec.Index), err)
	}
	if !isDir(dir) {
		return "", nil
	}
	entries, err := r.b.Walker.Walk(r.root, dir, nil)
	if err != nil {
		return "", errors.Join(domain.Tagged(domain.ErrDependencyResolution, "index", spec.Index), err)
	}
	return r.b.Hasher.HashTree(entries)
}

func (r *run) install(ctx context.Context, s *installStep, v ports.Vertex) error {
	if s.manifest.IsEmpty() {
		s.step.Layer = &domain.Layer{CreatedBy: s.step.Description, Empty: true}
		s.step.Status = domain.VertexStatusSkipped
		v.Log(domain.LogLevelInfo, "no requirements in "+s.manifest.Path())
		return nil
	}
	if r.cacheHit(&s.step, v) {
		return nil
	}

	installer, ok := r.b.Installers[r.recipe.Installer.Kind]
	if !ok {
		return domain.Tagged(domain.ErrInvalidRecipe, "reason", "unknown installer", "installer", r.recipe.Installer.Kind)
	}

	env, err := r.installEnv(ctx)
	if err != nil {
		return err
	}

	staging, cleanup, err := r.stagingDir()
	if err != nil {
		return err
	}
	defer cleanup()

	err = installer.Install(ctx, ports.InstallRequest{
		ContextDir: r.root,
		Manifest:   s.manifest,
		Spec:       r.recipe.Installer,
		StagingDir: staging,
		Env:        env,
		Stdout:     v.Stdout(),
		Stderr:     v.Stderr(),
	})
	if err != nil {
		return err
	}

	entries, err := r.b.Walker.Walk(staging, staging, nil)
	if err != nil {
		return zerr.Wrap(err, domain.ErrLayerWriteFailed.Error())
	}
	target := r.recipe.Installer.Target
	if target == "" {
		target = domain.DefaultInstallTarget
	}
	layer, err := r.b.Layers.Write(ctx, r.root, ports.LayerSpec{
		Entries:   entries,
		Prefix:    r.workdir.Resolve(target),
		CreatedBy: s.step.Description,
	})
	if err != nil {
		return err
	}
	return r.save(&s.step, layer)
}

// installEnv resolves the installer tools. Only command installers run host tools.
func (r *run) installEnv(ctx context.Context) ([]string, error) {
	if r.recipe.Installer.Kind != domain.InstallerCommand || len(r.recipe.Base.Tools) == 0 {
		return nil, nil
	}
	env, err := r.b.Envs.GetEnvironment(ctx, r.recipe.Base.Tools)
	if err != nil {
		return nil, errors.Join(domain.ErrToolResolutionFailed, err)
	}
	return env, nil
}

func (r *run) stagingDir() (string, func(), error) {
	tmpRoot := domain.DefaultTmpPath(r.root)
	if err := os.MkdirAll(tmpRoot, domain.DirPerm); err != nil {
		return "", nil, zerr.With(zerr.Wrap(err, domain.ErrLayerWriteFailed.Error()), "dir", tmpRoot)
	}
	dir, err := os.MkdirTemp(tmpRoot, "install-*")
	if err != nil {
		return "", nil, zerr.With(zerr.Wrap(err, domain.ErrLayerWriteFailed.Error()), "dir", tmpRoot)
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

type copyStep struct {
	step    domain.Step
	entries []domain.FileEntry
}

// prepareCopy captures the source tree. The key chains the install key so a copy layer is never reused over different dependencies.
func (r *run) prepareCopy(installKey string) (*copyStep, error) {
	src := r.recipe.Source
	if src == "" {
		src = domain.DefaultSource
	}
	dest := r.recipe.Dest
	if dest == "" {
		dest = domain.DefaultDest
	}

	dir, err := r.b.Resolver.Resolve(r.root, src)
	if err != nil {
		return nil, errors.Join(domain.Tagged(domain.ErrSourceNotFound, "source", src), err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Join(domain.Tagged(domain.ErrSourceNotFound, "source", src), err)
	}
	if !info.IsDir() {
		return nil, domain.Tagged(domain.ErrSourceNotFound, "source", src, "reason", "not a directory")
	}

	ignore, err := r.ignorePatterns()
	if err != nil {
		return nil, err
	}
	entries, err := r.b.Walker.Walk(r.root, dir, ignore)
	if err != nil {
		return nil, err
	}
	treeHash, err := r.b.Hasher.HashTree(entries)
	if err != nil {
		return nil, err
	}

	description := "copy " + src + " " + dest
	return &copyStep{
		step: domain.Step{
			Kind:        domain.StepCopy,
			Description: description,
			CacheKey: r.b.Hasher.CacheKey(
				string(domain.StepCopy), installKey, r.workdir.String(), r.workdir.Resolve(dest),
				treeHash, strings.Join(ignore, "\n"),
			),
			Status: domain.VertexStatusPending,
		},
		entries: entries,
	}, nil
}

// ignorePatterns combines the context ignore file, the recipe's patterns and kiln's own files.
func (r *run) ignorePatterns() ([]string, error) {
	patterns, err := r.b.Walker.IgnorePatterns(r.root)
	if err != nil {
		return nil, err
	}
	patterns = append(patterns, r.recipe.Ignore...)
	patterns = append(patterns, domain.KilnDirName)
	if r.req.RecipeFile != "" {
		patterns = append(patterns, filepath.ToSlash(r.req.RecipeFile))
	}
	if rel, err := filepath.Rel(r.root, r.output); err == nil && rel != "." && !isOutside(rel) {
		patterns = append(patterns, filepath.ToSlash(rel))
	}
	return patterns, nil
}

func (r *run) copySource(ctx context.Context, s *copyStep, v ports.Vertex) error {
	if len(s.entries) == 0 {
		s.step.Layer = &domain.Layer{CreatedBy: s.step.Description, Empty: true}
		s.step.Status = domain.VertexStatusSkipped
		return nil
	}
	if r.cacheHit(&s.step, v) {
		return nil
	}

	dest := r.recipe.Dest
	if dest == "" {
		dest = domain.DefaultDest
	}
	layer, err := r.b.Layers.Write(ctx, r.root, ports.LayerSpec{
		Entries:   s.entries,
		Prefix:    r.workdir.Resolve(dest),
		CreatedBy: s.step.Description,
	})
	if err != nil {
		return err
	}
	return r.save(&s.step, layer)
}

// cacheHit reuses a stored layer when its record exists and its blob is still present.
// Unreadable records are treated as misses.
func (r *run) cacheHit(step *domain.Step, v ports.Vertex) bool {
	if r.req.NoCache {
		return false
	}
	layer, ok := r.lookup(step.CacheKey, v)
	if !ok {
		return false
	}
	layer.CreatedBy = step.Description
	step.Layer = &layer
	step.Status = domain.VertexStatusCached
	return true
}

func (r *run) lookup(key string, v ports.Vertex) (domain.Layer, bool) {
	record, err := r.b.Store.Get(r.root, key)
	if err != nil {
		if v != nil {
			v.Log(domain.LogLevelWarn, "ignoring step record: "+err.Error())
		}
		return domain.Layer{}, false
	}
	if record == nil {
		return domain.Layer{}, false
	}
	if !record.Layer.Empty && !r.b.Blobs.Exists(r.root, record.Layer.Digest) {
		return domain.Layer{}, false
	}
	return record.Layer, true
}

// save records a freshly written layer under the step's cache key.
func (r *run) save(step *domain.Step, layer domain.Layer) error {
	step.Layer = &layer
	return r.b.Store.Put(r.root, domain.StepRecord{
		CacheKey:  step.CacheKey,
		Kind:      step.Kind,
		Layer:     layer,
		Timestamp: r.b.now().UTC(),
	})
}

// settle fixes a planned step's status without executing it.
func (r *run) settle(step *domain.Step, empty bool) {
	switch {
	case empty:
		step.Status = domain.VertexStatusSkipped
	case r.req.NoCache:
		step.Status = domain.VertexStatusPending
	default:
		if layer, ok := r.lookup(step.CacheKey, nil); ok {
			step.Layer = &layer
			step.Status = domain.VertexStatusCached
		} else {
			step.Status = domain.VertexStatusPending
		}
	}
}

func (r *run) sealStep() domain.Step {
	return domain.Step{
		Kind:        domain.StepSeal,
		Description: "seal " + r.reference(),
		Status:      domain.VertexStatusPending,
	}
}

func (r *run) reference() string {
	name := r.recipe.Name
	if name == "" {
		name = domain.DefaultRecipeName
	}
	tag := r.req.Tag
	if tag == "" {
		tag = domain.DefaultTag
	}
	return name + ":" + tag
}

func (r *run) seal(ctx context.Context, layers []domain.Layer) (*domain.Artifact, error) {
	req := ports.SealRequest{
		Name:       r.recipe.Name,
		Tag:        r.req.Tag,
		Output:     r.output,
		Base:       r.base,
		Layers:     layers,
		WorkingDir: r.workdir,
		Env:        r.recipe.SortedEnv(),
		Cmd:        r.recipe.Cmd,
		Entrypoint: r.recipe.Entrypoint,
		Labels:     r.recipe.Labels,
	}
	if t, ok := domain.SourceDateEpoch(); ok {
		req.Created = &t
	}
	return r.b.Sealer.Seal(ctx, r.root, req)
}

func (r *run) baseID() string {
	if r.base == nil {
		return ""
	}
	return r.base.ID
}

// isOutside reports whether a relative path climbs out of its base.
func isOutside(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
