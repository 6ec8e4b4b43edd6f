package builder_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"go.trai.ch/kiln/internal/adapters/cas"
	"go.trai.ch/kiln/internal/adapters/fs"
	"go.trai.ch/kiln/internal/adapters/index"
	"go.trai.ch/kiln/internal/adapters/layer"
	"go.trai.ch/kiln/internal/adapters/manifest"
	"go.trai.ch/kiln/internal/adapters/oci"
	"go.trai.ch/kiln/internal/adapters/shell"
	"go.trai.ch/kiln/internal/adapters/telemetry"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/core/ports/mocks"
	"go.trai.ch/kiln/internal/engine/builder"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func newBuilder(t *testing.T) *builder.Builder {
	t.Helper()
	ctrl := gomock.NewController(t)
	resolver := fs.NewResolver()
	walker := fs.NewWalker()
	blobs := cas.NewBlobStore()

	return builder.New(builder.Deps{
		Bases:     oci.NewLoader(resolver, blobs),
		Manifests: manifest.NewParser(resolver),
		Installers: map[domain.InstallerKind]ports.DependencyInstaller{
			domain.InstallerIndex:   index.NewInstaller(resolver, walker),
			domain.InstallerCommand: shell.NewInstaller(),
		},
		Envs:      mocks.NewMockEnvironmentFactory(ctrl),
		Resolver:  resolver,
		Walker:    walker,
		Hasher:    fs.NewHasher(),
		Layers:    layer.NewWriter(blobs),
		Sealer:    oci.NewSealer(blobs),
		Store:     cas.NewStore(),
		Blobs:     blobs,
		Telemetry: telemetry.NewNoOp(),
	})
}

func flaskContext(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"requirements.txt": "flask==3.0.0\n",
		"app.py":           "print('hi')\n",
		"wheelhouse/flask/3.0.0/flask/__init__.py": "__version__ = '3.0.0'",
		"wheelhouse/flask/2.3.3/flask/__init__.py": "__version__ = '2.3.3'",
	})
	return root
}

func flaskRecipe() *domain.Recipe {
	r := domain.DefaultRecipe()
	r.Name = "demo"
	r.Ignore = []string{"wheelhouse", "out"}
	r.Env = map[string]string{"PYTHONPATH": "/app/site-packages"}
	r.Cmd = []string{"python", "app.py"}
	return r
}

func filePaths(files []domain.FileEntry) []string {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths
}

func statuses(plan *domain.Plan) map[domain.StepKind]domain.VertexStatus {
	out := make(map[domain.StepKind]domain.VertexStatus, len(plan.Steps))
	for _, s := range plan.Steps {
		out[s.Kind] = s.Status
	}
	return out
}

func TestBuilder_Build(t *testing.T) {
	t.Setenv(domain.SourceDateEpochEnv, "")
	root := flaskContext(t)
	b := newBuilder(t)

	artifact, err := b.Build(context.Background(), builder.Request{ContextDir: root, Recipe: flaskRecipe()})
	require.NoError(t, err)
	assert.Equal(t, "demo:latest", artifact.Name)
	assert.Equal(t, domain.DefaultArtifactPath(root, "demo"), artifact.Path)

	read, err := oci.NewReader().Read(context.Background(), artifact.Path)
	require.NoError(t, err)
	assert.Equal(t, "/app", read.WorkingDir.String())
	assert.Equal(t, []string{"PYTHONPATH=/app/site-packages"}, read.Env)
	assert.Equal(t, []string{"python", "app.py"}, read.Cmd)
	assert.Equal(t, []string{
		"app",
		"app/app.py",
		"app/requirements.txt",
		"app/site-packages",
		"app/site-packages/flask",
		"app/site-packages/flask/__init__.py",
	}, filePaths(read.Files))

	require.Len(t, read.Layers, 3)
	assert.Equal(t, "workdir /app", read.Layers[0].CreatedBy)
	assert.False(t, read.Layers[0].Empty, "the working directory gets its own layer")
	assert.Equal(t, "install requirements.txt", read.Layers[1].CreatedBy)
	assert.Equal(t, "copy . .", read.Layers[2].CreatedBy)

	tmp, err := os.ReadDir(domain.DefaultTmpPath(root))
	require.NoError(t, err)
	assert.Empty(t, tmp, "staging directories are removed")
}

func TestBuilder_Build_ReusesUnchangedManifest(t *testing.T) {
	t.Setenv(domain.SourceDateEpochEnv, "")
	root := flaskContext(t)
	b := newBuilder(t)
	req := builder.Request{ContextDir: root, Recipe: flaskRecipe()}

	first, err := b.Build(context.Background(), req)
	require.NoError(t, err)

	plan, err := b.Plan(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, map[domain.StepKind]domain.VertexStatus{
		domain.StepWorkdir: domain.VertexStatusPending,
		domain.StepInstall: domain.VertexStatusCached,
		domain.StepCopy:    domain.VertexStatusCached,
		domain.StepSeal:    domain.VertexStatusPending,
	}, statuses(plan))

	second, err := b.Build(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.ManifestDigest, second.ManifestDigest)

	writeTree(t, root, map[string]string{"app.py": "print('changed')\n"})
	plan, err = b.Plan(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.VertexStatusCached, statuses(plan)[domain.StepInstall], "source edits keep the install layer")
	assert.Equal(t, domain.VertexStatusPending, statuses(plan)[domain.StepCopy])

	writeTree(t, root, map[string]string{"requirements.txt": "flask==2.3.3\n"})
	plan, err = b.Plan(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.VertexStatusPending, statuses(plan)[domain.StepInstall])
	assert.Equal(t, domain.VertexStatusPending, statuses(plan)[domain.StepCopy])

	req.NoCache = true
	writeTree(t, root, map[string]string{"requirements.txt": "flask==3.0.0\n", "app.py": "print('hi')\n"})
	plan, err = b.Plan(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.VertexStatusPending, statuses(plan)[domain.StepInstall])
}

func TestBuilder_Build_Deterministic(t *testing.T) {
	t.Setenv(domain.SourceDateEpochEnv, "")
	root := flaskContext(t)
	b := newBuilder(t)

	first, err := b.Build(context.Background(), builder.Request{
		ContextDir: root, Recipe: flaskRecipe(), Output: "out/one", NoCache: true,
	})
	require.NoError(t, err)
	second, err := b.Build(context.Background(), builder.Request{
		ContextDir: root, Recipe: flaskRecipe(), Output: "out/two", NoCache: true,
	})
	require.NoError(t, err)

	assert.Equal(t, first.ManifestDigest, second.ManifestDigest)
	assert.Equal(t, first.ConfigDigest, second.ConfigDigest)
	assert.Equal(t, filepath.Join(root, "out", "one"), first.Path)
}

func TestBuilder_Build_EmptyManifestNestedSource(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"requirements.txt":     "# nothing yet\n",
		"src/pkg/mod.py":       "x = 1\n",
		"src/pkg/sub/deep.py":  "y = 2\n",
		"notes/not-copied.txt": "outside the source",
	})
	recipe := domain.DefaultRecipe()
	recipe.Source = "src"

	b := newBuilder(t)
	artifact, err := b.Build(context.Background(), builder.Request{ContextDir: root, Recipe: recipe})
	require.NoError(t, err)

	read, err := oci.NewReader().Read(context.Background(), artifact.Path)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"app",
		"app/pkg",
		"app/pkg/mod.py",
		"app/pkg/sub",
		"app/pkg/sub/deep.py",
	}, filePaths(read.Files))
	require.Len(t, read.Layers, 3)
	assert.True(t, read.Layers[1].Empty, "an empty manifest installs nothing")
}

func TestBuilder_Build_EmptyManifestIgnoredSource(t *testing.T) {
	t.Setenv(domain.SourceDateEpochEnv, "")
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"requirements.txt": "",
		"app.py":           "print('hi')\n",
	})
	recipe := domain.DefaultRecipe()
	recipe.Ignore = []string{"*"}

	artifact, err := newBuilder(t).Build(context.Background(), builder.Request{ContextDir: root, Recipe: recipe})
	require.NoError(t, err)

	read, err := oci.NewReader().Read(context.Background(), artifact.Path)
	require.NoError(t, err)
	assert.Equal(t, "/app", read.WorkingDir.String())
	assert.Equal(t, []string{"app"}, filePaths(read.Files), "the working directory exists with nothing copied")
	require.Len(t, read.Layers, 3)
	assert.False(t, read.Layers[0].Empty)
	assert.True(t, read.Layers[1].Empty)
	assert.True(t, read.Layers[2].Empty)
}

func TestBuilder_Build_KeepsVCSMetadata(t *testing.T) {
	t.Setenv(domain.SourceDateEpochEnv, "")
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"requirements.txt":  "",
		"src/app.py":        "print('hi')\n",
		"src/.git/HEAD":     "ref: refs/heads/main\n",
		"src/.jj/repo/type": "git\n",
	})
	recipe := domain.DefaultRecipe()
	recipe.Source = "src"

	artifact, err := newBuilder(t).Build(context.Background(), builder.Request{ContextDir: root, Recipe: recipe})
	require.NoError(t, err)

	read, err := oci.NewReader().Read(context.Background(), artifact.Path)
	require.NoError(t, err)
	files := filePaths(read.Files)
	assert.Contains(t, files, "app/.git/HEAD")
	assert.Contains(t, files, "app/.jj/repo/type")
	assert.Contains(t, files, "app/app.py")
}

func TestBuilder_Build_IgnoresOutputInsideContext(t *testing.T) {
	t.Setenv(domain.SourceDateEpochEnv, "")
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"requirements.txt": "",
		"app.py":           "print('hi')\n",
	})
	req := builder.Request{ContextDir: root, Recipe: domain.DefaultRecipe(), Output: "image", NoCache: true}
	b := newBuilder(t)

	first, err := b.Build(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "image"), first.Path)

	second, err := b.Build(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.ManifestDigest, second.ManifestDigest, "a previous artifact is not copied into the next")

	read, err := oci.NewReader().Read(context.Background(), second.Path)
	require.NoError(t, err)
	assert.Equal(t, []string{"app", "app/app.py", "app/requirements.txt"}, filePaths(read.Files))
}

func TestBuilder_Build_Errors(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		mutate  func(*domain.Recipe)
		wantErr []error
	}{
		{
			name:    "manifest outside context",
			files:   map[string]string{"app.py": ""},
			mutate:  func(r *domain.Recipe) { r.Manifest = "../requirements.txt" },
			wantErr: []error{domain.ErrManifestNotFound, domain.ErrPathOutsideContext},
		},
		{
			name:    "manifest missing",
			files:   map[string]string{"app.py": ""},
			wantErr: []error{domain.ErrManifestNotFound},
		},
		{
			name:    "source missing",
			files:   map[string]string{"requirements.txt": ""},
			mutate:  func(r *domain.Recipe) { r.Source = "src" },
			wantErr: []error{domain.ErrSourceNotFound},
		},
		{
			name:    "source is a file",
			files:   map[string]string{"requirements.txt": "", "src": "file"},
			mutate:  func(r *domain.Recipe) { r.Source = "src" },
			wantErr: []error{domain.ErrSourceNotFound},
		},
		{
			name: "unresolvable requirement",
			files: map[string]string{
				"requirements.txt":                         "flask==9.9.9\n",
				"wheelhouse/flask/3.0.0/flask/__init__.py": "",
			},
			wantErr: []error{domain.ErrDependencyResolution},
		},
		{
			name:    "missing base layout",
			files:   map[string]string{"requirements.txt": ""},
			mutate:  func(r *domain.Recipe) { r.Base.Image = "oci:base" },
			wantErr: []error{domain.ErrBaseImage},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := filepath.Join(t.TempDir(), "ctx")
			writeTree(t, root, tt.files)
			recipe := domain.DefaultRecipe()
			if tt.mutate != nil {
				tt.mutate(recipe)
			}

			artifact, err := newBuilder(t).Build(context.Background(), builder.Request{ContextDir: root, Recipe: recipe})
			require.Error(t, err)
			assert.Nil(t, artifact)
			assert.ErrorIs(t, err, domain.ErrBuildFailed)
			for _, want := range tt.wantErr {
				assert.ErrorIs(t, err, want)
			}
			assert.False(t, oci.Exists(domain.DefaultArtifactPath(root, recipe.Name)), "no partial artifact")
		})
	}
}

func TestBuilder_Build_MissingContext(t *testing.T) {
	_, err := newBuilder(t).Build(context.Background(), builder.Request{
		ContextDir: filepath.Join(t.TempDir(), "nope"),
		Recipe:     domain.DefaultRecipe(),
	})
	assert.ErrorIs(t, err, domain.ErrContextNotFound)
}

func TestBuilder_Build_StopsAtFirstFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	root := t.TempDir()

	bases := mocks.NewMockBaseLoader(ctrl)
	layers := mocks.NewMockLayerWriter(ctrl)
	manifests := mocks.NewMockManifestParser(ctrl)
	tel := mocks.NewMockTelemetry(ctrl)
	vertex := mocks.NewMockVertex(ctrl)
	parseErr := domain.Tagged(domain.ErrManifestNotFound, "manifest", domain.DefaultManifest)

	gomock.InOrder(
		tel.EXPECT().Record(gomock.Any(), "workdir /app", gomock.Any()).Return(context.Background(), vertex),
		bases.EXPECT().Load(gomock.Any(), root, domain.BaseSpec{Image: domain.ScratchImage}).Return(oci.ScratchBase(), nil),
		layers.EXPECT().Write(gomock.Any(), root, ports.LayerSpec{
			Prefix: "/app", CreatedBy: "workdir /app", KeepPrefix: true,
		}).Return(domain.Layer{CreatedBy: "workdir /app"}, nil),
		vertex.EXPECT().Complete(nil),
		manifests.EXPECT().Parse(root, domain.DefaultManifest).Return(nil, parseErr),
	)

	// Sealer and installers carry no expectations: any call fails the test.
	b := builder.New(builder.Deps{
		Bases:      bases,
		Manifests:  manifests,
		Installers: map[domain.InstallerKind]ports.DependencyInstaller{domain.InstallerIndex: mocks.NewMockDependencyInstaller(ctrl)},
		Envs:       mocks.NewMockEnvironmentFactory(ctrl),
		Resolver:   mocks.NewMockContextResolver(ctrl),
		Walker:     mocks.NewMockTreeWalker(ctrl),
		Hasher:     mocks.NewMockHasher(ctrl),
		Layers:     layers,
		Sealer:     mocks.NewMockSealer(ctrl),
		Store:      mocks.NewMockBuildInfoStore(ctrl),
		Blobs:      mocks.NewMockBlobStore(ctrl),
		Telemetry:  tel,
	})

	_, err := b.Build(context.Background(), builder.Request{ContextDir: root, Recipe: domain.DefaultRecipe()})
	require.ErrorIs(t, err, domain.ErrManifestNotFound)
	assert.True(t, errors.Is(err, domain.ErrBuildFailed))
}

func TestBuilder_Build_InstallFailureReportsVertex(t *testing.T) {
	ctrl := gomock.NewController(t)
	root := flaskContext(t)

	installErr := domain.Tagged(domain.ErrInstallCommandFailed, "command", "pip")
	installer := mocks.NewMockDependencyInstaller(ctrl)
	installer.EXPECT().Install(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req ports.InstallRequest) error {
			assert.Equal(t, root, req.ContextDir)
			assert.Equal(t, "requirements.txt", req.Manifest.Path())
			assert.DirExists(t, req.StagingDir)
			return installErr
		})

	b := newBuilder(t)
	b.Installers[domain.InstallerIndex] = installer

	_, err := b.Build(context.Background(), builder.Request{ContextDir: root, Recipe: flaskRecipe()})
	require.ErrorIs(t, err, domain.ErrInstallCommandFailed)
	assert.False(t, oci.Exists(domain.DefaultArtifactPath(root, "demo")))

	tmp, err := os.ReadDir(domain.DefaultTmpPath(root))
	require.NoError(t, err)
	assert.Empty(t, tmp)
}

func TestBuilder_Plan(t *testing.T) {
	root := flaskContext(t)
	plan, err := newBuilder(t).Plan(context.Background(), builder.Request{
		ContextDir: root, Recipe: flaskRecipe(), RecipeFile: domain.RecipeFileName,
	})
	require.NoError(t, err)

	require.Len(t, plan.Steps, 4)
	assert.Equal(t, "workdir /app", plan.Steps[0].Description)
	assert.Equal(t, "install requirements.txt", plan.Steps[1].Description)
	assert.Equal(t, "copy . .", plan.Steps[2].Description)
	assert.Equal(t, "seal demo:latest", plan.Steps[3].Description)
	assert.NotEmpty(t, plan.Steps[1].CacheKey)
	assert.NotEmpty(t, plan.Steps[2].CacheKey)
	assert.Equal(t, domain.DefaultArtifactPath(root, "demo"), plan.Output)
	assert.False(t, oci.Exists(plan.Output), "planning seals nothing")
}
