package oci_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/cas"
	"go.trai.ch/kiln/internal/adapters/oci"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
)

func sealRequest(output string, layers ...domain.Layer) ports.SealRequest {
	return ports.SealRequest{
		Name:       "demo",
		Output:     output,
		Layers:     layers,
		WorkingDir: domain.MustWorkingDir("/app"),
		Env:        []string{"PYTHONPATH=/app/site-packages"},
		Cmd:        []string{"python", "app.py"},
	}
}

func TestSealer_Seal(t *testing.T) {
	root := t.TempDir()
	blobs := cas.NewBlobStore()
	install := domain.Layer{MediaType: v1.MediaTypeImageLayer, CreatedBy: "install requirements.txt", Empty: true}
	source := ingestLayer(t, blobs, root, false,
		tarFile{Name: "app/", Dir: true},
		tarFile{Name: "app/app.py", Content: "print('hi')"},
	)
	source.CreatedBy = "copy . ."

	output := filepath.Join(root, "out", "demo")
	artifact, err := oci.NewSealer(blobs).Seal(context.Background(), root, sealRequest(output, install, source))
	require.NoError(t, err)

	assert.Equal(t, "demo:latest", artifact.Name)
	assert.Equal(t, output, artifact.Path)
	assert.Equal(t, "/app", artifact.WorkingDir.String())
	assert.Len(t, artifact.Layers, 2)

	files := readLayout(t, output)
	assert.JSONEq(t, `{"imageLayoutVersion":"1.0.0"}`, files["oci-layout"])
	assert.Contains(t, files, "blobs/sha256/"+source.Digest.Encoded())
	assert.Contains(t, files, "blobs/sha256/"+artifact.ManifestDigest.Encoded())

	var index v1.Index
	require.NoError(t, json.Unmarshal([]byte(files["index.json"]), &index))
	require.Len(t, index.Manifests, 1)
	assert.Equal(t, artifact.ManifestDigest, index.Manifests[0].Digest)
	assert.Equal(t, "demo:latest", index.Manifests[0].Annotations[v1.AnnotationRefName])

	var cfg v1.Image
	require.NoError(t, json.Unmarshal([]byte(files["blobs/sha256/"+artifact.ConfigDigest.Encoded()]), &cfg))
	assert.Nil(t, cfg.Created)
	assert.Equal(t, "/app", cfg.Config.WorkingDir)
	assert.Equal(t, []string{"python", "app.py"}, cfg.Config.Cmd)
	assert.Equal(t, []digest.Digest{source.DiffID}, cfg.RootFS.DiffIDs)
	want := []v1.History{
		{CreatedBy: "install requirements.txt", EmptyLayer: true},
		{CreatedBy: "copy . ."},
	}
	if diff := cmp.Diff(want, cfg.History); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestSealer_Seal_Deterministic(t *testing.T) {
	root := t.TempDir()
	blobs := cas.NewBlobStore()
	l := ingestLayer(t, blobs, root, false, tarFile{Name: "app/app.py", Content: "x"})
	sealer := oci.NewSealer(blobs)

	first := filepath.Join(root, "a")
	second := filepath.Join(root, "b")
	_, err := sealer.Seal(context.Background(), root, sealRequest(first, l))
	require.NoError(t, err)
	_, err = sealer.Seal(context.Background(), root, sealRequest(second, l))
	require.NoError(t, err)

	if diff := cmp.Diff(readLayout(t, first), readLayout(t, second)); diff != "" {
		t.Errorf("layouts differ (-first +second):\n%s", diff)
	}
}

func TestSealer_Seal_Created(t *testing.T) {
	root := t.TempDir()
	created := time.Unix(1700000000, 0).UTC()
	req := sealRequest(filepath.Join(root, "out"))
	req.Created = &created

	artifact, err := oci.NewSealer(cas.NewBlobStore()).Seal(context.Background(), root, req)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(artifact.Path, "blobs", "sha256", artifact.ConfigDigest.Encoded()))
	require.NoError(t, err)
	var cfg v1.Image
	require.NoError(t, json.Unmarshal(data, &cfg))
	require.NotNil(t, cfg.Created)
	assert.True(t, created.Equal(*cfg.Created))
}

func TestSealer_Seal_BaseConfig(t *testing.T) {
	root := t.TempDir()
	req := sealRequest(filepath.Join(root, "out"))
	req.Cmd = nil
	req.Entrypoint = []string{"/bin/app"}
	req.Labels = map[string]string{"team": "web"}
	req.Base = &domain.Base{
		ID:     "sha256:base",
		OS:     "linux",
		Arch:   "arm64",
		Env:    []string{"PATH=/usr/bin", "PYTHONPATH=/base"},
		Cmd:    []string{"sh"},
		Entry:  []string{"/entry"},
		Labels: map[string]string{"team": "base", "os": "debian"},
	}

	artifact, err := oci.NewSealer(cas.NewBlobStore()).Seal(context.Background(), root, req)
	require.NoError(t, err)

	assert.Equal(t, []string{"PATH=/usr/bin", "PYTHONPATH=/app/site-packages"}, artifact.Env)
	assert.Equal(t, []string{"/bin/app"}, artifact.Entrypoint)
	assert.Nil(t, artifact.Cmd)

	data, err := os.ReadFile(filepath.Join(artifact.Path, "blobs", "sha256", artifact.ConfigDigest.Encoded()))
	require.NoError(t, err)
	var cfg v1.Image
	require.NoError(t, json.Unmarshal(data, &cfg))
	assert.Equal(t, "arm64", cfg.Architecture)
	assert.Equal(t, map[string]string{"team": "web", "os": "debian"}, cfg.Config.Labels)
}

func TestSealer_Seal_ReplacesPrevious(t *testing.T) {
	root := t.TempDir()
	blobs := cas.NewBlobStore()
	sealer := oci.NewSealer(blobs)
	output := filepath.Join(root, "artifacts", "demo")

	first, err := sealer.Seal(context.Background(), root, sealRequest(output, ingestLayer(t, blobs, root, false, tarFile{Name: "a", Content: "1"})))
	require.NoError(t, err)
	second, err := sealer.Seal(context.Background(), root, sealRequest(output, ingestLayer(t, blobs, root, false, tarFile{Name: "a", Content: "2"})))
	require.NoError(t, err)
	assert.NotEqual(t, first.ManifestDigest, second.ManifestDigest)

	entries, err := os.ReadDir(filepath.Dir(output))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp and backup directories are removed")
	assert.Equal(t, "demo", entries[0].Name())
	assert.NotContains(t, readLayout(t, output), "blobs/sha256/"+first.ManifestDigest.Encoded())
}

func TestSealer_Seal_FailureKeepsPrevious(t *testing.T) {
	root := t.TempDir()
	blobs := cas.NewBlobStore()
	sealer := oci.NewSealer(blobs)
	output := filepath.Join(root, "artifacts", "demo")

	_, err := sealer.Seal(context.Background(), root, sealRequest(output))
	require.NoError(t, err)
	before := readLayout(t, output)

	missing := domain.Layer{
		Digest:    digest.FromString("missing"),
		DiffID:    digest.FromString("missing"),
		Size:      7,
		MediaType: v1.MediaTypeImageLayer,
	}
	_, err = sealer.Seal(context.Background(), root, sealRequest(output, missing))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSealFailed)
	assert.ErrorIs(t, err, domain.ErrBlobNotFound)

	if diff := cmp.Diff(before, readLayout(t, output)); diff != "" {
		t.Errorf("previous artifact changed (-before +after):\n%s", diff)
	}
	entries, err := os.ReadDir(filepath.Dir(output))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestReference(t *testing.T) {
	assert.Equal(t, "app:latest", oci.Reference("", ""))
	assert.Equal(t, "web:v1", oci.Reference("web", "v1"))
}
