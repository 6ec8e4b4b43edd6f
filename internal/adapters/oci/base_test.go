package oci_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/cas"
	"go.trai.ch/kiln/internal/adapters/fs"
	"go.trai.ch/kiln/internal/adapters/oci"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
)

// baseLayout seals a two-layer image into <contextDir>/base and returns it.
func baseLayout(t *testing.T, contextDir string) *domain.Artifact {
	t.Helper()
	src := t.TempDir()
	blobs := cas.NewBlobStore()
	plain := ingestLayer(t, blobs, src, false, tarFile{Name: "usr/", Dir: true}, tarFile{Name: "usr/python", Content: "elf"})
	plain.CreatedBy = "add python"
	packed := ingestLayer(t, blobs, src, true, tarFile{Name: "etc/os-release", Content: "debian"})
	packed.CreatedBy = "add os-release"

	artifact, err := oci.NewSealer(blobs).Seal(context.Background(), src, ports.SealRequest{
		Name:   "python",
		Tag:    "3.11",
		Output: filepath.Join(contextDir, "base"),
		Base:   oci.ScratchBase(),
		Layers: []domain.Layer{plain, packed},
		Env:    []string{"PATH=/usr/bin"},
		Cmd:    []string{"python"},
		Labels: map[string]string{"os": "debian"},
	})
	require.NoError(t, err)
	return artifact
}

func TestLoader_Load_Scratch(t *testing.T) {
	loader := oci.NewLoader(fs.NewResolver(), cas.NewBlobStore())

	base, err := loader.Load(context.Background(), t.TempDir(), domain.BaseSpec{Image: "scratch"})
	require.NoError(t, err)
	assert.Equal(t, "scratch", base.ID)
	assert.Empty(t, base.Layers)
	assert.Equal(t, "linux", base.OS)
	assert.Equal(t, runtime.GOARCH, base.Arch)
}

func TestLoader_Load_Layout(t *testing.T) {
	root := t.TempDir()
	sealed := baseLayout(t, root)
	blobs := cas.NewBlobStore()
	loader := oci.NewLoader(fs.NewResolver(), blobs)

	for _, image := range []string{"oci:base", "oci:base@3.11", "oci:base@python:3.11"} {
		t.Run(image, func(t *testing.T) {
			base, err := loader.Load(context.Background(), root, domain.BaseSpec{Image: image})
			require.NoError(t, err)

			assert.Equal(t, sealed.ManifestDigest.String(), base.ID)
			assert.Equal(t, []string{"PATH=/usr/bin"}, base.Env)
			assert.Equal(t, []string{"python"}, base.Cmd)
			assert.Equal(t, map[string]string{"os": "debian"}, base.Labels)
			require.Len(t, base.Layers, 2)
			assert.Equal(t, "add python", base.Layers[0].CreatedBy)
			assert.Equal(t, "application/vnd.oci.image.layer.v1.tar+gzip", base.Layers[1].MediaType)
			assert.NotEqual(t, base.Layers[1].Digest, base.Layers[1].DiffID)
			for _, l := range base.Layers {
				assert.True(t, blobs.Exists(root, l.Digest), l.CreatedBy)
			}
		})
	}
}

func TestLoader_Load_Errors(t *testing.T) {
	root := t.TempDir()
	sealed := baseLayout(t, root)
	loader := oci.NewLoader(fs.NewResolver(), cas.NewBlobStore())

	tests := []struct {
		name  string
		image string
		setup func(t *testing.T)
		cause error
	}{
		{name: "unknown scheme", image: "docker://python"},
		{name: "missing layout", image: "oci:nope"},
		{name: "unknown ref", image: "oci:base@2.7"},
		{name: "outside context", image: "oci:../base", cause: domain.ErrPathOutsideContext},
		{
			name:  "corrupt layer",
			image: "oci:base",
			setup: func(t *testing.T) {
				l := sealed.Layers[0]
				path := filepath.Join(root, "base", "blobs", "sha256", l.Digest.Encoded())
				require.NoError(t, os.WriteFile(path, []byte("tampered"), 0o644))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup(t)
			}
			_, err := loader.Load(context.Background(), root, domain.BaseSpec{Image: tt.image})
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrBaseImage)
			if tt.cause != nil {
				assert.ErrorIs(t, err, tt.cause)
			}
		})
	}
}
