package oci_test

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/cas"
	"go.trai.ch/kiln/internal/core/domain"
)

type tarFile struct {
	Name    string
	Dir     bool
	Content string
}

// ingestLayer stores a tar built from files and returns its layer.
func ingestLayer(t *testing.T, blobs *cas.BlobStore, root string, compress bool, files ...tarFile) domain.Layer {
	t.Helper()

	var raw bytes.Buffer
	tw := tar.NewWriter(&raw)
	for _, f := range files {
		hdr := &tar.Header{Name: f.Name, Mode: 0o644, Typeflag: tar.TypeReg, Size: int64(len(f.Content))}
		if f.Dir {
			hdr = &tar.Header{Name: f.Name, Mode: 0o755, Typeflag: tar.TypeDir}
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if !f.Dir {
			_, err := tw.Write([]byte(f.Content))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())

	diffID := digest.FromBytes(raw.Bytes())
	blob := raw.Bytes()
	mediaType := v1.MediaTypeImageLayer
	if compress {
		var gz bytes.Buffer
		zw := gzip.NewWriter(&gz)
		_, err := zw.Write(raw.Bytes())
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		blob = gz.Bytes()
		mediaType = v1.MediaTypeImageLayerGzip
	}

	d, size, err := blobs.Ingest(root, bytes.NewReader(blob))
	require.NoError(t, err)
	return domain.Layer{Digest: d, DiffID: diffID, Size: size, MediaType: mediaType}
}

// readLayout returns every file of an image layout keyed by its relative path.
func readLayout(t *testing.T, dir string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return out
}

func filePaths(entries []domain.FileEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Path)
	}
	return out
}
