package oci

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.ArtifactReader = (*Reader)(nil)

const (
	whiteoutPrefix = ".wh."
	whiteoutOpaque = ".wh..wh..opq"
)

// Reader implements ports.ArtifactReader.
type Reader struct{}

// NewReader creates a new Reader.
func NewReader() *Reader {
	return &Reader{}
}

// Read loads the artifact layout at p and replays its layers into a merged file list.
func (r *Reader) Read(ctx context.Context, p string) (*domain.Artifact, error) {
	layout := layoutDir(p)
	index, err := layout.readIndex()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Join(domain.Tagged(domain.ErrArtifactNotFound, "path", p), err)
		}
		return nil, zerr.With(zerr.Wrap(err, domain.ErrArtifactNotFound.Error()), "path", p)
	}

	desc, manifest, err := layout.resolveManifest("", nil)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to read manifest"), "path", p)
	}
	var cfg v1.Image
	if err := layout.readJSONBlob(manifest.Config, &cfg); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to read image config"), "path", p)
	}

	artifact := &domain.Artifact{
		Name:           artifactName(index),
		Path:           p,
		ManifestDigest: desc.Digest,
		ConfigDigest:   manifest.Config.Digest,
		Layers:         artifactLayers(manifest, &cfg),
		Env:            cfg.Config.Env,
		Cmd:            cfg.Config.Cmd,
		Entrypoint:     cfg.Config.Entrypoint,
	}
	if cfg.Config.WorkingDir != "" {
		wd, err := domain.NewWorkingDir(cfg.Config.WorkingDir)
		if err != nil {
			return nil, err
		}
		artifact.WorkingDir = wd
	}

	files := make(map[string]domain.FileEntry)
	for _, ld := range manifest.Layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := replayLayer(layout, ld, files); err != nil {
			return nil, zerr.With(zerr.With(err, "path", p), "layer", ld.Digest.String())
		}
	}
	artifact.Files = sortedFiles(files)
	return artifact, nil
}

func artifactName(index *v1.Index) string {
	for _, m := range index.Manifests {
		if name := m.Annotations[AnnotationImageName]; name != "" {
			return name
		}
		if name := m.Annotations[v1.AnnotationRefName]; name != "" {
			return name
		}
	}
	return ""
}

// artifactLayers pairs manifest layers with history. Empty history entries become empty layers.
func artifactLayers(manifest *v1.Manifest, cfg *v1.Image) []domain.Layer {
	layerAt := func(i int) domain.Layer {
		ld := manifest.Layers[i]
		l := domain.Layer{Digest: ld.Digest, Size: ld.Size, MediaType: ld.MediaType}
		if i < len(cfg.RootFS.DiffIDs) {
			l.DiffID = cfg.RootFS.DiffIDs[i]
		}
		return l
	}

	var out []domain.Layer
	next := 0
	for _, h := range cfg.History {
		if h.EmptyLayer {
			out = append(out, domain.Layer{CreatedBy: h.CreatedBy, Empty: true})
			continue
		}
		if next >= len(manifest.Layers) {
			break
		}
		l := layerAt(next)
		l.CreatedBy = h.CreatedBy
		out = append(out, l)
		next++
	}
	for ; next < len(manifest.Layers); next++ {
		out = append(out, layerAt(next))
	}
	return out
}

func replayLayer(layout layoutDir, desc v1.Descriptor, files map[string]domain.FileEntry) error {
	blob, err := layout.openBlob(desc)
	if err != nil {
		return err
	}
	defer func() { _ = blob.Close() }()

	var src io.Reader = blob
	if isGzipLayer(desc.MediaType) {
		gz, err := gzip.NewReader(blob)
		if err != nil {
			return zerr.Wrap(err, "failed to open gzip layer")
		}
		defer func() { _ = gz.Close() }()
		src = gz
	}

	tr := tar.NewReader(src)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return zerr.Wrap(err, "failed to read layer")
		}
		applyEntry(files, hdr)
	}
	// Drain so the digest is verified.
	_, err = io.Copy(io.Discard, blob)
	return err
}

func applyEntry(files map[string]domain.FileEntry, hdr *tar.Header) {
	name := cleanEntryName(hdr.Name)
	if name == "" {
		return
	}
	dir, base := path.Split(name)
	dir = strings.TrimSuffix(dir, "/")

	switch {
	case base == whiteoutOpaque:
		removeChildren(files, dir)
		return
	case strings.HasPrefix(base, whiteoutPrefix):
		target := path.Join(dir, strings.TrimPrefix(base, whiteoutPrefix))
		delete(files, target)
		removeChildren(files, target)
		return
	}

	mode := hdr.FileInfo().Mode()
	if prev, ok := files[name]; ok && prev.IsDir() && !mode.IsDir() {
		removeChildren(files, name)
	}
	entry := domain.FileEntry{Path: name, Mode: mode}
	switch hdr.Typeflag {
	case tar.TypeReg:
		entry.Size = hdr.Size
	case tar.TypeSymlink:
		entry.Link = hdr.Linkname
	case tar.TypeLink:
		if target, ok := files[cleanEntryName(hdr.Linkname)]; ok {
			entry.Mode = target.Mode
			entry.Size = target.Size
		}
	}
	files[name] = entry
}

func cleanEntryName(name string) string {
	name = path.Clean("/" + name)
	return strings.TrimPrefix(name, "/")
}

func removeChildren(files map[string]domain.FileEntry, dir string) {
	prefix := dir + "/"
	if dir == "" {
		prefix = ""
	}
	for p := range files {
		if strings.HasPrefix(p, prefix) && p != dir {
			delete(files, p)
		}
	}
}

func sortedFiles(files map[string]domain.FileEntry) []domain.FileEntry {
	out := make([]domain.FileEntry, 0, len(files))
	for _, e := range files {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b domain.FileEntry) int {
		return strings.Compare(a.Path, b.Path)
	})
	return out
}

// Exists reports whether p holds an image layout.
func Exists(p string) bool {
	_, err := os.Stat(filepath.Join(p, v1.ImageLayoutFile))
	return err == nil
}
