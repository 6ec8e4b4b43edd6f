package oci

import (
	"context"
	"errors"
	"maps"
	"runtime"
	"strings"

	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.BaseLoader = (*Loader)(nil)

// DefaultOS is the platform OS artifacts are built for.
const DefaultOS = "linux"

// Loader implements ports.BaseLoader for scratch and on-disk OCI layouts.
type Loader struct {
	resolver ports.ContextResolver
	blobs    ports.BlobStore
	platform v1.Platform
}

// NewLoader creates a new Loader selecting linux images for the host architecture.
func NewLoader(resolver ports.ContextResolver, blobs ports.BlobStore) *Loader {
	return &Loader{
		resolver: resolver,
		blobs:    blobs,
		platform: v1.Platform{OS: DefaultOS, Architecture: runtime.GOARCH},
	}
}

// ScratchBase returns the empty base environment.
func ScratchBase() *domain.Base {
	return &domain.Base{ID: domain.ScratchImage, OS: DefaultOS, Arch: runtime.GOARCH}
}

// Load resolves spec to a base environment. Layers of an OCI layout are copied into the blob store.
func (l *Loader) Load(ctx context.Context, root string, spec domain.BaseSpec) (*domain.Base, error) {
	if spec.IsScratch() {
		return ScratchBase(), nil
	}
	if !strings.HasPrefix(spec.Image, domain.OCIBasePrefix) {
		return nil, domain.Tagged(domain.ErrBaseImage, "image", spec.Image, "reason", "unsupported image reference")
	}

	base, err := l.loadLayout(ctx, root, spec)
	if err != nil {
		return nil, errors.Join(domain.Tagged(domain.ErrBaseImage, "image", spec.Image), err)
	}
	return base, nil
}

func (l *Loader) loadLayout(ctx context.Context, root string, spec domain.BaseSpec) (*domain.Base, error) {
	dir, ref := spec.LayoutRef()
	abs, err := l.resolver.Resolve(root, dir)
	if err != nil {
		return nil, err
	}

	layout := layoutDir(abs)
	desc, manifest, err := layout.resolveManifest(ref, &l.platform)
	if err != nil {
		return nil, err
	}

	var cfg v1.Image
	if err := layout.readJSONBlob(manifest.Config, &cfg); err != nil {
		return nil, zerr.Wrap(err, "failed to read image config")
	}
	if len(cfg.RootFS.DiffIDs) != len(manifest.Layers) {
		return nil, zerr.With(errors.New("config diff_ids do not match manifest layers"), "layers", len(manifest.Layers))
	}

	createdBy := layerHistory(cfg.History)
	layers := make([]domain.Layer, 0, len(manifest.Layers))
	for i, ld := range manifest.Layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !supportedLayer(ld.MediaType) {
			return nil, zerr.With(errors.New("unsupported layer media type"), "media_type", ld.MediaType)
		}
		if err := l.importBlob(root, layout, ld); err != nil {
			return nil, err
		}
		layer := domain.Layer{
			Digest:    ld.Digest,
			DiffID:    cfg.RootFS.DiffIDs[i],
			Size:      ld.Size,
			MediaType: normalizeLayerMediaType(ld.MediaType),
		}
		if i < len(createdBy) {
			layer.CreatedBy = createdBy[i]
		}
		layers = append(layers, layer)
	}

	base := &domain.Base{
		ID:     desc.Digest.String(),
		Layers: layers,
		Env:    cfg.Config.Env,
		Cmd:    cfg.Config.Cmd,
		Entry:  cfg.Config.Entrypoint,
		Labels: maps.Clone(cfg.Config.Labels),
		OS:     cfg.OS,
		Arch:   cfg.Architecture,
	}
	if base.OS == "" {
		base.OS = l.platform.OS
	}
	if base.Arch == "" {
		base.Arch = l.platform.Architecture
	}
	return base, nil
}

func (l *Loader) importBlob(root string, layout layoutDir, desc v1.Descriptor) error {
	if l.blobs.Exists(root, desc.Digest) {
		return nil
	}
	rc, err := layout.openBlob(desc)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	got, _, err := l.blobs.Ingest(root, rc)
	if err != nil {
		return err
	}
	if got != desc.Digest {
		return zerr.With(zerr.With(errDigestMismatch, "digest", desc.Digest.String()), "actual", got.String())
	}
	return nil
}

// layerHistory returns the created_by of every non-empty history entry.
func layerHistory(history []v1.History) []string {
	var out []string
	for _, h := range history {
		if !h.EmptyLayer {
			out = append(out, h.CreatedBy)
		}
	}
	return out
}

func normalizeLayerMediaType(mediaType string) string {
	switch mediaType {
	case dockerLayerMediaType:
		return v1.MediaTypeImageLayer
	case dockerLayerGzipMediaType:
		return v1.MediaTypeImageLayerGzip
	default:
		return mediaType
	}
}
