package oci

import (
	"bytes"
	"context"
	"errors"
	"io"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Sealer = (*Sealer)(nil)

// DefaultTag is the tag of artifacts sealed without one.
const DefaultTag = "latest"

// Sealer implements ports.Sealer by writing an OCI image layout.
type Sealer struct {
	blobs ports.BlobStore
}

// NewSealer creates a new Sealer reading layer blobs from blobs.
func NewSealer(blobs ports.BlobStore) *Sealer {
	return &Sealer{blobs: blobs}
}

// Seal writes the artifact to a sibling temp directory and swaps it into place.
// On failure the previous artifact at req.Output, if any, is left untouched.
func (s *Sealer) Seal(ctx context.Context, root string, req ports.SealRequest) (*domain.Artifact, error) {
	artifact, err := s.seal(ctx, root, req)
	if err != nil {
		return nil, errors.Join(domain.Tagged(domain.ErrSealFailed, "output", req.Output), err)
	}
	return artifact, nil
}

func (s *Sealer) seal(ctx context.Context, root string, req ports.SealRequest) (*domain.Artifact, error) {
	if req.Output == "" {
		return nil, errors.New("no output path")
	}
	base := req.Base
	if base == nil {
		base = ScratchBase()
	}
	layers := make([]domain.Layer, 0, len(base.Layers)+len(req.Layers))
	layers = append(layers, base.Layers...)
	layers = append(layers, req.Layers...)

	config := buildConfig(base, layers, req)
	configJSON, err := marshal(config)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to encode image config")
	}
	configDesc := v1.Descriptor{
		MediaType: v1.MediaTypeImageConfig,
		Digest:    digest.FromBytes(configJSON),
		Size:      int64(len(configJSON)),
	}

	manifest := v1.Manifest{
		Versioned: versioned(),
		MediaType: v1.MediaTypeImageManifest,
		Config:    configDesc,
		Layers:    make([]v1.Descriptor, 0, len(layers)),
	}
	for _, l := range layers {
		if l.Empty {
			continue
		}
		manifest.Layers = append(manifest.Layers, v1.Descriptor{
			MediaType: l.MediaType,
			Digest:    l.Digest,
			Size:      l.Size,
		})
	}
	manifestJSON, err := marshal(manifest)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to encode image manifest")
	}
	manifestDesc := v1.Descriptor{
		MediaType: v1.MediaTypeImageManifest,
		Digest:    digest.FromBytes(manifestJSON),
		Size:      int64(len(manifestJSON)),
	}

	ref := Reference(req.Name, req.Tag)
	indexDesc := manifestDesc
	indexDesc.Annotations = map[string]string{
		v1.AnnotationRefName: ref,
		AnnotationImageName:  ref,
	}
	indexDesc.Platform = &v1.Platform{OS: config.OS, Architecture: config.Architecture}
	index := v1.Index{
		Versioned: versioned(),
		MediaType: v1.MediaTypeImageIndex,
		Manifests: []v1.Descriptor{indexDesc},
	}
	indexJSON, err := marshal(index)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to encode image index")
	}
	layoutJSON, err := marshal(v1.ImageLayout{Version: v1.ImageLayoutVersion})
	if err != nil {
		return nil, zerr.Wrap(err, "failed to encode layout marker")
	}

	parent := filepath.Dir(req.Output)
	if err := os.MkdirAll(parent, domain.DirPerm); err != nil {
		return nil, zerr.With(err, "path", parent)
	}
	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(req.Output)+".tmp-")
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(tmp)
		}
	}()

	staging := layoutDir(tmp)
	if err := writeFile(filepath.Join(tmp, v1.ImageLayoutFile), layoutJSON); err != nil {
		return nil, err
	}
	if err := writeFile(filepath.Join(tmp, v1.ImageIndexFile), indexJSON); err != nil {
		return nil, err
	}
	if err := writeFile(staging.blobPath(configDesc.Digest), configJSON); err != nil {
		return nil, err
	}
	if err := writeFile(staging.blobPath(manifestDesc.Digest), manifestJSON); err != nil {
		return nil, err
	}
	for _, ld := range manifest.Layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.copyBlob(root, staging, ld.Digest); err != nil {
			return nil, err
		}
	}

	if err := replaceDir(tmp, req.Output); err != nil {
		return nil, err
	}
	committed = true

	return &domain.Artifact{
		Name:           ref,
		Path:           req.Output,
		ManifestDigest: manifestDesc.Digest,
		ConfigDigest:   configDesc.Digest,
		WorkingDir:     req.WorkingDir,
		Layers:         layers,
		Env:            config.Config.Env,
		Cmd:            config.Config.Cmd,
		Entrypoint:     config.Config.Entrypoint,
	}, nil
}

// Reference joins an artifact name and tag, defaulting the tag to latest.
func Reference(name, tag string) string {
	if tag == "" {
		tag = DefaultTag
	}
	if name == "" {
		name = domain.DefaultRecipeName
	}
	return name + ":" + tag
}

func buildConfig(base *domain.Base, layers []domain.Layer, req ports.SealRequest) v1.Image {
	cfg := v1.Image{
		Created: req.Created,
		Platform: v1.Platform{
			OS:           base.OS,
			Architecture: base.Arch,
		},
		Config: v1.ImageConfig{
			Env:        mergeEnv(base.Env, req.Env),
			WorkingDir: req.WorkingDir.String(),
			Labels:     mergeLabels(base.Labels, req.Labels),
		},
		RootFS: v1.RootFS{
			Type:    "layers",
			DiffIDs: make([]digest.Digest, 0, len(layers)),
		},
		History: make([]v1.History, 0, len(layers)),
	}

	// A new entrypoint discards the base command.
	switch {
	case req.Entrypoint != nil:
		cfg.Config.Entrypoint = req.Entrypoint
		cfg.Config.Cmd = req.Cmd
	case req.Cmd != nil:
		cfg.Config.Entrypoint = base.Entry
		cfg.Config.Cmd = req.Cmd
	default:
		cfg.Config.Entrypoint = base.Entry
		cfg.Config.Cmd = base.Cmd
	}

	for _, l := range layers {
		if !l.Empty {
			cfg.RootFS.DiffIDs = append(cfg.RootFS.DiffIDs, l.DiffID)
		}
		cfg.History = append(cfg.History, v1.History{
			Created:    req.Created,
			CreatedBy:  l.CreatedBy,
			EmptyLayer: l.Empty,
		})
	}
	return cfg
}

// mergeEnv overlays KEY=VALUE pairs, keeping the position of the first occurrence.
func mergeEnv(base, overlay []string) []string {
	if len(base) == 0 && len(overlay) == 0 {
		return nil
	}
	out := make([]string, 0, len(base)+len(overlay))
	pos := make(map[string]int, len(base)+len(overlay))
	for _, kv := range append(append([]string(nil), base...), overlay...) {
		key, _, _ := strings.Cut(kv, "=")
		if i, ok := pos[key]; ok {
			out[i] = kv
			continue
		}
		pos[key] = len(out)
		out = append(out, kv)
	}
	return out
}

func mergeLabels(base, overlay map[string]string) map[string]string {
	if len(base) == 0 && len(overlay) == 0 {
		return nil
	}
	out := maps.Clone(base)
	if out == nil {
		out = make(map[string]string, len(overlay))
	}
	maps.Copy(out, overlay)
	return out
}

func (s *Sealer) copyBlob(root string, dst layoutDir, d digest.Digest) error {
	src, err := s.blobs.Open(root, d)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	path := dst.blobPath(d)
	if err := os.MkdirAll(filepath.Dir(path), domain.DirPerm); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, domain.FilePerm)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil
		}
		return err
	}
	verifier := d.Verifier()
	if _, err := io.Copy(io.MultiWriter(f, verifier), src); err != nil {
		_ = f.Close()
		return zerr.With(err, "digest", d.String())
	}
	if err := f.Close(); err != nil {
		return err
	}
	if !verifier.Verified() {
		return zerr.With(errDigestMismatch, "digest", d.String())
	}
	return nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), domain.DirPerm); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, domain.FilePerm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// replaceDir moves src to dst. An existing dst is restored if the move fails.
func replaceDir(src, dst string) error {
	backup := ""
	if _, err := os.Lstat(dst); err == nil {
		backup = src + ".prev"
		if err := os.Rename(dst, backup); err != nil {
			return zerr.With(zerr.Wrap(err, "failed to move previous artifact aside"), "path", dst)
		}
	}
	if err := os.Rename(src, dst); err != nil {
		if backup != "" {
			_ = os.Rename(backup, dst)
		}
		return zerr.With(zerr.Wrap(err, "failed to move artifact into place"), "path", dst)
	}
	if backup != "" {
		_ = os.RemoveAll(backup)
	}
	return nil
}
