// Package oci reads and writes OCI image layouts.
package oci

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"
	specs "github.com/opencontainers/image-spec/specs-go"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"go.trai.ch/zerr"
)

const (
	// AnnotationImageName carries the full image reference for containerd and docker.
	AnnotationImageName = "io.containerd.image.name"

	dockerManifestMediaType     = "application/vnd.docker.distribution.manifest.v2+json"
	dockerManifestListMediaType = "application/vnd.docker.distribution.manifest.list.v2+json"
	dockerLayerMediaType        = "application/vnd.docker.image.rootfs.diff.tar"
	dockerLayerGzipMediaType    = "application/vnd.docker.image.rootfs.diff.tar.gzip"

	maxMetadataSize = 4 << 20
)

var (
	errNoManifest        = errors.New("no manifest matches")
	errAmbiguousManifest = errors.New("layout holds several manifests, select one with @<ref>")
	errDigestMismatch    = errors.New("blob content does not match its digest")
	errLayoutVersion     = errors.New("unsupported image layout version")
)

// layoutDir is an OCI image layout on disk.
type layoutDir string

func (l layoutDir) blobPath(d digest.Digest) string {
	return filepath.Join(string(l), v1.ImageBlobsDir, d.Algorithm().String(), d.Encoded())
}

// readIndex reads index.json after checking the oci-layout marker.
func (l layoutDir) readIndex() (*v1.Index, error) {
	data, err := os.ReadFile(filepath.Join(string(l), v1.ImageLayoutFile))
	if err != nil {
		return nil, err
	}
	var marker v1.ImageLayout
	if err := json.Unmarshal(data, &marker); err != nil {
		return nil, zerr.Wrap(err, "failed to parse "+v1.ImageLayoutFile)
	}
	if marker.Version != v1.ImageLayoutVersion {
		return nil, zerr.With(errLayoutVersion, "version", marker.Version)
	}

	data, err = os.ReadFile(filepath.Join(string(l), v1.ImageIndexFile))
	if err != nil {
		return nil, err
	}
	var index v1.Index
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, zerr.Wrap(err, "failed to parse "+v1.ImageIndexFile)
	}
	return &index, nil
}

// openBlob opens the blob described by desc.
// The returned reader fails on EOF if the content does not match the descriptor.
func (l layoutDir) openBlob(desc v1.Descriptor) (io.ReadCloser, error) {
	if err := desc.Digest.Validate(); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "invalid digest"), "digest", desc.Digest.String())
	}
	f, err := os.Open(l.blobPath(desc.Digest))
	if err != nil {
		return nil, zerr.With(err, "digest", desc.Digest.String())
	}
	verifier := desc.Digest.Verifier()
	return &verifiedReader{
		file:     f,
		r:        io.TeeReader(f, verifier),
		verifier: verifier,
		desc:     desc,
	}, nil
}

// readBlob reads a small JSON blob fully and verifies it.
func (l layoutDir) readBlob(desc v1.Descriptor) ([]byte, error) {
	if desc.Size > maxMetadataSize {
		return nil, zerr.With(errors.New("metadata blob too large"), "digest", desc.Digest.String())
	}
	rc, err := l.openBlob(desc)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

func (l layoutDir) readJSONBlob(desc v1.Descriptor, v any) error {
	data, err := l.readBlob(desc)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to parse blob"), "digest", desc.Digest.String())
	}
	return nil
}

// resolveManifest selects an image manifest from the layout.
// ref filters top-level entries by name. Nested indexes are resolved by platform.
func (l layoutDir) resolveManifest(ref string, want *v1.Platform) (v1.Descriptor, *v1.Manifest, error) {
	index, err := l.readIndex()
	if err != nil {
		return v1.Descriptor{}, nil, err
	}

	candidates := index.Manifests
	if ref != "" {
		candidates = filterDescriptors(candidates, func(d v1.Descriptor) bool { return matchesRef(d, ref) })
		if len(candidates) == 0 {
			return v1.Descriptor{}, nil, zerr.With(errNoManifest, "ref", ref)
		}
	}

	for depth := 0; ; depth++ {
		if depth > 4 {
			return v1.Descriptor{}, nil, errors.New("image index nesting too deep")
		}
		desc, err := pickDescriptor(candidates, want)
		if err != nil {
			return v1.Descriptor{}, nil, err
		}

		switch desc.MediaType {
		case v1.MediaTypeImageManifest, dockerManifestMediaType:
			var manifest v1.Manifest
			if err := l.readJSONBlob(desc, &manifest); err != nil {
				return v1.Descriptor{}, nil, err
			}
			return desc, &manifest, nil
		case v1.MediaTypeImageIndex, dockerManifestListMediaType:
			var nested v1.Index
			if err := l.readJSONBlob(desc, &nested); err != nil {
				return v1.Descriptor{}, nil, err
			}
			candidates = nested.Manifests
		default:
			return v1.Descriptor{}, nil, zerr.With(errors.New("unsupported manifest media type"), "media_type", desc.MediaType)
		}
	}
}

func pickDescriptor(candidates []v1.Descriptor, want *v1.Platform) (v1.Descriptor, error) {
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	if want != nil {
		candidates = filterDescriptors(candidates, func(d v1.Descriptor) bool {
			return d.Platform != nil && d.Platform.OS == want.OS && d.Platform.Architecture == want.Architecture
		})
	}
	switch len(candidates) {
	case 0:
		if want != nil {
			return v1.Descriptor{}, zerr.With(errNoManifest, "platform", want.OS+"/"+want.Architecture)
		}
		return v1.Descriptor{}, errNoManifest
	case 1:
		return candidates[0], nil
	default:
		return v1.Descriptor{}, errAmbiguousManifest
	}
}

func filterDescriptors(in []v1.Descriptor, keep func(v1.Descriptor) bool) []v1.Descriptor {
	var out []v1.Descriptor
	for _, d := range in {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}

// matchesRef matches a full "name:tag" reference or only its tag.
func matchesRef(desc v1.Descriptor, ref string) bool {
	for _, key := range []string{v1.AnnotationRefName, AnnotationImageName} {
		name := desc.Annotations[key]
		if name == "" {
			continue
		}
		if name == ref {
			return true
		}
		if i := strings.LastIndex(name, ":"); i >= 0 && name[i+1:] == ref {
			return true
		}
	}
	return false
}

// isGzipLayer reports whether the layer media type is gzip compressed.
func isGzipLayer(mediaType string) bool {
	return strings.HasSuffix(mediaType, "+gzip") || mediaType == dockerLayerGzipMediaType
}

func supportedLayer(mediaType string) bool {
	switch mediaType {
	case v1.MediaTypeImageLayer, v1.MediaTypeImageLayerGzip, dockerLayerMediaType, dockerLayerGzipMediaType:
		return true
	default:
		return false
	}
}

// marshal encodes v as compact JSON, the form hashed into descriptors.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func versioned() specs.Versioned {
	return specs.Versioned{SchemaVersion: 2}
}

type verifiedReader struct {
	file     *os.File
	r        io.Reader
	verifier digest.Verifier
	desc     v1.Descriptor
	n        int64
}

func (v *verifiedReader) Read(p []byte) (int, error) {
	n, err := v.r.Read(p)
	v.n += int64(n)
	if errors.Is(err, io.EOF) {
		if v.desc.Size > 0 && v.n != v.desc.Size {
			return n, zerr.With(fmt.Errorf("%w: size %d, expected %d", errDigestMismatch, v.n, v.desc.Size), "digest", v.desc.Digest.String())
		}
		if !v.verifier.Verified() {
			return n, zerr.With(errDigestMismatch, "digest", v.desc.Digest.String())
		}
	}
	return n, err
}

func (v *verifiedReader) Close() error {
	return v.file.Close()
}
