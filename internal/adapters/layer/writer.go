// Package layer packs file trees into reproducible tar layers.
package layer

import (
	"archive/tar"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"
	"time"

	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.LayerWriter = (*Writer)(nil)

const dirMode = 0o755

// Writer implements ports.LayerWriter. Layers are stored uncompressed in the blob store.
type Writer struct {
	blobs ports.BlobStore
}

// NewWriter creates a new Writer storing layers in blobs.
func NewWriter(blobs ports.BlobStore) *Writer {
	return &Writer{blobs: blobs}
}

// Write packs spec.Entries below spec.Prefix. An empty entry list yields an empty layer without a blob
// unless spec.KeepPrefix asks for the prefix directories themselves.
func (w *Writer) Write(ctx context.Context, root string, spec ports.LayerSpec) (domain.Layer, error) {
	layer := domain.Layer{MediaType: v1.MediaTypeImageLayer, CreatedBy: spec.CreatedBy}
	if len(spec.Entries) == 0 && (!spec.KeepPrefix || prefixBase(spec.Prefix) == "") {
		layer.Empty = true
		return layer, nil
	}

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		err := WriteTar(ctx, pw, spec.Prefix, spec.Entries, ModTime())
		_ = pw.CloseWithError(err)
		done <- err
	}()

	d, size, ingestErr := w.blobs.Ingest(root, pr)
	_ = pr.CloseWithError(io.ErrClosedPipe)
	tarErr := <-done

	// A tar stream cut off by a failed ingest only reports the closed pipe.
	if tarErr != nil && (ingestErr == nil || !errors.Is(tarErr, io.ErrClosedPipe)) {
		return domain.Layer{}, zerr.With(zerr.Wrap(tarErr, domain.ErrLayerWriteFailed.Error()), "layer", spec.CreatedBy)
	}
	if ingestErr != nil {
		return domain.Layer{}, zerr.With(zerr.Wrap(ingestErr, domain.ErrLayerWriteFailed.Error()), "layer", spec.CreatedBy)
	}

	layer.Digest = d
	layer.DiffID = d
	layer.Size = size
	return layer, nil
}

// ModTime returns the timestamp stamped on every tar entry.
func ModTime() time.Time {
	if t, ok := domain.SourceDateEpoch(); ok {
		return t
	}
	return time.Unix(0, 0).UTC()
}

// WriteTar writes entries as a tar stream rooted at prefix.
// Entries are emitted sorted by path with parents first. Ownership is root and every mtime is modTime.
func WriteTar(ctx context.Context, w io.Writer, prefix string, entries []domain.FileEntry, modTime time.Time) error {
	tw := tar.NewWriter(w)

	base := prefixBase(prefix)
	if base != "" {
		parts := strings.Split(base, "/")
		for i := range parts {
			hdr := dirHeader(strings.Join(parts[:i+1], "/"), dirMode, modTime)
			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
		}
	}

	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b domain.FileEntry) int { return strings.Compare(a.Path, b.Path) })

	for _, e := range sorted {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := path.Join(base, e.Path)
		if err := writeEntry(tw, name, e, modTime); err != nil {
			return zerr.With(err, "path", e.Path)
		}
	}

	return tw.Close()
}

func writeEntry(tw *tar.Writer, name string, e domain.FileEntry, modTime time.Time) error {
	switch {
	case e.IsDir():
		return tw.WriteHeader(dirHeader(name, int64(e.Mode.Perm()|modeBits(e.Mode)), modTime))
	case e.IsSymlink():
		return tw.WriteHeader(&tar.Header{
			Typeflag: tar.TypeSymlink,
			Name:     name,
			Linkname: e.Link,
			Mode:     0o777,
			ModTime:  modTime,
		})
	case e.Mode.IsRegular():
		return writeFile(tw, name, e, modTime)
	default:
		// Devices, sockets and pipes have no place in an artifact.
		return nil
	}
}

func writeFile(tw *tar.Writer, name string, e domain.FileEntry, modTime time.Time) error {
	f, err := os.Open(e.Abs)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Size:     info.Size(),
		Mode:     int64(e.Mode.Perm() | modeBits(e.Mode)),
		ModTime:  modTime,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, io.LimitReader(f, info.Size()))
	return err
}

// prefixBase turns an artifact path into a relative tar name; "/" becomes "".
func prefixBase(prefix string) string {
	return strings.Trim(path.Clean("/"+prefix), "/")
}

func dirHeader(name string, mode int64, modTime time.Time) *tar.Header {
	return &tar.Header{
		Typeflag: tar.TypeDir,
		Name:     name + "/",
		Mode:     mode,
		ModTime:  modTime,
	}
}

// modeBits maps setuid, setgid and sticky onto their tar permission bits.
func modeBits(m fs.FileMode) fs.FileMode {
	var bits fs.FileMode
	if m&fs.ModeSetuid != 0 {
		bits |= 0o4000
	}
	if m&fs.ModeSetgid != 0 {
		bits |= 0o2000
	}
	if m&fs.ModeSticky != 0 {
		bits |= 0o1000
	}
	return bits
}
