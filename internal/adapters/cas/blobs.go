package cas

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.BlobStore = (*BlobStore)(nil)

// BlobStore implements ports.BlobStore as an OCI style blobs/sha256 tree under .kiln/blobs.
type BlobStore struct{}

// NewBlobStore creates a new BlobStore.
func NewBlobStore() *BlobStore {
	return &BlobStore{}
}

// Ingest copies r into the store. Existing blobs are left untouched.
func (b *BlobStore) Ingest(root string, r io.Reader) (digest.Digest, int64, error) {
	dir := filepath.Join(domain.DefaultBlobsPath(root), string(digest.SHA256))
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return "", 0, zerr.Wrap(err, domain.ErrBlobWriteFailed.Error())
	}

	tmp, err := os.CreateTemp(dir, ".ingest-*")
	if err != nil {
		return "", 0, zerr.Wrap(err, domain.ErrBlobWriteFailed.Error())
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	digester := digest.SHA256.Digester()
	size, err := io.Copy(io.MultiWriter(tmp, digester.Hash()), r)
	if err != nil {
		_ = tmp.Close()
		return "", 0, zerr.Wrap(err, domain.ErrBlobWriteFailed.Error())
	}
	if err := tmp.Chmod(domain.FilePerm); err != nil {
		_ = tmp.Close()
		return "", 0, zerr.Wrap(err, domain.ErrBlobWriteFailed.Error())
	}
	if err := tmp.Close(); err != nil {
		return "", 0, zerr.Wrap(err, domain.ErrBlobWriteFailed.Error())
	}

	d := digester.Digest()
	target := b.path(root, d)
	if _, err := os.Stat(target); err == nil {
		return d, size, nil
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", 0, zerr.With(zerr.Wrap(err, domain.ErrBlobWriteFailed.Error()), "digest", d.String())
	}

	return d, size, nil
}

// Open returns a reader for the blob with digest d.
func (b *BlobStore) Open(root string, d digest.Digest) (io.ReadCloser, error) {
	if err := d.Validate(); err != nil {
		return nil, errors.Join(domain.Tagged(domain.ErrBlobNotFound, "digest", d.String()), err)
	}

	f, err := os.Open(b.path(root, d))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.Tagged(domain.ErrBlobNotFound, "digest", d.String())
		}
		return nil, zerr.With(zerr.Wrap(err, "failed to open blob"), "digest", d.String())
	}
	return f, nil
}

// Exists reports whether the blob with digest d is present.
func (b *BlobStore) Exists(root string, d digest.Digest) bool {
	if d.Validate() != nil {
		return false
	}
	_, err := os.Stat(b.path(root, d))
	return err == nil
}

func (b *BlobStore) path(root string, d digest.Digest) string {
	return filepath.Join(domain.DefaultBlobsPath(root), d.Algorithm().String(), d.Encoded())
}
