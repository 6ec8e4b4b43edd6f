package fs

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

var _ ports.Hasher = (*Hasher)(nil)

// Hasher computes xxhash digests of trees and cache keys.
type Hasher struct {
	workers int
}

// NewHasher creates a Hasher that hashes up to runtime.NumCPU files at once.
func NewHasher() *Hasher {
	return &Hasher{workers: runtime.NumCPU()}
}

// ComputeFileHash computes the XXHash of a file's content.
func (h *Hasher) ComputeFileHash(path string) (uint64, error) {
	f, err := os.Open(path) //nolint:gosec // Path is controlled by caller
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, domain.ErrFileHashFailed.Error()), "path", path)
	}
	defer f.Close() //nolint:errcheck // Best effort close in defer

	digest := xxhash.New()
	if _, err := io.Copy(digest, f); err != nil {
		return 0, zerr.With(zerr.Wrap(err, domain.ErrFileHashFailed.Error()), "path", path)
	}

	return digest.Sum64(), nil
}

// HashTree hashes entry paths, modes and link targets in order, together with file contents.
// File contents are hashed concurrently; the combination is order-stable.
func (h *Hasher) HashTree(entries []domain.FileEntry) (string, error) {
	sums := make([]uint64, len(entries))

	g := new(errgroup.Group)
	g.SetLimit(h.workers)
	for i := range entries {
		if !entries[i].Mode.IsRegular() {
			continue
		}
		g.Go(func() error {
			sum, err := h.ComputeFileHash(entries[i].Abs)
			if err != nil {
				return err
			}
			sums[i] = sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	digest := xxhash.New()
	var buf [8]byte
	for i, e := range entries {
		_, _ = digest.WriteString(e.Path)
		_, _ = digest.Write([]byte{0})

		binary.LittleEndian.PutUint32(buf[:4], uint32(e.Mode))
		_, _ = digest.Write(buf[:4])

		_, _ = digest.WriteString(e.Link)
		_, _ = digest.Write([]byte{0})

		binary.LittleEndian.PutUint64(buf[:], sums[i])
		_, _ = digest.Write(buf[:])
	}

	return fmt.Sprintf("%016x", digest.Sum64()), nil
}

// CacheKey hashes the parts in order with NUL separators.
func (h *Hasher) CacheKey(parts ...string) string {
	digest := xxhash.New()
	for _, p := range parts {
		_, _ = digest.WriteString(p)
		_, _ = digest.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", digest.Sum64())
}
