package telemetry

import (
	"context"
	"errors"
	"io"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
)

var _ ports.Telemetry = (*Multi)(nil)

// Multi fans every vertex out to several backends.
type Multi struct {
	backends []ports.Telemetry
}

// NewMulti creates a Multi over backends.
func NewMulti(backends ...ports.Telemetry) *Multi {
	return &Multi{backends: backends}
}

// Record starts the vertex on every backend.
func (m *Multi) Record(ctx context.Context, name string, opts ...ports.VertexOption) (context.Context, ports.Vertex) {
	v := &multiVertex{vertices: make([]ports.Vertex, 0, len(m.backends))}
	for _, b := range m.backends {
		_, bv := b.Record(ctx, name, opts...)
		v.vertices = append(v.vertices, bv)
	}

	stdout := make([]io.Writer, 0, len(v.vertices))
	stderr := make([]io.Writer, 0, len(v.vertices))
	for _, bv := range v.vertices {
		stdout = append(stdout, bv.Stdout())
		stderr = append(stderr, bv.Stderr())
	}
	v.stdout = io.MultiWriter(stdout...)
	v.stderr = io.MultiWriter(stderr...)
	return ports.ContextWithVertex(ctx, v), v
}

// Close closes every backend.
func (m *Multi) Close() error {
	var errs []error
	for _, b := range m.backends {
		errs = append(errs, b.Close())
	}
	return errors.Join(errs...)
}

type multiVertex struct {
	vertices []ports.Vertex
	stdout   io.Writer
	stderr   io.Writer
}

func (v *multiVertex) Stdout() io.Writer { return v.stdout }
func (v *multiVertex) Stderr() io.Writer { return v.stderr }

func (v *multiVertex) Log(level domain.LogLevel, msg string) {
	for _, bv := range v.vertices {
		bv.Log(level, msg)
	}
}

func (v *multiVertex) Complete(err error) {
	for _, bv := range v.vertices {
		bv.Complete(err)
	}
}

func (v *multiVertex) Cached() {
	for _, bv := range v.vertices {
		bv.Cached()
	}
}
