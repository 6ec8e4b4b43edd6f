package progrock_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/telemetry/progrock"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
)

func TestRecorder_Record(t *testing.T) {
	recorder := progrock.New()

	ctx, vertex := recorder.Record(context.Background(), "install requirements.txt", ports.WithVertexID("install"))
	fromCtx, ok := ports.VertexFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, vertex, fromCtx)

	_, err := vertex.Stdout().Write([]byte("installed flask 3.0.0\n"))
	require.NoError(t, err)
	vertex.Log(domain.LogLevelWarn, "slow index")
	vertex.Complete(nil)

	_, cached := recorder.Record(context.Background(), "copy . .")
	cached.Cached()

	_, failed := recorder.Record(context.Background(), "seal")
	failed.Complete(errors.New("boom"))

	require.NoError(t, recorder.Close())
}
