package telemetry_test

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"go.trai.ch/kiln/internal/adapters/telemetry"
)

type collector struct {
	mu      sync.Mutex
	lines   []string
	flushed chan struct{}
}

func newCollector() *collector {
	return &collector{flushed: make(chan struct{}, 1)}
}

func (c *collector) collect(lines []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, lines...)
	select {
	case c.flushed <- struct{}{}:
	default:
	}
}

func (c *collector) get() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func TestLineBatcher_FlushOnSize(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := newCollector()
	b := telemetry.NewLineBatcher(8, time.Hour, c.collect)
	defer func() { _ = b.Close() }()

	_, err := b.Write([]byte("abc\n"))
	require.NoError(t, err)
	assert.Empty(t, c.get())

	_, err = b.Write([]byte("defg\nhi"))
	require.NoError(t, err)
	assert.Equal(t, []string{"abc", "defg"}, c.get(), "partial line is held back")
}

func TestLineBatcher_FlushOnTime(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := newCollector()
	b := telemetry.NewLineBatcher(100, 20*time.Millisecond, c.collect)
	defer func() { _ = b.Close() }()

	_, err := b.Write([]byte("installed flask 3.0.0\n"))
	require.NoError(t, err)

	select {
	case <-c.flushed:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for flush")
	}
	assert.Equal(t, []string{"installed flask 3.0.0"}, c.get())
}

func TestLineBatcher_ManualFlush(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := newCollector()
	b := telemetry.NewLineBatcher(100, time.Hour, c.collect)
	defer func() { _ = b.Close() }()

	_, err := b.Write([]byte("one\r\ntwo"))
	require.NoError(t, err)
	b.Flush()
	assert.Equal(t, []string{"one"}, c.get())
}

func TestLineBatcher_CloseFlushesPartialLine(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := newCollector()
	b := telemetry.NewLineBatcher(100, time.Hour, c.collect)

	_, err := b.Write([]byte("a\n\nb"))
	require.NoError(t, err)
	require.NoError(t, b.Close())
	assert.Equal(t, []string{"a", "", "b"}, c.get())

	_, err = b.Write([]byte("late"))
	require.Error(t, err)
	require.NoError(t, b.Close())
}

func TestLineBatcher_ThreadSafety(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := newCollector()
	b := telemetry.NewLineBatcher(16, 5*time.Millisecond, c.collect)

	const workers, iterations = 8, 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for j := range iterations {
				_, _ = b.Write([]byte("line\n"))
				if j%10 == 0 {
					b.Flush()
				}
			}
		}()
	}
	wg.Wait()
	require.NoError(t, b.Close())

	lines := c.get()
	assert.Len(t, lines, workers*iterations)
	assert.Equal(t, strings.Repeat("line", workers*iterations), strings.Join(lines, ""))
}
