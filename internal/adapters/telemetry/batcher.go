// Package telemetry renders build steps for the terminal and records them as progrock vertices.
package telemetry

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultSizeLimit is the buffered byte count that forces a flush.
	DefaultSizeLimit = 4096
	// DefaultTimeLimit is the interval after which buffered lines are flushed.
	DefaultTimeLimit = 50 * time.Millisecond
)

var errBatcherClosed = errors.New("line batcher is closed")

// LineBatcher buffers step output and hands complete lines to onFlush.
// A flush happens when the buffer reaches the size limit, when the time limit elapses, or on Close.
// Partial lines are held back until completed or until Close. It is safe for concurrent use.
type LineBatcher struct {
	sizeLimit int
	timeLimit time.Duration
	onFlush   func(lines []string)

	mu     sync.Mutex
	buffer bytes.Buffer
	ticker *time.Ticker
	stopCh chan struct{}
	doneCh chan struct{}
	closed bool
}

// NewLineBatcher starts a LineBatcher. Non-positive limits select the defaults.
// Close stops the background flusher.
func NewLineBatcher(sizeLimit int, timeLimit time.Duration, onFlush func(lines []string)) *LineBatcher {
	if sizeLimit <= 0 {
		sizeLimit = DefaultSizeLimit
	}
	if timeLimit <= 0 {
		timeLimit = DefaultTimeLimit
	}

	b := &LineBatcher{
		sizeLimit: sizeLimit,
		timeLimit: timeLimit,
		onFlush:   onFlush,
		ticker:    time.NewTicker(timeLimit),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	go b.run()
	return b
}

// Write buffers p.
func (b *LineBatcher) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, errBatcherClosed
	}
	n, _ := b.buffer.Write(p)
	if b.buffer.Len() >= b.sizeLimit {
		b.flushLocked(b.buffer.Len() >= b.sizeLimit*2)
		b.ticker.Reset(b.timeLimit)
	}
	return n, nil
}

// Flush emits every complete buffered line.
func (b *LineBatcher) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.flushLocked(false)
	}
}

// Close stops the background flusher and emits everything still buffered.
func (b *LineBatcher) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.stopCh)
	b.flushLocked(true)
	b.mu.Unlock()

	<-b.doneCh
	return nil
}

func (b *LineBatcher) run() {
	defer close(b.doneCh)
	for {
		select {
		case <-b.ticker.C:
			b.Flush()
		case <-b.stopCh:
			b.ticker.Stop()
			return
		}
	}
}

// flushLocked must be called with mu held. With all set, a trailing partial line is emitted too.
func (b *LineBatcher) flushLocked(all bool) {
	data := b.buffer.Bytes()
	end := bytes.LastIndexByte(data, '\n') + 1
	if all {
		end = len(data)
	}
	if end == 0 {
		return
	}

	chunk := string(data[:end])
	rest := append([]byte(nil), data[end:]...)
	b.buffer.Reset()
	b.buffer.Write(rest)

	lines := splitLines(chunk)
	if len(lines) > 0 && b.onFlush != nil {
		b.onFlush(lines)
	}
}

func splitLines(s string) []string {
	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
