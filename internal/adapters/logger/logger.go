// Package logger implements a logging adapter using log/slog.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"

	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/ui/style"
	"go.trai.ch/zerr"
)

// messager is implemented by zerr errors: the message of one link without its cause chain.
type messager interface {
	Message() string
}

// metadataer is implemented by zerr errors carrying key/value metadata.
type metadataer interface {
	Metadata() map[string]any
}

// Logger implements ports.Logger using log/slog.
type Logger struct {
	mu       sync.RWMutex
	logger   *slog.Logger
	jsonMode bool
	level    slog.Level
	output   io.Writer
}

var _ ports.Logger = (*Logger)(nil)

// New creates a Logger writing pretty output to stderr.
func New() *Logger {
	l := &Logger{output: os.Stderr}
	l.rebuild()
	return l
}

// SetOutput updates the destination, keeping the current mode. A nil writer selects stderr.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if w == nil {
		w = os.Stderr
	}
	l.output = w
	l.rebuild()
}

// SetJSON switches between JSON and pretty output.
func (l *Logger) SetJSON(enable bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.jsonMode = enable
	l.rebuild()
}

// SetLevel sets the minimum level from its name: debug, info, warn or error.
func (l *Logger) SetLevel(name string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return zerr.With(zerr.Wrap(err, "invalid log level"), "level", name)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.level = level
	l.rebuild()
	return nil
}

func (l *Logger) rebuild() {
	opts := &slog.HandlerOptions{Level: l.level}
	var handler slog.Handler
	if l.jsonMode {
		handler = slog.NewJSONHandler(l.output, opts)
	} else {
		handler = NewPrettyHandler(l.output, opts)
	}
	l.logger = slog.New(handler)
}

// Info logs an informational message.
func (l *Logger) Info(msg string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.Info(msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.Warn(msg)
}

// Error logs err with its cause chain, one link per line.
func (l *Logger) Error(err error) {
	if err == nil {
		return
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.jsonMode {
		l.logger.Error("operation failed", "error", err)
		return
	}

	l.logger.Error(FormatError(err))
}

// FormatError renders an error chain as "Error: <top>" followed by its causes.
// Joined errors contribute each member; zerr metadata is appended to its link.
func FormatError(err error) string {
	links := collectLinks(err)
	if len(links) == 0 {
		return ""
	}

	head := strings.Split(links[0], "\n")
	lines := []string{"Error: " + head[0]}
	for _, p := range head[1:] {
		lines = append(lines, "       "+p)
	}

	if len(links) > 1 {
		lines = append(lines, "", "  Caused by:")
	}
	for _, link := range links[1:] {
		parts := strings.Split(link, "\n")
		lines = append(lines, "    "+style.Arrow+" "+parts[0])
		for _, p := range parts[1:] {
			lines = append(lines, "      "+p)
		}
	}

	return strings.Join(lines, "\n")
}

func collectLinks(err error) []string {
	var links []string
	var pending map[string]any
	for err != nil {
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, member := range joined.Unwrap() {
				links = append(links, collectLinks(member)...)
			}
			return links
		}

		m, ok := err.(messager)
		if !ok {
			return append(links, appendMetadata(err.Error(), pending))
		}

		md := map[string]any{}
		maps.Copy(md, pending)
		if src, ok := err.(metadataer); ok {
			maps.Copy(md, src.Metadata())
		}

		// Links without a message only annotate the next one.
		if m.Message() == "" {
			pending = md
		} else {
			links = append(links, appendMetadata(m.Message(), md))
			pending = nil
		}
		err = errors.Unwrap(err)
	}
	if len(pending) > 0 {
		links = append(links, appendMetadata("", pending))
	}
	return links
}

func appendMetadata(msg string, md map[string]any) string {
	if len(md) == 0 {
		return msg
	}
	parts := make([]string, 0, len(md))
	for _, k := range slices.Sorted(maps.Keys(md)) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, md[k]))
	}
	if msg == "" {
		return strings.Join(parts, " ")
	}
	return msg + " (" + strings.Join(parts, " ") + ")"
}
