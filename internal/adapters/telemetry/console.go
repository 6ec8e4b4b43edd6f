package telemetry

import (
	"context"
	"io"
	"sync"
	"time"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/ui/output"
	"go.trai.ch/kiln/internal/ui/style"
)

var _ ports.Telemetry = (*Console)(nil)

// Console prints step output indented as it arrives and one status line when each step finishes.
type Console struct {
	mu   sync.Mutex
	out  *output.Printer
	now  func() time.Time
	open map[*consoleVertex]struct{}
}

// NewConsole creates a Console writing to w, or stderr when w is nil.
func NewConsole(w io.Writer) *Console {
	return &Console{
		out:  output.NewPrinter(w),
		now:  time.Now,
		open: make(map[*consoleVertex]struct{}),
	}
}

// Record starts a vertex. Nothing is printed until its output arrives or it finishes.
func (c *Console) Record(ctx context.Context, name string, _ ...ports.VertexOption) (context.Context, ports.Vertex) {
	v := &consoleVertex{console: c, name: name, started: c.now()}
	v.output = NewLineBatcher(0, 0, v.printLines)

	c.mu.Lock()
	c.open[v] = struct{}{}
	c.mu.Unlock()
	return ports.ContextWithVertex(ctx, v), v
}

// Close finishes vertices that were never completed.
func (c *Console) Close() error {
	c.mu.Lock()
	open := make([]*consoleVertex, 0, len(c.open))
	for v := range c.open {
		open = append(open, v)
	}
	c.mu.Unlock()

	for _, v := range open {
		_ = v.output.Close()
	}
	return nil
}

func (c *Console) println(s string) {
	_ = c.out.Println(s)
}

func (c *Console) faint(s string) string {
	return c.out.Paint(s, style.Slate)
}

type consoleVertex struct {
	console *Console
	name    string
	started time.Time
	output  *LineBatcher
	once    sync.Once
}

func (v *consoleVertex) Stdout() io.Writer { return v.output }
func (v *consoleVertex) Stderr() io.Writer { return v.output }

func (v *consoleVertex) Log(level domain.LogLevel, msg string) {
	if level < domain.LogLevelInfo {
		return
	}
	_, _ = v.output.Write([]byte(msg + "\n"))
}

func (v *consoleVertex) printLines(lines []string) {
	for _, l := range lines {
		v.console.println("  " + v.console.faint("│") + " " + l)
	}
}

func (v *consoleVertex) Complete(err error) {
	v.finish(func() string {
		elapsed := v.console.now().Sub(v.started).Round(time.Millisecond)
		if err != nil {
			return v.console.out.Paint(style.Cross, style.Red) + " " + v.name
		}
		return v.console.out.Paint(style.Check, style.Green) + " " + v.name + " " + v.console.faint(elapsed.String())
	})
}

func (v *consoleVertex) Cached() {
	v.finish(func() string {
		return v.console.out.Paint(style.Tilde, style.Yellow) + " " + v.name + " " + v.console.faint("cached")
	})
}

func (v *consoleVertex) finish(line func() string) {
	v.once.Do(func() {
		_ = v.output.Close()
		v.console.println(line())

		v.console.mu.Lock()
		delete(v.console.open, v)
		v.console.mu.Unlock()
	})
}
