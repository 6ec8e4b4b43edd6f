// Package shell installs dependencies by running an external installer command.
package shell

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
)

const (
	// PlaceholderManifest expands to the host path of the manifest.
	PlaceholderManifest = "{manifest}"
	// PlaceholderTarget expands to the staging directory receiving installed files.
	PlaceholderTarget = "{target}"
	// PlaceholderContext expands to the build context directory.
	PlaceholderContext = "{context}"

	stderrTailLines = 20
)

var _ ports.DependencyInstaller = (*Installer)(nil)

// allowListedEnvVars are the host variables an installer command inherits.
var allowListedEnvVars = map[string]struct{}{
	"HOME":                    {},
	"TERM":                    {},
	"USER":                    {},
	"PATH":                    {},
	domain.SourceDateEpochEnv: {},
}

// Installer implements ports.DependencyInstaller by running the recipe's installer command.
type Installer struct{}

// NewInstaller creates a new command Installer.
func NewInstaller() *Installer {
	return &Installer{}
}

// Install runs the installer command in the build context with placeholders expanded.
// An empty manifest runs nothing.
func (i *Installer) Install(ctx context.Context, req ports.InstallRequest) error {
	if req.Manifest.IsEmpty() || len(req.Spec.Command) == 0 {
		return nil
	}

	argv := expand(req.Spec.Command, map[string]string{
		PlaceholderManifest: filepath.Join(req.ContextDir, filepath.FromSlash(req.Manifest.Path())),
		PlaceholderTarget:   req.StagingDir,
		PlaceholderContext:  req.ContextDir,
	})
	name := argv[0]

	env := resolveEnvironment(os.Environ(), req.Env)

	executable := name
	if !filepath.IsAbs(name) {
		if lp, err := lookPath(name, env); err == nil {
			executable = lp
		}
	}

	cmd := exec.CommandContext(ctx, executable, argv[1:]...) //nolint:gosec // installer command comes from the recipe
	cmd.Args[0] = name
	cmd.Dir = req.ContextDir
	cmd.Env = env

	tail := &tailWriter{max: stderrTailLines}
	cmd.Stdout = orDiscard(req.Stdout)
	cmd.Stderr = io.MultiWriter(orDiscard(req.Stderr), tail)

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return errors.Join(
			domain.Tagged(domain.ErrDependencyResolution, "exit_code", exitCode),
			domain.Tagged(domain.ErrInstallCommandFailed, "command", name, "stderr", tail.String()),
			err,
		)
	}

	return nil
}

func expand(command []string, values map[string]string) []string {
	out := make([]string, len(command))
	for i, arg := range command {
		for placeholder, value := range values {
			arg = strings.ReplaceAll(arg, placeholder, value)
		}
		out[i] = arg
	}
	return out
}

// resolveEnvironment merges the allow-listed host environment with the toolchain environment.
// The toolchain PATH is prepended to the host PATH. The result is sorted.
func resolveEnvironment(sysEnv, toolEnv []string) []string {
	envMap := make(map[string]string)
	for _, entry := range sysEnv {
		k, v, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		if _, allowed := allowListedEnvVars[k]; allowed {
			envMap[k] = v
		}
	}

	for _, entry := range toolEnv {
		k, v, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		if k == "PATH" && envMap["PATH"] != "" {
			v = v + string(os.PathListSeparator) + envMap["PATH"]
		}
		envMap[k] = v
	}

	result := make([]string, 0, len(envMap))
	for k, v := range envMap {
		result = append(result, k+"="+v)
	}
	slices.Sort(result)
	return result
}

// lookPath searches for an executable in the PATH of env rather than the host PATH.
func lookPath(file string, env []string) (string, error) {
	var path string
	for _, e := range env {
		if p, ok := strings.CutPrefix(e, "PATH="); ok {
			path = p
			break
		}
	}
	if path == "" {
		return "", exec.ErrNotFound
	}

	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			dir = "."
		}
		candidate := filepath.Join(dir, file)
		if err := findExecutable(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", exec.ErrNotFound
}

func findExecutable(file string) error {
	d, err := os.Stat(file)
	if err != nil {
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0o111 != 0 {
		return nil
	}
	return os.ErrPermission
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

// tailWriter keeps the last max lines written to it.
type tailWriter struct {
	mu    sync.Mutex
	max   int
	lines []string
	buf   []byte
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := slices.Index(w.buf, '\n')
		if i < 0 {
			break
		}
		w.push(strings.TrimSuffix(string(w.buf[:i]), "\r"))
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

func (w *tailWriter) push(line string) {
	w.lines = append(w.lines, line)
	if len(w.lines) > w.max {
		w.lines = w.lines[len(w.lines)-w.max:]
	}
}

func (w *tailWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	lines := slices.Clone(w.lines)
	if len(w.buf) > 0 {
		lines = append(lines, string(w.buf))
	}
	return strings.Join(lines, "\n")
}
