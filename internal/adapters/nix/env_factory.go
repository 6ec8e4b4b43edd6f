package nix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var _ ports.EnvironmentFactory = (*EnvFactory)(nil)

// CommandRunner runs an external command and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// excludedVars are interactive or host specific variables dropped from nix environments.
var excludedVars = []string{
	"TERM", "SHELL", "EDITOR", "VISUAL", "PAGER", "LESS",
	"HOME", "USER", "LOGNAME", "PS1", "PS2", "SHLVL", "PWD", "OLDPWD", "_",
	"TMPDIR", "TEMP", "TMP",
	"NIX_BUILD_TOP", "NIX_BUILD_CORES", "NIX_LOG_FD",
	"SOURCE_DATE_EPOCH",
}

// EnvFactory implements ports.EnvironmentFactory using Nix.
type EnvFactory struct {
	resolver ports.DependencyResolver
	cacheDir string
	system   string
	run      CommandRunner

	requestGroup singleflight.Group
}

// NewEnvFactory creates an EnvFactory caching environments under cacheDir.
// A nil runner executes commands with os/exec.
func NewEnvFactory(resolver ports.DependencyResolver, cacheDir string, runner CommandRunner) *EnvFactory {
	if runner == nil {
		runner = execRunner
	}
	return &EnvFactory{
		resolver: resolver,
		cacheDir: cacheDir,
		system:   currentSystem(),
		run:      runner,
	}
}

// GetEnvironment returns the sorted KEY=VALUE environment providing tools.
// An empty tool set needs no nix evaluation and yields an empty environment.
func (e *EnvFactory) GetEnvironment(ctx context.Context, tools map[string]string) ([]string, error) {
	if len(tools) == 0 {
		return nil, nil
	}

	envID := domain.GenerateEnvID(tools)

	result, err, _ := e.requestGroup.Do(envID, func() (any, error) {
		cachePath := filepath.Join(e.cacheDir, envID+".json")
		if cachedEnv, err := LoadEnvFromCache(cachePath); err == nil {
			return cachedEnv, nil
		}

		commitToPackages, err := e.resolveTools(ctx, tools)
		if err != nil {
			return nil, err
		}

		tmpPath, cleanup, err := createNixTempFile(e.generateNixExpr(commitToPackages))
		if err != nil {
			return nil, err
		}
		defer cleanup()

		output, err := e.run(ctx, "nix", "print-dev-env", "--json", "--file", tmpPath)
		if err != nil {
			return nil, errors.Join(domain.ErrToolResolutionFailed, zerr.Wrap(err, "failed to execute nix print-dev-env"))
		}

		env, err := ParseNixDevEnv(output)
		if err != nil {
			return nil, errors.Join(domain.ErrToolResolutionFailed, err)
		}

		// A failed cache write only costs a nix evaluation on the next build.
		_ = SaveEnvToCache(cachePath, env)

		return env, nil
	})
	if err != nil {
		return nil, err
	}

	env := slices.Clone(result.([]string))

	// Installers must not pick up transient nix build directories or write timestamped bytecode.
	tmpDir := "/tmp"
	env = append(env,
		"TMPDIR="+tmpDir,
		"TEMP="+tmpDir,
		"TMP="+tmpDir,
		"PYTHONDONTWRITEBYTECODE=1",
	)
	slices.Sort(env)

	return env, nil
}

// generateNixExpr builds a mkShell expression over the resolved packages, grouped by nixpkgs commit.
func (e *EnvFactory) generateNixExpr(commits map[string][]string) string {
	var b strings.Builder

	b.WriteString("let\n")
	fmt.Fprintf(&b, "system = %q;\n", e.system)

	hashes := make([]string, 0, len(commits))
	for hash := range commits {
		hashes = append(hashes, hash)
	}
	slices.Sort(hashes)

	for i, hash := range hashes {
		fmt.Fprintf(&b, "flake_%d = builtins.getFlake \"github:NixOS/nixpkgs/%s\";\n", i, hash)
		fmt.Fprintf(&b, "pkgs_%d = flake_%d.legacyPackages.${system};\n", i, i)
	}

	b.WriteString("in\n")
	b.WriteString("pkgs_0.mkShell {\n")
	b.WriteString("buildInputs = [\n")
	for i, hash := range hashes {
		packages := slices.Clone(commits[hash])
		slices.Sort(packages)
		for _, pkg := range packages {
			fmt.Fprintf(&b, "pkgs_%d.%s\n", i, pkg)
		}
	}
	b.WriteString("];\n")
	b.WriteString("}\n")

	return b.String()
}

// resolveTools resolves every tool spec concurrently and groups attribute paths by commit.
func (e *EnvFactory) resolveTools(ctx context.Context, tools map[string]string) (map[string][]string, error) {
	commitToPackages := make(map[string][]string)
	var mu sync.Mutex

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for alias, spec := range tools {
		g.Go(func() error {
			name, version, ok := strings.Cut(spec, "@")
			if !ok || name == "" || version == "" {
				return domain.Tagged(domain.ErrInvalidToolSpec, "tool_alias", alias, "spec", spec)
			}

			commitHash, attrPath, err := e.resolver.Resolve(groupCtx, name, version)
			if err != nil {
				return errors.Join(domain.Tagged(domain.ErrToolResolutionFailed, "tool_alias", alias), err)
			}

			mu.Lock()
			commitToPackages[commitHash] = append(commitToPackages[commitHash], attrPath)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return commitToPackages, nil
}

// ParseNixDevEnv extracts exported variables from `nix print-dev-env --json` output, sorted.
// Array values are joined with ':'.
func ParseNixDevEnv(data []byte) ([]string, error) {
	var output nixDevEnvOutput
	if err := json.Unmarshal(data, &output); err != nil {
		return nil, zerr.Wrap(err, "failed to unmarshal nix output")
	}

	env := make([]string, 0, len(output.Variables))
	for key, variable := range output.Variables {
		if slices.Contains(excludedVars, key) {
			continue
		}

		var value string
		switch v := variable.Value.(type) {
		case string:
			value = v
		case []any:
			parts := make([]string, len(v))
			for i, part := range v {
				if s, ok := part.(string); ok {
					parts[i] = s
				}
			}
			value = strings.Join(parts, ":")
		default:
			continue
		}

		env = append(env, key+"="+value)
	}

	slices.Sort(env)
	return env, nil
}

// LoadEnvFromCache loads a cached environment, returning domain.ErrCacheMiss when absent.
func LoadEnvFromCache(path string) ([]string, error) {
	//nolint:gosec // Path is constructed from trusted cache directory
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrCacheMiss
		}
		return nil, zerr.Wrap(err, domain.ErrNixCacheReadFailed.Error())
	}

	var env []string
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, zerr.Wrap(err, domain.ErrNixCacheReadFailed.Error())
	}
	return env, nil
}

// SaveEnvToCache atomically stores an environment.
func SaveEnvToCache(path string, env []string) error {
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return zerr.Wrap(err, domain.ErrNixCacheWriteFailed.Error())
	}
	if err := atomicWriteFile(path, data); err != nil {
		return zerr.Wrap(err, domain.ErrNixCacheWriteFailed.Error())
	}
	return nil
}

func createNixTempFile(expr string) (tmpPath string, cleanup func(), err error) {
	tmpFile, err := os.CreateTemp("", "kiln-env-*.nix")
	if err != nil {
		return "", nil, zerr.Wrap(err, "failed to create temp nix file")
	}

	tmpPath = tmpFile.Name()
	cleanup = func() { _ = os.Remove(tmpPath) }

	if _, err := tmpFile.WriteString(expr); err != nil {
		_ = tmpFile.Close()
		cleanup()
		return "", nil, zerr.Wrap(err, "failed to write nix expression")
	}
	if err := tmpFile.Close(); err != nil {
		cleanup()
		return "", nil, zerr.Wrap(err, "failed to close temp nix file")
	}

	return tmpPath, cleanup, nil
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	//nolint:gosec // Arguments are fixed nix subcommands and a temp file we created
	return exec.CommandContext(ctx, name, args...).Output()
}
