package shell_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/shell"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

func request(t *testing.T, command ...string) ports.InstallRequest {
	t.Helper()
	ctxDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ctxDir, "requirements.txt"), []byte("flask==3.0.0\n"), 0o600))

	return ports.InstallRequest{
		ContextDir: ctxDir,
		Manifest: &domain.Manifest{
			Files:        []domain.ManifestFile{{Path: "requirements.txt"}},
			Requirements: []domain.Requirement{{Name: domain.NewPackageName("flask")}},
		},
		Spec:       domain.InstallerSpec{Kind: domain.InstallerCommand, Command: command},
		StagingDir: t.TempDir(),
	}
}

func TestInstaller_Install(t *testing.T) {
	req := request(t, "sh", "-c", "mkdir -p {target}/flask && cp {manifest} {target}/flask/METADATA && echo installed flask")
	var stdout bytes.Buffer
	req.Stdout = &stdout

	require.NoError(t, shell.NewInstaller().Install(context.Background(), req))

	data, err := os.ReadFile(filepath.Join(req.StagingDir, "flask", "METADATA"))
	require.NoError(t, err)
	assert.Equal(t, "flask==3.0.0\n", string(data))
	assert.Equal(t, "installed flask\n", stdout.String())
}

func TestInstaller_Install_RunsInContext(t *testing.T) {
	req := request(t, "sh", "-c", "pwd > {target}/pwd.txt")

	require.NoError(t, shell.NewInstaller().Install(context.Background(), req))

	data, err := os.ReadFile(filepath.Join(req.StagingDir, "pwd.txt"))
	require.NoError(t, err)
	want, err := filepath.EvalSymlinks(req.ContextDir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestInstaller_Install_EmptyManifest(t *testing.T) {
	req := request(t, "sh", "-c", "touch {target}/ran")
	req.Manifest = &domain.Manifest{Files: []domain.ManifestFile{{Path: "requirements.txt"}}}

	require.NoError(t, shell.NewInstaller().Install(context.Background(), req))
	assert.NoFileExists(t, filepath.Join(req.StagingDir, "ran"))
}

func TestInstaller_Install_Failure(t *testing.T) {
	req := request(t, "sh", "-c", "echo 'ERROR: No matching distribution found for flask==3.0.0' >&2; exit 3")
	var stderr bytes.Buffer
	req.Stderr = &stderr

	err := shell.NewInstaller().Install(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrDependencyResolution)
	require.ErrorIs(t, err, domain.ErrInstallCommandFailed)
	assert.Contains(t, stderr.String(), "No matching distribution")

	var found bool
	for _, member := range err.(interface{ Unwrap() []error }).Unwrap() {
		var z *zerr.Error
		if errors.As(member, &z) && z.Metadata()["exit_code"] == 3 {
			found = true
		}
		if errors.As(member, &z) && z.Metadata()["stderr"] != nil {
			assert.Contains(t, z.Metadata()["stderr"], "No matching distribution")
		}
	}
	assert.True(t, found, "exit code must be attached")
}

func TestInstaller_Install_CommandNotFound(t *testing.T) {
	req := request(t, "kiln-definitely-missing-installer", "{manifest}")

	err := shell.NewInstaller().Install(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrDependencyResolution)
}

func TestInstaller_Install_HermeticEnv(t *testing.T) {
	t.Setenv("KILN_LEAK", "secret")
	toolBin := t.TempDir()
	script := filepath.Join(toolBin, "fake-pip")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nenv > \"$1/env.txt\"\n"), 0o755)) //nolint:gosec // Executable fixture

	req := request(t, "fake-pip", "{target}")
	req.Env = []string{"PATH=" + toolBin, "PYTHONHOME=/nix/store/python"}

	require.NoError(t, shell.NewInstaller().Install(context.Background(), req))

	data, err := os.ReadFile(filepath.Join(req.StagingDir, "env.txt"))
	require.NoError(t, err)
	env := string(data)
	assert.NotContains(t, env, "KILN_LEAK")
	assert.Contains(t, env, "PYTHONHOME=/nix/store/python")
	assert.Contains(t, env, "PATH="+toolBin)
}

func TestResolveEnvironment(t *testing.T) {
	got := shell.ResolveEnvironmentForTest(
		[]string{"PATH=/usr/bin", "HOME=/home/me", "AWS_SECRET=x", "SOURCE_DATE_EPOCH=0", "broken"},
		[]string{"PATH=/nix/bin", "PYTHONHOME=/nix/python"},
	)

	assert.Equal(t, []string{
		"HOME=/home/me",
		"PATH=/nix/bin:/usr/bin",
		"PYTHONHOME=/nix/python",
		"SOURCE_DATE_EPOCH=0",
	}, got)
}
