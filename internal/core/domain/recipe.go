package domain

import (
	"maps"
	"slices"
	"strings"
)

// InstallerKind selects how install_dependencies materializes packages.
type InstallerKind string

const (
	// InstallerIndex installs packages from a local package index directory.
	InstallerIndex InstallerKind = "index"
	// InstallerCommand runs an external installer command (e.g. pip) inside the toolchain environment.
	InstallerCommand InstallerKind = "command"
)

const (
	// ScratchImage names the empty base environment.
	ScratchImage = "scratch"

	// OCIBasePrefix marks a base environment stored as an OCI image layout on disk.
	OCIBasePrefix = "oci:"

	// DefaultManifest is the manifest path used when none is configured.
	DefaultManifest = "requirements.txt"

	// DefaultSource is the source directory used when none is configured.
	DefaultSource = "."

	// DefaultDest is the copy destination, relative to the working directory.
	DefaultDest = "."

	// DefaultIndex is the package index directory used by the index installer.
	DefaultIndex = "wheelhouse"

	// DefaultInstallTarget is where packages land, relative to the working directory.
	DefaultInstallTarget = "site-packages"

	// DefaultRecipeName names artifacts built without an explicit name.
	DefaultRecipeName = "app"

	// DefaultTag is the artifact tag used when none is requested.
	DefaultTag = "latest"
)

// Recipe is the complete description of an image build.
type Recipe struct {
	Name       string
	Base       BaseSpec
	WorkingDir WorkingDir
	Manifest   string
	Source     string
	Dest       string
	Installer  InstallerSpec
	Ignore     []string
	Env        map[string]string
	Cmd        []string
	Entrypoint []string
	Labels     map[string]string
}

// BaseSpec describes the base environment the build starts from.
type BaseSpec struct {
	// Image is "scratch" or "oci:<layout dir>[@<ref name>]".
	Image string
	// Tools maps aliases to "package@version" specs the installer runs with.
	Tools map[string]string
}

// InstallerSpec configures install_dependencies.
type InstallerSpec struct {
	Kind    InstallerKind
	Index   string
	Command []string
	Target  string
}

// DefaultRecipe returns the recipe used when the build context carries no recipe file.
func DefaultRecipe() *Recipe {
	return &Recipe{
		Name:       DefaultRecipeName,
		Base:       BaseSpec{Image: ScratchImage},
		WorkingDir: MustWorkingDir(DefaultWorkingDir),
		Manifest:   DefaultManifest,
		Source:     DefaultSource,
		Dest:       DefaultDest,
		Installer: InstallerSpec{
			Kind:   InstallerIndex,
			Index:  DefaultIndex,
			Target: DefaultInstallTarget,
		},
	}
}

// IsScratch reports whether the base environment is empty.
func (b BaseSpec) IsScratch() bool {
	return b.Image == "" || b.Image == ScratchImage
}

// LayoutRef splits an "oci:" image reference into its layout directory and optional ref name.
func (b BaseSpec) LayoutRef() (dir, ref string) {
	spec := strings.TrimPrefix(b.Image, OCIBasePrefix)
	if i := strings.LastIndex(spec, "@"); i > 0 {
		return spec[:i], spec[i+1:]
	}
	return spec, ""
}

// Fingerprint renders the installer configuration as a stable string for cache keys.
func (s InstallerSpec) Fingerprint() string {
	var b strings.Builder
	b.WriteString(string(s.Kind))
	b.WriteByte(0)
	b.WriteString(s.Index)
	b.WriteByte(0)
	b.WriteString(strings.Join(s.Command, "\x1f"))
	b.WriteByte(0)
	b.WriteString(s.Target)
	return b.String()
}

// SortedEnv returns the recipe environment as sorted KEY=VALUE pairs.
func (r *Recipe) SortedEnv() []string {
	keys := slices.Sorted(maps.Keys(r.Env))
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+r.Env[k])
	}
	return env
}
