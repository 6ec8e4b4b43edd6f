package config

// SupportedVersion is the only recipe schema version understood by the loader.
const SupportedVersion = "1"

// Recipefile represents the structure of the kiln.yaml recipe.
type Recipefile struct {
	Version    string            `yaml:"version"`
	Name       string            `yaml:"name"`
	Base       BaseDTO           `yaml:"base"`
	Workdir    string            `yaml:"workdir"`
	Manifest   string            `yaml:"manifest"`
	Source     string            `yaml:"source"`
	Dest       string            `yaml:"dest"`
	Installer  InstallerDTO      `yaml:"installer"`
	Ignore     []string          `yaml:"ignore"`
	Env        map[string]string `yaml:"env"`
	Cmd        []string          `yaml:"cmd"`
	Entrypoint []string          `yaml:"entrypoint"`
	Labels     map[string]string `yaml:"labels"`
}

// BaseDTO represents the base environment section.
type BaseDTO struct {
	Image string            `yaml:"image"`
	Tools map[string]string `yaml:"tools"`
}

// InstallerDTO represents the installer section.
type InstallerDTO struct {
	Kind    string   `yaml:"kind"`
	Index   string   `yaml:"index"`
	Command []string `yaml:"command"`
	Target  string   `yaml:"target"`
}
