// Package config provides the recipe loader for kiln.
package config

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

var _ ports.RecipeLoader = (*Loader)(nil)

var validNameRegex = regexp.MustCompile("^[a-z0-9][a-z0-9._-]*$")

// Loader implements ports.RecipeLoader using a YAML file.
type Loader struct {
	Logger ports.Logger
}

// NewLoader creates a new Loader with the given logger.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{Logger: logger}
}

// Load reads the recipe of a build context.
// An empty recipePath selects kiln.yaml in contextDir and falls back to the default recipe
// when that file does not exist. Relative paths are resolved against contextDir.
func (l *Loader) Load(contextDir, recipePath string) (*domain.Recipe, error) {
	explicit := recipePath != ""
	if !explicit {
		recipePath = domain.RecipeFileName
	}
	if !filepath.IsAbs(recipePath) {
		recipePath = filepath.Join(contextDir, recipePath)
	}

	var file Recipefile
	if err := readAndUnmarshalYAML(recipePath, &file); err != nil {
		if !explicit && errors.Is(err, iofs.ErrNotExist) {
			return domain.DefaultRecipe(), nil
		}
		return nil, err
	}

	recipe, err := toRecipe(&file)
	if err != nil {
		return nil, zerr.With(err, "recipe", recipePath)
	}

	if len(recipe.Base.Tools) > 0 && recipe.Installer.Kind == domain.InstallerIndex {
		l.Logger.Warn(fmt.Sprintf("'base.tools' in %s has no effect with the index installer", filepath.Base(recipePath)))
	}

	return recipe, nil
}

func toRecipe(file *Recipefile) (*domain.Recipe, error) {
	if file.Version != SupportedVersion {
		return nil, domain.Tagged(domain.ErrInvalidRecipe, "reason", "unsupported version", "version", file.Version)
	}

	recipe := domain.DefaultRecipe()

	if file.Name != "" {
		if !validNameRegex.MatchString(file.Name) {
			return nil, domain.Tagged(domain.ErrInvalidRecipe, "reason", "invalid name", "name", file.Name)
		}
		recipe.Name = file.Name
	}

	if file.Base.Image != "" {
		if err := validateBaseImage(file.Base.Image); err != nil {
			return nil, err
		}
		recipe.Base.Image = file.Base.Image
	}
	for alias, spec := range file.Base.Tools {
		if !strings.Contains(spec, "@") {
			return nil, domain.Tagged(domain.ErrInvalidToolSpec, "tool_alias", alias, "spec", spec)
		}
	}
	recipe.Base.Tools = file.Base.Tools

	if file.Workdir != "" {
		wd, err := domain.NewWorkingDir(file.Workdir)
		if err != nil {
			return nil, err
		}
		recipe.WorkingDir = wd
	}

	recipe.Manifest = orDefault(file.Manifest, recipe.Manifest)
	recipe.Source = orDefault(file.Source, recipe.Source)
	recipe.Dest = orDefault(file.Dest, recipe.Dest)

	installer, err := toInstaller(&file.Installer, recipe.Installer)
	if err != nil {
		return nil, err
	}
	recipe.Installer = installer

	recipe.Ignore = file.Ignore
	recipe.Env = file.Env
	recipe.Cmd = file.Cmd
	recipe.Entrypoint = file.Entrypoint
	recipe.Labels = file.Labels

	for key := range recipe.Env {
		if key == "" || strings.ContainsAny(key, "=\x00") {
			return nil, domain.Tagged(domain.ErrInvalidRecipe, "reason", "invalid environment variable name", "env", key)
		}
	}

	return recipe, nil
}

func toInstaller(dto *InstallerDTO, defaults domain.InstallerSpec) (domain.InstallerSpec, error) {
	spec := defaults
	if dto.Kind != "" {
		spec.Kind = domain.InstallerKind(dto.Kind)
	}
	spec.Index = orDefault(dto.Index, spec.Index)
	spec.Target = orDefault(dto.Target, spec.Target)
	spec.Command = dto.Command

	switch spec.Kind {
	case domain.InstallerIndex:
	case domain.InstallerCommand:
		if len(spec.Command) == 0 {
			return spec, domain.Tagged(domain.ErrInvalidRecipe, "reason", "command installer requires a command")
		}
	default:
		return spec, domain.Tagged(domain.ErrInvalidRecipe, "reason", "unknown installer kind", "kind", dto.Kind)
	}

	return spec, nil
}

func validateBaseImage(image string) error {
	if image == domain.ScratchImage {
		return nil
	}
	if !strings.HasPrefix(image, domain.OCIBasePrefix) {
		return domain.Tagged(domain.ErrInvalidRecipe, "reason", "base image must be 'scratch' or 'oci:<layout>'", "image", image)
	}
	dir, _ := domain.BaseSpec{Image: image}.LayoutRef()
	if dir == "" {
		return domain.Tagged(domain.ErrInvalidRecipe, "reason", "empty base layout path", "image", image)
	}
	return nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// readAndUnmarshalYAML reads a YAML file and unmarshals it into the target struct.
func readAndUnmarshalYAML[T any](path string, target *T) error {
	// #nosec G304 -- path is the recipe chosen by the user
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Join(domain.Tagged(domain.ErrRecipeReadFailed, "path", path), err)
	}

	if parseErr := yaml.Unmarshal(data, target); parseErr != nil {
		return zerr.Wrap(parseErr, domain.ErrRecipeParseFailed.Error())
	}

	return nil
}
