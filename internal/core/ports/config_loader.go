package ports

import "go.trai.ch/kiln/internal/core/domain"

// RecipeLoader loads the build recipe of a build context.
//
//go:generate go run go.uber.org/mock/mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type RecipeLoader interface {
	// Load reads the recipe at recipePath, relative to contextDir when not absolute.
	// An empty recipePath loads the default recipe file if present, and the built-in defaults otherwise.
	Load(contextDir, recipePath string) (*domain.Recipe, error)
}
