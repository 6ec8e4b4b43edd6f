package ports

import "context"

// EnvironmentFactory creates hermetic execution environments from tool specifications.
//
// Implementations are responsible for:
//   - Resolving tool specifications (e.g., "python@3.11") to concrete packages
//   - Installing/preparing the required tools
//   - Constructing environment variables (PATH, PYTHONHOME, etc.) for hermetic execution
//
//go:generate go run go.uber.org/mock/mockgen -source=environment.go -destination=mocks/mock_environment.go -package=mocks
type EnvironmentFactory interface {
	// GetEnvironment constructs a hermetic environment from a set of tools.
	// The tools map contains alias->spec pairs. Returns "KEY=VALUE" strings.
	GetEnvironment(ctx context.Context, tools map[string]string) ([]string, error)
}

// DependencyResolver resolves a tool version to a specific Nixpkgs commit.
type DependencyResolver interface {
	// Resolve returns the Nixpkgs commit hash and attribute path providing name at version.
	Resolve(ctx context.Context, name, version string) (commitHash, attrPath string, err error)
}
