package domain

import (
	"os"
	"path/filepath"
)

const (
	// KilnDirName is the name of the per-context metadata directory.
	KilnDirName = ".kiln"

	// StoreDirName is the name of the step record directory.
	StoreDirName = "store"

	// BlobsDirName is the name of the content addressable blob directory.
	BlobsDirName = "blobs"

	// ArtifactsDirName is the name of the directory holding sealed artifacts.
	ArtifactsDirName = "artifacts"

	// TmpDirName is the name of the directory holding install staging areas.
	TmpDirName = "tmp"

	// CacheDirName is the name of the cache directory.
	CacheDirName = "cache"

	// NixHubDirName is the name of the NixHub cache directory.
	NixHubDirName = "nixhub"

	// EnvDirName is the name of the environment cache directory.
	EnvDirName = "environments"

	// RecipeFileName is the name of the build recipe.
	RecipeFileName = "kiln.yaml"

	// IgnoreFileName is the name of the file listing context paths excluded from source copies.
	IgnoreFileName = ".kilnignore"

	// DirPerm is the default permission for directories (rwxr-x---).
	DirPerm = 0o750

	// FilePerm is the default permission for files (rw-r--r--).
	FilePerm = 0o644

	// PrivateFilePerm is the default permission for private files (rw-------).
	PrivateFilePerm = 0o600
)

// DefaultKilnPath returns the metadata directory of the given build context.
func DefaultKilnPath(root string) string {
	return filepath.Join(root, KilnDirName)
}

// DefaultStorePath returns the directory holding step records.
func DefaultStorePath(root string) string {
	return filepath.Join(root, KilnDirName, StoreDirName)
}

// DefaultBlobsPath returns the directory holding layer and config blobs.
func DefaultBlobsPath(root string) string {
	return filepath.Join(root, KilnDirName, BlobsDirName)
}

// DefaultTmpPath returns the directory holding staging areas of running builds.
func DefaultTmpPath(root string) string {
	return filepath.Join(root, KilnDirName, TmpDirName)
}

// DefaultArtifactPath returns the output location of a named artifact.
func DefaultArtifactPath(root, name string) string {
	return filepath.Join(root, KilnDirName, ArtifactsDirName, name)
}

// ToolCacheRoot returns the directory shared by all build contexts for toolchain caches.
// KILN_CACHE_DIR takes precedence, then the user cache directory.
func ToolCacheRoot() string {
	if dir := os.Getenv("KILN_CACHE_DIR"); dir != "" {
		return dir
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "kiln")
	}
	return KilnDirName
}

// DefaultNixHubCachePath returns the path of the NixHub resolution cache.
func DefaultNixHubCachePath() string {
	return filepath.Join(ToolCacheRoot(), CacheDirName, NixHubDirName)
}

// DefaultEnvCachePath returns the path of the environment cache.
func DefaultEnvCachePath() string {
	return filepath.Join(ToolCacheRoot(), CacheDirName, EnvDirName)
}
