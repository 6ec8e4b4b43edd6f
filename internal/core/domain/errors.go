package domain

import "go.trai.ch/zerr"

// Tagged wraps sentinel so that errors.Is still matches it and attaches kv as metadata.
// kv is a list of alternating string keys and values.
func Tagged(sentinel error, kv ...any) error {
	err := zerr.Wrap(sentinel, "")
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = "!BADKEY"
		}
		err = zerr.With(err, key, kv[i+1])
	}
	return err
}

var (
	// ErrManifestNotFound is returned when the dependency manifest does not resolve to a file inside the build context.
	ErrManifestNotFound = zerr.New("dependency manifest not found")

	// ErrDependencyResolution is returned when a declared package or version cannot be satisfied.
	ErrDependencyResolution = zerr.New("dependency resolution failed")

	// ErrSourceNotFound is returned when the source directory does not exist in the build context.
	ErrSourceNotFound = zerr.New("source directory not found")

	// ErrInvalidWorkingDir is returned when a working directory is not a clean absolute path.
	ErrInvalidWorkingDir = zerr.New("invalid working directory")

	// ErrPathOutsideContext is returned when a path escapes the build context root.
	ErrPathOutsideContext = zerr.New("path is outside the build context")

	// ErrContextNotFound is returned when the build context directory does not exist.
	ErrContextNotFound = zerr.New("build context not found")

	// ErrContextFetchFailed is returned when a remote build context cannot be fetched.
	ErrContextFetchFailed = zerr.New("failed to fetch build context")

	// ErrInvalidRecipe is returned when the recipe file is structurally valid YAML but semantically wrong.
	ErrInvalidRecipe = zerr.New("invalid recipe")

	// ErrRecipeReadFailed is returned when the recipe file cannot be read.
	ErrRecipeReadFailed = zerr.New("failed to read recipe")

	// ErrRecipeParseFailed is returned when the recipe file cannot be parsed.
	ErrRecipeParseFailed = zerr.New("failed to parse recipe")

	// ErrManifestParse is returned when a manifest line cannot be parsed.
	ErrManifestParse = zerr.New("malformed requirement")

	// ErrPackageNotFound is returned when a package is absent from the package index.
	ErrPackageNotFound = zerr.New("package not found in index")

	// ErrNoMatchingVersion is returned when no indexed version satisfies the requested constraints.
	ErrNoMatchingVersion = zerr.New("no version satisfies constraint")

	// ErrUnsupportedVersion is returned when a version cannot be ordered.
	ErrUnsupportedVersion = zerr.New("unsupported version")

	// ErrConflictingFiles is returned when two installed packages write the same path.
	ErrConflictingFiles = zerr.New("installed packages write the same path")

	// ErrInstallCommandFailed is returned when the installer command exits unsuccessfully.
	ErrInstallCommandFailed = zerr.New("install command failed")

	// ErrBaseImage is returned when the base environment cannot be loaded.
	ErrBaseImage = zerr.New("failed to load base environment")

	// ErrLayerWriteFailed is returned when a layer tarball cannot be produced.
	ErrLayerWriteFailed = zerr.New("failed to write layer")

	// ErrSealFailed is returned when the artifact cannot be sealed.
	ErrSealFailed = zerr.New("failed to seal artifact")

	// ErrArtifactNotFound is returned when an artifact layout cannot be read.
	ErrArtifactNotFound = zerr.New("artifact not found")

	// ErrArtifactLoadFailed is returned when the sealed artifact cannot be loaded into a container daemon.
	ErrArtifactLoadFailed = zerr.New("failed to load artifact into docker")

	// ErrBuildFailed is returned when a build step fails.
	ErrBuildFailed = zerr.New("build failed")

	// ErrStoreCreateFailed is returned when the store directory cannot be created.
	ErrStoreCreateFailed = zerr.New("failed to create store directory")

	// ErrStoreReadFailed is returned when a store record cannot be read.
	ErrStoreReadFailed = zerr.New("failed to read step record")

	// ErrStoreUnmarshalFailed is returned when a store record cannot be decoded.
	ErrStoreUnmarshalFailed = zerr.New("failed to unmarshal step record")

	// ErrStoreMarshalFailed is returned when a store record cannot be encoded.
	ErrStoreMarshalFailed = zerr.New("failed to marshal step record")

	// ErrStoreWriteFailed is returned when a store record cannot be written.
	ErrStoreWriteFailed = zerr.New("failed to write step record")

	// ErrBlobNotFound is returned when a blob is absent from the blob store.
	ErrBlobNotFound = zerr.New("blob not found")

	// ErrBlobWriteFailed is returned when a blob cannot be ingested.
	ErrBlobWriteFailed = zerr.New("failed to write blob")

	// ErrFileHashFailed is returned when hashing a file fails.
	ErrFileHashFailed = zerr.New("failed to hash file content")

	// ErrNixCacheReadFailed is returned when reading from the Nix cache fails.
	ErrNixCacheReadFailed = zerr.New("failed to read from Nix cache")

	// ErrNixCacheWriteFailed is returned when writing to the Nix cache fails.
	ErrNixCacheWriteFailed = zerr.New("failed to write to Nix cache")

	// ErrNixAPIRequestFailed is returned when a NixHub API request fails.
	ErrNixAPIRequestFailed = zerr.New("failed to make NixHub API request")

	// ErrNixAPIParseFailed is returned when parsing a NixHub API response fails.
	ErrNixAPIParseFailed = zerr.New("failed to parse NixHub API response")

	// ErrNixPackageNotFound is returned when a package version is not found in NixHub.
	ErrNixPackageNotFound = zerr.New("package version not found in NixHub")

	// ErrInvalidToolSpec is returned when a tool specification is missing the @ symbol.
	ErrInvalidToolSpec = zerr.New("invalid tool specification, expected format: package@version")

	// ErrToolResolutionFailed is returned when the installer toolchain cannot be prepared.
	ErrToolResolutionFailed = zerr.New("failed to resolve installer tools")

	// ErrCacheMiss is returned when a requested item is not found in a cache.
	ErrCacheMiss = zerr.New("cache miss")
)
