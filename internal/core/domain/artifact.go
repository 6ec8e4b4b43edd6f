package domain

import "github.com/opencontainers/go-digest"

// Artifact is a sealed, immutable build result stored as an OCI image layout.
type Artifact struct {
	Name           string
	Path           string
	ManifestDigest digest.Digest
	ConfigDigest   digest.Digest
	WorkingDir     WorkingDir
	Layers         []Layer
	Env            []string
	Cmd            []string
	Entrypoint     []string
	// Files lists the merged filesystem, populated when the artifact is inspected.
	Files []FileEntry
}
