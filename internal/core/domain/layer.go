package domain

import "github.com/opencontainers/go-digest"

// Layer is one filesystem changeset of an artifact.
type Layer struct {
	// Digest addresses the stored blob; DiffID addresses its uncompressed content.
	Digest    digest.Digest `json:"digest"`
	DiffID    digest.Digest `json:"diff_id"`
	Size      int64         `json:"size"`
	MediaType string        `json:"media_type"`
	CreatedBy string        `json:"created_by,omitzero"`
	// Empty layers are recorded in history but carry no blob.
	Empty bool `json:"empty,omitzero"`
}

// Base is the resolved base environment.
type Base struct {
	// ID identifies the base content for cache keys.
	ID     string
	Layers []Layer
	Env    []string
	Cmd    []string
	Entry  []string
	Labels map[string]string
	OS     string
	Arch   string
}
