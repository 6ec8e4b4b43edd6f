package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"maps"
	"slices"
	"strings"
)

// GenerateEnvID creates a deterministic identifier for a toolchain so environments can be cached.
// An empty tool set yields the empty string.
func GenerateEnvID(tools map[string]string) string {
	if len(tools) == 0 {
		return ""
	}

	var builder strings.Builder
	for _, alias := range slices.Sorted(maps.Keys(tools)) {
		builder.WriteString(alias)
		builder.WriteString(":")
		builder.WriteString(tools[alias])
		builder.WriteString(";")
	}

	hash := sha256.Sum256([]byte(builder.String()))
	return hex.EncodeToString(hash[:])
}
