package domain

import "unique"

// PackageName is a normalized package name. Equal names share one interned handle,
// so comparing two PackageNames is a pointer comparison.
type PackageName struct {
	h unique.Handle[string]
}

// NewPackageName normalizes raw and interns the result.
func NewPackageName(raw string) PackageName {
	return PackageName{h: unique.Make(NormalizePackageName(raw))}
}

func (n PackageName) String() string {
	if n.IsZero() {
		return ""
	}
	return n.h.Value()
}

// IsZero reports whether n was never set.
func (n PackageName) IsZero() bool {
	return n.h == unique.Handle[string]{}
}

// MarshalText implements encoding.TextMarshaler.
func (n PackageName) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. The decoded name is normalized.
func (n *PackageName) UnmarshalText(text []byte) error {
	*n = NewPackageName(string(text))
	return nil
}
