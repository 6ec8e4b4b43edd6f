package domain

import (
	"regexp"
	"strings"
)

// ConstraintOp is a version comparison operator in a requirement.
type ConstraintOp string

const (
	OpEqual      ConstraintOp = "=="
	OpNotEqual   ConstraintOp = "!="
	OpLessEq     ConstraintOp = "<="
	OpGreaterEq  ConstraintOp = ">="
	OpLess       ConstraintOp = "<"
	OpGreater    ConstraintOp = ">"
	OpCompatible ConstraintOp = "~="
	OpArbitrary  ConstraintOp = "==="
)

// Constraint restricts the acceptable versions of a package.
type Constraint struct {
	Op      ConstraintOp
	Version string
}

func (c Constraint) String() string {
	return string(c.Op) + c.Version
}

// Requirement is a single declared dependency: a package name and the versions it accepts.
type Requirement struct {
	Name        PackageName
	Extras      []string
	Constraints []Constraint
	Marker      string
	Line        int
}

// ConstraintString joins the requirement's constraints the way they were declared.
func (r Requirement) ConstraintString() string {
	parts := make([]string, len(r.Constraints))
	for i, c := range r.Constraints {
		parts[i] = c.String()
	}
	return strings.Join(parts, ",")
}

// String renders the requirement in manifest syntax.
func (r Requirement) String() string {
	s := r.Name.String()
	if len(r.Extras) > 0 {
		s += "[" + strings.Join(r.Extras, ",") + "]"
	}
	return s + r.ConstraintString()
}

// ManifestFile is one file contributing to a manifest, addressed relative to the build context.
type ManifestFile struct {
	Path    string
	Content []byte
}

// Manifest is a parsed dependency manifest.
// Files holds the manifest itself first, followed by any files it includes.
type Manifest struct {
	Files        []ManifestFile
	Requirements []Requirement
}

// Path returns the context-relative path of the root manifest file.
func (m *Manifest) Path() string {
	if m == nil || len(m.Files) == 0 {
		return ""
	}
	return m.Files[0].Path
}

// IsEmpty reports whether the manifest declares no packages.
func (m *Manifest) IsEmpty() bool {
	return m == nil || len(m.Requirements) == 0
}

var nameSeparators = regexp.MustCompile(`[-_.]+`)

// NormalizePackageName lowercases a package name and collapses runs of '-', '_' and '.' into '-'.
func NormalizePackageName(name string) string {
	return nameSeparators.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// ResolvedPackage is a package version picked from a package index.
type ResolvedPackage struct {
	Name    string
	Version string
	// Root is the host directory holding the package's installed files.
	Root string
}
