package domain

import (
	"path"
	"strings"
)

// DefaultWorkingDir is the working directory used when a recipe does not declare one.
const DefaultWorkingDir = "/app"

// WorkingDir is an absolute, cleaned POSIX path inside the artifact filesystem.
// Relative destinations are resolved against it and it becomes the artifact's default execution directory.
type WorkingDir struct {
	p string
}

// NewWorkingDir validates p and returns its cleaned form.
func NewWorkingDir(p string) (WorkingDir, error) {
	if p == "" {
		return WorkingDir{}, Tagged(ErrInvalidWorkingDir, "reason", "empty path")
	}
	if strings.ContainsRune(p, 0) {
		return WorkingDir{}, Tagged(ErrInvalidWorkingDir, "reason", "path contains NUL")
	}
	if !strings.HasPrefix(p, "/") {
		return WorkingDir{}, Tagged(ErrInvalidWorkingDir, "reason", "path must be absolute", "path", p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return WorkingDir{}, Tagged(ErrInvalidWorkingDir, "reason", "path must not contain '..'", "path", p)
		}
	}
	return WorkingDir{p: path.Clean(p)}, nil
}

// MustWorkingDir is NewWorkingDir for constants known to be valid.
func MustWorkingDir(p string) WorkingDir {
	w, err := NewWorkingDir(p)
	if err != nil {
		panic(err)
	}
	return w
}

// String returns the cleaned path, or the empty string for the zero value.
func (w WorkingDir) String() string {
	return w.p
}

// IsZero reports whether no working directory has been bound.
func (w WorkingDir) IsZero() bool {
	return w.p == ""
}

// Resolve maps a destination onto the artifact filesystem.
// Absolute destinations are cleaned; relative ones are joined to the working directory.
func (w WorkingDir) Resolve(dest string) string {
	if strings.HasPrefix(dest, "/") {
		return path.Clean(dest)
	}
	base := w.p
	if base == "" {
		base = "/"
	}
	return path.Join(base, dest)
}

// MarshalText implements encoding.TextMarshaler.
func (w WorkingDir) MarshalText() ([]byte, error) {
	return []byte(w.p), nil
}

// UnmarshalText implements encoding.TextUnmarshaler and validates the path.
func (w *WorkingDir) UnmarshalText(text []byte) error {
	parsed, err := NewWorkingDir(string(text))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}
