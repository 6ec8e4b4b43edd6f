package domain

import "io/fs"

// FileEntry is a single filesystem object captured from a directory tree.
type FileEntry struct {
	// Path is slash separated and relative to the walked root.
	Path string
	// Abs is the absolute host path of the entry.
	Abs  string
	Mode fs.FileMode
	Size int64
	// Link is the symlink target when Mode is a symlink.
	Link string
}

// IsDir reports whether the entry is a directory.
func (e FileEntry) IsDir() bool {
	return e.Mode.IsDir()
}

// IsSymlink reports whether the entry is a symbolic link.
func (e FileEntry) IsSymlink() bool {
	return e.Mode&fs.ModeSymlink != 0
}
