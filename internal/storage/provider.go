// Package storage defines the vault file-system abstraction.
package storage

// Provider is the interface for vault file operations. All paths are
// relative to the vault root and use forward slashes.
type Provider interface {
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically replaces the content of path, creating it if needed.
	Write(path string, content []byte) error
	// Create writes a new file and fails with apperr.ErrAlreadyExists if
	// path is already taken.
	Create(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// MkdirAll creates dir and its parents. An existing folder is not an error.
	MkdirAll(dir string) error
	// Exists reports whether anything exists at path.
	Exists(path string) (bool, error)
	// ListFolders returns every non-hidden folder below the vault root.
	ListFolders() ([]string, error)
}
