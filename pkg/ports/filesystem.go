package ports

import (
	"io"
)

// Source is a random-access, read-only view of a container file.
type Source interface {
	io.ReaderAt
	io.Closer

	// Size returns the total length in bytes.
	Size() int64

	// Path returns the local file path backing the source, or "" when the
	// source is not file-backed.
	Path() string
}

// FileSystem abstracts file system operations.
type FileSystem interface {
	// Open opens a file for random-access reading.
	Open(path string) (Source, error)

	// ReadFile reads the entire contents of a file.
	ReadFile(path string) ([]byte, error)

	// WriteFile writes data to a file, creating parent directories as needed.
	WriteFile(path string, data []byte) error

	// MkdirAll creates a directory and all parent directories.
	MkdirAll(path string) error

	// Exists checks if a file or directory exists.
	Exists(path string) (bool, error)
}
