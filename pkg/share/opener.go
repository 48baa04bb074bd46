package share

import (
	"context"
	"io"
	"io/fs"
	"strings"
)

// File is a remote log file opened for random access
type File interface {
	io.ReaderAt
	io.Closer
	Stat() (fs.FileInfo, error)
}

// Opener opens a file on a host's administrative share
type Opener interface {
	Open(ctx context.Context, host, path string) (File, error)
}

// normalizePath converts a path to backslash separators without leading separators
func normalizePath(path string) string {
	path = strings.ReplaceAll(path, "/", `\`)
	return strings.TrimLeft(path, `\`)
}
