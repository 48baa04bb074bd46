package share

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// HostPlaceholder is replaced by the host name in a local root template
const HostPlaceholder = "{host}"

// LocalOpener opens files from a per-host directory on the local
// filesystem, such as a CIFS mount of each controller's admin share
type LocalOpener struct {
	rootTemplate string
}

// NewLocalOpener creates an opener resolving hosts through rootTemplate,
// e.g. /mnt/dc/{host}
func NewLocalOpener(rootTemplate string) (*LocalOpener, error) {
	if !strings.Contains(rootTemplate, HostPlaceholder) {
		return nil, fmt.Errorf("root template %q must contain %s", rootTemplate, HostPlaceholder)
	}
	return &LocalOpener{rootTemplate: rootTemplate}, nil
}

// Resolve returns the local path of path on host
func (o *LocalOpener) Resolve(host, path string) string {
	root := strings.ReplaceAll(o.rootTemplate, HostPlaceholder, host)
	parts := strings.Split(normalizePath(path), `\`)
	return filepath.Join(append([]string{root}, parts...)...)
}

// Open opens path under host's root
func (o *LocalOpener) Open(ctx context.Context, host, path string) (File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(o.Resolve(host, path))
	if err != nil {
		return nil, fmt.Errorf("open %s on %s: %w", path, host, err)
	}
	return f, nil
}
