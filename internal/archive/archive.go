// Package archive stores document exports before versions are evicted.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Sink receives archived exports
type Sink interface {
	Archive(ctx context.Context, name string, data []byte) error
}

// FileSink writes archives below a local directory
type FileSink struct {
	dir string
}

// NewFileSink creates the directory if needed
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

// Archive writes data to dir/name, creating intermediate directories
func (f *FileSink) Archive(ctx context.Context, name string, data []byte) error {
	clean := filepath.Clean("/" + name)
	path := filepath.Join(f.dir, clean)
	if !strings.HasPrefix(path, filepath.Clean(f.dir)+string(os.PathSeparator)) {
		return fmt.Errorf("invalid archive name %q", name)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}
