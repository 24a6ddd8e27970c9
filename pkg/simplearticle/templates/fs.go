package templates

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/tendant/simple-article/pkg/simplearticle"
)

// FS reads templates named <id>.html from a file system.
type FS struct {
	fsys fs.FS
}

var _ simplearticle.TemplateProvider = (*FS)(nil)

// NewFS serves templates from fsys.
func NewFS(fsys fs.FS) *FS {
	return &FS{fsys: fsys}
}

// NewDir serves templates from a directory on disk.
func NewDir(dir string) (*FS, error) {
	if dir == "" {
		return nil, errors.New("template directory is required")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open template directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	return NewFS(os.DirFS(dir)), nil
}

// DefaultBody implements simplearticle.TemplateProvider. A missing default
// template yields an empty body.
func (f *FS) DefaultBody(ctx context.Context, templateID string) (string, error) {
	id, err := resolveID(templateID)
	if err != nil {
		return "", err
	}
	data, err := fs.ReadFile(f.fsys, id+".html")
	if errors.Is(err, fs.ErrNotExist) {
		if templateID == "" {
			return "", nil
		}
		return "", notFound(id, err)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read template %s: %w", id, err)
	}
	return string(data), nil
}
