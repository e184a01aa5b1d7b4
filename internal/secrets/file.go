package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileProvider reads a JSON object of string values. The file is read once.
type FileProvider struct {
	path string
	data map[string]string
}

// NewFileProvider loads path.
func NewFileProvider(path string) (*FileProvider, error) {
	if path == "" {
		return nil, fmt.Errorf("file path required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p := &FileProvider{path: path, data: make(map[string]string)}
	if err := json.Unmarshal(raw, &p.data); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return p, nil
}

func (p *FileProvider) Name() string { return "file" }

func (p *FileProvider) Get(_ context.Context, key string) (string, error) {
	val, ok := p.data[key]
	if !ok {
		return "", fmt.Errorf("%w: %s in %s", ErrNotFound, key, p.path)
	}
	return val, nil
}

// DirProvider reads one file per key, as mounted by Docker and Kubernetes
// secrets. Trailing newlines are trimmed.
type DirProvider struct {
	dir string
}

// NewDirProvider checks that dir exists.
func NewDirProvider(dir string) (*DirProvider, error) {
	if dir == "" {
		return nil, fmt.Errorf("directory required")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	return &DirProvider{dir: dir}, nil
}

func (p *DirProvider) Name() string { return "dir" }

func (p *DirProvider) Get(_ context.Context, key string) (string, error) {
	if strings.ContainsAny(key, `/\`) || key == ".." {
		return "", fmt.Errorf("invalid secret key %q", key)
	}
	data, err := os.ReadFile(filepath.Join(p.dir, key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s in %s", ErrNotFound, key, p.dir)
		}
		return "", err
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}
