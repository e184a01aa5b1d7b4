package pipeline

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/efebarandurmaz/bigsmall/internal/blob"
	"github.com/efebarandurmaz/bigsmall/internal/reference"
	"github.com/efebarandurmaz/bigsmall/internal/reference/sqlite"
)

// OpenReference loads the reference tables named by uri. A directory is read
// as flat tables, a file as a SQLite database, and an s3:// object is
// fetched through fetcher and opened as SQLite.
func OpenReference(ctx context.Context, uri string, fetcher *blob.Fetcher) (*reference.MemoryStore, error) {
	if fetcher == nil {
		fetcher = &blob.Fetcher{}
	}
	path, err := fetcher.Fetch(ctx, uri)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reference %s: %w", uri, err)
	}
	if info.IsDir() {
		return reference.OpenDir(path)
	}
	return sqlite.Open(ctx, path)
}

// ReferenceVersion reports the version of the tables at URI for health
// checks. The tables are parsed on the first successful call; later calls
// only check that the location can still be fetched.
type ReferenceVersion struct {
	URI     string
	Fetcher *blob.Fetcher

	mu      sync.Mutex
	loaded  bool
	version string
}

// Get returns the cached version after confirming the location resolves.
func (r *ReferenceVersion) Get(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fetcher == nil {
		r.Fetcher = &blob.Fetcher{}
	}
	if !r.loaded {
		store, err := OpenReference(ctx, r.URI, r.Fetcher)
		if err != nil {
			return "", err
		}
		r.version, r.loaded = store.Version(), true
		return r.version, nil
	}
	if _, err := r.Fetcher.Fetch(ctx, r.URI); err != nil {
		return "", err
	}
	return r.version, nil
}
