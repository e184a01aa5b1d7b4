package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 serves path-style GET and PUT requests from memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	gets    int
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.TrimPrefix(req.URL.Path, "/")
	switch req.Method {
	case http.MethodGet:
		f.gets++
		body, ok := f.objects[key]
		if !ok {
			return &http.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}, nil
		}
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(body)), Header: http.Header{
			"Content-Length": {fmt.Sprintf("%d", len(body))},
		}}, nil
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		f.objects[key] = body
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{"ETag": {"\"etag\""}}}, nil
	}
	return &http.Response{StatusCode: http.StatusNotImplemented, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}, nil
}

func newFetcher(t *testing.T, fake *fakeS3) *Fetcher {
	t.Helper()
	return &Fetcher{
		CacheDir: t.TempDir(),
		S3: S3Config{
			Region:          "us-east-1",
			Endpoint:        "https://mock.s3.local",
			PathStyle:       true,
			AccessKeyID:     "AKIA",
			SecretAccessKey: "SECRET",
			HTTPClient:      &http.Client{Transport: fake},
		},
	}
}

func TestParse(t *testing.T) {
	loc, err := Parse("s3://refs/kegg/2016.db")
	require.NoError(t, err)
	assert.True(t, loc.Remote())
	assert.Equal(t, "refs", loc.Bucket)
	assert.Equal(t, "kegg/2016.db", loc.Key)
	assert.Equal(t, "s3://refs/kegg/2016.db", loc.String())

	loc, err = Parse("/data/reference")
	require.NoError(t, err)
	assert.False(t, loc.Remote())
	assert.Equal(t, "/data/reference", loc.String())

	for _, bad := range []string{"", "s3://", "s3://bucket", "s3://bucket/", "s3://bucket/dir/"} {
		_, err := Parse(bad)
		assert.Error(t, err, bad)
	}
}

func TestFetch_Local(t *testing.T) {
	f := &Fetcher{}
	dir := t.TempDir()
	got, err := f.Fetch(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	_, err = f.Fetch(context.Background(), filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFetch_RemoteDownloadsOnce(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{"refs/kegg/ref.db": []byte("sqlite bytes")}}
	f := newFetcher(t, fake)

	path, err := f.Fetch(context.Background(), "s3://refs/kegg/ref.db")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite bytes", string(data))

	again, err := f.Fetch(context.Background(), "s3://refs/kegg/ref.db")
	require.NoError(t, err)
	assert.Equal(t, path, again)
	assert.Equal(t, 1, fake.gets, "cached objects are not fetched again")
}

func TestFetch_Concurrent(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{
		"refs/a.db": []byte("a"),
		"refs/b.db": []byte("b"),
	}}
	f := newFetcher(t, fake)

	uris := []string{"s3://refs/a.db", "s3://refs/b.db", "s3://refs/a.db", "s3://refs/b.db"}
	paths := make([]string, len(uris))
	errs := make([]error, len(uris))
	var wg sync.WaitGroup
	for i, uri := range uris {
		wg.Add(1)
		go func() {
			defer wg.Done()
			paths[i], errs[i] = f.Fetch(context.Background(), uri)
		}()
	}
	wg.Wait()

	for i := range uris {
		require.NoError(t, errs[i])
		data, err := os.ReadFile(paths[i])
		require.NoError(t, err)
		assert.Equal(t, strings.TrimSuffix(filepath.Base(paths[i]), ".db"), string(data))
	}
	assert.Equal(t, paths[0], paths[2])
	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.LessOrEqual(t, fake.gets, 4)
}

func TestFetch_RemoteMissing(t *testing.T) {
	f := newFetcher(t, &fakeS3{objects: map[string][]byte{}})
	_, err := f.Fetch(context.Background(), "s3://refs/none.db")
	assert.Error(t, err)
}

func TestPut_Remote(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	f := newFetcher(t, fake)
	src := filepath.Join(t.TempDir(), "ref.db")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	require.NoError(t, f.Put(context.Background(), src, "s3://refs/up/ref.db"))
	assert.Contains(t, fake.objects, "refs/up/ref.db")
}

func TestPut_Local(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.db")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))
	dst := filepath.Join(dir, "sub", "b.db")

	require.NoError(t, (&Fetcher{}).Put(context.Background(), src, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}
