// Package blob resolves reference locations that may live on the local
// filesystem or in an S3-compatible bucket.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/singleflight"
)

const s3Scheme = "s3://"

// Location is a parsed reference URI.
type Location struct {
	Bucket string // empty for local paths
	Key    string
	Path   string // local path when Bucket is empty
}

// Remote reports whether the location is in a bucket.
func (l Location) Remote() bool { return l.Bucket != "" }

func (l Location) String() string {
	if l.Remote() {
		return s3Scheme + l.Bucket + "/" + l.Key
	}
	return l.Path
}

// Parse splits a URI into a Location. Anything without the s3:// scheme is
// a local path.
func Parse(uri string) (Location, error) {
	if !strings.HasPrefix(uri, s3Scheme) {
		if uri == "" {
			return Location{}, errors.New("blob: empty location")
		}
		return Location{Path: uri}, nil
	}
	bucket, key, _ := strings.Cut(strings.TrimPrefix(uri, s3Scheme), "/")
	if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return Location{}, fmt.Errorf("blob: %q must name a bucket and an object key", uri)
	}
	return Location{Bucket: bucket, Key: key}, nil
}

// S3Config configures the S3 client. Credentials fall back to the default
// AWS chain when the static keys are empty.
type S3Config struct {
	Region          string
	Endpoint        string // optional, for MinIO and other compatible stores
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	HTTPClient      *http.Client
}

// S3 transfers objects between buckets and local files.
type S3 struct {
	client *s3.Client
}

// NewS3 builds a client from cfg.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.HTTPClient != nil {
			o.HTTPClient = cfg.HTTPClient
		}
	})
	return &S3{client: client}, nil
}

// Download copies bucket/key into dst, replacing it.
func (s *S3) Download(ctx context.Context, bucket, key, dst string) (retErr error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			os.Remove(tmp.Name())
		}
	}()
	if _, err := io.Copy(tmp, out.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("read s3://%s/%s: %w", bucket, key, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// Upload copies src into bucket/key.
func (s *S3) Upload(ctx context.Context, src, bucket, key string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{Bucket: &bucket, Key: &key, Body: f})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// Fetcher makes a location available as a local path. It is safe for
// concurrent use; parallel fetches of one object share a single download.
type Fetcher struct {
	// CacheDir receives downloaded objects.
	CacheDir string
	S3       S3Config

	mu        sync.Mutex
	client    *S3
	downloads singleflight.Group
}

// Fetch returns a local path for uri, downloading remote objects once into
// CacheDir.
func (f *Fetcher) Fetch(ctx context.Context, uri string) (string, error) {
	loc, err := Parse(uri)
	if err != nil {
		return "", err
	}
	if !loc.Remote() {
		if _, err := os.Stat(loc.Path); err != nil {
			return "", fmt.Errorf("reference %s: %w", loc.Path, err)
		}
		return loc.Path, nil
	}

	dst := filepath.Join(f.cacheDir(), loc.Bucket, filepath.FromSlash(path.Clean(loc.Key)))
	_, err, _ = f.downloads.Do(dst, func() (any, error) {
		if _, err := os.Stat(dst); err == nil {
			return nil, nil
		}
		client, err := f.s3(ctx)
		if err != nil {
			return nil, err
		}
		return nil, client.Download(ctx, loc.Bucket, loc.Key, dst)
	})
	if err != nil {
		return "", err
	}
	return dst, nil
}

// Put stores a local file at uri. Local destinations are copied.
func (f *Fetcher) Put(ctx context.Context, src, uri string) error {
	loc, err := Parse(uri)
	if err != nil {
		return err
	}
	if !loc.Remote() {
		return copyFile(src, loc.Path)
	}
	client, err := f.s3(ctx)
	if err != nil {
		return err
	}
	return client.Upload(ctx, src, loc.Bucket, loc.Key)
}

// s3 returns the shared client, building it on first use.
func (f *Fetcher) s3(ctx context.Context) (*S3, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client == nil {
		client, err := NewS3(ctx, f.S3)
		if err != nil {
			return nil, err
		}
		f.client = client
	}
	return f.client, nil
}

func (f *Fetcher) cacheDir() string {
	if f.CacheDir != "" {
		return f.CacheDir
	}
	return filepath.Join(os.TempDir(), "bigsmall-reference")
}

func copyFile(src, dst string) error {
	if filepath.Clean(src) == filepath.Clean(dst) {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
