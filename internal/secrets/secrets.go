// Package secrets resolves credentials that are kept out of the config file.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Keys looked up by the binaries.
const (
	GraphPassword     = "graph_password"
	S3AccessKeyID     = "s3_access_key_id"
	S3SecretAccessKey = "s3_secret_access_key"
	S3SessionToken    = "s3_session_token"
)

// ErrNotFound is returned when no provider holds a key.
var ErrNotFound = errors.New("secret not found")

// Provider is a secrets backend.
type Provider interface {
	Get(ctx context.Context, key string) (string, error)
	Name() string
}

// Config selects the primary provider. The environment is always consulted
// afterwards.
type Config struct {
	Provider  string // env, file or dir
	Path      string
	EnvPrefix string // default BIGSMALL_
}

// Manager looks keys up in the primary provider, then the environment, and
// caches what it finds.
type Manager struct {
	primary  Provider
	fallback Provider

	mu    sync.RWMutex
	cache map[string]string
}

// NewManager builds a manager from cfg. A nil cfg reads the environment only.
func NewManager(cfg *Config) (*Manager, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	env := NewEnvProvider(cfg.EnvPrefix)

	var primary Provider
	switch cfg.Provider {
	case "", "env":
		primary = env
		env = nil
	case "file":
		p, err := NewFileProvider(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("secrets file: %w", err)
		}
		primary = p
	case "dir":
		p, err := NewDirProvider(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("secrets dir: %w", err)
		}
		primary = p
	default:
		return nil, fmt.Errorf("unknown secrets provider: %s", cfg.Provider)
	}

	m := &Manager{primary: primary, cache: make(map[string]string)}
	if env != nil {
		m.fallback = env
	}
	return m, nil
}

// Get returns the value of key.
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	val, ok := m.cache[key]
	m.mu.RUnlock()
	if ok {
		return val, nil
	}

	for _, p := range []Provider{m.primary, m.fallback} {
		if p == nil {
			continue
		}
		if val, err := p.Get(ctx, key); err == nil && val != "" {
			m.mu.Lock()
			m.cache[key] = val
			m.mu.Unlock()
			return val, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, key)
}

// Fill replaces *dst with the value of key when *dst is empty. A missing
// key leaves it empty.
func (m *Manager) Fill(ctx context.Context, dst *string, key string) {
	if *dst != "" {
		return
	}
	if val, err := m.Get(ctx, key); err == nil {
		*dst = val
	}
}

// EnvProvider reads PREFIX_KEY, then KEY.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates an environment provider.
func NewEnvProvider(prefix string) *EnvProvider {
	if prefix == "" {
		prefix = "BIGSMALL_"
	}
	return &EnvProvider{prefix: prefix}
}

func (p *EnvProvider) Name() string { return "env" }

func (p *EnvProvider) Get(_ context.Context, key string) (string, error) {
	name := strings.ToUpper(key)
	if val := os.Getenv(p.prefix + name); val != "" {
		return val, nil
	}
	if val := os.Getenv(name); val != "" {
		return val, nil
	}
	return "", fmt.Errorf("%w: env %s%s", ErrNotFound, p.prefix, name)
}
