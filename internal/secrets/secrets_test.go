package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestEnvProvider_Get(t *testing.T) {
	t.Setenv("BIGSMALL_GRAPH_PASSWORD", "prefixed")
	t.Setenv("S3_ACCESS_KEY_ID", "plain")

	p := NewEnvProvider("")
	if p.Name() != "env" {
		t.Fatalf("expected 'env', got %s", p.Name())
	}
	val, err := p.Get(context.Background(), GraphPassword)
	if err != nil || val != "prefixed" {
		t.Fatalf("expected prefixed value, got %q, %v", val, err)
	}
	val, err = p.Get(context.Background(), S3AccessKeyID)
	if err != nil || val != "plain" {
		t.Fatalf("expected unprefixed fallback, got %q, %v", val, err)
	}
	if _, err := p.Get(context.Background(), "nonexistent_secret_xyz"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFileProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	if err := os.WriteFile(path, []byte(`{"graph_password":"from-file"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	p, err := NewFileProvider(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val, _ := p.Get(context.Background(), GraphPassword); val != "from-file" {
		t.Fatalf("expected from-file, got %q", val)
	}
	if _, err := p.Get(context.Background(), S3SessionToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := os.WriteFile(path, []byte(`not json`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileProvider(path); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := NewFileProvider(filepath.Join(t.TempDir(), "missing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestDirProvider(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, S3SecretAccessKey), []byte("s3cr3t\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	p, err := NewDirProvider(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val, _ := p.Get(context.Background(), S3SecretAccessKey); val != "s3cr3t" {
		t.Fatalf("expected trimmed value, got %q", val)
	}
	if _, err := p.Get(context.Background(), "../etc/passwd"); err == nil {
		t.Fatal("expected error for a path key")
	}
	if _, err := p.Get(context.Background(), GraphPassword); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	file := filepath.Join(dir, S3SecretAccessKey)
	if _, err := NewDirProvider(file); err == nil {
		t.Fatal("expected error for a regular file")
	}
}

func TestManager_FallsBackToEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, GraphPassword), []byte("from-dir"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BIGSMALL_S3_ACCESS_KEY_ID", "from-env")

	m, err := NewManager(&Config{Provider: "dir", Path: dir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()
	if val, _ := m.Get(ctx, GraphPassword); val != "from-dir" {
		t.Fatalf("expected from-dir, got %q", val)
	}
	if val, _ := m.Get(ctx, S3AccessKeyID); val != "from-env" {
		t.Fatalf("expected env fallback, got %q", val)
	}
	if _, err := m.Get(ctx, S3SessionToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// Cached values survive the source going away.
	if err := os.Remove(filepath.Join(dir, GraphPassword)); err != nil {
		t.Fatal(err)
	}
	if val, _ := m.Get(ctx, GraphPassword); val != "from-dir" {
		t.Fatalf("expected cached value, got %q", val)
	}
}

func TestManager_Fill(t *testing.T) {
	t.Setenv("BIGSMALL_GRAPH_PASSWORD", "resolved")
	m, err := NewManager(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var empty string
	m.Fill(context.Background(), &empty, GraphPassword)
	if empty != "resolved" {
		t.Fatalf("expected resolved, got %q", empty)
	}

	set := "explicit"
	m.Fill(context.Background(), &set, GraphPassword)
	if set != "explicit" {
		t.Fatalf("configured values must win, got %q", set)
	}

	var missing string
	m.Fill(context.Background(), &missing, S3SessionToken)
	if missing != "" {
		t.Fatalf("expected empty, got %q", missing)
	}
}

func TestNewManager_Errors(t *testing.T) {
	if _, err := NewManager(&Config{Provider: "vault"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if _, err := NewManager(&Config{Provider: "file"}); err == nil {
		t.Fatal("expected error for file provider without a path")
	}
}
