package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sampleManifest() *Manifest {
	m := New("/data/gut_ko.txt", "gut")
	m.EnzymeNodes = 120
	m.CompoundNodes = 340
	m.Iterations = 1000
	m.Mode = "combined_log"
	m.MinScore = 0.5
	m.MinDegree = 2
	m.Seed = 42
	m.ReferenceVersion = "kegg-2016.1"
	m.ScoreFile = "gut.monte_carlo.score.txt"
	m.Fingerprint = ComputeFingerprint("abc123", m.Settings())
	return m
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := sampleManifest()
	if err := m.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}
	for _, name := range []string{StateFile, ParametersFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}

	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.GraphName != "gut" || got.Iterations != 1000 || got.Seed != 42 {
		t.Errorf("unexpected manifest %+v", got)
	}
	if !got.Fingerprint.Same(m.Fingerprint) {
		t.Error("fingerprint should survive a round trip")
	}
}

func TestLoad_FallsBackToParameters(t *testing.T) {
	dir := t.TempDir()
	if err := sampleManifest().Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := os.Remove(filepath.Join(dir, StateFile)); err != nil {
		t.Fatal(err)
	}

	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.ScoreFile != "gut.monte_carlo.score.txt" {
		t.Errorf("score file = %q", got.ScoreFile)
	}
	if got.MinScore != 0.5 || got.MinDegree != 2 {
		t.Errorf("thresholds = %v/%v", got.MinScore, got.MinDegree)
	}
	if got.Fingerprint == nil || got.Fingerprint.InputHash != "abc123" {
		t.Errorf("input hash not parsed: %+v", got.Fingerprint)
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(t.TempDir())
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestParseParameters_LegacyFormat(t *testing.T) {
	legacy := `User Defined Parameters
KO expression file: sample.tsv
Graph name: organism
KEGG ortholog nodes: 10
Substrate nodes: 25
Monte Carlo simulation iterations: none
`
	m, err := ParseParameters(strings.NewReader(legacy))
	if err != nil {
		t.Fatalf("ParseParameters: %v", err)
	}
	if m.Iterations != 1 || m.Simulated() {
		t.Errorf("iterations = %d", m.Iterations)
	}
	if m.OrganismName() != "sample" {
		t.Errorf("expected organism name from file, got %q", m.OrganismName())
	}
}

func TestParseParameters_BadNumber(t *testing.T) {
	_, err := ParseParameters(strings.NewReader("Graph name: x\nSubstrate nodes: many\n"))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestOrganismName(t *testing.T) {
	tests := []struct {
		graph, file, want string
	}{
		{"gut", "a.txt", "gut"},
		{DefaultName, "/x/soil.tsv", "soil"},
		{"", "", DefaultName},
	}
	for _, tt := range tests {
		m := &Manifest{GraphName: tt.graph, ExpressionFile: tt.file}
		if got := m.OrganismName(); got != tt.want {
			t.Errorf("OrganismName(%q, %q) = %q, want %q", tt.graph, tt.file, got, tt.want)
		}
	}
}

func TestFingerprint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "expr.txt")
	if err := os.WriteFile(path, []byte("K00001 5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	h, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if len(h) != 64 {
		t.Errorf("expected hex sha256, got %q", h)
	}

	a := ComputeFingerprint(h, map[string]string{"mode": "combined_log", "iterations": "1"})
	b := ComputeFingerprint(h, map[string]string{"iterations": "1", "mode": "combined_log"})
	c := ComputeFingerprint(h, map[string]string{"iterations": "2", "mode": "combined_log"})
	if !a.Same(b) {
		t.Error("settings order must not change the fingerprint")
	}
	if a.Same(c) {
		t.Error("different settings must change the fingerprint")
	}
	var none *Fingerprint
	if none.Same(a) {
		t.Error("nil fingerprint never matches")
	}
}
