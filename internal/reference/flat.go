package reference

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// File names of the flat-file reference layout.
const (
	EnzymeReactionFile   = "ko_reaction.tsv"
	ReactionFormulaFile  = "reaction_mapformula.tsv"
	CompoundNameFile     = "compound.tsv"
	VersionFile          = "VERSION"
	defaultFlatVersion   = "unversioned"
	maxReferenceLineSize = 4 * 1024 * 1024
)

// LoadDir reads the three tab-separated tables from dir.
func LoadDir(dir string) (*Tables, error) {
	version := defaultFlatVersion
	if data, err := os.ReadFile(filepath.Join(dir, VersionFile)); err == nil {
		if v := strings.TrimSpace(string(data)); v != "" {
			version = v
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", VersionFile, err)
	}

	t := NewTables(version)
	if err := readMultiValued(filepath.Join(dir, EnzymeReactionFile), t.EnzymeReactions); err != nil {
		return nil, err
	}
	if err := readMultiValued(filepath.Join(dir, ReactionFormulaFile), t.ReactionEquations); err != nil {
		return nil, err
	}
	if err := readNames(filepath.Join(dir, CompoundNameFile), t.CompoundNames); err != nil {
		return nil, err
	}
	return t, nil
}

// OpenDir loads dir into a MemoryStore.
func OpenDir(dir string) (*MemoryStore, error) {
	t, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}
	return NewMemoryStore(t)
}

// WriteDir writes t in the flat layout, keys sorted.
func WriteDir(dir string, t *Tables) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create reference dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, VersionFile), []byte(t.Version+"\n"), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", VersionFile, err)
	}
	if err := writeMultiValued(filepath.Join(dir, EnzymeReactionFile), t.EnzymeReactions); err != nil {
		return err
	}
	if err := writeMultiValued(filepath.Join(dir, ReactionFormulaFile), t.ReactionEquations); err != nil {
		return err
	}
	names := make(map[string][]string, len(t.CompoundNames))
	for k, v := range t.CompoundNames {
		names[k] = []string{v}
	}
	return writeMultiValued(filepath.Join(dir, CompoundNameFile), names)
}

func readMultiValued(path string, into map[string][]string) error {
	return scanTable(path, func(key string, values []string) {
		into[key] = append(into[key], values...)
	})
}

func readNames(path string, into map[string]string) error {
	return scanTable(path, func(key string, values []string) {
		into[key] = strings.Join(values, " ")
	})
}

func scanTable(path string, fn func(key string, values []string)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxReferenceLineSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			return fmt.Errorf("%s line %d: expected key and at least one value", filepath.Base(path), lineNo)
		}
		var values []string
		for _, v := range fields[1:] {
			if v = strings.TrimSpace(v); v != "" {
				values = append(values, v)
			}
		}
		fn(strings.TrimSpace(fields[0]), values)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeMultiValued(path string, m map[string][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	w := bufio.NewWriter(f)
	if err := writeRows(w, m); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeRows(w io.Writer, m map[string][]string) error {
	for _, k := range sortedKeys(m) {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", k, strings.Join(m[k], "\t")); err != nil {
			return err
		}
	}
	return nil
}
