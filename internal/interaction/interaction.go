// Package interaction combines the score tables of two organisms into a
// putative metabolic interaction score.
package interaction

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/efebarandurmaz/bigsmall/internal/manifest"
	"github.com/efebarandurmaz/bigsmall/internal/observability"
	"github.com/efebarandurmaz/bigsmall/internal/output"
	"github.com/efebarandurmaz/bigsmall/internal/score"
	"github.com/efebarandurmaz/bigsmall/internal/significance"
)

// ErrInvalidCutoff is returned for a negative p-value cutoff.
var ErrInvalidCutoff = errors.New("interaction: p-value cutoff must not be negative")

// Entry is one compound row of a score table.
type Entry struct {
	Compound string  `json:"compound"`
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
	PValue   float64 `json:"p_value"`
}

// Table is the score table of one organism.
type Table struct {
	Name    string  `json:"name"`
	Entries []Entry `json:"entries"`
}

// Result is the combined score of one compound.
type Result struct {
	Compound string  `json:"compound"`
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
}

// ReadTable parses a tab-separated score table. Columns are located by
// header; a table without a significance column counts as all n.s.
func ReadTable(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("score table: empty")
		}
		return nil, fmt.Errorf("score table header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	codeCol, ok := cols[output.ColCompound]
	if !ok {
		return nil, fmt.Errorf("score table: missing %s column", output.ColCompound)
	}
	scoreCol, ok := cols[output.ColScore]
	if !ok {
		return nil, fmt.Errorf("score table: missing %s column (directional tables cannot be combined)", output.ColScore)
	}
	nameCol, hasName := cols[output.ColName]
	sigCol, hasSig := cols[output.ColSignificance]
	pCol, hasP := cols[output.ColPValue]

	t := &Table{}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("score table line %d: %w", line, err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		get := func(i int) string {
			if i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}

		e := Entry{Compound: get(codeCol), PValue: 1}
		if e.Compound == "" {
			return nil, fmt.Errorf("score table line %d: empty compound code", line)
		}
		if hasName {
			e.Name = get(nameCol)
		}
		if e.Score, err = strconv.ParseFloat(get(scoreCol), 64); err != nil {
			return nil, fmt.Errorf("score table line %d: bad score: %w", line, err)
		}
		switch {
		case hasSig:
			tier, err := significance.ParseMarker(get(sigCol))
			if err != nil {
				return nil, fmt.Errorf("score table line %d: %w", line, err)
			}
			e.PValue = tier.PValue()
		case hasP:
			if e.PValue, err = parsePValue(get(pCol)); err != nil {
				return nil, fmt.Errorf("score table line %d: %w", line, err)
			}
		}
		t.Entries = append(t.Entries, e)
	}
	return t, nil
}

func parsePValue(s string) (float64, error) {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	tier, err := significance.ParseMarker(s)
	if err != nil {
		return 0, err
	}
	return tier.PValue(), nil
}

// Combine sums the scores of entries passing cutoff across both tables.
// A compound missing from one side contributes 0 from that side and takes
// its name from whichever side has one, preferring a.
func Combine(a, b *Table, cutoff float64) []Result {
	merged := make(map[string]*Result)
	add := func(t *Table) {
		if t == nil {
			return
		}
		for _, e := range t.Entries {
			if e.PValue > cutoff {
				continue
			}
			r, ok := merged[e.Compound]
			if !ok {
				r = &Result{Compound: e.Compound}
				merged[e.Compound] = r
			}
			if r.Name == "" {
				r.Name = e.Name
			}
			r.Score += e.Score
		}
	}
	add(a)
	add(b)

	out := make([]Result, 0, len(merged))
	for _, r := range merged {
		r.Score = score.Round3(r.Score)
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compound < out[j].Compound })
	return out
}

// Run is a scored run directory loaded for combination.
type Run struct {
	Dir      string
	Manifest *manifest.Manifest
	Table    *Table
}

// LoadRun reads the manifest and score table of a run directory.
func LoadRun(dir string) (*Run, error) {
	m, err := manifest.Load(dir)
	if err != nil {
		return nil, err
	}
	path, err := scorePath(dir, m)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := ReadTable(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	t.Name = m.OrganismName()
	return &Run{Dir: dir, Manifest: m, Table: t}, nil
}

func scorePath(dir string, m *manifest.Manifest) (string, error) {
	if m.ScoreFile != "" {
		return filepath.Join(dir, m.ScoreFile), nil
	}
	for _, name := range []string{m.GraphName, m.OrganismName()} {
		for _, simulated := range []bool{true, false} {
			p := filepath.Join(dir, output.ScoreFileName(name, simulated))
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
	}
	return "", fmt.Errorf("no score table in %s: %w", dir, os.ErrNotExist)
}

// FileName is the interaction table name for two organisms.
func FileName(name1, name2 string) string {
	return name1 + "AND" + name2 + ".interaction.tsv"
}

// Write stores results under dir and returns the file path.
func Write(dir, name1, name2 string, results []Result, cutoff float64) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, FileName(name1, name2))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	w := bufio.NewWriter(f)
	cut := strconv.FormatFloat(cutoff, 'f', -1, 64)
	fmt.Fprintf(w, "%s\t%s\tInteraction_score\t%s\n", output.ColCompound, output.ColName, output.ColPValue)
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Compound, r.Name, strconv.FormatFloat(r.Score, 'f', -1, 64), cut)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

// Interact loads two run directories, combines them and writes the result
// into outDir.
func Interact(ctx context.Context, dir1, dir2 string, cutoff float64, outDir string) (_ string, _ []Result, err error) {
	_, span := observability.StartStageSpan(ctx, observability.StageInteract)
	defer func() {
		observability.RecordError(span, err)
		span.End()
	}()
	if cutoff < 0 {
		return "", nil, ErrInvalidCutoff
	}
	r1, err := LoadRun(dir1)
	if err != nil {
		return "", nil, fmt.Errorf("species 1: %w", err)
	}
	r2, err := LoadRun(dir2)
	if err != nil {
		return "", nil, fmt.Errorf("species 2: %w", err)
	}
	results := Combine(r1.Table, r2.Table, cutoff)
	span.SetAttributes(
		attribute.String("interaction.species_1", r1.Table.Name),
		attribute.String("interaction.species_2", r2.Table.Name),
		attribute.Int("interaction.compounds", len(results)),
	)
	path, err := Write(outDir, r1.Table.Name, r2.Table.Name, results, cutoff)
	if err != nil {
		return "", nil, err
	}
	return path, results, nil
}
