// Package expression parses enzyme expression tables into cumulative
// per-enzyme transcript values.
package expression

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// ParseError reports a malformed line in an expression table.
type ParseError struct {
	Line   int
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("expression table: %s", e.Reason)
	}
	return fmt.Sprintf("expression table line %d %q: %s", e.Line, e.Text, e.Reason)
}

// Table holds cumulative expression values keyed by enzyme code.
type Table struct {
	values   map[string]float64
	order    []string
	total    float64
	max      float64
	sequence []float64
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{values: make(map[string]float64)}
}

// Add records one observation. Repeated enzymes accumulate.
func (t *Table) Add(enzyme string, value float64) {
	prev, seen := t.values[enzyme]
	cumulative := prev + value
	t.values[enzyme] = cumulative
	t.total += value
	if !seen {
		t.order = append(t.order, enzyme)
		t.sequence = append(t.sequence, value)
	} else {
		t.sequence = append(t.sequence, cumulative)
	}
	if cumulative > t.max {
		t.max = cumulative
	}
}

// Value returns the cumulative value for an enzyme.
func (t *Table) Value(enzyme string) (float64, bool) {
	v, ok := t.values[enzyme]
	return v, ok
}

// Values returns a copy of the enzyme -> cumulative value mapping.
func (t *Table) Values() map[string]float64 {
	out := make(map[string]float64, len(t.values))
	for k, v := range t.values {
		out[k] = v
	}
	return out
}

// Enzymes returns the distinct enzyme codes in first-appearance order.
func (t *Table) Enzymes() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Sequence returns the values in the order they were produced. This is the
// population the simulation resamples from.
func (t *Table) Sequence() []float64 {
	out := make([]float64, len(t.sequence))
	copy(out, t.sequence)
	return out
}

// Total is the sum of every value read.
func (t *Table) Total() float64 { return t.total }

// Max is the largest cumulative value seen.
func (t *Table) Max() float64 { return t.max }

// Len returns the number of distinct enzymes.
func (t *Table) Len() int { return len(t.order) }

// Parse reads "identifier value" lines. Blank lines are ignored; any other
// malformed line aborts with a *ParseError.
func Parse(r io.Reader) (*Table, error) {
	t := NewTable()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		enzyme, value, err := parseLine(text)
		if err != nil {
			return nil, &ParseError{Line: lineNo, Text: text, Reason: err.Error()}
		}
		t.Add(enzyme, value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read expression table: %w", err)
	}
	if t.Len() == 0 {
		return nil, &ParseError{Reason: "no records"}
	}
	return t, nil
}

// ParseFile opens path and parses it.
func ParseFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open expression table: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

func parseLine(text string) (string, float64, error) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return "", 0, fmt.Errorf("expected 2 fields, got %d", len(fields))
	}
	enzyme := StripPrefix(fields[0])
	if enzyme == "" {
		return "", 0, fmt.Errorf("empty identifier")
	}
	value, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid value %q", fields[1])
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return "", 0, fmt.Errorf("value %q must be a finite non-negative number", fields[1])
	}
	return enzyme, value, nil
}

// StripPrefix removes a database prefix such as "ko:" from an identifier.
func StripPrefix(id string) string {
	prefix, rest, ok := strings.Cut(id, ":")
	if !ok || prefix == "" {
		return id
	}
	for _, c := range prefix {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return id
		}
	}
	return rest
}
