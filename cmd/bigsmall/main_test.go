package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/bigsmall/internal/config"
	"github.com/efebarandurmaz/bigsmall/internal/reference"
	"github.com/efebarandurmaz/bigsmall/internal/reference/sqlite"
)

func parseRunFlags(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()
	var flags runFlags
	cmd := &cobra.Command{Use: "run"}
	flags.bind(cmd)
	require.NoError(t, cmd.Flags().Parse(args))
	return flags.load(cmd)
}

func TestRunFlagsOverrideConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bigsmall.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run:\n  iterations: 500\n  name: fromfile\n  workers: 2\n"), 0o644))

	cfg, err := parseRunFlags(t, "--config", path, "--iters", "1000", "--seed", "42", "--mode", "directional_sqrt", "--min", "0.5")
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Run.Iterations)
	assert.Equal(t, "fromfile", cfg.Run.Name)
	assert.Equal(t, 2, cfg.Run.Workers)
	assert.Equal(t, uint64(42), cfg.Run.Seed)
	assert.Equal(t, "directional_sqrt", cfg.Run.Mode)
	assert.Equal(t, 0.5, cfg.Run.MinScore)
}

func TestRunFlagsRejectInvalid(t *testing.T) {
	_, err := parseRunFlags(t, "--iters", "0")
	var cerr *config.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "run.iterations", cerr.Field)

	_, err = parseRunFlags(t, "--mode", "linear")
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "run.mode", cerr.Field)
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := progressPrinter(&buf)
	p(10)
	p(10)
	p(100)
	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, " 10%"))
	assert.True(t, strings.HasSuffix(out, "100%\n"))
}

func TestWorkflowID(t *testing.T) {
	id := workflowID("e coli/k12")
	assert.True(t, strings.HasPrefix(id, "bigsmall-e-coli-k12-"))
}

func TestImportReference(t *testing.T) {
	src := t.TempDir()
	tables := reference.NewTables("flat-1")
	tables.EnzymeReactions["K1"] = []string{"R1"}
	tables.ReactionEquations["R1"] = []string{"C1:L:C2"}
	tables.CompoundNames["C1"] = "Glucose"
	tables.CompoundNames["C2"] = "Pyruvate"
	require.NoError(t, reference.WriteDir(src, tables))

	dst := filepath.Join(t.TempDir(), "ref.db")
	require.NoError(t, importReference(t.Context(), nil, src, dst, "2024.2"))

	store, err := sqlite.Open(t.Context(), dst)
	require.NoError(t, err)
	assert.Equal(t, "2024.2", store.Version())
	reactions, ok := store.Reactions("K1")
	require.True(t, ok)
	assert.Equal(t, []string{"R1"}, reactions)
}
