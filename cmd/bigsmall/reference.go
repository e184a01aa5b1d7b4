package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/bigsmall/internal/app"
	"github.com/efebarandurmaz/bigsmall/internal/blob"
	"github.com/efebarandurmaz/bigsmall/internal/config"
	"github.com/efebarandurmaz/bigsmall/internal/pipeline"
	"github.com/efebarandurmaz/bigsmall/internal/reference"
	"github.com/efebarandurmaz/bigsmall/internal/reference/sqlite"
)

func newReferenceCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "reference",
		Short: "Manage reference tables",
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path")

	var from, to, version string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Convert flat reference tables into a SQLite database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			return importReference(cmd.Context(), app.Fetcher(cfg), from, to, version)
		},
	}
	importCmd.Flags().StringVar(&from, "from", "", "Directory with the flat tables")
	importCmd.Flags().StringVar(&to, "to", "", "Destination SQLite file or s3://bucket/key")
	importCmd.Flags().StringVar(&version, "version", "", "Version recorded in the database (default: the VERSION file)")
	_ = importCmd.MarkFlagRequired("from")
	_ = importCmd.MarkFlagRequired("to")

	var uri string
	var jsonOutput bool
	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show the version and size of reference tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			if uri == "" {
				uri = cfg.Reference.URI
			}
			store, err := pipeline.OpenReference(cmd.Context(), uri, app.Fetcher(cfg))
			if err != nil {
				return err
			}
			st := store.Stats()
			if jsonOutput {
				data, _ := json.MarshalIndent(st, "", "  ")
				fmt.Println(string(data))
				return nil
			}
			fmt.Printf("Reference: %s\n", uri)
			fmt.Printf("  Version:    %s\n", st.Version)
			fmt.Printf("  Enzymes:    %d\n", st.Enzymes)
			fmt.Printf("  Reactions:  %d\n", st.Reactions)
			fmt.Printf("  Compounds:  %d\n", st.Compounds)
			return nil
		},
	}
	infoCmd.Flags().StringVar(&uri, "reference", "", "Reference location (default: reference.uri)")
	infoCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	cmd.AddCommand(importCmd, infoCmd)
	return cmd
}

// loadConfig reads path, falling back to defaults, and resolves stored
// credentials.
func loadConfig(ctx context.Context, path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config load failed (%v), using defaults\n", err)
		cfg = config.Default()
	}
	warnings, err := cfg.Validate()
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := app.ResolveSecrets(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// importReference writes the tables under from into a database at to.
// Remote destinations are built in a temporary file and uploaded.
func importReference(ctx context.Context, fetcher *blob.Fetcher, from, to, version string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	tables, err := reference.LoadDir(from)
	if err != nil {
		return err
	}
	if version != "" {
		tables.Version = version
	}

	loc, err := blob.Parse(to)
	if err != nil {
		return err
	}
	dst := loc.Path
	if loc.Remote() {
		tmp, err := os.MkdirTemp("", "bigsmall-import-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmp)
		dst = filepath.Join(tmp, filepath.Base(loc.Key))
	}

	if err := sqlite.Import(ctx, dst, tables); err != nil {
		return err
	}
	if loc.Remote() {
		if err := fetcher.Put(ctx, dst, to); err != nil {
			return err
		}
	}

	fmt.Printf("Imported %d enzymes, %d reactions, %d compounds (version %q) into %s\n",
		len(tables.EnzymeReactions), len(tables.ReactionEquations), len(tables.CompoundNames), tables.Version, to)
	return nil
}
