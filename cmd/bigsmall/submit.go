package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"

	"github.com/efebarandurmaz/bigsmall/internal/app"
	temporalmod "github.com/efebarandurmaz/bigsmall/internal/temporal"
)

func newSubmitCmd() *cobra.Command {
	var (
		flags  runFlags
		chunks int
		detach bool
	)

	cmd := &cobra.Command{
		Use:   "submit <expression-file>",
		Short: "Run the scoring workflow on Temporal workers",
		Long: "Starts a scoring workflow on the configured task queue. The expression file,\n" +
			"reference and output directory must be reachable from the workers.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("chunks") {
				cfg.Temporal.Chunks = chunks
			}
			logger, err := app.Logger(cfg)
			if err != nil {
				return err
			}

			// Workers resolve paths from their own working directory.
			expressionFile, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			outputDir, err := filepath.Abs(cfg.Run.OutputDir)
			if err != nil {
				return err
			}
			referenceURI := cfg.Reference.URI
			if !strings.HasPrefix(referenceURI, "s3://") {
				if referenceURI, err = filepath.Abs(referenceURI); err != nil {
					return err
				}
			}
			input := temporalmod.RunInput{
				ExpressionFile: expressionFile,
				Name:           cfg.Run.Name,
				Iterations:     cfg.Run.Iterations,
				Mode:           cfg.Run.Mode,
				MinScore:       cfg.Run.MinScore,
				MinDegree:      cfg.Run.MinDegree,
				Seed:           cfg.Run.Seed,
				ReferenceURI:   referenceURI,
				OutputDir:      outputDir,
				Chunks:         cfg.Temporal.Chunks,
			}

			c, err := app.TemporalClient(cfg, logger)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
				ID:        workflowID(input.Name),
				TaskQueue: cfg.Temporal.TaskQueue,
			}, temporalmod.MetaboliteWorkflow, input)
			if err != nil {
				return fmt.Errorf("start workflow: %w", err)
			}
			fmt.Printf("Started workflow %s (run %s) on %s\n", run.GetID(), run.GetRunID(), cfg.Temporal.TaskQueue)
			if detach {
				return nil
			}

			var out temporalmod.RunOutput
			if err := run.Get(ctx, &out); err != nil {
				return fmt.Errorf("workflow %s: %w", run.GetID(), err)
			}
			if cfg.Run.Iterations > 1 {
				fmt.Printf("Seed: %d\n", out.Seed)
				for _, marker := range []string{"***", "**", "*", "n.s."} {
					fmt.Printf("  %-5s %d\n", marker, out.Tiers[marker])
				}
			}
			for _, w := range out.Warnings {
				fmt.Printf("Warning: %s\n", w)
			}
			fmt.Printf("Output written to %s\n", out.Dir)
			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().IntVar(&chunks, "chunks", 4, "Parallel simulation activities")
	cmd.Flags().BoolVar(&detach, "detach", false, "Return once the workflow has started")
	return cmd
}

func workflowID(name string) string {
	name = strings.Map(func(r rune) rune {
		if r == ' ' || r == '/' {
			return '-'
		}
		return r
	}, name)
	return fmt.Sprintf("bigsmall-%s-%d", name, time.Now().UnixNano())
}
