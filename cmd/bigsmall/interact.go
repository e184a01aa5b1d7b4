package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/bigsmall/internal/interaction"
)

func newInteractCmd() *cobra.Command {
	var (
		species1 string
		species2 string
		cutoff   float64
		output   string
	)

	cmd := &cobra.Command{
		Use:   "interact",
		Short: "Combine the scores of two organisms",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			path, results, err := interaction.Interact(ctx, species1, species2, cutoff, output)
			if err != nil {
				return err
			}
			fmt.Printf("Combined %d compounds (p <= %g)\n", len(results), cutoff)
			fmt.Printf("Output written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&species1, "species-1", "", "Run directory of the first organism")
	cmd.Flags().StringVar(&species2, "species-2", "", "Run directory of the second organism")
	cmd.Flags().Float64Var(&cutoff, "p-value", 1, "Drop compounds whose p-value exceeds this cutoff")
	cmd.Flags().StringVar(&output, "output", ".", "Output directory")
	_ = cmd.MarkFlagRequired("species-1")
	_ = cmd.MarkFlagRequired("species-2")
	return cmd
}
