package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "bigsmall",
		Short:         "Expression-weighted metabolite importance scoring",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(newRunCmd(), newInteractCmd(), newReferenceCmd(), newSubmitCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
