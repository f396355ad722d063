package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "storyctl",
		Short:        "Generate bedtime stories from the command line",
		SilenceUsage: true,
	}

	root.AddCommand(NewGenerateCommand())
	root.AddCommand(NewCatalogCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
