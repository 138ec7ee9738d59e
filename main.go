package main

import (
	"fmt"
	"os"

	"github.com/phenobase/fieldstore/cmd"
	"github.com/phenobase/fieldstore/internal/conf"
	"github.com/phenobase/fieldstore/internal/logging"
)

func main() {
	logging.Init()

	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	defer func() { _ = logging.DisableFileOutput() }()

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
