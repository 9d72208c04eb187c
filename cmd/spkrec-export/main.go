// Package main provides the spkrec-export CLI.
//
// Usage:
//
//	spkrec-export [export] [flags]     export the configured model to ONNX
//	spkrec-export inspect <file.onnx>  print an artifact's interface
//	spkrec-export version              print version information
//
// Configuration:
//
//	Settings are read from SPKREC_* environment variables, optionally from
//	a .env file (--env-file), and overridden by flags.
package main

import (
	"fmt"
	"os"

	"github.com/born-ml/spkrec-export/cmd/spkrec-export/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
