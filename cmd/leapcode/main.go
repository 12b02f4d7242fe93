// Package main provides the leapcode CLI.
package main

import (
	"os"

	"github.com/leapstack-labs/leapcode/internal/cli"
)

// Set via -ldflags at build time.
var (
	version   = ""
	buildDate = ""
	gitCommit = ""
)

func main() {
	if version != "" {
		cli.Version = version
	}
	if buildDate != "" {
		cli.BuildDate = buildDate
	}
	if gitCommit != "" {
		cli.GitCommit = gitCommit
	}

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
