// Package main provides the entry point for the casegrounds CLI.
package main

import (
	"os"

	"github.com/casegrounds/casegrounds/cmd/casegrounds/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
