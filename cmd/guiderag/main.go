// Package main provides the entry point for the guiderag CLI.
package main

import (
	"os"

	"github.com/questline/guiderag/cmd/guiderag/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
