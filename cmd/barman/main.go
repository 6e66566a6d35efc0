// Package main provides the barman CLI, the Backup Manager's command
// surface described in spec.md §6.
package main

import (
	"fmt"
	"os"

	"github.com/barmanhq/barman/cmd/barman/commands"
)

var version = "dev"

func main() {
	if err := commands.Execute(version); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
