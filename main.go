// Package main is the entry point for the k6x CLI application. It assembles
// the built-in extensions and runs the root command.
package main

import (
	"github.com/liuxd6825/k6x/cmd"

	_ "github.com/liuxd6825/k6x/ext/sqlext" // the built-in sql extension
)

func main() {
	cmd.Execute()
}
