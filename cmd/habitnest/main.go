// Package main is the single-binary entrypoint for HabitNest.
package main

import "github.com/habitnest/habitnest/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
