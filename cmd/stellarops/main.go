// Package main is the single-binary entrypoint for StellarOps.
package main

import "github.com/stellarops/stellarops/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
