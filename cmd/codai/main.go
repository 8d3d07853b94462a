// Package main is the entry point for the codai CLI.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "codai:", err)
		os.Exit(1)
	}
}
