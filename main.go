// Package main is the entry point for the smeecher CLI tool, which builds
// and queries an in-memory TFT comp analytics engine.
package main

import "github.com/pable/smeecher/cmd"

func main() {
	cmd.Execute()
}
