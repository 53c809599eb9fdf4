// The main package for the hotarchive executable.
package main

import (
	"github.com/trendline/hotarchive/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
