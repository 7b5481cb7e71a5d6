// The main package for the flightnet executable.
package main

import (
	"github.com/mossishahi/flightnet/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
