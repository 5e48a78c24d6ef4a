// The main package for the renec-harvester executable.
package main

import (
	"github.com/conocermx/renec-harvester/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
