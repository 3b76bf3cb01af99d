// The main package for the chapterfeed executable.
package main

import (
	"github.com/JakeFAU/paid-chapter-feed/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
