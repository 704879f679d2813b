// The main package for the listingcrawler executable.
package main

import (
	"github.com/JakeFAU/listing-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
