// Command skillscan extracts competences from job texts against a tiered
// taxonomy and manages the discovery ledger.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "skillscan:", err)
		os.Exit(1)
	}
}
