// Command skyhook-run-query is the thin external glue spec §2 leaves
// unspecified: it turns flags/environment into an engine.Config (or
// engine.BuildIndexConfig), picks a storage.Client, and prints the
// orchestrator's final summary line.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
