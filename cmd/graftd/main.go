// Command graftd is the boot-time root-modification mount orchestrator.
// See internal/cli for the command tree.
package main

import (
	"os"

	"github.com/rootgraft/graftd/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
