// Command clrmd is an interactive and scriptable front end over the
// clrmd packages: it opens a data target (an ELF core dump or a live,
// ptrace-attached process) and lets a caller inspect the modules
// loaded in it, the same ambient-CLI role cmd/viewcore plays over
// golang-debug's core/gocore packages.
//
// clrmd does not expose segments/objects/roots/histogram subcommands:
// those operations live on heap.Heap, which itself needs a
// heap.Runtime collaborator (the GC's internal data structures) that
// this repository deliberately does not implement, any more than
// gocore.Core would work without first being handed a core.Process.
// A caller embedding clrmd as a library supplies that collaborator;
// the CLI only has the two boundary pieces the repository does own:
// DataReader targets and PE/PDB module inspection.
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
