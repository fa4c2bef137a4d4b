package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rasmus-z/clrmd/target"
	"github.com/rasmus-z/clrmd/targets"
)

var (
	coreFile string
	livePID  int
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "clrmd",
		Short: "inspect a captured CLR process's managed heap",
		Long: `clrmd reads a managed process's memory out of a target -- an ELF
core dump or a live, ptrace-attached process -- and inspects the PE
modules loaded in it. It is the command-line analogue of using the
clrmd packages as a library.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&coreFile, "core", "", "path to an ELF core dump to read from")
	root.PersistentFlags().IntVar(&livePID, "pid", 0, "pid of a live process to attach to and read from")

	root.AddCommand(newReadCommand(), newModuleCommand(), newExploreCommand())
	return root
}

// openTarget opens whichever data target --core or --pid names.
// Exactly one of the two must be set.
func openTarget() (target.DataReader, targets.CloseFunc, error) {
	switch {
	case coreFile != "" && livePID != 0:
		return nil, nil, fmt.Errorf("specify exactly one of --core or --pid")
	case coreFile != "":
		return targets.OpenCoreFile(coreFile)
	case livePID != 0:
		return targets.AttachLiveProcess(livePID)
	default:
		return nil, nil, fmt.Errorf("specify --core or --pid")
	}
}
