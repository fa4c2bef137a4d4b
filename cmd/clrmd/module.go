package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rasmus-z/clrmd/address"
	clrmodule "github.com/rasmus-z/clrmd/module"
)

// newModuleCommand builds the "module" subcommand. clrmd has no module
// table to walk on its own -- nothing in the repository enumerates a
// data target's loaded modules, and the heap.Runtime contract carries
// no module list -- so the base/size/name a module table would
// otherwise supply are taken as flags instead.
func newModuleCommand() *cobra.Command {
	var (
		baseHex   string
		size      uint32
		timestamp uint32
		name      string
		onDisk    bool
	)
	cmd := &cobra.Command{
		Use:   "module",
		Short: "inspect a loaded module's PE image: managed-ness, version, PDB reference",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := strconv.ParseUint(baseHex, 16, 64)
			if err != nil {
				return fmt.Errorf("parsing %q as a hex base address: %w", baseHex, err)
			}
			if size == 0 {
				return fmt.Errorf("--size is required")
			}

			reader, closeFn, err := openTarget()
			if err != nil {
				return err
			}
			defer closeFn()

			m := clrmodule.New(reader, address.Address(base), size, timestamp, name, !onDisk, nil)
			return printModuleInfo(cmd, m)
		},
	}
	cmd.Flags().StringVar(&baseHex, "base", "", "hex base address the module is loaded at (required)")
	cmd.Flags().Uint32Var(&size, "size", 0, "size of the module's PE image in bytes (required)")
	cmd.Flags().Uint32Var(&timestamp, "timestamp", 0, "module's PE timestamp")
	cmd.Flags().StringVar(&name, "name", "", "module file name")
	cmd.Flags().BoolVar(&onDisk, "on-disk", false, "image is laid out as on-disk rather than as-loaded")
	cmd.MarkFlagRequired("base")
	cmd.MarkFlagRequired("size")
	return cmd
}

func printModuleInfo(cmd *cobra.Command, m *clrmodule.Module) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "managed: %v\n", m.IsManaged())
	if v, ok := m.Version(); ok {
		fmt.Fprintf(out, "version: %d.%d.%d.%d\n", v.Major, v.Minor, v.Patch, v.Revision)
	}
	ref, err := m.PDB()
	if err != nil {
		return fmt.Errorf("reading PDB reference: %w", err)
	}
	if ref != nil {
		fmt.Fprintf(out, "pdb: %s (age %d)\n", ref.Path, ref.Age)
	} else {
		fmt.Fprintln(out, "pdb: none")
	}
	return nil
}
