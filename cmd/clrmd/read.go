package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rasmus-z/clrmd/address"
)

func newReadCommand() *cobra.Command {
	var count int64
	cmd := &cobra.Command{
		Use:   "read <hex-address>",
		Short: "read a chunk of target memory and hex-dump it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.ParseUint(args[0], 16, 64)
			if err != nil {
				return fmt.Errorf("parsing %q as a hex address: %w", args[0], err)
			}

			reader, closeFn, err := openTarget()
			if err != nil {
				return err
			}
			defer closeFn()

			return dumpMemory(cmd.OutOrStdout(), reader, address.Address(n), count)
		},
	}
	cmd.Flags().Int64Var(&count, "count", 256, "number of bytes to read")
	return cmd
}
