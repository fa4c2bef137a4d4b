package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/rasmus-z/clrmd/address"
	clrmodule "github.com/rasmus-z/clrmd/module"
	"github.com/rasmus-z/clrmd/target"
)

// newExploreCommand builds the "explore" subcommand: an interactive
// shell that opens --core/--pid once and repeatedly accepts "read" and
// "module" commands against it, rather than re-opening the target for
// every invocation the way the one-shot subcommands do.
func newExploreCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "explore",
		Short: "start an interactive shell for reading target memory",
		RunE: func(cmd *cobra.Command, args []string) error {
			reader, closeFn, err := openTarget()
			if err != nil {
				return err
			}
			defer closeFn()

			rl, err := readline.New("clrmd> ")
			if err != nil {
				return fmt.Errorf("starting interactive shell: %w", err)
			}
			defer rl.Close()

			for {
				line, err := rl.Readline()
				if err != nil {
					// io.EOF on ^D, readline.ErrInterrupt on ^C: both end the shell.
					return nil
				}
				fields := strings.Fields(line)
				if len(fields) == 0 {
					continue
				}
				if err := runExploreCommand(cmd, reader, fields); err != nil {
					if err == errQuit {
						return nil
					}
					fmt.Fprintln(cmd.OutOrStdout(), err)
				}
			}
		},
	}
}

func runExploreCommand(cmd *cobra.Command, reader target.DataReader, fields []string) error {
	switch fields[0] {
	case "help":
		fmt.Fprintln(cmd.OutOrStdout(), "commands: read <hex-addr> [count], module <hex-base> <size> [name], help, quit")
		return nil

	case "quit", "exit":
		return errQuit

	case "read":
		if len(fields) < 2 {
			return fmt.Errorf("usage: read <hex-addr> [count]")
		}
		n, err := strconv.ParseUint(fields[1], 16, 64)
		if err != nil {
			return fmt.Errorf("parsing %q as a hex address: %w", fields[1], err)
		}
		count := int64(256)
		if len(fields) >= 3 {
			count, err = strconv.ParseInt(fields[2], 10, 64)
			if err != nil {
				return fmt.Errorf("parsing %q as a byte count: %w", fields[2], err)
			}
		}
		return dumpMemory(cmd.OutOrStdout(), reader, address.Address(n), count)

	case "module":
		if len(fields) < 3 {
			return fmt.Errorf("usage: module <hex-base> <size> [name]")
		}
		base, err := strconv.ParseUint(fields[1], 16, 64)
		if err != nil {
			return fmt.Errorf("parsing %q as a hex base address: %w", fields[1], err)
		}
		size, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			return fmt.Errorf("parsing %q as a size: %w", fields[2], err)
		}
		name := ""
		if len(fields) >= 4 {
			name = fields[3]
		}
		m := clrmodule.New(reader, address.Address(base), uint32(size), 0, name, true, nil)
		return printModuleInfo(cmd, m)

	default:
		return fmt.Errorf("unknown command %q; try \"help\"", fields[0])
	}
}

// errQuit is a sentinel runExploreCommand returns for "quit"/"exit";
// the Readline loop checks for it specifically rather than printing it.
var errQuit = fmt.Errorf("quit")
