package main

import (
	"fmt"
	"io"

	"github.com/rasmus-z/clrmd/address"
	"github.com/rasmus-z/clrmd/target"
)

// dumpMemory hex-dumps up to n bytes read from reader starting at a,
// sixteen bytes per line, in the layout cmd/viewcore's own "read"
// command uses.
func dumpMemory(w io.Writer, reader target.DataReader, a address.Address, n int64) error {
	if n <= 0 {
		return fmt.Errorf("byte count must be positive, got %d", n)
	}
	buf := make([]byte, n)
	read, ok := reader.ReadAt(buf, a)
	if !ok && read == 0 {
		return fmt.Errorf("address range [%v,%v) not readable", a, a.Add(n))
	}
	buf = buf[:read]
	for i, b := range buf {
		if i%16 == 0 {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "%v:", a.Add(int64(i)))
		}
		fmt.Fprintf(w, " %02x", b)
	}
	fmt.Fprintln(w)
	if !ok {
		fmt.Fprintf(w, "(short read: got %d of %d bytes)\n", read, n)
	}
	return nil
}
