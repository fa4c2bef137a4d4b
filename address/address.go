// Package address defines the Address type used throughout clrmd to
// name locations in a target process's virtual address space.
package address

import "fmt"

// Address is a location in the target process's address space.
type Address uint64

// Add returns a+n.
func (a Address) Add(n int64) Address {
	return Address(int64(a) + n)
}

// Sub returns a-b, as a signed byte count.
func (a Address) Sub(b Address) int64 {
	return int64(a) - int64(b)
}

// Less reports whether a < b.
func (a Address) Less(b Address) bool {
	return a < b
}

func (a Address) String() string {
	return fmt.Sprintf("0x%x", uint64(a))
}

// IsZero reports whether a is the nil address.
func (a Address) IsZero() bool {
	return a == 0
}

// Range is a half-open byte range [Min, Max).
type Range struct {
	Min, Max Address
}

// Size returns the number of bytes in r.
func (r Range) Size() int64 {
	return r.Max.Sub(r.Min)
}

// Contains reports whether a lies in [Min, Max).
func (r Range) Contains(a Address) bool {
	return a >= r.Min && a < r.Max
}
