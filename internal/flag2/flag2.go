// Package flag2 adds a couple of small generic conveniences on top of the
// standard flag package, used by cmd/ccc.
package flag2

import "flag"

// Lookup looks up a flag by name and returns its typed value.
//
// Panics if this flag is of the wrong type, or if the flag value is not a
// [flag.Getter]. Intended for flags registered in an init() in the same
// program, where a type mismatch is a programmer error, not user input.
func Lookup[T any](name string) T {
	return flag.Lookup(name).Value.(flag.Getter).Get().(T) //nolint:errcheck
}
