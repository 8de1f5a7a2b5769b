//go:build !sqlite_vtable && !vtable

package sqltable

import "github.com/nerrad567/ircon-bridge/internal/bridges/ircon"

// Register always fails: this binary was built without virtual table
// support. Rebuild with -tags sqlite_vtable.
func Register(string, *ircon.Registry, ircon.Logger) error {
	return ErrVTableUnsupported
}

// Supported reports whether virtual tables are compiled in.
func Supported() bool { return false }
