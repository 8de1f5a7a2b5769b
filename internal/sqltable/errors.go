package sqltable

import "errors"

// Domain errors for the sqltable package.
var (
	// ErrVTableUnsupported is returned by Register when the binary was built
	// without SQLite virtual table support (build tag sqlite_vtable).
	ErrVTableUnsupported = errors.New("sqltable: virtual tables not compiled in, build with -tags sqlite_vtable")

	// ErrDriverRegistered is returned when the driver name is already taken.
	ErrDriverRegistered = errors.New("sqltable: driver already registered")

	// ErrInvalidArgs is returned for malformed module arguments.
	ErrInvalidArgs = errors.New("sqltable: invalid module arguments")
)
