// Package console is the interactive SQL front end of the bridge.
//
// Statements are run against the bridge database, where each ircon device
// is a virtual table. Lines are buffered until a statement ends with ";".
// Dot-commands (.tables, .schema, .devices, .discover, .quit) are handled
// by the console itself and must be on a line of their own.
//
// Exec and RunScript are usable without a terminal, which is how the -e
// flag and the tests drive it. Terminal adds line editing and history on
// top of chzyer/readline.
package console
