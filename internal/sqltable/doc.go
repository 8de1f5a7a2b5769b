// Package sqltable exposes ircon devices to SQLite as virtual tables.
//
// A device table holds exactly one row: the device's current state.
// SELECT reads it from the share cache, INSERT and UPDATE send the row to
// the device, DELETE resets it.
//
//	CREATE VIRTUAL TABLE "10.0.0.5:9000" USING ircon(mode, temperature, power, angle);
//	INSERT INTO "10.0.0.5:9000" (mode) VALUES ('heat');   -- sends "mode:heat,\n"
//	SELECT mode, power FROM "10.0.0.5:9000";              -- heat | unknown
//	DELETE FROM "10.0.0.5:9000";                          -- sends "mode:-,\n"
//
// The table name is the device identifier unless a device=<identifier>
// module argument overrides it:
//
//	CREATE VIRTUAL TABLE living USING ircon(device='10.0.0.5:9000', mode, power);
//
// Columns are always TEXT. Names other than mode, temperature, power and
// angle are accepted but read as "unknown" and are never sent.
//
// # Build Tags
//
// go-sqlite3 only compiles its virtual table API with the sqlite_vtable
// (or vtable) build tag. Without it Register returns ErrVTableUnsupported
// and the rest of the bridge still works over MQTT and HTTP.
//
//	go build -tags sqlite_vtable ./cmd/ircon
package sqltable
