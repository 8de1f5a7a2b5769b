// Package discovery finds ircon devices advertised over mDNS / DNS-SD.
//
// Devices advertise the _ircon._tcp service. Two optional TXT keys shape
// the virtual table created for them:
//
//	table=living
//	columns=mode,temperature,power
//
// Usage:
//
//	browser := discovery.NewBrowser(discovery.Config{Timeout: 3 * time.Second}, logger)
//	devices, err := browser.Discover(ctx)
//	for _, d := range devices {
//	    sqltable.EnsureTable(ctx, db, d.TableSpec())
//	}
package discovery
