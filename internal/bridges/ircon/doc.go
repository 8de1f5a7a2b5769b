// Package ircon synchronises the state of infrared air-conditioner
// controllers ("ircon" devices) with a table-shaped view of them.
//
// Each device is addressed by an identifier of the form "host" or
// "host:port" and is reached over one persistent TCP connection. The device
// protocol is send-only: the bridge never reads from the socket, so the
// state it reports is the state it last wrote.
//
// # Architecture
//
//	┌──────────────┐   Session   ┌──────────┐  Share  ┌────────────┐   TCP
//	│ SQL table /  │────────────►│ Registry │────────►│ StateCache │─────────► device
//	│ MQTT / HTTP  │             └──────────┘         │ + Encoder  │
//	└──────────────┘                                  └────────────┘
//
// The Registry holds one Share per identifier for the life of the process.
// A Share owns the socket and the StateCache and is used by every Session
// opened on that identifier. Sessions are the open/scan/write/close handle
// the SQL table layer drives; the MQTT Bridge and the HTTP API work on
// shares directly.
//
// # Attributes
//
// Four attributes are recognised, matched case-sensitively:
//
//   - mode
//   - temperature
//   - power
//   - angle
//
// Values are strings of at most MaxValueLength bytes. Before anything has
// been written, and after a reset, every attribute reads as Sentinel
// ("unknown").
//
// # Wire Format
//
// A written row becomes one frame: "name:value," for each recognised
// column, then a newline:
//
//	mode:cool,temperature:22,\n
//
// A delete always sends "mode:-,\n". Unrecognised columns are silently
// skipped; an empty value re-sends the cached one.
//
// # Reads
//
// A scan yields exactly one row built from the cache, then ErrEndOfData.
//
//	sess := ircon.NewSession(registry, "10.0.0.5:9000")
//	if err := sess.Open(ctx); err != nil {
//	    return err
//	}
//	defer sess.Close()
//
//	_ = sess.Write(ircon.Row{ircon.NewField("mode", "heat")})
//	_ = sess.ScanInit()
//	row, _ := sess.ScanNext([]string{"mode", "power"})
//	// row: mode=heat, power=unknown
//
// # Thread Safety
//
// Registry, Share, StateCache and Bridge are safe for concurrent use.
// Session and Cursor belong to a single table handle and are not.
package ircon
