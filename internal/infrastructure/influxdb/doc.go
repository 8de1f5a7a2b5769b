// Package influxdb records ircon device state history in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched point writing, and health monitoring. *Client
// satisfies the bridge's state recorder, so every state change observed
// by the bridge becomes an ircon_state point.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.RecordState("10.0.0.5:9000", map[string]string{"mode": "heat"})
//
// # Error Handling
//
// Writes are non-blocking; batch errors are delivered to the SetOnError
// callback. Connection and health check errors are returned directly.
package influxdb
