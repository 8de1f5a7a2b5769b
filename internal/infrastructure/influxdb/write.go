package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	// MeasurementState holds one point per device state change.
	MeasurementState = "ircon_state"

	// MeasurementShare holds periodic per-device traffic counters.
	MeasurementShare = "ircon_share"

	// numericSuffix is appended to the field name of attribute values that
	// parse as numbers, so they can be graphed next to the raw text.
	numericSuffix = "_value"
)

// StatePoint builds the point recorded for a device state.
//
// Every attribute is written as a string field. Attributes whose value
// parses as a float also get a <name>_value float field:
//
//	ircon_state,device=10.0.0.5:9000 mode="heat",temperature="22",temperature_value=22
func StatePoint(device string, state map[string]string, ts time.Time) *write.Point {
	fields := make(map[string]interface{}, len(state)*2)
	for name, value := range state {
		fields[name] = value
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			fields[name+numericSuffix] = f
		}
	}

	return write.NewPoint(
		MeasurementState,
		map[string]string{"device": device},
		fields,
		ts,
	)
}

// RecordState writes the state of a device. The write is non-blocking;
// data is batched and sent asynchronously.
//
// RecordState is a no-op when the client is not connected or the state
// is empty.
func (c *Client) RecordState(device string, state map[string]string) {
	if !c.IsConnected() || len(state) == 0 {
		return
	}
	c.writeAPI.WritePoint(StatePoint(device, state, time.Now()))
	c.points.Add(1)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Example:
//
//	client.WritePoint(influxdb.MeasurementShare,
//	    map[string]string{"device": "10.0.0.5:9000"},
//	    map[string]interface{}{"frames_tx": 12, "send_errors": 0})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
	c.points.Add(1)
}
