// Package api provides the HTTP REST API of the ircon bridge.
//
// It exposes the device registry to tools that do not speak SQL or MQTT:
//
//	GET    /api/v1/health
//	GET    /api/v1/devices
//	GET    /api/v1/devices/{id}
//	GET    /api/v1/devices/{id}/state
//	PUT    /api/v1/devices/{id}/state       {"values": {"mode": "heat"}}
//	DELETE /api/v1/devices/{id}/state
//	POST   /api/v1/devices/{id}/connect
//	POST   /api/v1/devices/{id}/disconnect
//
// Writes use the same share and encoder as table inserts, so
// PUT {"values": {"mode": "heat"}} sends "mode:heat,\n" to the device.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
