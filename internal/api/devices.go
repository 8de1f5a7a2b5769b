package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/ircon-bridge/internal/bridges/ircon"
)

// DeviceResponse describes one device share.
type DeviceResponse struct {
	Identifier string            `json:"identifier"`
	Host       string            `json:"host"`
	Port       int               `json:"port"`
	Connected  bool              `json:"connected"`
	State      map[string]string `json:"state"`
	Stats      StatsResponse     `json:"stats"`
}

// StatsResponse holds a share's traffic counters.
type StatsResponse struct {
	FramesTx     uint64     `json:"frames_tx"`
	BytesTx      uint64     `json:"bytes_tx"`
	SendErrors   uint64     `json:"send_errors"`
	Connects     uint64     `json:"connects"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// SetStateRequest is the body of PUT /devices/{id}/state.
//
//	{"values": {"mode": "heat", "temperature": 22}}
type SetStateRequest struct {
	Values map[string]any `json:"values"`
}

// StateResponse is returned by state reads and writes.
type StateResponse struct {
	CommandID string            `json:"command_id,omitempty"`
	Device    string            `json:"device"`
	Connected bool              `json:"connected"`
	State     map[string]string `json:"state"`
}

func newDeviceResponse(share *ircon.Share) DeviceResponse {
	ep := share.Endpoint()
	stats := share.Stats()
	resp := DeviceResponse{
		Identifier: share.Identifier(),
		Host:       ep.Host,
		Port:       ep.Port,
		Connected:  stats.Connected,
		State:      share.State().Map(),
		Stats: StatsResponse{
			FramesTx:   stats.FramesTx,
			BytesTx:    stats.BytesTx,
			SendErrors: stats.SendErrors,
			Connects:   stats.Connects,
		},
	}
	if !stats.LastActivity.IsZero() {
		last := stats.LastActivity.UTC()
		resp.Stats.LastActivity = &last
	}
	return resp
}

func newStateResponse(share *ircon.Share, commandID string) StateResponse {
	return StateResponse{
		CommandID: commandID,
		Device:    share.Identifier(),
		Connected: share.IsConnected(),
		State:     share.State().Map(),
	}
}

// deviceID returns the {id} path parameter. Identifiers containing "/"
// must be sent percent-encoded.
func deviceID(r *http.Request) (string, bool) {
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil || id == "" {
		return "", false
	}
	return id, true
}

// lookupShare resolves {id} to an existing share, writing the error
// response when there is none.
func (s *Server) lookupShare(w http.ResponseWriter, r *http.Request) (*ircon.Share, bool) {
	id, ok := deviceID(r)
	if !ok {
		writeBadRequest(w, "invalid device identifier")
		return nil, false
	}
	share, ok := s.registry.Lookup(id)
	if !ok {
		writeNotFound(w, "device not found")
		return nil, false
	}
	return share, true
}

// connectShare returns the share for {id}, creating and connecting it
// as needed.
func (s *Server) connectShare(w http.ResponseWriter, r *http.Request) (*ircon.Share, bool) {
	id, ok := deviceID(r)
	if !ok {
		writeBadRequest(w, "invalid device identifier")
		return nil, false
	}

	share := s.registry.Share(id)
	ctx, cancel := s.connectContext(r)
	defer cancel()
	if err := share.Connect(ctx); err != nil {
		s.logger.Warn("device connect failed",
			"device", id,
			"error", err,
			"request_id", requestID(r.Context()),
		)
		writeError(w, http.StatusBadGateway, ErrCodeDeviceUnreachable, err.Error())
		return nil, false
	}
	return share, true
}

func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	ids := s.registry.Identifiers()
	devices := make([]DeviceResponse, 0, len(ids))
	for _, id := range ids {
		if share, ok := s.registry.Lookup(id); ok {
			devices = append(devices, newDeviceResponse(share))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	share, ok := s.lookupShare(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newDeviceResponse(share))
}

func (s *Server) handleGetDeviceState(w http.ResponseWriter, r *http.Request) {
	share, ok := s.lookupShare(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newStateResponse(share, ""))
}

// handleSetDeviceState writes the supplied values to the device through
// the same encoder as table inserts. Unknown names are accepted and
// ignored; null values count as not supplied.
func (s *Server) handleSetDeviceState(w http.ResponseWriter, r *http.Request) {
	var req SetStateRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.Values) == 0 {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "values must not be empty")
		return
	}

	cmd := ircon.CommandMessage{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Action:    ircon.ActionSet,
		Values:    req.Values,
		Source:    "api",
	}
	row, err := cmd.Row()
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	share, ok := s.connectShare(w, r)
	if !ok {
		return
	}
	share.WriteRow(row)
	writeJSON(w, http.StatusOK, newStateResponse(share, cmd.ID))
}

// handleResetDeviceState resets the device, like DELETE on its table.
func (s *Server) handleResetDeviceState(w http.ResponseWriter, r *http.Request) {
	share, ok := s.connectShare(w, r)
	if !ok {
		return
	}
	share.Reset()
	writeJSON(w, http.StatusOK, newStateResponse(share, uuid.NewString()))
}

func (s *Server) handleConnectDevice(w http.ResponseWriter, r *http.Request) {
	share, ok := s.connectShare(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newDeviceResponse(share))
}

func (s *Server) handleDisconnectDevice(w http.ResponseWriter, r *http.Request) {
	share, ok := s.lookupShare(w, r)
	if !ok {
		return
	}
	if err := share.Disconnect(); err != nil {
		s.logger.Warn("device disconnect failed", "device", share.Identifier(), "error", err)
	}
	writeJSON(w, http.StatusOK, newDeviceResponse(share))
}
