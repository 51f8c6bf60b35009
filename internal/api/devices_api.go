package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"rentboard/internal/metrics"
	"rentboard/internal/models"
)

// handleDevices lists or registers devices.
// GET  /api/devices?model=X&accessory=true
// POST /api/devices
func (s *HTTPServer) handleDevices(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("devices")
	switch r.Method {
	case http.MethodGet:
		model := r.URL.Query().Get("model")
		if model == "" && r.URL.Query().Get("accessory") == "" {
			devices, err := s.db.ListDevices(r.Context())
			if err != nil {
				s.writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
			return
		}

		isAccessory := r.URL.Query().Get("accessory") == "true"
		devices, err := s.db.ListDevicesByFilter(r.Context(), model, isAccessory)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"devices": devices})

	case http.MethodPost:
		var device models.Device
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&device); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if device.Name == "" || device.Model == "" {
			writeError(w, http.StatusBadRequest, "name and model are required")
			return
		}
		id, err := s.db.CreateDevice(r.Context(), &device)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": id, "device": device})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleDeviceByID dispatches /api/devices/{id} and the status sub-action.
// GET   /api/devices/{id}
// PUT   /api/devices/{id}
// PATCH /api/devices/{id}/status  {"status": "..."}
func (s *HTTPServer) handleDeviceByID(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("device_by_id")

	rest := strings.TrimPrefix(r.URL.Path, "/api/devices/")
	parts := strings.SplitN(rest, "/", 2)
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid device id")
		return
	}
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		device, err := s.db.GetDevice(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"device": device})

	case action == "" && r.Method == http.MethodPut:
		var device models.Device
		if err := json.NewDecoder(r.Body).Decode(&device); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		device.ID = id
		if err := s.db.UpdateDevice(r.Context(), &device); err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"device": device})

	case action == "status" && r.Method == http.MethodPatch:
		var req struct {
			Status models.DeviceStatus `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := s.db.UpdateDeviceStatus(r.Context(), id, req.Status); err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.timeline.Invalidate(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
