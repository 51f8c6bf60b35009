package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rentboard/internal/metrics"
	"rentboard/internal/models"
	"rentboard/internal/service"
)

// CheckConflictRequest is the request body for POST /api/rentals/check-conflict.
type CheckConflictRequest struct {
	DeviceID        int64   `json:"device_id"`
	DeviceIDs       []int64 `json:"device_ids,omitempty"` // batch variant only
	StartDate       string  `json:"start_date"`           // Format: YYYY-MM-DD
	EndDate         string  `json:"end_date"`             // Format: YYYY-MM-DD
	LogisticsDays   int     `json:"logistics_days"`
	ExcludeRentalID int64   `json:"exclude_rental_id,omitempty"`
}

// CheckConflictResponse reports the outcome plus the computed occupancy
// window, so the caller sees what was actually checked.
type CheckConflictResponse struct {
	Conflict  bool            `json:"conflict"`
	Conflicts []models.Rental `json:"conflicts,omitempty"`
	ShipOut   time.Time       `json:"ship_out"`
	ShipIn    time.Time       `json:"ship_in"`
}

// FindSlotRequest is the request body for POST /api/rentals/find-slot.
type FindSlotRequest struct {
	Model         string `json:"model"`
	IsAccessory   bool   `json:"is_accessory,omitempty"`
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
	LogisticsDays int    `json:"logistics_days"`
}

// FindSlotResponse is the response for a successful slot search.
type FindSlotResponse struct {
	Device  models.Device `json:"device"`
	ShipOut time.Time     `json:"ship_out"`
	ShipIn  time.Time     `json:"ship_in"`
}

// CheckDuplicateRequest is the request body for POST /api/rentals/check-duplicate.
type CheckDuplicateRequest struct {
	CustomerName    string `json:"customer_name"`
	Destination     string `json:"destination,omitempty"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
	ExcludeRentalID int64  `json:"exclude_rental_id,omitempty"`
}

// CreateRentalRequest is the request body for POST /api/rentals.
type CreateRentalRequest struct {
	Model           string   `json:"model,omitempty"`
	DeviceID        int64    `json:"device_id,omitempty"`
	StartDate       string   `json:"start_date"`
	EndDate         string   `json:"end_date"`
	LogisticsDays   int      `json:"logistics_days"`
	CustomerName    string   `json:"customer_name"`
	CustomerPhone   string   `json:"customer_phone,omitempty"`
	Destination     string   `json:"destination,omitempty"`
	AccessoryModels []string `json:"accessory_models,omitempty"`
}

// handleRentals lists rentals or creates one.
// GET  /api/rentals
// POST /api/rentals
func (s *HTTPServer) handleRentals(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("rentals")
	switch r.Method {
	case http.MethodGet:
		rentals, err := s.db.ListRentals(r.Context())
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"rentals": rentals})

	case http.MethodPost:
		var req CreateRentalRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		start, end, ok := s.parseWindow(w, req.StartDate, req.EndDate)
		if !ok {
			return
		}

		result, err := s.service.FindAndBook(r.Context(), service.BookingRequest{
			Model:           req.Model,
			DeviceID:        req.DeviceID,
			StartDate:       start,
			EndDate:         end,
			LogisticsDays:   req.LogisticsDays,
			CustomerName:    req.CustomerName,
			CustomerPhone:   req.CustomerPhone,
			Destination:     req.Destination,
			AccessoryModels: req.AccessoryModels,
		})
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.timeline.Invalidate(r.Context())
		writeJSON(w, http.StatusCreated, result)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleRentalByID dispatches /api/rentals/{id} and its sub-actions.
// GET    /api/rentals/{id}
// PATCH  /api/rentals/{id}         {"status": "..."}
// DELETE /api/rentals/{id}
// POST   /api/rentals/{id}/extend  {"end_date": "YYYY-MM-DD"}
// POST   /api/rentals/{id}/tracking
func (s *HTTPServer) handleRentalByID(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("rental_by_id")

	rest := strings.TrimPrefix(r.URL.Path, "/api/rentals/")
	parts := strings.SplitN(rest, "/", 2)
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid rental id")
		return
	}
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		rental, children, err := s.service.GetRental(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"rental": rental, "accessories": children})

	case action == "" && r.Method == http.MethodPatch:
		var req struct {
			Status models.RentalStatus `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := s.service.UpdateStatus(r.Context(), id, req.Status); err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.timeline.Invalidate(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	case action == "" && r.Method == http.MethodDelete:
		if err := s.service.Cancel(r.Context(), id); err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.timeline.Invalidate(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	case action == "extend" && r.Method == http.MethodPost:
		var req struct {
			EndDate string `json:"end_date"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		endDate, err := s.parseDate(req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := s.service.Extend(r.Context(), id, endDate); err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.timeline.Invalidate(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	case action == "tracking" && r.Method == http.MethodPost:
		var req struct {
			TrackingNoOut string `json:"tracking_no_out"`
			TrackingNoIn  string `json:"tracking_no_in"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := s.service.SetTracking(r.Context(), id, req.TrackingNoOut, req.TrackingNoIn); err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleCheckConflict evaluates a candidate window against one device.
// POST /api/rentals/check-conflict
func (s *HTTPServer) handleCheckConflict(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("check_conflict")
	req, start, end, ok := s.decodeConflictRequest(w, r)
	if !ok {
		return
	}

	conflicts, err := s.service.CheckConflict(r.Context(), req.DeviceID, start, end, req.LogisticsDays, req.ExcludeRentalID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	occ, err := s.service.Calculator().ComputeOccupancy(start, end, req.LogisticsDays)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CheckConflictResponse{
		Conflict:  len(conflicts) > 0,
		Conflicts: conflicts,
		ShipOut:   occ.ShipOut,
		ShipIn:    occ.ShipIn,
	})
}

// handleCheckConflictBatch evaluates a candidate window against many devices.
// POST /api/rentals/check-conflict-batch
func (s *HTTPServer) handleCheckConflictBatch(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("check_conflict_batch")
	req, start, end, ok := s.decodeConflictRequest(w, r)
	if !ok {
		return
	}
	if len(req.DeviceIDs) == 0 {
		writeError(w, http.StatusBadRequest, "device_ids is required")
		return
	}

	results, err := s.service.CheckConflictBatch(r.Context(), req.DeviceIDs, start, end, req.LogisticsDays, req.ExcludeRentalID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// handleFindSlot finds the first free device for a window.
// POST /api/rentals/find-slot
func (s *HTTPServer) handleFindSlot(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("find_slot")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req FindSlotRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Model == "" {
		writeError(w, http.StatusBadRequest, "model is required")
		return
	}
	start, end, ok := s.parseWindow(w, req.StartDate, req.EndDate)
	if !ok {
		return
	}

	slot, err := s.service.FindSlot(r.Context(), req.Model, req.IsAccessory, start, end, req.LogisticsDays)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FindSlotResponse{
		Device:  slot.Device,
		ShipOut: slot.Occupancy.ShipOut,
		ShipIn:  slot.Occupancy.ShipIn,
	})
}

// handleCheckDuplicate runs the advisory duplicate check.
// POST /api/rentals/check-duplicate
func (s *HTTPServer) handleCheckDuplicate(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("check_duplicate")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req CheckDuplicateRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	start, end, ok := s.parseWindow(w, req.StartDate, req.EndDate)
	if !ok {
		return
	}

	report := s.service.CheckDuplicates(r.Context(), req.CustomerName, req.Destination, start, end, req.ExcludeRentalID)
	writeJSON(w, http.StatusOK, report)
}

func (s *HTTPServer) decodeConflictRequest(w http.ResponseWriter, r *http.Request) (req CheckConflictRequest, start, end time.Time, ok bool) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return req, start, end, false
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return req, start, end, false
	}

	start, end, ok = s.parseWindow(w, req.StartDate, req.EndDate)
	return req, start, end, ok
}

func (s *HTTPServer) parseWindow(w http.ResponseWriter, startStr, endStr string) (start, end time.Time, ok bool) {
	if startStr == "" || endStr == "" {
		writeError(w, http.StatusBadRequest, "start_date and end_date are required")
		return
	}
	start, err := s.parseDate(startStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err = s.parseDate(endStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	return start, end, true
}
