package api

import (
	"fmt"
	"net/http"
	"time"

	"rentboard/internal/metrics"
	"rentboard/internal/service"
)

// MaxTimelineDaysRange caps the schedule board window a single request may
// materialize.
const MaxTimelineDaysRange = 180

// GanttResponse is the schedule board payload: one row of day cells per
// device.
type GanttResponse struct {
	Timelines []service.DeviceTimeline `json:"timelines"`
	Period    struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"period"`
}

// handleGanttData materializes the schedule board for a date range.
// GET /api/gantt/data?from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *HTTPServer) handleGanttData(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("gantt_data")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	from, to, err := s.parseGanttRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := s.timeline.Key(from, to)
	var cached GanttResponse
	if s.timeline.Get(r.Context(), key, &cached) {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	timelines, err := s.service.Timeline(r.Context(), from, to)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	response := GanttResponse{Timelines: timelines}
	response.Period.Start = from.Format("2006-01-02")
	response.Period.End = to.Format("2006-01-02")

	s.timeline.Set(r.Context(), key, response)
	writeJSON(w, http.StatusOK, response)
}

// parseGanttRange defaults to the current month when no range is given.
func (s *HTTPServer) parseGanttRange(r *http.Request) (from, to time.Time, err error) {
	fromStr := r.URL.Query().Get("from")
	toStr := r.URL.Query().Get("to")

	if fromStr == "" && toStr == "" {
		zone := s.service.Calculator().Zone()
		now := time.Now().In(zone)
		from = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, zone)
		to = from.AddDate(0, 1, -1)
		return from, to, nil
	}
	if fromStr == "" || toStr == "" {
		return from, to, fmt.Errorf("from and to must be given together")
	}

	from, err = s.parseDate(fromStr)
	if err != nil {
		return from, to, err
	}
	to, err = s.parseDate(toStr)
	if err != nil {
		return from, to, err
	}
	if to.Before(from) {
		return from, to, fmt.Errorf("to precedes from")
	}
	if int(to.Sub(from).Hours()/24) > MaxTimelineDaysRange {
		return from, to, fmt.Errorf("range exceeds %d days", MaxTimelineDaysRange)
	}
	return from, to, nil
}
