package api

import (
	"fmt"
	"net/http"
	"time"

	"rentboard/internal/metrics"
)

// handleExportRentals streams the rental ledger as an xlsx workbook.
// GET /api/export/rentals
func (s *HTTPServer) handleExportRentals(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("export_rentals")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	filename := fmt.Sprintf("rentals_%s.xlsx", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := s.exporter.WriteWorkbook(r.Context(), w); err != nil {
		// Headers are already out; all we can do is log.
		s.logger.Error().Err(err).Msg("Rental export failed")
	}
}

// handleStatistics returns rental and device counts.
// GET /api/statistics
func (s *HTTPServer) handleStatistics(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("statistics")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rentalStats, err := s.db.RentalStatistics(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	deviceStats, err := s.db.CountDevicesByStatus(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rentals": rentalStats,
		"devices": deviceStats,
	})
}
