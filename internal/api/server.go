package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"rentboard/internal/cache"
	"rentboard/internal/database"
	"rentboard/internal/export"
	"rentboard/internal/schedule"
	"rentboard/internal/service"
)

// HTTPServer exposes the scheduling engine and the rental workflows over
// JSON/HTTP.
type HTTPServer struct {
	db       *database.DB
	service  *service.BookingService
	exporter *export.Exporter
	timeline *cache.TimelineCache
	logger   *zerolog.Logger

	httpServer *http.Server
}

func NewHTTPServer(port int, readTimeout, writeTimeout time.Duration, db *database.DB, svc *service.BookingService, timeline *cache.TimelineCache, logger *zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		db:       db,
		service:  svc,
		exporter: export.NewExporter(db),
		timeline: timeline,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/rentals", s.handleRentals)
	mux.HandleFunc("/api/rentals/", s.handleRentalByID)
	mux.HandleFunc("/api/rentals/check-conflict", s.handleCheckConflict)
	mux.HandleFunc("/api/rentals/check-conflict-batch", s.handleCheckConflictBatch)
	mux.HandleFunc("/api/rentals/find-slot", s.handleFindSlot)
	mux.HandleFunc("/api/rentals/check-duplicate", s.handleCheckDuplicate)
	mux.HandleFunc("/api/devices", s.handleDevices)
	mux.HandleFunc("/api/devices/", s.handleDeviceByID)
	mux.HandleFunc("/api/gantt/data", s.handleGanttData)
	mux.HandleFunc("/api/export/rentals", s.handleExportRentals)
	mux.HandleFunc("/api/statistics", s.handleStatistics)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	return s
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *HTTPServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("HTTP API listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// Handler exposes the mux for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.httpServer.Handler
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeErrorCoded attaches a machine-readable code next to the message.
func writeErrorCoded(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "error": message})
}

// writeServiceError maps domain errors onto HTTP statuses. Store failures are
// 503 so callers can tell "conflict" from "could not check".
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, database.ErrConflict):
		writeErrorCoded(w, http.StatusConflict, "CONFLICT", err.Error())
	case errors.Is(err, database.ErrInvalidTransfer):
		writeErrorCoded(w, http.StatusConflict, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, schedule.ErrNoFreeDevice):
		writeErrorCoded(w, http.StatusConflict, "NO_SLOT", "no free device for the requested window")
	case errors.Is(err, schedule.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error().Err(err).Msg("Unhandled API error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// parseDate parses a YYYY-MM-DD value as midnight in the system timezone, so
// the calendar date a caller submits is the calendar date that gets booked
// regardless of the zone's UTC offset.
func (s *HTTPServer) parseDate(value string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", value, s.service.Calculator().Zone())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q; expected YYYY-MM-DD", value)
	}
	return t, nil
}
