package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"rentboard/internal/events"
	"rentboard/internal/models"
	"rentboard/internal/schedule"
)

// StatusStore is the store surface the refresher needs.
type StatusStore interface {
	ListDevices(ctx context.Context) ([]models.Device, error)
	ListRentalsInRange(ctx context.Context, from, to time.Time) ([]models.Rental, error)
	UpdateDeviceStatus(ctx context.Context, id int64, status models.DeviceStatus) error
}

// DeviceStatusRefresher periodically re-derives each device's status from
// today's timeline cell, so the board reflects reality even when operators
// forget to advance a rental manually. Offline devices are left alone.
type DeviceStatusRefresher struct {
	store    StatusStore
	calc     schedule.Calculator
	bus      *events.EventBus
	interval time.Duration
	logger   *zerolog.Logger
}

func NewDeviceStatusRefresher(store StatusStore, calc schedule.Calculator, bus *events.EventBus, interval time.Duration, logger *zerolog.Logger) *DeviceStatusRefresher {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &DeviceStatusRefresher{
		store:    store,
		calc:     calc,
		bus:      bus,
		interval: interval,
		logger:   logger,
	}
}

// Start runs the refresh loop until the context is cancelled.
func (r *DeviceStatusRefresher) Start(ctx context.Context) {
	r.logger.Info().Dur("interval", r.interval).Msg("Device status refresher started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	if err := r.RefreshAll(ctx); err != nil {
		r.logger.Error().Err(err).Msg("Initial device status refresh failed")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.RefreshAll(ctx); err != nil {
				r.logger.Error().Err(err).Msg("Device status refresh failed")
			}
		}
	}
}

// RefreshAll re-derives the status of every device from today's schedule.
func (r *DeviceStatusRefresher) RefreshAll(ctx context.Context) error {
	today := r.calc.DateOf(time.Now())

	devices, err := r.store.ListDevices(ctx)
	if err != nil {
		return err
	}
	rentals, err := r.store.ListRentalsInRange(ctx, today, today)
	if err != nil {
		return err
	}

	byDevice := make(map[int64][]models.Rental)
	for _, rental := range rentals {
		byDevice[rental.DeviceID] = append(byDevice[rental.DeviceID], rental)
	}

	for _, device := range devices {
		if device.Status == models.DeviceStatusOffline {
			continue
		}

		want := statusForToday(r.calc, byDevice[device.ID], today)
		if want == device.Status {
			continue
		}

		if err := r.store.UpdateDeviceStatus(ctx, device.ID, want); err != nil {
			r.logger.Error().Err(err).Int64("device_id", device.ID).Msg("Failed to update device status")
			continue
		}
		r.bus.Publish(events.Event{
			Type:     events.TypeDeviceStatus,
			DeviceID: device.ID,
			Detail:   string(want),
		})
		r.logger.Info().
			Int64("device_id", device.ID).
			Str("from", string(device.Status)).
			Str("to", string(want)).
			Msg("Device status refreshed")
	}
	return nil
}

// statusForToday maps today's timeline cell onto a device status.
func statusForToday(calc schedule.Calculator, rentals []models.Rental, today time.Time) models.DeviceStatus {
	cells := calc.MaterializeTimeline(rentals, today, today)
	if len(cells) == 0 {
		return models.DeviceStatusIdle
	}
	switch cells[0].Kind {
	case schedule.CellLogisticsOut:
		return models.DeviceStatusPendingShip
	case schedule.CellRental:
		return models.DeviceStatusRenting
	case schedule.CellLogisticsIn:
		return models.DeviceStatusPendingReturn
	default:
		return models.DeviceStatusIdle
	}
}
