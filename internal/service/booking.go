package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"rentboard/internal/events"
	"rentboard/internal/metrics"
	"rentboard/internal/models"
	"rentboard/internal/schedule"
)

// Store is the persistence surface the booking service needs. *database.DB
// satisfies it.
type Store interface {
	schedule.RentalSource
	schedule.DeviceSource
	schedule.CustomerRentalSource

	GetDevice(ctx context.Context, id int64) (*models.Device, error)
	ListDevices(ctx context.Context) ([]models.Device, error)

	GetRental(ctx context.Context, id int64) (*models.Rental, error)
	ListRentals(ctx context.Context) ([]models.Rental, error)
	ListRentalChildren(ctx context.Context, parentID int64) ([]models.Rental, error)
	ListRentalsInRange(ctx context.Context, from, to time.Time) ([]models.Rental, error)

	CreateRentalWithAccessories(ctx context.Context, main *models.Rental, accessoryDeviceIDs []int64) (int64, error)
	UpdateRentalStatus(ctx context.Context, id int64, status models.RentalStatus) error
	CancelRental(ctx context.Context, id int64) error
	ExtendRental(ctx context.Context, id int64, newEndDate time.Time) error
	SetTrackingNumbers(ctx context.Context, id int64, outbound, inbound string) error
}

// BookingRequest is a request to book a device of a model for a date range.
// AccessoryModels lists accessory models to bundle into the same shipment,
// each resolved to a free accessory device.
type BookingRequest struct {
	Model           string    `json:"model"`
	DeviceID        int64     `json:"device_id,omitempty"` // explicit device, skips the pool search
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
	LogisticsDays   int       `json:"logistics_days"`
	CustomerName    string    `json:"customer_name"`
	CustomerPhone   string    `json:"customer_phone,omitempty"`
	Destination     string    `json:"destination,omitempty"`
	AccessoryModels []string  `json:"accessory_models,omitempty"`
}

// BookingResult is the outcome of a successful booking: the persisted main
// rental plus the advisory duplicate report for the operator.
type BookingResult struct {
	Rental     *models.Rental           `json:"rental"`
	Duplicates schedule.DuplicateReport `json:"duplicate_report"`
}

// BookingService drives the booking workflows over the scheduling engine and
// the store.
type BookingService struct {
	store      Store
	calc       schedule.Calculator
	detector   *schedule.Detector
	finder     *schedule.Finder
	duplicates *schedule.DuplicateDetector
	bus        *events.EventBus
	logger     *zerolog.Logger
}

func NewBookingService(store Store, calc schedule.Calculator, bus *events.EventBus, logger *zerolog.Logger) *BookingService {
	detector := schedule.NewDetector(store, calc)
	return &BookingService{
		store:      store,
		calc:       calc,
		detector:   detector,
		finder:     schedule.NewFinder(store, detector, calc),
		duplicates: schedule.NewDuplicateDetector(store, calc, logger),
		bus:        bus,
		logger:     logger,
	}
}

// Calculator exposes the occupancy calculator shared with the store.
func (s *BookingService) Calculator() schedule.Calculator { return s.calc }

// CheckConflict evaluates a candidate window against a device's existing
// bookings and returns the conflicting rentals.
func (s *BookingService) CheckConflict(ctx context.Context, deviceID int64, startDate, endDate time.Time, logisticsDays int, excludeRentalID int64) ([]models.Rental, error) {
	candidate, err := s.calc.ComputeOccupancy(startDate, endDate, logisticsDays)
	if err != nil {
		return nil, err
	}
	conflicts, err := s.detector.Conflicts(ctx, deviceID, candidate, excludeRentalID)
	if err != nil {
		metrics.IncConflictCheck("error")
		return nil, err
	}
	if len(conflicts) > 0 {
		metrics.IncConflictCheck("conflict")
	} else {
		metrics.IncConflictCheck("free")
	}
	return conflicts, nil
}

// CheckConflictBatch evaluates a candidate window against many devices at
// once.
func (s *BookingService) CheckConflictBatch(ctx context.Context, deviceIDs []int64, startDate, endDate time.Time, logisticsDays int, excludeRentalID int64) (map[int64]bool, error) {
	candidate, err := s.calc.ComputeOccupancy(startDate, endDate, logisticsDays)
	if err != nil {
		return nil, err
	}
	results, err := s.detector.HasConflictBatch(ctx, deviceIDs, candidate, excludeRentalID)
	if err != nil {
		metrics.IncConflictCheck("error")
		return nil, err
	}
	return results, nil
}

// FindSlot finds the first free device of a model for the window.
func (s *BookingService) FindSlot(ctx context.Context, model string, isAccessory bool, startDate, endDate time.Time, logisticsDays int) (schedule.Slot, error) {
	slot, err := s.finder.FindSlot(ctx, schedule.PoolFilter{Model: model, IsAccessory: isAccessory}, startDate, endDate, logisticsDays)
	switch {
	case err == nil:
		metrics.IncSlotSearch("found")
	case errors.Is(err, schedule.ErrNoFreeDevice):
		metrics.IncSlotSearch("exhausted")
	default:
		metrics.IncSlotSearch("error")
	}
	return slot, err
}

// CheckDuplicates runs the advisory duplicate check for a prospective booking.
func (s *BookingService) CheckDuplicates(ctx context.Context, customerName, destination string, startDate, endDate time.Time, excludeRentalID int64) schedule.DuplicateReport {
	report := s.duplicates.FindDuplicates(ctx, customerName, destination, startDate, endDate, excludeRentalID)
	if report.HasDuplicate {
		metrics.IncDuplicateFlag()
	}
	return report
}

// FindAndBook resolves every device of the request (the main device by pool
// search or explicit id, plus one free device per accessory model) and books
// them atomically. The duplicate report rides along as advice and never
// blocks the booking.
func (s *BookingService) FindAndBook(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	var mainDevice models.Device
	if req.DeviceID != 0 {
		device, err := s.store.GetDevice(ctx, req.DeviceID)
		if err != nil {
			return nil, err
		}
		if !device.Bookable() {
			return nil, fmt.Errorf("device %d is offline: %w", req.DeviceID, schedule.ErrInvalidRequest)
		}
		mainDevice = *device
	} else {
		slot, err := s.FindSlot(ctx, req.Model, false, req.StartDate, req.EndDate, req.LogisticsDays)
		if err != nil {
			return nil, err
		}
		mainDevice = slot.Device
	}

	accessoryIDs := make([]int64, 0, len(req.AccessoryModels))
	for _, model := range req.AccessoryModels {
		slot, err := s.FindSlot(ctx, model, true, req.StartDate, req.EndDate, req.LogisticsDays)
		if err != nil {
			return nil, fmt.Errorf("accessory %s: %w", model, err)
		}
		accessoryIDs = append(accessoryIDs, slot.Device.ID)
	}

	rental := &models.Rental{
		DeviceID:      mainDevice.ID,
		StartDate:     s.calc.DateOf(req.StartDate),
		EndDate:       s.calc.DateOf(req.EndDate),
		LogisticsDays: req.LogisticsDays,
		Status:        models.RentalStatusNotShipped,
		CustomerName:  strings.TrimSpace(req.CustomerName),
		CustomerPhone: req.CustomerPhone,
		Destination:   strings.TrimSpace(req.Destination),
		OrderRef:      uuid.NewString(),
	}

	id, err := s.store.CreateRentalWithAccessories(ctx, rental, accessoryIDs)
	if err != nil {
		return nil, err
	}

	metrics.IncRentalCreated()
	s.bus.Publish(events.Event{
		Type:     events.TypeRentalCreated,
		RentalID: id,
		DeviceID: mainDevice.ID,
	})
	s.logger.Info().
		Int64("rental_id", id).
		Int64("device_id", mainDevice.ID).
		Str("customer", rental.CustomerName).
		Str("order_ref", rental.OrderRef).
		Msg("Rental created")

	report := s.CheckDuplicates(ctx, rental.CustomerName, rental.Destination, rental.StartDate, rental.EndDate, id)
	return &BookingResult{Rental: rental, Duplicates: report}, nil
}

// UpdateStatus moves a rental through its shipping lifecycle.
func (s *BookingService) UpdateStatus(ctx context.Context, rentalID int64, status models.RentalStatus) error {
	if err := s.store.UpdateRentalStatus(ctx, rentalID, status); err != nil {
		return err
	}
	s.bus.Publish(events.Event{
		Type:     events.TypeRentalStatus,
		RentalID: rentalID,
		Detail:   string(status),
	})
	return nil
}

// Cancel soft-retires a rental; its window becomes bookable immediately.
func (s *BookingService) Cancel(ctx context.Context, rentalID int64) error {
	if err := s.store.CancelRental(ctx, rentalID); err != nil {
		return err
	}
	metrics.IncRentalCancelled()
	s.bus.Publish(events.Event{
		Type:     events.TypeRentalCancelled,
		RentalID: rentalID,
	})
	return nil
}

// Extend pushes a rental's end date out after re-checking for conflicts.
func (s *BookingService) Extend(ctx context.Context, rentalID int64, newEndDate time.Time) error {
	if err := s.store.ExtendRental(ctx, rentalID, s.calc.DateOf(newEndDate)); err != nil {
		return err
	}
	s.bus.Publish(events.Event{
		Type:     events.TypeRentalExtended,
		RentalID: rentalID,
		Detail:   newEndDate.Format("2006-01-02"),
	})
	return nil
}

// SetTracking records courier tracking numbers on a rental.
func (s *BookingService) SetTracking(ctx context.Context, rentalID int64, outbound, inbound string) error {
	return s.store.SetTrackingNumbers(ctx, rentalID, outbound, inbound)
}

// GetRental returns a rental with its accessory children attached.
func (s *BookingService) GetRental(ctx context.Context, id int64) (*models.Rental, []models.Rental, error) {
	rental, err := s.store.GetRental(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	children, err := s.store.ListRentalChildren(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return rental, children, nil
}

// DeviceTimeline is one device's row of the schedule board.
type DeviceTimeline struct {
	Device models.Device      `json:"device"`
	Cells  []schedule.DayCell `json:"cells"`
}

// Timeline materializes the schedule board for every device over [from, to].
func (s *BookingService) Timeline(ctx context.Context, from, to time.Time) ([]DeviceTimeline, error) {
	devices, err := s.store.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list devices: %v", schedule.ErrStoreUnavailable, err)
	}
	rentals, err := s.store.ListRentalsInRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: list rentals: %v", schedule.ErrStoreUnavailable, err)
	}

	byDevice := make(map[int64][]models.Rental)
	for _, r := range rentals {
		byDevice[r.DeviceID] = append(byDevice[r.DeviceID], r)
	}

	timelines := make([]DeviceTimeline, 0, len(devices))
	for _, device := range devices {
		timelines = append(timelines, DeviceTimeline{
			Device: device,
			Cells:  s.calc.MaterializeTimeline(byDevice[device.ID], from, to),
		})
	}
	return timelines, nil
}

func validateRequest(req BookingRequest) error {
	if strings.TrimSpace(req.CustomerName) == "" {
		return fmt.Errorf("customer name is required: %w", schedule.ErrInvalidRequest)
	}
	if req.Model == "" && req.DeviceID == 0 {
		return fmt.Errorf("model or device id is required: %w", schedule.ErrInvalidRequest)
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		return fmt.Errorf("start and end dates are required: %w", schedule.ErrInvalidRequest)
	}
	return nil
}
