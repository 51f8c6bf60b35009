package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"rentboard/internal/models"
)

const dateFormat = "2006-01-02"

// Store is the read surface the exporter needs.
type Store interface {
	ListRentals(ctx context.Context) ([]models.Rental, error)
	ListDevices(ctx context.Context) ([]models.Device, error)
	RentalStatistics(ctx context.Context) (map[models.RentalStatus]int, error)
}

// Exporter renders the rental ledger and summary statistics into a workbook.
type Exporter struct {
	store     Store
	newWriter func() ExcelWriter
}

func NewExporter(store Store) *Exporter {
	return &Exporter{store: store, newWriter: NewExcelizeWriter}
}

// WriteWorkbook streams the full export to w.
func (e *Exporter) WriteWorkbook(ctx context.Context, w io.Writer) error {
	rentals, err := e.store.ListRentals(ctx)
	if err != nil {
		return fmt.Errorf("list rentals: %w", err)
	}
	devices, err := e.store.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	stats, err := e.store.RentalStatistics(ctx)
	if err != nil {
		return fmt.Errorf("rental statistics: %w", err)
	}

	deviceNames := make(map[int64]string, len(devices))
	for _, d := range devices {
		deviceNames[d.ID] = d.Name
	}

	writer := e.newWriter()
	defer writer.Close()

	if err := e.writeRentalsSheet(writer, rentals, deviceNames); err != nil {
		return err
	}
	if err := e.writeStatisticsSheet(writer, stats); err != nil {
		return err
	}

	if err := writer.Save(w); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func (e *Exporter) writeRentalsSheet(writer ExcelWriter, rentals []models.Rental, deviceNames map[int64]string) error {
	if err := writer.AddSheet("Rentals"); err != nil {
		return err
	}
	header := []string{
		"ID", "Order Ref", "Device", "Customer", "Phone", "Destination",
		"Start", "End", "Ship Out", "Ship In", "Logistics Days", "Status",
		"Tracking Out", "Tracking In",
	}
	if err := writer.WriteHeader(header); err != nil {
		return err
	}

	for _, r := range rentals {
		row := []interface{}{
			r.ID,
			r.OrderRef,
			deviceNames[r.DeviceID],
			r.CustomerName,
			r.CustomerPhone,
			r.Destination,
			r.StartDate.Format(dateFormat),
			r.EndDate.Format(dateFormat),
			formatTimePtr(r.ShipOutTime),
			formatTimePtr(r.ShipInTime),
			r.LogisticsDays,
			string(r.Status),
			r.ShipOutTrackingNo,
			r.ShipInTrackingNo,
		}
		if err := writer.WriteRow(row); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) writeStatisticsSheet(writer ExcelWriter, stats map[models.RentalStatus]int) error {
	if err := writer.AddSheet("Statistics"); err != nil {
		return err
	}
	if err := writer.WriteHeader([]string{"Status", "Count"}); err != nil {
		return err
	}

	// Fixed order keeps exports diffable.
	order := []models.RentalStatus{
		models.RentalStatusNotShipped,
		models.RentalStatusScheduledForShipping,
		models.RentalStatusShipped,
		models.RentalStatusReturned,
		models.RentalStatusCompleted,
		models.RentalStatusCancelled,
	}
	total := 0
	for _, status := range order {
		n := stats[status]
		total += n
		if err := writer.WriteRow([]interface{}{string(status), n}); err != nil {
			return err
		}
	}
	return writer.WriteRow([]interface{}{"total", total})
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}
