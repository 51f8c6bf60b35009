package export

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentboard/internal/models"
)

type fakeStore struct {
	rentals []models.Rental
	devices []models.Device
	stats   map[models.RentalStatus]int
}

func (f *fakeStore) ListRentals(context.Context) ([]models.Rental, error) { return f.rentals, nil }
func (f *fakeStore) ListDevices(context.Context) ([]models.Device, error) { return f.devices, nil }
func (f *fakeStore) RentalStatistics(context.Context) (map[models.RentalStatus]int, error) {
	return f.stats, nil
}

// recordingWriter captures rows instead of producing a workbook.
type recordingWriter struct {
	sheets  []string
	headers map[string][]string
	rows    map[string][][]interface{}
	current string
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{
		headers: make(map[string][]string),
		rows:    make(map[string][][]interface{}),
	}
}

func (w *recordingWriter) AddSheet(name string) error {
	w.sheets = append(w.sheets, name)
	w.current = name
	return nil
}

func (w *recordingWriter) WriteHeader(columns []string) error {
	w.headers[w.current] = columns
	return nil
}

func (w *recordingWriter) WriteRow(row []interface{}) error {
	w.rows[w.current] = append(w.rows[w.current], row)
	return nil
}

func (w *recordingWriter) Save(io.Writer) error { return nil }
func (w *recordingWriter) Close() error         { return nil }

func TestExporterWritesSheets(t *testing.T) {
	shipOut := time.Date(2025, 6, 8, 9, 0, 0, 0, time.UTC)
	store := &fakeStore{
		rentals: []models.Rental{{
			ID: 1, DeviceID: 7, OrderRef: "ord-1",
			CustomerName: "张三", Destination: "北京",
			StartDate:     time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
			EndDate:       time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC),
			ShipOutTime:   &shipOut,
			LogisticsDays: 1,
			Status:        models.RentalStatusShipped,
		}},
		devices: []models.Device{{ID: 7, Name: "Camera A"}},
		stats: map[models.RentalStatus]int{
			models.RentalStatusShipped: 1,
		},
	}

	recorder := newRecordingWriter()
	exporter := &Exporter{store: store, newWriter: func() ExcelWriter { return recorder }}

	require.NoError(t, exporter.WriteWorkbook(context.Background(), io.Discard))
	assert.Equal(t, []string{"Rentals", "Statistics"}, recorder.sheets)

	require.Len(t, recorder.rows["Rentals"], 1)
	row := recorder.rows["Rentals"][0]
	assert.Equal(t, int64(1), row[0])
	assert.Equal(t, "Camera A", row[2], "device id resolves to its name")
	assert.Equal(t, "2025-06-10", row[6])
	assert.Equal(t, "2025-06-08 09:00", row[8])
	assert.Equal(t, "", row[9], "missing ship-in renders empty")

	// One row per status plus a total line.
	assert.Len(t, recorder.rows["Statistics"], 7)
	last := recorder.rows["Statistics"][6]
	assert.Equal(t, "total", last[0])
	assert.Equal(t, 1, last[1])
}

func TestExcelizeWriterProducesWorkbook(t *testing.T) {
	writer := NewExcelizeWriter()
	defer writer.Close()

	require.NoError(t, writer.AddSheet("Rentals"))
	require.NoError(t, writer.WriteHeader([]string{"ID", "Customer"}))
	require.NoError(t, writer.WriteRow([]interface{}{1, "张三"}))

	var buf bytes.Buffer
	require.NoError(t, writer.Save(&buf))
	assert.Greater(t, buf.Len(), 0)
}
