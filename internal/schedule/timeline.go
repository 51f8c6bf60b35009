package schedule

import (
	"time"

	"rentboard/internal/models"
)

// CellKind tags a single day of a device timeline.
type CellKind string

const (
	CellEmpty        CellKind = "empty"
	CellLogisticsOut CellKind = "logistics_out"
	CellRental       CellKind = "rental"
	CellLogisticsIn  CellKind = "logistics_in"
)

// DayCell is one day of a materialized device timeline. RentalID is zero for
// empty cells.
type DayCell struct {
	Date     time.Time `json:"date"`
	Kind     CellKind  `json:"kind"`
	RentalID int64     `json:"rental_id,omitempty"`
}

// MaterializeTimeline expands a device's rentals into a day-indexed occupancy
// sequence for the display range [from, to], distinguishing customer rental
// days from the shipping-buffer days around them. Cancelled rentals are
// skipped; rentals whose occupancy cannot be established are also skipped,
// since the timeline is a read-only rendering aid. The result is recomputed
// fresh on every call.
func (c Calculator) MaterializeTimeline(rentals []models.Rental, from, to time.Time) []DayCell {
	start := c.DateOf(from)
	end := c.DateOf(to)
	if end.Before(start) {
		return nil
	}

	cells := make([]DayCell, 0, int(end.Sub(start).Hours()/24)+1)
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		cells = append(cells, c.classifyDay(rentals, day))
	}
	return cells
}

func (c Calculator) classifyDay(rentals []models.Rental, day time.Time) DayCell {
	cell := DayCell{Date: day, Kind: CellEmpty}

	for _, r := range rentals {
		if r.IsCancelled() {
			continue
		}
		occ, err := c.RentalOccupancy(&r)
		if err != nil {
			continue
		}

		rentalStart := c.DateOf(r.StartDate)
		rentalEnd := c.DateOf(r.EndDate)
		shipOutDay := c.DateOf(occ.ShipOut)
		shipInDay := c.DateOf(occ.ShipIn)

		switch {
		case !day.Before(rentalStart) && !day.After(rentalEnd):
			return DayCell{Date: day, Kind: CellRental, RentalID: r.ID}
		case !day.Before(shipOutDay) && day.Before(rentalStart):
			cell = DayCell{Date: day, Kind: CellLogisticsOut, RentalID: r.ID}
		case day.After(rentalEnd) && !day.After(shipInDay):
			cell = DayCell{Date: day, Kind: CellLogisticsIn, RentalID: r.ID}
		}
	}
	return cell
}
