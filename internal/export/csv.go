package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"smartscan/internal/attendance"
)

// CSVExporter writes the attendance table the way the faculty download expects it:
// a header row, then one line per record with every column and no filtering.
type CSVExporter struct {
	loc *time.Location
}

// NewCSVExporter renders timestamps in loc; nil means UTC.
func NewCSVExporter(loc *time.Location) *CSVExporter {
	return &CSVExporter{loc: loc}
}

// Write streams recs to w in the order given.
func (e *CSVExporter) Write(w io.Writer, recs []attendance.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(RecordHeaders); err != nil {
		return fmt.Errorf("write csv headers: %w", err)
	}
	for _, r := range recs {
		if err := cw.Write(recordRow(r, e.loc)); err != nil {
			return fmt.Errorf("write attendance record %d: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
