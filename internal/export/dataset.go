// Package export renders the attendance table as CSV, XLSX or PDF.
package export

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"smartscan/internal/attendance"
)

// TimestampLayout is how record timestamps appear in exports.
const TimestampLayout = "2006-01-02 15:04:05"

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// RecordHeaders are the attendance table columns in storage order.
var RecordHeaders = []string{"id", "roll_number", "email", "class_name", "timestamp", "host", "status"}

// FromRecords builds a dataset with every column of every record. Timestamps are shown in loc.
func FromRecords(recs []attendance.Record, loc *time.Location) Dataset {
	rows := make([]map[string]string, 0, len(recs))
	for _, r := range recs {
		cells := recordRow(r, loc)
		row := make(map[string]string, len(RecordHeaders))
		for i, h := range RecordHeaders {
			row[h] = cells[i]
		}
		rows = append(rows, row)
	}
	return Dataset{Headers: RecordHeaders, Rows: rows}
}

// recordRow lays out one record in RecordHeaders order.
func recordRow(r attendance.Record, loc *time.Location) []string {
	if loc == nil {
		loc = time.UTC
	}
	return []string{
		strconv.FormatInt(r.ID, 10),
		r.RollNumber,
		r.Email,
		r.ClassName,
		r.Timestamp.In(loc).Format(TimestampLayout),
		r.Host,
		string(r.Status),
	}
}

// Format selects an export rendering.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ParseFormat accepts csv, xlsx or pdf; empty means csv.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatXLSX, FormatPDF:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ContentType is the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/csv"
	}
}

// Filename is the download name for the export.
func (f Format) Filename(base string) string {
	return base + "." + string(f)
}

// Render produces the whole attendance table in format f.
func Render(f Format, recs []attendance.Record, loc *time.Location, title string) ([]byte, error) {
	switch f {
	case FormatCSV:
		var buf bytes.Buffer
		if err := NewCSVExporter(loc).Write(&buf, recs); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatXLSX:
		return NewXLSXExporter().Render(FromRecords(recs, loc), title)
	case FormatPDF:
		return NewPDFExporter().Render(FromRecords(recs, loc), title)
	default:
		return nil, fmt.Errorf("unsupported export format %q", f)
	}
}

// line flattens a dataset row in header order.
func line(headers []string, row map[string]string) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = row[h]
	}
	return out
}
