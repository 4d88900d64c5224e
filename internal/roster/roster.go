// Package roster loads the class list students identify themselves against.
package roster

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	ColumnRollNumber = "roll_number"
	ColumnEmail      = "email"
)

// Student is one roster row.
type Student struct {
	RollNumber string `json:"roll_number"`
	Email      string `json:"email"`
}

// Roster is the immutable class list, keyed by roll number.
type Roster struct {
	students []Student
	byRoll   map[string]int
}

// Load reads a .csv or .xlsx class list from path.
func Load(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	var rows [][]string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err = readXLSX(data)
	default:
		rows, err = readCSV(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", filepath.Base(path), err)
	}
	return FromRows(rows)
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return cr.ReadAll()
}

func readXLSX(data []byte) ([][]string, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	sheet := file.GetSheetName(0)
	if sheet == "" {
		return nil, errors.New("no worksheet found")
	}
	return file.GetRows(sheet)
}

// NormalizeHeader lowercases, trims and underscores a column name; email_id becomes email.
func NormalizeHeader(header string) string {
	h := strings.TrimPrefix(header, "\ufeff")
	h = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
	if h == "email_id" {
		return ColumnEmail
	}
	return h
}

// FromRows builds a roster from a header row followed by data rows.
// Rows missing a roll number or an email are skipped.
func FromRows(rows [][]string) (*Roster, error) {
	if len(rows) == 0 {
		return nil, errors.New("roster is empty")
	}
	rollIdx, emailIdx := -1, -1
	for i, h := range rows[0] {
		switch NormalizeHeader(h) {
		case ColumnRollNumber:
			if rollIdx < 0 {
				rollIdx = i
			}
		case ColumnEmail:
			if emailIdx < 0 {
				emailIdx = i
			}
		}
	}
	if rollIdx < 0 {
		return nil, fmt.Errorf("roster missing %q column", ColumnRollNumber)
	}
	if emailIdx < 0 {
		return nil, fmt.Errorf("roster missing %q column", ColumnEmail)
	}

	r := &Roster{byRoll: make(map[string]int)}
	for _, row := range rows[1:] {
		roll, email := cell(row, rollIdx), cell(row, emailIdx)
		// email is the identity for duplicates and percentages
		if roll == "" || email == "" {
			continue
		}
		if _, seen := r.byRoll[roll]; seen {
			continue
		}
		r.byRoll[roll] = len(r.students)
		r.students = append(r.students, Student{RollNumber: roll, Email: email})
	}
	return r, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// Lookup finds a student by roll number. Repeated roll numbers resolve to the first row.
func (r *Roster) Lookup(roll string) (Student, bool) {
	i, ok := r.byRoll[strings.TrimSpace(roll)]
	if !ok {
		return Student{}, false
	}
	return r.students[i], true
}

// RollNumbers lists distinct roll numbers in file order.
func (r *Roster) RollNumbers() []string {
	out := make([]string, len(r.students))
	for i, s := range r.students {
		out[i] = s.RollNumber
	}
	return out
}

// Len is the number of distinct students.
func (r *Roster) Len() int { return len(r.students) }
