// Package schedule maps wall-clock time onto the fixed weekly timetable.
package schedule

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// PeriodsPerDay is the number of slots in every weekday row.
const PeriodsPerDay = 8

const (
	ShortBreak = "Short Break"
	LunchBreak = "Lunch Break"
	Break      = "Break"
	NoClass    = "No Class"
)

// Slots are the display labels of the eight daily slots.
var Slots = [PeriodsPerDay]string{
	"9:00 – 10:00", "10:00 – 11:00", "11:00 – 11:10", "11:10 – 12:10",
	"12:10 – 1:10", "1:10 – 1:40", "1:40 – 2:40", "2:40 – 3:40",
}

// Day is one weekday row of the timetable.
type Day struct {
	Name    string   `yaml:"day" json:"day"`
	Periods []string `yaml:"periods" json:"periods"`
}

// Timetable is an immutable weekday → periods lookup.
type Timetable struct {
	days  []Day
	index map[string]int
}

// SubjectCount is the number of weekly periods a subject occupies.
type SubjectCount struct {
	Subject string
	Total   int
}

// New validates days and builds a timetable. Rows are copied.
func New(days []Day) (*Timetable, error) {
	if len(days) == 0 {
		return nil, errors.New("timetable has no days")
	}
	t := &Timetable{days: make([]Day, 0, len(days)), index: make(map[string]int, len(days))}
	for _, d := range days {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			return nil, errors.New("timetable day without a name")
		}
		if _, dup := t.index[name]; dup {
			return nil, fmt.Errorf("timetable day %q listed twice", name)
		}
		if len(d.Periods) != PeriodsPerDay {
			return nil, fmt.Errorf("timetable day %q has %d periods, want %d", name, len(d.Periods), PeriodsPerDay)
		}
		periods := make([]string, PeriodsPerDay)
		for i, p := range d.Periods {
			periods[i] = strings.TrimSpace(p)
		}
		t.index[name] = len(t.days)
		t.days = append(t.days, Day{Name: name, Periods: periods})
	}
	return t, nil
}

// Default returns the built-in weekly timetable.
func Default() *Timetable {
	t, err := New([]Day{
		{Name: "Monday", Periods: []string{"OS", "ALC", ShortBreak, "CN", "MEFA", LunchBreak, "DBMS LAB", "DBMS LAB"}},
		{Name: "Tuesday", Periods: []string{"ALC", "TALENTIO", ShortBreak, "TALENTIO", "TALENTIO", LunchBreak, "SPORTS", "CN"}},
		{Name: "Wednesday", Periods: []string{"CN LAB", "CN LAB", ShortBreak, "DBMS", "ALC", LunchBreak, "OS LAB", "OS LAB"}},
		{Name: "Thursday", Periods: []string{"MEFA", "CN", ShortBreak, "ES", "OS", LunchBreak, "MENTORING", "DBMS"}},
		{Name: "Friday", Periods: []string{"DBMS", "OS", ShortBreak, "MEFA", "ES", LunchBreak, "TALENTIO", "TALENTIO"}},
		{Name: "Saturday", Periods: []string{"ALC", "DBMS", ShortBreak, "OS", "CN", LunchBreak, "LIBRARY", "MEFA"}},
	})
	if err != nil {
		panic(err)
	}
	return t
}

// Load reads a YAML timetable file, or returns Default when path is empty.
func Load(path string) (*Timetable, error) {
	if path == "" {
		return Default(), nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read timetable: %w", err)
	}
	return Parse(buf)
}

// Parse decodes a YAML document of the form `days: [{day: Monday, periods: [...]}]`.
func Parse(buf []byte) (*Timetable, error) {
	var doc struct {
		Days []Day `yaml:"days"`
	}
	if err := yaml.Unmarshal(buf, &doc); err != nil {
		return nil, fmt.Errorf("parse timetable: %w", err)
	}
	return New(doc.Days)
}

// Days returns a copy of the rows in declaration order.
func (t *Timetable) Days() []Day {
	out := make([]Day, len(t.days))
	for i, d := range t.days {
		out[i] = Day{Name: d.Name, Periods: append([]string(nil), d.Periods...)}
	}
	return out
}

// Periods returns the weekday's labels; an unknown weekday yields empty labels.
func (t *Timetable) Periods(weekday string) []string {
	i, ok := t.index[weekday]
	if !ok {
		return make([]string, PeriodsPerDay)
	}
	return append([]string(nil), t.days[i].Periods...)
}

// IsSentinel reports whether a label is excluded from attendance accounting.
func IsSentinel(label string) bool {
	switch label {
	case ShortBreak, LunchBreak, Break, NoClass:
		return true
	}
	return false
}

// SubjectCounts tallies weekly periods per subject in first-appearance order.
func (t *Timetable) SubjectCounts() []SubjectCount {
	var out []SubjectCount
	pos := make(map[string]int)
	for _, d := range t.days {
		for _, label := range d.Periods {
			if label == "" || IsSentinel(label) {
				continue
			}
			if i, ok := pos[label]; ok {
				out[i].Total++
				continue
			}
			pos[label] = len(out)
			out = append(out, SubjectCount{Subject: label, Total: 1})
		}
	}
	return out
}

// Classes lists the distinct labels offered for manual entry, sorted.
func (t *Timetable) Classes() []string {
	seen := make(map[string]struct{})
	for _, d := range t.days {
		for _, label := range d.Periods {
			if label == "" || strings.Contains(label, Break) {
				continue
			}
			seen[label] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for label := range seen {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// HasClass reports whether label is one of Classes.
func (t *Timetable) HasClass(label string) bool {
	if label == "" || strings.Contains(label, Break) {
		return false
	}
	for _, d := range t.days {
		for _, p := range d.Periods {
			if p == label {
				return true
			}
		}
	}
	return false
}
