package schedule

import "time"

// Kind classifies a resolved period.
type Kind int

const (
	KindClass Kind = iota
	KindBreak
	KindNoClass
)

func (k Kind) String() string {
	switch k {
	case KindClass:
		return "class"
	case KindBreak:
		return "break"
	default:
		return "no_class"
	}
}

// MarshalText renders the kind as its lowercase name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Period is the outcome of resolving a point in time.
type Period struct {
	Kind    Kind   `json:"kind"`
	Weekday string `json:"weekday"`
	// Index into the weekday's slots; -1 for sentinels.
	Index int    `json:"index"`
	Label string `json:"label"`
}

// Attendable reports whether attendance can be marked in this period.
func (p Period) Attendable() bool {
	return p.Kind == KindClass && p.Label != ""
}

type rule struct {
	from, to int // minutes since midnight, half-open
	index    int
	kind     Kind
}

func hm(h, m int) int { return h*60 + m }

// Evaluated in order; the first match wins.
var rules = []rule{
	{from: hm(9, 0), to: hm(10, 0), index: 0, kind: KindClass},
	{from: hm(10, 0), to: hm(11, 0), index: 1, kind: KindClass},
	{from: hm(11, 0), to: hm(11, 10), index: -1, kind: KindBreak},
	{from: hm(11, 10), to: hm(12, 10), index: 3, kind: KindClass},
	{from: hm(12, 10), to: hm(13, 10), index: 4, kind: KindClass},
	{from: hm(13, 10), to: hm(13, 40), index: -1, kind: KindBreak},
	{from: hm(13, 40), to: hm(14, 40), index: 6, kind: KindClass},
	{from: hm(14, 40), to: hm(16, 0), index: 7, kind: KindClass},
}

// Resolver answers which period is running at a given instant.
type Resolver struct {
	table *Timetable
	loc   *time.Location
}

// NewResolver binds a timetable to the campus time zone. A nil location means time.Local.
func NewResolver(table *Timetable, loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.Local
	}
	return &Resolver{table: table, loc: loc}
}

// Timetable exposes the injected table.
func (r *Resolver) Timetable() *Timetable { return r.table }

// Current resolves now to a class label, "Break" or "No Class".
func (r *Resolver) Current(now time.Time) Period {
	local := now.In(r.loc)
	weekday := local.Weekday().String()
	minute := hm(local.Hour(), local.Minute())

	for _, rl := range rules {
		if minute < rl.from || minute >= rl.to {
			continue
		}
		if rl.kind == KindBreak {
			return Period{Kind: KindBreak, Weekday: weekday, Index: -1, Label: Break}
		}
		return Period{Kind: KindClass, Weekday: weekday, Index: rl.index, Label: r.table.Periods(weekday)[rl.index]}
	}
	return Period{Kind: KindNoClass, Weekday: weekday, Index: -1, Label: NoClass}
}
