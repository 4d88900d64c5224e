package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2024-01-01 is a Monday.
func monday(h, m int) time.Time {
	return time.Date(2024, 1, 1, h, m, 0, 0, time.UTC)
}

func TestCurrentMondayMorning(t *testing.T) {
	r := NewResolver(Default(), time.UTC)

	p := r.Current(monday(9, 30))
	assert.Equal(t, KindClass, p.Kind)
	assert.Equal(t, "Monday", p.Weekday)
	assert.Equal(t, 0, p.Index)
	assert.Equal(t, "OS", p.Label)
	assert.True(t, p.Attendable())
}

func TestCurrentFirstSlotEveryWeekday(t *testing.T) {
	table := Default()
	r := NewResolver(table, time.UTC)
	for offset, day := range table.Days() {
		for _, minute := range []int{0, 1, 30, 59} {
			at := monday(9, minute).AddDate(0, 0, offset)
			p := r.Current(at)
			require.Equal(t, day.Name, p.Weekday)
			assert.Equal(t, day.Periods[0], p.Label, "%s 9:%02d", day.Name, minute)
		}
	}
}

func TestCurrentBoundaries(t *testing.T) {
	r := NewResolver(Default(), time.UTC)

	cases := []struct {
		h, m  int
		kind  Kind
		index int
		label string
	}{
		{8, 59, KindNoClass, -1, NoClass},
		{9, 0, KindClass, 0, "OS"},
		{9, 59, KindClass, 0, "OS"},
		{10, 0, KindClass, 1, "ALC"},
		{10, 59, KindClass, 1, "ALC"},
		{11, 0, KindBreak, -1, Break},
		{11, 9, KindBreak, -1, Break},
		{11, 10, KindClass, 3, "CN"},
		{12, 9, KindClass, 3, "CN"},
		{12, 10, KindClass, 4, "MEFA"},
		{13, 9, KindClass, 4, "MEFA"},
		{13, 10, KindBreak, -1, Break},
		{13, 39, KindBreak, -1, Break},
		{13, 40, KindClass, 6, "DBMS LAB"},
		{14, 0, KindClass, 6, "DBMS LAB"},
		{14, 39, KindClass, 6, "DBMS LAB"},
		{14, 40, KindClass, 7, "DBMS LAB"},
		{15, 0, KindClass, 7, "DBMS LAB"},
		{15, 59, KindClass, 7, "DBMS LAB"},
		{16, 0, KindNoClass, -1, NoClass},
		{23, 59, KindNoClass, -1, NoClass},
		{0, 0, KindNoClass, -1, NoClass},
	}
	for _, tc := range cases {
		p := r.Current(monday(tc.h, tc.m))
		assert.Equal(t, tc.kind, p.Kind, "%02d:%02d kind", tc.h, tc.m)
		assert.Equal(t, tc.index, p.Index, "%02d:%02d index", tc.h, tc.m)
		assert.Equal(t, tc.label, p.Label, "%02d:%02d label", tc.h, tc.m)
	}
}

func TestCurrentSlotSixAndSevenDistinguished(t *testing.T) {
	// Tuesday: index 6 SPORTS, index 7 CN.
	r := NewResolver(Default(), time.UTC)
	tuesday := monday(0, 0).AddDate(0, 0, 1)

	assert.Equal(t, "SPORTS", r.Current(tuesday.Add(13*time.Hour+40*time.Minute)).Label)
	assert.Equal(t, "SPORTS", r.Current(tuesday.Add(14*time.Hour)).Label)
	assert.Equal(t, "CN", r.Current(tuesday.Add(14*time.Hour+40*time.Minute)).Label)
	assert.Equal(t, "CN", r.Current(tuesday.Add(15*time.Hour)).Label)
	assert.Equal(t, NoClass, r.Current(tuesday.Add(16*time.Hour)).Label)
}

func TestCurrentUnknownWeekdayYieldsEmptyLabel(t *testing.T) {
	r := NewResolver(Default(), time.UTC)
	sunday := time.Date(2024, 1, 7, 9, 30, 0, 0, time.UTC)

	p := r.Current(sunday)
	assert.Equal(t, "Sunday", p.Weekday)
	assert.Equal(t, KindClass, p.Kind)
	assert.Equal(t, "", p.Label)
	assert.False(t, p.Attendable())

	assert.Equal(t, NoClass, r.Current(sunday.Add(10*time.Hour)).Label)
}

func TestCurrentUsesResolverLocation(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	r := NewResolver(Default(), ist)

	// 04:00 UTC is 09:30 IST on the same Monday.
	p := r.Current(time.Date(2024, 1, 1, 4, 0, 0, 0, time.UTC))
	assert.Equal(t, "OS", p.Label)
}

func TestKindMarshalText(t *testing.T) {
	b, err := KindNoClass.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "no_class", string(b))
}
