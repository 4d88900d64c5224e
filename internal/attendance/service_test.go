package attendance

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartscan/internal/apperr"
	"smartscan/internal/roster"
	"smartscan/internal/schedule"
)

type memStore struct {
	mu      sync.Mutex
	records []Record
	nextID  int64
	failErr error
}

func (m *memStore) Insert(_ context.Context, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return Record{}, apperr.Storage(m.failErr, "insert attendance")
	}
	m.nextID++
	rec.ID = m.nextID
	rec.Timestamp = rec.Timestamp.UTC()
	m.records = append(m.records, rec)
	return rec, nil
}

func (m *memStore) UpdateStatus(_ context.Context, id int64, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].ID == id {
			m.records[i].Status = status
			return nil
		}
	}
	return apperr.Wrap(nil, apperr.ErrNotFound, "attendance record not found")
}

func (m *memStore) filter(keep func(Record) bool) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, r := range m.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

func (m *memStore) ListByEmailSince(_ context.Context, email string, since time.Time) ([]Record, error) {
	return m.filter(func(r Record) bool { return r.Email == email && r.Timestamp.After(since) }), nil
}

func (m *memStore) ListByEmail(_ context.Context, email string) ([]Record, error) {
	return m.filter(func(r Record) bool { return r.Email == email }), nil
}

func (m *memStore) ListAll(context.Context) ([]Record, error) {
	return m.filter(func(Record) bool { return true }), nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

// 2024-01-01 is a Monday.
func monday(h, m int) time.Time { return time.Date(2024, 1, 1, h, m, 0, 0, time.UTC) }

func newTestService(t *testing.T, at time.Time) (*Service, *memStore, *clock) {
	t.Helper()
	students, err := roster.FromRows([][]string{
		{"Roll Number", "Email ID"},
		{"21A1", "a@x.edu"},
		{"21A2", "b@x.edu"},
	})
	require.NoError(t, err)

	st := &memStore{}
	clk := &clock{t: at}
	svc := NewService(st, schedule.NewResolver(schedule.Default(), time.UTC), students, WithClock(clk.now))
	return svc, st, clk
}

func TestSubmitRecordsPresent(t *testing.T) {
	svc, st, _ := newTestService(t, monday(9, 30))

	res, err := svc.Submit(context.Background(), Submission{RollNumber: "21A1", Host: "10.0.0.5"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRecorded, res.Outcome)
	assert.Equal(t, "OS", res.Period.Label)
	require.NotNil(t, res.Record)
	assert.Equal(t, StatusPresent, res.Record.Status)
	assert.Equal(t, "a@x.edu", res.Record.Email)
	assert.Equal(t, "10.0.0.5", res.Record.Host)
	assert.Len(t, st.records, 1)
}

func TestSubmitTwiceMarksDuplicate(t *testing.T) {
	svc, st, clk := newTestService(t, monday(9, 30))
	ctx := context.Background()

	first, err := svc.Submit(ctx, Submission{RollNumber: "21A1"})
	require.NoError(t, err)
	clk.advance(5 * time.Minute)
	second, err := svc.Submit(ctx, Submission{RollNumber: "21A1"})
	require.NoError(t, err)

	assert.Equal(t, OutcomeRecorded, first.Outcome)
	assert.Equal(t, OutcomeDuplicate, second.Outcome)
	require.Len(t, st.records, 2)
	assert.Equal(t, StatusPresent, st.records[0].Status)
	assert.Equal(t, StatusDuplicate, st.records[1].Status)
}

func TestSubmitAfterWindowIsPresentAgain(t *testing.T) {
	svc, st, clk := newTestService(t, monday(9, 0))
	ctx := context.Background()

	_, err := svc.Submit(ctx, Submission{RollNumber: "21A1"})
	require.NoError(t, err)
	clk.advance(time.Hour)
	res, err := svc.Submit(ctx, Submission{RollNumber: "21A1"})
	require.NoError(t, err)

	assert.Equal(t, OutcomeRecorded, res.Outcome)
	assert.Equal(t, "ALC", res.Period.Label)
	assert.Equal(t, StatusPresent, st.records[1].Status)
}

func TestSubmitWindowIsPerEmail(t *testing.T) {
	svc, _, _ := newTestService(t, monday(9, 30))
	ctx := context.Background()

	_, err := svc.Submit(ctx, Submission{RollNumber: "21A1"})
	require.NoError(t, err)
	res, err := svc.Submit(ctx, Submission{RollNumber: "21A2"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRecorded, res.Outcome)
}

func TestSubmitOutsideClassTimeWritesNothing(t *testing.T) {
	cases := map[string]time.Time{
		"short break":  monday(11, 5),
		"lunch break":  monday(13, 20),
		"after hours":  monday(16, 0),
		"before hours": monday(8, 59),
		"sunday":       time.Date(2024, 1, 7, 9, 30, 0, 0, time.UTC),
	}
	for name, at := range cases {
		t.Run(name, func(t *testing.T) {
			svc, st, _ := newTestService(t, at)
			res, err := svc.Submit(context.Background(), Submission{RollNumber: "21A1"})
			require.NoError(t, err)
			assert.Equal(t, OutcomeNotRequired, res.Outcome)
			assert.Nil(t, res.Record)
			assert.Empty(t, st.records)
		})
	}
}

func TestSubmitUnknownRoll(t *testing.T) {
	svc, st, _ := newTestService(t, monday(9, 30))
	_, err := svc.Submit(context.Background(), Submission{RollNumber: "99Z9"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Empty(t, st.records)
}

func TestSubmitPropagatesStorageError(t *testing.T) {
	svc, st, _ := newTestService(t, monday(9, 30))
	st.failErr = errors.New("disk full")

	_, err := svc.Submit(context.Background(), Submission{RollNumber: "21A1"})
	assert.ErrorIs(t, err, apperr.ErrStorage)
}

func TestSubmitConcurrentSameStudentRecordsOnePresent(t *testing.T) {
	svc, st, _ := newTestService(t, monday(9, 30))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Submit(context.Background(), Submission{RollNumber: "21A1"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	present := 0
	for _, r := range st.records {
		if r.Status == StatusPresent {
			present++
		}
	}
	assert.Len(t, st.records, 10)
	assert.Equal(t, 1, present)
}

func TestIsDuplicateWindowBoundary(t *testing.T) {
	svc, _, _ := newTestService(t, monday(9, 30))
	ctx := context.Background()
	_, err := svc.Submit(ctx, Submission{RollNumber: "21A1"})
	require.NoError(t, err)

	dup, err := svc.IsDuplicate(ctx, "a@x.edu", monday(10, 29))
	require.NoError(t, err)
	assert.True(t, dup)

	dup, err = svc.IsDuplicate(ctx, "a@x.edu", monday(10, 30))
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestWithDuplicateWindow(t *testing.T) {
	svc, _, _ := newTestService(t, monday(9, 30))
	WithDuplicateWindow(10 * time.Minute)(svc)
	ctx := context.Background()
	_, err := svc.Submit(ctx, Submission{RollNumber: "21A1"})
	require.NoError(t, err)

	dup, err := svc.IsDuplicate(ctx, "a@x.edu", monday(9, 45))
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestPercentagesWithNoRecords(t *testing.T) {
	svc, _, _ := newTestService(t, monday(9, 30))

	rows, err := svc.Percentages(context.Background(), "a@x.edu")
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	for _, r := range rows {
		assert.Zero(t, r.Attended, r.Subject)
		assert.Equal(t, "0.0%", r.Display, r.Subject)
	}
	assert.Equal(t, "OS", rows[0].Subject)
	assert.Equal(t, 4, rows[0].Total)
}

func TestPercentagesCountsOnlyPresent(t *testing.T) {
	svc, st, _ := newTestService(t, monday(9, 30))
	ctx := context.Background()
	for _, s := range []Status{StatusPresent, StatusPresent, StatusDuplicate, StatusManual} {
		_, err := st.Insert(ctx, Record{Email: "a@x.edu", ClassName: "OS", Timestamp: monday(9, 30), Status: s})
		require.NoError(t, err)
	}
	_, err := st.Insert(ctx, Record{Email: "a@x.edu", ClassName: "MENTORING", Timestamp: monday(9, 30), Status: StatusPresent})
	require.NoError(t, err)

	rows, err := svc.Percentages(ctx, "a@x.edu")
	require.NoError(t, err)
	byName := map[string]SubjectPercentage{}
	for _, r := range rows {
		byName[r.Subject] = r
	}
	assert.Equal(t, 2, byName["OS"].Attended)
	assert.Equal(t, 50.0, byName["OS"].Percent)
	assert.Equal(t, "50.0%", byName["OS"].Display)
	assert.Equal(t, "100.0%", byName["MENTORING"].Display)
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "0.0%", formatPercent(0))
	assert.Equal(t, "33.33%", formatPercent(roundTo(100.0/3, 2)))
	assert.Equal(t, "66.67%", formatPercent(roundTo(200.0/3, 2)))
	assert.Equal(t, "12.5%", formatPercent(12.5))
}

func TestUpdateStatus(t *testing.T) {
	svc, st, _ := newTestService(t, monday(9, 30))
	ctx := context.Background()
	res, err := svc.Submit(ctx, Submission{RollNumber: "21A1"})
	require.NoError(t, err)

	require.NoError(t, svc.UpdateStatus(ctx, res.Record.ID, StatusAbsent))
	assert.Equal(t, StatusAbsent, st.records[0].Status)
	assert.Equal(t, res.Record.Timestamp, st.records[0].Timestamp)
}

func TestUpdateStatusMissingIDLeavesTable(t *testing.T) {
	svc, st, _ := newTestService(t, monday(9, 30))
	ctx := context.Background()
	_, err := svc.Submit(ctx, Submission{RollNumber: "21A1"})
	require.NoError(t, err)
	before := append([]Record(nil), st.records...)

	err = svc.UpdateStatus(ctx, 999, StatusAbsent)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, before, st.records)
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	svc, _, _ := newTestService(t, monday(9, 30))
	err := svc.UpdateStatus(context.Background(), 1, Status("late"))
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestAddManual(t *testing.T) {
	svc, st, _ := newTestService(t, monday(18, 0))

	rec, err := svc.AddManual(context.Background(), ManualEntry{RollNumber: "21A2", ClassName: "DBMS LAB", Status: StatusManual})
	require.NoError(t, err)
	assert.Equal(t, HostFaculty, rec.Host)
	assert.Equal(t, "b@x.edu", rec.Email)
	assert.Equal(t, StatusManual, rec.Status)
	assert.Len(t, st.records, 1)
}

func TestAddManualValidation(t *testing.T) {
	svc, st, _ := newTestService(t, monday(9, 30))
	ctx := context.Background()

	_, err := svc.AddManual(ctx, ManualEntry{RollNumber: "21A1", ClassName: "OS", Status: StatusDuplicate})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.AddManual(ctx, ManualEntry{RollNumber: "21A1", ClassName: "Short Break", Status: StatusPresent})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.AddManual(ctx, ManualEntry{RollNumber: "nobody", ClassName: "OS", Status: StatusPresent})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.Empty(t, st.records)
}

func TestRecordsNewestFirst(t *testing.T) {
	svc, _, clk := newTestService(t, monday(9, 30))
	ctx := context.Background()
	_, err := svc.Submit(ctx, Submission{RollNumber: "21A1"})
	require.NoError(t, err)
	clk.advance(time.Minute)
	_, err = svc.Submit(ctx, Submission{RollNumber: "21A2"})
	require.NoError(t, err)

	recs, err := svc.Records(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "21A2", recs[0].RollNumber)

	hist, err := svc.History(ctx, "a@x.edu")
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}
