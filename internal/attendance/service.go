package attendance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"smartscan/internal/apperr"
	"smartscan/internal/lock"
	"smartscan/internal/metrics"
	"smartscan/internal/roster"
	"smartscan/internal/schedule"
)

// Store is the persistence contract the service needs.
type Store interface {
	Insert(ctx context.Context, rec Record) (Record, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
	ListByEmailSince(ctx context.Context, email string, since time.Time) ([]Record, error)
	ListByEmail(ctx context.Context, email string) ([]Record, error)
	ListAll(ctx context.Context) ([]Record, error)
}

// Directory resolves roll numbers to students.
type Directory interface {
	Lookup(roll string) (roster.Student, bool)
}

// ErrEmptySubject is returned when a subject has no scheduled periods to divide by.
var ErrEmptySubject = errors.New("subject has no scheduled periods")

// Service coordinates period resolution, duplicate detection and persistence.
type Service struct {
	repo     Store
	resolver *schedule.Resolver
	students Directory
	locker   lock.Locker
	window   time.Duration
	now      func() time.Time
	log      *zap.Logger
	metrics  *metrics.Metrics
}

// Option customises a Service.
type Option func(*Service)

// WithDuplicateWindow sets the look-back used by the duplicate guard.
func WithDuplicateWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithLocker replaces the in-process submission lock.
func WithLocker(l lock.Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a service backed by a repository.
func NewService(repo Store, resolver *schedule.Resolver, students Directory, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		resolver: resolver,
		students: students,
		locker:   lock.NewInMemory(),
		window:   time.Hour,
		now:      time.Now,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now reads the service clock.
func (s *Service) Now() time.Time { return s.now() }

// Timetable is the weekly table the resolver was built with.
func (s *Service) Timetable() *schedule.Timetable { return s.resolver.Timetable() }

// CurrentPeriod resolves the running period at the service clock.
func (s *Service) CurrentPeriod() schedule.Period {
	return s.resolver.Current(s.now())
}

// Student looks up a roll number in the class list.
func (s *Service) Student(roll string) (roster.Student, error) {
	st, ok := s.students.Lookup(roll)
	if !ok {
		return roster.Student{}, apperr.Wrap(nil, apperr.ErrNotFound, fmt.Sprintf("roll number %q is not on the class list", roll))
	}
	return st, nil
}

// IsDuplicate reports whether email already has a record inside the window ending at now.
func (s *Service) IsDuplicate(ctx context.Context, email string, now time.Time) (bool, error) {
	recent, err := s.repo.ListByEmailSince(ctx, email, now.Add(-s.window))
	if err != nil {
		return false, err
	}
	return len(recent) > 0, nil
}

// Submission is a student's request to mark attendance.
type Submission struct {
	RollNumber string
	Host       string
}

// Result reports how a submission ended.
type Result struct {
	Outcome Outcome         `json:"outcome"`
	Period  schedule.Period `json:"period"`
	Student roster.Student  `json:"student"`
	Record  *Record         `json:"record,omitempty"`
}

// Submit runs the submission flow: resolve the period, reject outside class time,
// otherwise persist as present or duplicate. The check and insert run under a per-email lock.
func (s *Service) Submit(ctx context.Context, sub Submission) (Result, error) {
	st, err := s.Student(sub.RollNumber)
	if err != nil {
		return Result{}, err
	}

	now := s.now()
	period := s.resolver.Current(now)
	res := Result{Period: period, Student: st}

	if !period.Attendable() {
		res.Outcome = OutcomeNotRequired
		s.metrics.Submission(string(res.Outcome))
		s.log.Info("submission outside class time",
			zap.String("roll_number", st.RollNumber), zap.String("period", period.Label), zap.String("weekday", period.Weekday))
		return res, nil
	}

	unlock, err := s.locker.Lock(ctx, st.Email)
	if err != nil {
		return Result{}, fmt.Errorf("acquire submission lock: %w", err)
	}
	defer unlock()

	dup, err := s.IsDuplicate(ctx, st.Email, now)
	if err != nil {
		return Result{}, err
	}

	status, outcome := StatusPresent, OutcomeRecorded
	if dup {
		status, outcome = StatusDuplicate, OutcomeDuplicate
	}

	rec, err := s.repo.Insert(ctx, Record{
		RollNumber: st.RollNumber,
		Email:      st.Email,
		ClassName:  period.Label,
		Timestamp:  now,
		Host:       sub.Host,
		Status:     status,
	})
	if err != nil {
		return Result{}, err
	}

	res.Outcome = outcome
	res.Record = &rec
	s.metrics.Submission(string(outcome))
	s.log.Info("attendance submitted",
		zap.Int64("id", rec.ID), zap.String("roll_number", rec.RollNumber),
		zap.String("class_name", rec.ClassName), zap.String("status", string(rec.Status)))
	return res, nil
}

// ManualEntry is a faculty-entered row.
type ManualEntry struct {
	RollNumber string
	ClassName  string
	Status     Status
}

// AddManual records an admin-entered row with host FACULTY.
func (s *Service) AddManual(ctx context.Context, in ManualEntry) (Record, error) {
	st, err := s.Student(in.RollNumber)
	if err != nil {
		return Record{}, err
	}
	if !in.Status.in(ManualStatuses) {
		return Record{}, apperr.Validation(fmt.Sprintf("status %q is not allowed for manual entry", in.Status))
	}
	class := strings.TrimSpace(in.ClassName)
	if !s.resolver.Timetable().HasClass(class) {
		return Record{}, apperr.Validation(fmt.Sprintf("class %q is not on the timetable", in.ClassName))
	}

	rec, err := s.repo.Insert(ctx, Record{
		RollNumber: st.RollNumber,
		Email:      st.Email,
		ClassName:  class,
		Timestamp:  s.now(),
		Host:       HostFaculty,
		Status:     in.Status,
	})
	if err != nil {
		return Record{}, err
	}
	s.metrics.ManualEntry(string(rec.Status))
	s.log.Info("manual attendance added", zap.Int64("id", rec.ID), zap.String("roll_number", rec.RollNumber), zap.String("status", string(rec.Status)))
	return rec, nil
}

// UpdateStatus changes the status of an existing record.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status Status) error {
	if !status.in(Statuses) {
		return apperr.Validation(fmt.Sprintf("unknown status %q", status))
	}
	err := s.repo.UpdateStatus(ctx, id, status)
	s.metrics.StatusUpdate(string(status), err)
	if err != nil {
		return err
	}
	s.log.Info("attendance status updated", zap.Int64("id", id), zap.String("status", string(status)))
	return nil
}

// Records lists the whole table newest first.
func (s *Service) Records(ctx context.Context) ([]Record, error) {
	return s.repo.ListAll(ctx)
}

// History lists one student's records newest first.
func (s *Service) History(ctx context.Context, email string) ([]Record, error) {
	return s.repo.ListByEmail(ctx, email)
}

// Percentages derives per-subject attendance for email from the weekly timetable.
func (s *Service) Percentages(ctx context.Context, email string) ([]SubjectPercentage, error) {
	counts := s.resolver.Timetable().SubjectCounts()
	recs, err := s.repo.ListByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	attended := make(map[string]int, len(counts))
	for _, r := range recs {
		if r.Status == StatusPresent {
			attended[r.ClassName]++
		}
	}

	out := make([]SubjectPercentage, 0, len(counts))
	for _, c := range counts {
		if c.Total <= 0 {
			return nil, fmt.Errorf("%s: %w", c.Subject, ErrEmptySubject)
		}
		pct := roundTo(float64(attended[c.Subject])/float64(c.Total)*100, 2)
		out = append(out, SubjectPercentage{
			Subject:  c.Subject,
			Attended: attended[c.Subject],
			Total:    c.Total,
			Percent:  pct,
			Display:  formatPercent(pct),
		})
	}
	return out, nil
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// formatPercent renders the shortest decimal with at least one fractional digit, e.g. "50.0%".
func formatPercent(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s + "%"
}
