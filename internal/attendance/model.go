package attendance

import (
	"fmt"
	"strings"
	"time"
)

// Status tags a record. Only admins change it after insert.
type Status string

const (
	StatusPresent   Status = "present"
	StatusManual    Status = "manual"
	StatusAbsent    Status = "absent"
	StatusDuplicate Status = "duplicate"
)

// Statuses lists every status an admin may set.
var Statuses = []Status{StatusPresent, StatusManual, StatusAbsent, StatusDuplicate}

// ManualStatuses are the statuses offered for faculty-entered rows.
var ManualStatuses = []Status{StatusPresent, StatusManual, StatusAbsent}

// HostFaculty marks rows entered through the admin surface.
const HostFaculty = "FACULTY"

// ParseStatus validates s against Statuses.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.in(Statuses) {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

func (s Status) in(set []Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// Record is one row of the attendance table.
type Record struct {
	ID         int64     `db:"id" json:"id"`
	RollNumber string    `db:"roll_number" json:"roll_number"`
	Email      string    `db:"email" json:"email"`
	ClassName  string    `db:"class_name" json:"class_name"`
	Timestamp  time.Time `db:"timestamp" json:"timestamp"`
	Host       string    `db:"host" json:"host"`
	Status     Status    `db:"status" json:"status"`
}

// Outcome is the terminal state of a submission.
type Outcome string

const (
	OutcomeRecorded    Outcome = "recorded"
	OutcomeDuplicate   Outcome = "already_marked"
	OutcomeNotRequired Outcome = "not_required"
)

// SubjectPercentage is one row of a student's attendance summary.
type SubjectPercentage struct {
	Subject  string  `json:"subject"`
	Attended int     `json:"attended"`
	Total    int     `json:"total"`
	Percent  float64 `json:"percent"`
	Display  string  `json:"display"`
}
