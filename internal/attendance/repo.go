package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"smartscan/internal/apperr"
)

const recordColumns = `id, roll_number, email, class_name, timestamp, host, status`

// Repository persists attendance records. Queries are written with ? and rebound per dialect.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a repo.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes a new record and returns it with its assigned id.
func (r *Repository) Insert(ctx context.Context, rec Record) (Record, error) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	rec.Timestamp = rec.Timestamp.UTC()

	q := r.db.Rebind(`
		INSERT INTO attendance (roll_number, email, class_name, timestamp, host, status)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`)
	row := r.db.QueryRowxContext(ctx, q, rec.RollNumber, rec.Email, rec.ClassName, rec.Timestamp, rec.Host, string(rec.Status))
	if err := row.Scan(&rec.ID); err != nil {
		return Record{}, apperr.Storage(err, "insert attendance")
	}
	return rec, nil
}

// UpdateStatus sets the status of one record. A missing id leaves the table untouched and reports NotFound.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE attendance SET status = ? WHERE id = ?`), string(status), id)
	if err != nil {
		return apperr.Storage(err, "update attendance status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Storage(err, "update attendance status")
	}
	if n == 0 {
		return apperr.Wrap(nil, apperr.ErrNotFound, fmt.Sprintf("attendance record %d not found", id))
	}
	return nil
}

// ListByEmailSince returns the student's records stamped strictly after since, newest first.
func (r *Repository) ListByEmailSince(ctx context.Context, email string, since time.Time) ([]Record, error) {
	q := r.db.Rebind(`SELECT ` + recordColumns + ` FROM attendance WHERE email = ? AND timestamp > ? ORDER BY timestamp DESC`)
	var out []Record
	if err := r.db.SelectContext(ctx, &out, q, email, since.UTC()); err != nil {
		return nil, apperr.Storage(err, "query attendance by email")
	}
	return out, nil
}

// ListByEmail returns every record of the student, newest first.
func (r *Repository) ListByEmail(ctx context.Context, email string) ([]Record, error) {
	q := r.db.Rebind(`SELECT ` + recordColumns + ` FROM attendance WHERE email = ? ORDER BY timestamp DESC`)
	var out []Record
	if err := r.db.SelectContext(ctx, &out, q, email); err != nil {
		return nil, apperr.Storage(err, "query attendance by email")
	}
	return out, nil
}

// ListAll returns the whole table, newest first.
func (r *Repository) ListAll(ctx context.Context) ([]Record, error) {
	var out []Record
	if err := r.db.SelectContext(ctx, &out, `SELECT `+recordColumns+` FROM attendance ORDER BY timestamp DESC, id DESC`); err != nil {
		return nil, apperr.Storage(err, "list attendance")
	}
	return out, nil
}
