package calls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// NOTE: This repository assumes the following tables exist:
// - calls(id uuid pk, call_id text unique, appointment_id text, doctor_id text, patient_id text,
//   status text, start_time timestamptz, end_time timestamptz, end_reason text,
//   created_at timestamptz, updated_at timestamptz)
// - appointments(id text pk, doctor_id text, patient_id text, consultation_mode text)
//
// It also assumes at most one active call per appointment, e.g.:
// CREATE UNIQUE INDEX calls_active_appointment ON calls (appointment_id)
//   WHERE status IN ('initiated', 'accepted');

const uniqueViolation = "23505"

const callColumns = `id, call_id, appointment_id, doctor_id, patient_id, status, start_time, end_time, COALESCE(end_reason, ''), created_at, updated_at`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (Call, error) {
	var c Call
	var status string
	var start, end sql.NullTime
	if err := row.Scan(
		&c.ID,
		&c.CallID,
		&c.AppointmentID,
		&c.DoctorID,
		&c.PatientID,
		&status,
		&start,
		&end,
		&c.EndReason,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return Call{}, err
	}
	c.Status = Status(status)
	if start.Valid {
		t := start.Time
		c.StartTime = &t
	}
	if end.Valid {
		t := end.Time
		c.EndTime = &t
	}
	return c, nil
}

func (p *PostgresStore) Create(ctx context.Context, c Call) (Call, error) {
	q := `
INSERT INTO calls (id, call_id, appointment_id, doctor_id, patient_id, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + callColumns

	out, err := scanCall(p.db.QueryRowContext(ctx, q,
		c.ID,
		c.CallID,
		c.AppointmentID,
		c.DoctorID,
		c.PatientID,
		string(c.Status),
		c.CreatedAt,
		c.UpdatedAt,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Call{}, ErrActiveCallExists
		}
		return Call{}, fmt.Errorf("insert call: %w", err)
	}
	return out, nil
}

func (p *PostgresStore) FindByCallID(ctx context.Context, callID string) (Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE call_id = $1`
	c, err := scanCall(p.db.QueryRowContext(ctx, q, callID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrNotFound
		}
		return Call{}, fmt.Errorf("find call: %w", err)
	}
	return c, nil
}

func (p *PostgresStore) FindActiveByAppointment(ctx context.Context, appointmentID string) (Call, bool, error) {
	q := `SELECT ` + callColumns + `
FROM calls
WHERE appointment_id = $1 AND status IN ('initiated', 'accepted')
ORDER BY created_at DESC
LIMIT 1`
	c, err := scanCall(p.db.QueryRowContext(ctx, q, appointmentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, false, nil
		}
		return Call{}, false, fmt.Errorf("find active call: %w", err)
	}
	return c, true, nil
}

// Transition is a single conditional UPDATE; the row lock taken by it
// serialises concurrent transitions of the same call.
func (p *PostgresStore) Transition(ctx context.Context, callID string, from []Status, u Update) (Call, error) {
	if len(from) == 0 {
		return Call{}, ErrInvalidTransition
	}
	args := []any{callID, string(u.To), nullTime(u.StartTime), nullTime(u.EndTime), u.EndReason, u.At}
	placeholders := make([]string, len(from))
	for i, s := range from {
		args = append(args, string(s))
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}

	q := `
UPDATE calls
SET status = $2,
    start_time = COALESCE($3, start_time),
    end_time = COALESCE($4, end_time),
    end_reason = COALESCE(NULLIF($5, ''), end_reason),
    updated_at = $6
WHERE call_id = $1 AND status IN (` + strings.Join(placeholders, ", ") + `)
RETURNING ` + callColumns

	c, err := scanCall(p.db.QueryRowContext(ctx, q, args...))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Call{}, fmt.Errorf("transition call: %w", err)
	}

	// Nothing matched: either the call is missing or its status moved on.
	current, ferr := p.FindByCallID(ctx, callID)
	if ferr != nil {
		return Call{}, ferr
	}
	return current, ErrInvalidTransition
}

func (p *PostgresStore) FindAppointment(ctx context.Context, appointmentID string) (Appointment, error) {
	const q = `
SELECT id, doctor_id, patient_id, consultation_mode
FROM appointments
WHERE id = $1
`
	var a Appointment
	if err := p.db.QueryRowContext(ctx, q, appointmentID).Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.ConsultationMode,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Appointment{}, ErrAppointmentNotFound
		}
		return Appointment{}, fmt.Errorf("find appointment: %w", err)
	}
	return a, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
