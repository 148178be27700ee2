package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRepo appends to call_audit_events.
//
// NOTE: the table should carry an INSERT-only policy (or a trigger rejecting UPDATE/DELETE).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO call_audit_events (id, call_id, type, actor_user_id, actor_role, appointment_id, message, created_at)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.CallID,
		string(e.Type),
		e.ActorUserID,
		e.ActorRole,
		e.AppointmentID,
		e.Message,
		e.CreatedAt,
	)
	return err
}

// ForCall returns a call's events oldest first.
func (r *PostgresRepo) ForCall(ctx context.Context, callID string) ([]Event, error) {
	const q = `
SELECT id, call_id, type, COALESCE(actor_user_id, ''), COALESCE(actor_role, ''),
       COALESCE(appointment_id, ''), message, created_at
FROM call_audit_events
WHERE call_id = $1
ORDER BY created_at, id
`
	rows, err := r.db.QueryContext(ctx, q, callID)
	if err != nil {
		return nil, fmt.Errorf("query call audit: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var typ string
		if err := rows.Scan(&e.ID, &e.CallID, &typ, &e.ActorUserID, &e.ActorRole, &e.AppointmentID, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan call audit: %w", err)
		}
		e.Type = EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}
